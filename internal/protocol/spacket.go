package protocol

import (
	"bytes"
	"encoding"
	"fmt"

	"github.com/blukai/fourparty/internal/debug"
)

const (
	// NOTE: S stands for server, these travel server -> player
	SPacketGameStart uint8 = iota
	SPacketMove
	SPacketGameResult
)

// SPacket is a server -> player packet. MarshalBinary produces the complete
// frame payload, tag included.
type SPacket interface {
	encoding.BinaryMarshaler
	sPacket()
}

// SGameStart tells a player who they are playing against and which color
// they were assigned.
type SGameStart struct {
	Opponent string
	Color    Color
}

// SMove announces a move that did not end the game. Color is the mover's.
type SMove struct {
	Column uint8
	Color  Color
}

// SGameResult ends the game. Column is the deciding column or NoColumn when
// there is none (forfeit, disconnect). Color is the color of whoever decided
// the game.
type SGameResult struct {
	Result Result
	Column uint8
	Color  Color
}

func (SGameStart) sPacket()  {}
func (SMove) sPacket()       {}
func (SGameResult) sPacket() {}

// HasColumn reports whether the result carries a deciding column.
func (p SGameResult) HasColumn() bool {
	return p.Column != NoColumn
}

var (
	_ encoding.BinaryMarshaler   = SGameStart{}
	_ encoding.BinaryUnmarshaler = (*SGameStart)(nil)
	_ encoding.BinaryMarshaler   = SMove{}
	_ encoding.BinaryUnmarshaler = (*SMove)(nil)
	_ encoding.BinaryMarshaler   = SGameResult{}
	_ encoding.BinaryUnmarshaler = (*SGameResult)(nil)
)

func (p SGameStart) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}
	buf.WriteByte(SPacketGameStart)
	buf.WriteString(TruncateName(p.Opponent))
	buf.WriteByte(byte(p.Color))
	return buf.Bytes(), nil
}

func (p *SGameStart) UnmarshalBinary(data []byte) error {
	if err := checkTag(data, SPacketGameStart, "game start"); err != nil {
		return err
	}
	// tag + color at minimum, name may be empty
	if len(data) < 2 {
		return fmt.Errorf("%w: game start too short (got %d; want >= 2)", ErrInvalidEncoding, len(data))
	}

	color, err := decodeColor(data[len(data)-1])
	if err != nil {
		return err
	}
	p.Opponent = decodeName(data[1 : len(data)-1])
	p.Color = color
	return nil
}

func (p SMove) MarshalBinary() ([]byte, error) {
	return []byte{SPacketMove, p.Column, byte(p.Color)}, nil
}

func (p *SMove) UnmarshalBinary(data []byte) error {
	if err := checkTag(data, SPacketMove, "move"); err != nil {
		return err
	}
	if err := checkSize(data, 3, "move"); err != nil {
		return err
	}
	if data[1] > MaxColumn {
		return fmt.Errorf("%w: move column %d", ErrInvalidEncoding, data[1])
	}
	color, err := decodeColor(data[2])
	if err != nil {
		return err
	}
	p.Column = data[1]
	p.Color = color
	return nil
}

func (p SGameResult) MarshalBinary() ([]byte, error) {
	result, ok := encodeResult(p.Result)
	debug.Assertf(ok, "can't encode result %s", p.Result)
	debug.Assertf(p.Column <= MaxColumn || p.Column == NoColumn, "can't encode column %d", p.Column)

	return []byte{SPacketGameResult, result, p.Column, byte(p.Color)}, nil
}

func (p *SGameResult) UnmarshalBinary(data []byte) error {
	if err := checkTag(data, SPacketGameResult, "game result"); err != nil {
		return err
	}
	if err := checkSize(data, 4, "game result"); err != nil {
		return err
	}

	result, err := decodeResult(data[1])
	if err != nil {
		return err
	}
	column := data[2]
	if column > MaxColumn && column != NoColumn {
		return fmt.Errorf("%w: game result column %d", ErrInvalidEncoding, column)
	}
	color, err := decodeColor(data[3])
	if err != nil {
		return err
	}

	p.Result = result
	p.Column = column
	p.Color = color
	return nil
}

// DecodeSPacket dispatches on the tag byte. the returned packet is a value
// (SGameStart, SMove or SGameResult), never a pointer.
func DecodeSPacket(data []byte) (SPacket, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidEncoding)
	}

	switch data[0] {
	case SPacketGameStart:
		var p SGameStart
		if err := p.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return p, nil
	case SPacketMove:
		var p SMove
		if err := p.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return p, nil
	case SPacketGameResult:
		var p SGameResult
		if err := p.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown server packet tag %d", ErrInvalidEncoding, data[0])
	}
}
