package protocol

import (
	"bytes"
	"encoding"
	"fmt"
)

const (
	// NOTE: C stands for client, these travel player -> server
	CPacketInit uint8 = iota
	CPacketMove
	CPacketForfeit
)

// CPacket is a player -> server packet. MarshalBinary produces the complete
// frame payload, tag included.
type CPacket interface {
	encoding.BinaryMarshaler
	cPacket()
}

type CInit struct {
	Name string
}

// CMove carries the raw column byte. range checking belongs to the board, so
// a bad column surfaces as an illegal move instead of an encoding error.
type CMove struct {
	Column uint8
}

type CForfeit struct{}

func (CInit) cPacket()    {}
func (CMove) cPacket()    {}
func (CForfeit) cPacket() {}

var (
	_ encoding.BinaryMarshaler   = CInit{}
	_ encoding.BinaryUnmarshaler = (*CInit)(nil)
	_ encoding.BinaryMarshaler   = CMove{}
	_ encoding.BinaryUnmarshaler = (*CMove)(nil)
	_ encoding.BinaryMarshaler   = CForfeit{}
	_ encoding.BinaryUnmarshaler = (*CForfeit)(nil)
)

func (p CInit) MarshalBinary() ([]byte, error) {
	buf := bytes.Buffer{}
	buf.WriteByte(CPacketInit)
	buf.WriteString(TruncateName(p.Name))
	return buf.Bytes(), nil
}

// UnmarshalBinary keeps at most MaxNameSize bytes of the name, anything past
// that is dropped rather than rejected.
func (p *CInit) UnmarshalBinary(data []byte) error {
	if err := checkTag(data, CPacketInit, "init"); err != nil {
		return err
	}
	name := data[1:]
	if len(name) > MaxNameSize {
		name = name[:MaxNameSize]
	}
	p.Name = decodeName(name)
	return nil
}

func (p CMove) MarshalBinary() ([]byte, error) {
	return []byte{CPacketMove, p.Column}, nil
}

func (p *CMove) UnmarshalBinary(data []byte) error {
	if err := checkTag(data, CPacketMove, "move"); err != nil {
		return err
	}
	if err := checkSize(data, 2, "move"); err != nil {
		return err
	}
	p.Column = data[1]
	return nil
}

func (p CForfeit) MarshalBinary() ([]byte, error) {
	return []byte{CPacketForfeit}, nil
}

func (p *CForfeit) UnmarshalBinary(data []byte) error {
	if err := checkTag(data, CPacketForfeit, "forfeit"); err != nil {
		return err
	}
	return checkSize(data, 1, "forfeit")
}

// DecodeCPacket dispatches on the tag byte. the returned packet is a value
// (CInit, CMove or CForfeit), never a pointer.
func DecodeCPacket(data []byte) (CPacket, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidEncoding)
	}

	switch data[0] {
	case CPacketInit:
		var p CInit
		if err := p.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return p, nil
	case CPacketMove:
		var p CMove
		if err := p.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return p, nil
	case CPacketForfeit:
		var p CForfeit
		if err := p.UnmarshalBinary(data); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown client packet tag %d", ErrInvalidEncoding, data[0])
	}
}
