package protocol

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxNameSize is the cap on name bytes carried by CInit and SGameStart.
	// it keeps every encoded packet well below the one-byte frame length.
	MaxNameSize = 32

	MaxColumn uint8 = 6
	// NoColumn is the wire sentinel for an absent column in SGameResult.
	NoColumn uint8 = 255
)

var (
	ErrInvalidEncoding = errors.New("protocol: invalid encoding")
	// ErrUnexpectedPacket is a well-formed packet that the receiver's state
	// does not allow (wrong variant, wrong turn, game already over).
	ErrUnexpectedPacket = errors.New("protocol: unexpected packet")
)

type Color uint8

const (
	Red Color = iota
	Yellow
)

func (c Color) Opponent() Color {
	if c == Red {
		return Yellow
	}
	return Red
}

func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Yellow:
		return "yellow"
	default:
		return fmt.Sprintf("color(%d)", uint8(c))
	}
}

func decodeColor(b byte) (Color, error) {
	if b > byte(Yellow) {
		return 0, fmt.Errorf("%w: color %d", ErrInvalidEncoding, b)
	}
	return Color(b), nil
}

// Result is the classification of a board. InProgress is the zero value and
// never goes on the wire.
type Result uint8

const (
	InProgress Result = iota
	RedWin
	YellowWin
	Draw
)

// WinFor returns the winning result for c.
func WinFor(c Color) Result {
	if c == Red {
		return RedWin
	}
	return YellowWin
}

func (r Result) Terminal() bool {
	return r != InProgress
}

func (r Result) String() string {
	switch r {
	case InProgress:
		return "in progress"
	case RedWin:
		return "red win"
	case YellowWin:
		return "yellow win"
	case Draw:
		return "draw"
	default:
		return fmt.Sprintf("result(%d)", uint8(r))
	}
}

// wire bytes: 0=red win, 1=yellow win, 2=draw.
func encodeResult(r Result) (byte, bool) {
	switch r {
	case RedWin, YellowWin, Draw:
		return byte(r) - 1, true
	default:
		return 0, false
	}
}

func decodeResult(b byte) (Result, error) {
	if b > 2 {
		return 0, fmt.Errorf("%w: result %d", ErrInvalidEncoding, b)
	}
	return Result(b + 1), nil
}

// TruncateName cuts name to MaxNameSize bytes. it may split a multi-byte
// sequence, receivers decode lossily.
func TruncateName(name string) string {
	if len(name) > MaxNameSize {
		return name[:MaxNameSize]
	}
	return name
}

func decodeName(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}

func checkSize(data []byte, want int, what string) error {
	if len(data) < want {
		return fmt.Errorf("%w: %s too short (got %d; want %d)", ErrInvalidEncoding, what, len(data), want)
	}
	if len(data) > want {
		return fmt.Errorf("%w: %s too long (got %d; want %d)", ErrInvalidEncoding, what, len(data), want)
	}
	return nil
}

func checkTag(data []byte, tag uint8, what string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty %s", ErrInvalidEncoding, what)
	}
	if data[0] != tag {
		return fmt.Errorf("%w: %s tag %d (want %d)", ErrInvalidEncoding, what, data[0], tag)
	}
	return nil
}
