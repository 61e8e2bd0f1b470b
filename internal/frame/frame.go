package frame

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// a frame is one length byte followed by exactly that many payload bytes.
const MaxPayloadSize = 255

var (
	ErrConnectionClosed = errors.New("frame: connection closed")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
)

// ReadFrame blocks until one complete frame has been read from r. a stream
// that ends (or fails) before the length byte or before the full payload
// yields ErrConnectionClosed. timeouts are passed through unclassified, check
// them with IsTimeout.
func ReadFrame(r io.Reader) ([]byte, error) {
	var size [1]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, classify("could not read frame length", err)
	}

	payload := make([]byte, size[0])
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, classify("could not read frame payload", err)
	}

	return payload, nil
}

// WriteFrame writes the length byte and the payload with a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w (got %d; want <= %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	buf := make([]byte, 0, 1+len(payload))
	buf = append(buf, byte(len(payload)))
	buf = append(buf, payload...)

	if _, err := w.Write(buf); err != nil {
		return classify("could not write frame", err)
	}
	return nil
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classify(msg string, err error) error {
	if IsTimeout(err) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%s: %w: %w", msg, ErrConnectionClosed, err)
}
