package gameserver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/blukai/fourparty/internal/board"
	"github.com/blukai/fourparty/internal/frame"
	"github.com/blukai/fourparty/internal/metrics"
	"github.com/blukai/fourparty/internal/protocol"
	"github.com/matryer/is"
)

// newPlayingSession returns a session that already assigned colors. apply
// never touches connections, so there are none.
func newPlayingSession() *session {
	return &session{
		id:      "test",
		metrics: metrics.New(),
		options: &options{},
		state:   stateInProgress,
		active:  protocol.Red,
	}
}

func TestApplyRejectsMoveFromInactiveColor(t *testing.T) {
	is := is.New(t)

	s := newPlayingSession()

	event, err := s.apply(protocol.Yellow, protocol.CMove{Column: 3})
	is.True(errors.Is(err, protocol.ErrUnexpectedPacket))
	is.Equal(event, nil)
	is.Equal(s.board, board.Board{})
	is.Equal(s.active, protocol.Red)
	is.Equal(s.state, stateInProgress)
}

func TestApplyAlternatesTurns(t *testing.T) {
	is := is.New(t)

	s := newPlayingSession()

	var last *protocol.Color
	for _, column := range []uint8{3, 3, 4, 4, 5, 5} {
		mover := s.active
		event, err := s.apply(mover, protocol.CMove{Column: column})
		is.NoErr(err)

		move, ok := event.(protocol.SMove)
		is.True(ok)
		is.Equal(move, protocol.SMove{Column: column, Color: mover})
		if last != nil {
			is.True(*last != move.Color)
		}
		last = &move.Color
	}
	is.Equal(s.state, stateInProgress)
}

func TestApplyWinEndsGame(t *testing.T) {
	is := is.New(t)

	s := newPlayingSession()
	for _, column := range []uint8{0, 6, 1, 6, 2, 6} {
		_, err := s.apply(s.active, protocol.CMove{Column: column})
		is.NoErr(err)
	}

	event, err := s.apply(protocol.Red, protocol.CMove{Column: 3})
	is.NoErr(err)
	is.Equal(event, protocol.SGameResult{Result: protocol.RedWin, Column: 3, Color: protocol.Red})
	is.Equal(s.state, stateFinished)
	is.Equal(s.outcome(), metrics.OutcomeRedWin)

	// nothing is processed once the game is over
	before := s.board
	_, err = s.apply(protocol.Yellow, protocol.CMove{Column: 4})
	is.True(errors.Is(err, protocol.ErrUnexpectedPacket))
	_, err = s.apply(protocol.Red, protocol.CMove{Column: 4})
	is.True(errors.Is(err, protocol.ErrUnexpectedPacket))
	is.Equal(s.board, before)
}

func TestApplyIllegalMove(t *testing.T) {
	is := is.New(t)

	s := newPlayingSession()

	_, err := s.apply(protocol.Red, protocol.CMove{Column: 7})
	is.True(errors.Is(err, protocol.ErrUnexpectedPacket))
	is.True(errors.Is(err, board.ErrIllegalMove))
	is.Equal(errorKind(err), metrics.ErrorIllegalMove)
	is.Equal(s.board, board.Board{})

	for i := 0; i < board.Rows; i++ {
		_, err := s.apply(s.active, protocol.CMove{Column: 2})
		is.NoErr(err)
	}
	before := s.board
	active := s.active

	_, err = s.apply(active, protocol.CMove{Column: 2})
	is.True(errors.Is(err, board.ErrIllegalMove))
	is.Equal(s.board, before)
	is.Equal(s.active, active)
}

func TestApplyForfeit(t *testing.T) {
	is := is.New(t)

	s := newPlayingSession()
	_, err := s.apply(protocol.Red, protocol.CMove{Column: 0})
	is.NoErr(err)

	event, err := s.apply(protocol.Yellow, protocol.CForfeit{})
	is.NoErr(err)
	is.Equal(event, protocol.SGameResult{Result: protocol.RedWin, Column: protocol.NoColumn, Color: protocol.Yellow})
	is.Equal(s.state, stateFinished)
	is.Equal(s.outcome(), metrics.OutcomeForfeit)
}

func TestApplyRejectsInit(t *testing.T) {
	is := is.New(t)

	s := newPlayingSession()
	_, err := s.apply(protocol.Red, protocol.CInit{Name: "again"})
	is.True(errors.Is(err, protocol.ErrUnexpectedPacket))
	is.Equal(s.state, stateInProgress)
}

func TestErrorKind(t *testing.T) {
	is := is.New(t)

	is.Equal(errorKind(fmt.Errorf("x: %w", protocol.ErrInvalidEncoding)), metrics.ErrorInvalidEncoding)
	is.Equal(errorKind(fmt.Errorf("x: %w", protocol.ErrUnexpectedPacket)), metrics.ErrorUnexpectedPacket)
	is.Equal(errorKind(fmt.Errorf("x: %w", frame.ErrConnectionClosed)), metrics.ErrorConnectionClosed)
}
