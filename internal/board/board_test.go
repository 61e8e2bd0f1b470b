package board_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/blukai/fourparty/internal/board"
	"github.com/blukai/fourparty/internal/protocol"
	"github.com/matryer/is"
)

// drawSequence is an alternating game, red first, that fills the board
// without four in a row.
var drawSequence = []int{
	2, 0, 2, 0, 0, 0, 0, 1, 0, 1, 1, 1, 1, 2, 1, 4, 2, 2, 3, 2, 3,
	3, 3, 3, 6, 3, 6, 4, 4, 4, 4, 5, 4, 5, 5, 5, 5, 6, 6, 6, 5, 6,
}

func play(t *testing.T, b *board.Board, columns ...int) {
	t.Helper()
	color := protocol.Red
	for _, column := range columns {
		if _, err := b.Drop(column, color); err != nil {
			t.Fatalf("could not drop into %d: %v", column, err)
		}
		color = color.Opponent()
	}
}

func TestHorizontalWin(t *testing.T) {
	is := is.New(t)

	b := board.Board{}
	for column := 0; column < 4; column++ {
		row, err := b.Drop(column, protocol.Red)
		is.NoErr(err)
		is.Equal(row, board.Rows-1)
	}
	is.Equal(b.Evaluate(), protocol.RedWin)
}

func TestVerticalWin(t *testing.T) {
	is := is.New(t)

	b := board.Board{}
	play(t, &b, 0, 3, 1, 3, 0, 3, 1, 3)
	is.Equal(b.Evaluate(), protocol.YellowWin)
}

func TestDiagonalWins(t *testing.T) {
	t.Run("rising", func(t *testing.T) {
		is := is.New(t)

		b := board.Board{}
		// red ends on (5,0) (4,1) (3,2) (2,3)
		play(t, &b, 0, 1, 1, 2, 2, 3, 2, 3, 3, 6, 3)
		is.Equal(b.Evaluate(), protocol.RedWin)
	})

	t.Run("falling", func(t *testing.T) {
		is := is.New(t)

		b := board.Board{}
		// red ends on (2,3) (3,4) (4,5) (5,6)
		play(t, &b, 6, 5, 5, 4, 4, 3, 4, 3, 3, 0, 3)
		is.Equal(b.Evaluate(), protocol.RedWin)
	})
}

func TestDraw(t *testing.T) {
	is := is.New(t)

	b := board.Board{}
	for i, column := range drawSequence {
		is.Equal(b.Evaluate(), protocol.InProgress)
		color := protocol.Red
		if i%2 == 1 {
			color = protocol.Yellow
		}
		_, err := b.Drop(column, color)
		is.NoErr(err)
	}
	is.Equal(b.Evaluate(), protocol.Draw)
	is.Equal(len(b.LegalColumns()), 0)
}

func TestDropOutOfRange(t *testing.T) {
	is := is.New(t)

	b := board.Board{}
	before := b

	_, err := b.Drop(board.Columns, protocol.Red)
	is.True(errors.Is(err, board.ErrIllegalMove))
	_, err = b.Drop(-1, protocol.Red)
	is.True(errors.Is(err, board.ErrIllegalMove))
	is.Equal(b, before)
}

func TestDropIntoFullColumn(t *testing.T) {
	is := is.New(t)

	b := board.Board{}
	play(t, &b, 0, 0, 0, 0, 0, 0)
	is.True(!b.IsLegal(0))
	before := b

	_, err := b.Drop(0, protocol.Yellow)
	is.True(errors.Is(err, board.ErrIllegalMove))
	is.Equal(b, before)
}

func TestIsLegal(t *testing.T) {
	is := is.New(t)

	b := board.Board{}
	is.True(b.IsLegal(0))
	is.True(b.IsLegal(6))
	is.True(!b.IsLegal(7))
	is.True(!b.IsLegal(-1))

	play(t, &b, 3, 3, 3)
	before := b
	is.True(b.IsLegal(3))
	is.Equal(b, before)
}

func TestGravity(t *testing.T) {
	is := is.New(t)

	rng := rand.New(rand.NewSource(42))
	for game := 0; game < 50; game++ {
		b := board.Board{}
		color := protocol.Red
		for b.Evaluate() == protocol.InProgress {
			legal := b.LegalColumns()
			_, err := b.Drop(legal[rng.Intn(len(legal))], color)
			is.NoErr(err)
			color = color.Opponent()

			for column := 0; column < board.Columns; column++ {
				// once an empty cell is seen scanning upwards, everything
				// above it must be empty too
				seenEmpty := false
				for row := board.Rows - 1; row >= 0; row-- {
					empty := b.Cell(row, column) == board.Empty
					is.True(!seenEmpty || empty)
					seenEmpty = seenEmpty || empty
				}
			}
		}
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	is := is.New(t)

	a := board.Board{}
	play(t, &a, 0, 1, 0, 1, 0, 1)

	// same cells reached through a different move order
	c := board.Board{}
	_, err := c.Drop(1, protocol.Yellow)
	is.NoErr(err)
	_, err = c.Drop(1, protocol.Yellow)
	is.NoErr(err)
	_, err = c.Drop(1, protocol.Yellow)
	is.NoErr(err)
	for i := 0; i < 3; i++ {
		_, err = c.Drop(0, protocol.Red)
		is.NoErr(err)
	}

	is.Equal(a, c)
	is.Equal(a.Evaluate(), protocol.InProgress)
	is.Equal(a.Evaluate(), a.Evaluate())
	is.Equal(a.Evaluate(), c.Evaluate())
}

func TestString(t *testing.T) {
	is := is.New(t)

	b := board.Board{}
	play(t, &b, 0, 6)
	want := " 0 1 2 3 4 5 6\n" +
		" . . . . . . .\n" +
		" . . . . . . .\n" +
		" . . . . . . .\n" +
		" . . . . . . .\n" +
		" . . . . . . .\n" +
		" R . . . . . Y\n"
	is.Equal(b.String(), want)
}
