package gameclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/blukai/fourparty/internal/board"
	"github.com/blukai/fourparty/internal/debug"
	"github.com/blukai/fourparty/internal/frame"
	"github.com/blukai/fourparty/internal/protocol"
	"github.com/phuslu/log"
)

var ErrNotYourTurn = errors.New("gameclient: not your turn")

// GameClient is one player's end of a match. it mirrors the board from the
// server's events so moves can be validated before they are sent.
//
// GameClient is not safe for concurrent use.
type GameClient struct {
	conn net.Conn

	logger *log.Logger

	sendTimeout time.Duration
	recvTimeout time.Duration

	started  bool
	color    protocol.Color
	opponent string
	active   protocol.Color
	board    board.Board
	result   protocol.Result
}

func NewGameClient(network, address string, logger *log.Logger) (*GameClient, error) {
	conn, err := net.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", network, err)
	}

	// if logger is nil (which might be true in tests) => use default, but
	// silenced logger
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	gc := &GameClient{
		conn: conn,

		logger: logger,

		sendTimeout: time.Second,
		recvTimeout: 0,
	}

	return gc, nil
}

// SetRecvTimeout bounds every Recv. zero (the default) waits forever, which
// is what a player waiting on a slow opponent wants.
func (gc *GameClient) SetRecvTimeout(timeout time.Duration) {
	gc.recvTimeout = timeout
}

func (gc *GameClient) Close() error {
	return gc.conn.Close()
}

func (gc *GameClient) LocalAddr() net.Addr {
	return gc.conn.LocalAddr()
}

// SendPacket writes packet as is, without checking it against the mirrored
// game state.
func (gc *GameClient) SendPacket(packet protocol.CPacket) error {
	gc.logger.Debug().
		Any("packet", packet).
		Msg("send")

	payload, err := packet.MarshalBinary()
	debug.Assert(err == nil)

	if err := gc.conn.SetWriteDeadline(deadline(gc.sendTimeout)); err != nil {
		return fmt.Errorf("could not set write deadline: %w", err)
	}
	if err := frame.WriteFrame(gc.conn, payload); err != nil {
		return fmt.Errorf("could not send: %w", err)
	}
	return nil
}

// Recv blocks for the next server packet and applies it to the mirrored
// state.
func (gc *GameClient) Recv() (protocol.SPacket, error) {
	if err := gc.conn.SetReadDeadline(deadline(gc.recvTimeout)); err != nil {
		return nil, fmt.Errorf("could not set read deadline: %w", err)
	}

	payload, err := frame.ReadFrame(gc.conn)
	if err != nil {
		return nil, fmt.Errorf("could not recv: %w", err)
	}

	packet, err := protocol.DecodeSPacket(payload)
	if err != nil {
		gc.logger.Error().
			Str("bytes", fmt.Sprintf("%v", payload)).
			Msgf("could not decode packet: %v", err)
		return nil, err
	}

	gc.logger.Debug().
		Any("packet", packet).
		Msg("recv")

	if err := gc.apply(packet); err != nil {
		return nil, err
	}
	return packet, nil
}

func (gc *GameClient) apply(packet protocol.SPacket) error {
	switch packet := packet.(type) {
	case protocol.SGameStart:
		if gc.started {
			return fmt.Errorf("%w: second game start", protocol.ErrUnexpectedPacket)
		}
		gc.started = true
		gc.color = packet.Color
		gc.opponent = packet.Opponent
		gc.active = protocol.Red
	case protocol.SMove:
		if err := gc.mirror(packet.Column, packet.Color); err != nil {
			return err
		}
		gc.active = packet.Color.Opponent()
	case protocol.SGameResult:
		if !gc.started || gc.result.Terminal() {
			return fmt.Errorf("%w: game result outside of a game", protocol.ErrUnexpectedPacket)
		}
		if packet.HasColumn() {
			if err := gc.mirror(packet.Column, packet.Color); err != nil {
				return err
			}
		}
		gc.result = packet.Result
	}
	return nil
}

func (gc *GameClient) mirror(column uint8, color protocol.Color) error {
	if !gc.started || gc.result.Terminal() {
		return fmt.Errorf("%w: move outside of a game", protocol.ErrUnexpectedPacket)
	}
	if color != gc.active {
		return fmt.Errorf("%w: %s moved during %s's turn", protocol.ErrUnexpectedPacket, color, gc.active)
	}
	if _, err := gc.board.Drop(int(column), color); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrUnexpectedPacket, err)
	}
	return nil
}

// Join is blocking. it sends the player's name and waits for the game to
// start, which happens once the server found an opponent and both sides
// introduced themselves.
func (gc *GameClient) Join(name string) (protocol.SGameStart, error) {
	if err := gc.SendPacket(protocol.CInit{Name: name}); err != nil {
		return protocol.SGameStart{}, err
	}

	packet, err := gc.Recv()
	if err != nil {
		return protocol.SGameStart{}, err
	}
	gameStart, ok := packet.(protocol.SGameStart)
	if !ok {
		return protocol.SGameStart{}, fmt.Errorf(
			"%w: got %T; want %T",
			protocol.ErrUnexpectedPacket,
			packet,
			protocol.SGameStart{},
		)
	}
	return gameStart, nil
}

// SendMove validates column against the mirrored board first. board's
// ErrIllegalMove and ErrNotYourTurn are recoverable: nothing was sent.
func (gc *GameClient) SendMove(column int) error {
	if !gc.MyTurn() {
		return ErrNotYourTurn
	}
	if !gc.board.IsLegal(column) {
		return fmt.Errorf("%w: column %d", board.ErrIllegalMove, column)
	}
	return gc.SendPacket(protocol.CMove{Column: uint8(column)})
}

func (gc *GameClient) SendForfeit() error {
	return gc.SendPacket(protocol.CForfeit{})
}

func (gc *GameClient) Color() protocol.Color {
	return gc.color
}

func (gc *GameClient) Opponent() string {
	return gc.opponent
}

// Board returns a copy of the mirrored board.
func (gc *GameClient) Board() board.Board {
	return gc.board
}

// Result is InProgress until a game result was received.
func (gc *GameClient) Result() protocol.Result {
	return gc.result
}

func (gc *GameClient) MyTurn() bool {
	return gc.started && !gc.result.Terminal() && gc.active == gc.color
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
