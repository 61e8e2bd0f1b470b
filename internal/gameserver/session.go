package gameserver

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/blukai/fourparty/internal/board"
	"github.com/blukai/fourparty/internal/debug"
	"github.com/blukai/fourparty/internal/frame"
	"github.com/blukai/fourparty/internal/metrics"
	"github.com/blukai/fourparty/internal/protocol"
	"github.com/hashicorp/go-multierror"
	"github.com/phuslu/log"
)

type state uint8

const (
	stateAwaitingInit state = iota
	stateInProgress
	stateFinished
)

func (s state) String() string {
	switch s {
	case stateAwaitingInit:
		return "awaiting init"
	case stateInProgress:
		return "in progress"
	case stateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type peer struct {
	conn  net.Conn
	addr  string
	name  string
	color protocol.Color
	// ready is set once the peer's init packet was read, possibly by an
	// earlier session that handed it back to the matchmaker.
	ready bool
	// broken is set once a read or write on conn failed for good. broken
	// peers are skipped by broadcasts.
	broken bool
	// requeued peers belong to the matchmaker again, the session must not
	// touch or close their connection.
	requeued bool
}

func newPeer(player *Player) *peer {
	p := &peer{
		conn: player.Conn,
		addr: player.Conn.RemoteAddr().String(),
	}
	if player.Ready {
		p.name = protocol.TruncateName(player.Name)
		p.ready = true
	}
	return p
}

func (p *peer) recv(timeout time.Duration) (protocol.CPacket, error) {
	if err := p.conn.SetReadDeadline(deadline(timeout)); err != nil {
		p.broken = true
		return nil, fmt.Errorf("%w: could not set read deadline: %w", frame.ErrConnectionClosed, err)
	}

	payload, err := frame.ReadFrame(p.conn)
	if err != nil {
		if errors.Is(err, frame.ErrConnectionClosed) {
			p.broken = true
		}
		return nil, err
	}

	return protocol.DecodeCPacket(payload)
}

func (p *peer) send(packet protocol.SPacket, timeout time.Duration) error {
	payload, err := packet.MarshalBinary()
	debug.Assert(err == nil)

	if err := p.conn.SetWriteDeadline(deadline(timeout)); err != nil {
		p.broken = true
		return fmt.Errorf("%w: could not set write deadline: %w", frame.ErrConnectionClosed, err)
	}
	if err := frame.WriteFrame(p.conn, payload); err != nil {
		// a timed out write may have left half a frame on the wire
		p.broken = true
		return err
	}
	return nil
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// session drives one match. it owns both connections and the board, nothing
// else touches them while run is executing.
type session struct {
	id      string
	logger  *log.Logger
	metrics *metrics.Metrics
	options *options

	// peers are in arrival order until colors are assigned, afterwards they
	// are indexed by color.
	peers  [2]*peer
	board  board.Board
	active protocol.Color
	state  state

	forfeited bool
	result    protocol.Result

	// requeue takes back a peer whose opponent hung up before the game
	// started.
	requeue func(*Player)
}

func newSession(id string, first, second *Player, logger *log.Logger, m *metrics.Metrics, o *options) *session {
	return &session{
		id:      id,
		logger:  logger,
		metrics: m,
		options: o,
		peers:   [2]*peer{newPeer(first), newPeer(second)},
		state:   stateAwaitingInit,
	}
}

// run plays the match to the end and closes both connections. it returns the
// outcome label.
func (s *session) run() string {
	s.metrics.SessionsActive.Inc()
	defer s.metrics.SessionsActive.Dec()
	defer s.close()

	s.logger.Info().
		Str("session", s.id).
		Str("first", s.peers[0].addr).
		Str("second", s.peers[1].addr).
		Msg("session started")

	if err := s.awaitInit(); err != nil {
		s.countError(err)
		s.state = stateFinished
		s.logger.Warn().
			Str("session", s.id).
			Err(err).
			Bool("requeued", s.peers[0].requeued || s.peers[1].requeued).
			Msg("session aborted before start")
		s.metrics.SessionsFinished.WithLabelValues(metrics.OutcomeAborted).Inc()
		return metrics.OutcomeAborted
	}

	s.start()
	for s.state == stateInProgress {
		s.turn()
	}

	outcome := s.outcome()
	s.metrics.SessionsFinished.WithLabelValues(outcome).Inc()
	s.logger.Info().
		Str("session", s.id).
		Str("result", s.result.String()).
		Str("outcome", outcome).
		Msg("session finished")
	return outcome
}

type initResult struct {
	index int
	name  string
	err   error
}

// awaitInit reads one CInit from every peer that has not sent one yet. the
// reads run concurrently. a protocol violation closes both connections so the
// other read returns too. a peer that hung up is dropped alone, the other one
// goes back to the matchmaker once its init arrived.
func (s *session) awaitInit() error {
	debug.Assert(s.state == stateAwaitingInit)

	results := make(chan initResult, len(s.peers))
	reads := 0
	for i, p := range s.peers {
		if p.ready {
			continue
		}
		reads++
		go func(i int, p *peer) {
			packet, err := p.recv(s.options.initTimeout)
			if err != nil {
				results <- initResult{index: i, err: err}
				return
			}
			cinit, ok := packet.(protocol.CInit)
			if !ok {
				results <- initResult{
					index: i,
					err:   fmt.Errorf("%w: got %T while awaiting init", protocol.ErrUnexpectedPacket, packet),
				}
				return
			}
			results <- initResult{index: i, name: cinit.Name}
		}(i, p)
	}

	var violation, hangup error
	for ; reads > 0; reads-- {
		result := <-results
		p := s.peers[result.index]
		if result.err == nil {
			p.name = protocol.TruncateName(result.name)
			p.ready = true
			continue
		}

		err := fmt.Errorf("peer %s: %w", p.addr, result.err)
		switch {
		case violation != nil:
			// both connections are closed already
		case errors.Is(result.err, frame.ErrConnectionClosed):
			if hangup == nil {
				hangup = err
			}
			_ = p.conn.Close()
		default:
			violation = err
			s.close()
		}
	}

	if violation != nil {
		return violation
	}
	if hangup != nil {
		for _, p := range s.peers {
			if p.ready && !p.broken && s.requeue != nil {
				p.requeued = true
				s.requeue(&Player{Conn: p.conn, Name: p.name, Ready: true})
			}
		}
		return hangup
	}
	return nil
}

// start flips the coin, tells both peers who they play against and hands the
// first turn to red.
func (s *session) start() {
	debug.Assert(s.state == stateAwaitingInit)

	if s.options.coin() {
		s.peers[0], s.peers[1] = s.peers[1], s.peers[0]
	}
	s.peers[protocol.Red].color = protocol.Red
	s.peers[protocol.Yellow].color = protocol.Yellow
	s.active = protocol.Red
	s.state = stateInProgress

	s.logger.Info().
		Str("session", s.id).
		Str("red", s.peers[protocol.Red].name).
		Str("yellow", s.peers[protocol.Yellow].name).
		Msg("colors assigned")

	var errs error
	for _, p := range s.peers {
		opponent := s.peers[p.color.Opponent()]
		gameStart := protocol.SGameStart{Opponent: opponent.name, Color: p.color}
		if err := p.send(gameStart, s.options.writeTimeout); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("could not send game start to %s: %w", p.color, err))
		}
	}
	if errs != nil {
		s.abandon(errs)
	}
}

// turn reads one packet from the active peer and broadcasts its effect.
func (s *session) turn() {
	mover := s.active
	p := s.peers[mover]

	packet, err := p.recv(s.options.moveTimeout)
	if err != nil {
		s.countError(err)
		s.forfeit(mover, err)
		return
	}

	s.logger.Debug().
		Str("session", s.id).
		Str("color", mover.String()).
		Any("packet", packet).
		Msg("recv")

	event, err := s.apply(mover, packet)
	if err != nil {
		s.countError(err)
		s.forfeit(mover, err)
		return
	}

	if err := s.broadcast(event); err != nil {
		if s.state == stateInProgress {
			s.abandon(err)
			return
		}
		s.logger.Error().
			Str("session", s.id).
			Err(err).
			Msg("could not deliver result")
	}
}

// apply advances the game by one packet from color. it touches nothing but
// the session's in-memory state, so a rejected packet leaves the board as it
// was.
func (s *session) apply(from protocol.Color, packet protocol.CPacket) (protocol.SPacket, error) {
	if s.state != stateInProgress {
		return nil, fmt.Errorf("%w: %T while %s", protocol.ErrUnexpectedPacket, packet, s.state)
	}
	if from != s.active {
		return nil, fmt.Errorf("%w: %T from %s during %s's turn", protocol.ErrUnexpectedPacket, packet, from, s.active)
	}

	switch packet := packet.(type) {
	case protocol.CMove:
		column := int(packet.Column)
		if !s.board.IsLegal(column) {
			return nil, fmt.Errorf("%w: %w: column %d", protocol.ErrUnexpectedPacket, board.ErrIllegalMove, column)
		}
		_, err := s.board.Drop(column, from)
		debug.Assert(err == nil)
		s.metrics.Moves.Inc()

		result := s.board.Evaluate()
		if result.Terminal() {
			s.finish(result)
			return protocol.SGameResult{Result: result, Column: packet.Column, Color: from}, nil
		}

		s.active = from.Opponent()
		return protocol.SMove{Column: packet.Column, Color: from}, nil
	case protocol.CForfeit:
		return s.forfeitResult(from), nil
	default:
		return nil, fmt.Errorf("%w: %T during %s's turn", protocol.ErrUnexpectedPacket, packet, from)
	}
}

func (s *session) finish(result protocol.Result) {
	debug.Assert(result.Terminal())
	s.result = result
	s.state = stateFinished
}

func (s *session) forfeitResult(loser protocol.Color) protocol.SGameResult {
	s.forfeited = true
	s.finish(protocol.WinFor(loser.Opponent()))
	return protocol.SGameResult{
		Result: s.result,
		Column: protocol.NoColumn,
		Color:  loser,
	}
}

// forfeit ends the game as a loss for loser and tells whoever is still
// reachable, loser included.
func (s *session) forfeit(loser protocol.Color, cause error) {
	s.logger.Warn().
		Str("session", s.id).
		Str("color", loser.String()).
		Str("addr", s.peers[loser].addr).
		Err(cause).
		Msg("forfeiting")

	if err := s.broadcast(s.forfeitResult(loser)); err != nil {
		s.logger.Debug().
			Str("session", s.id).
			Err(err).
			Msg("forfeit not delivered to every peer")
	}
}

// abandon handles a failed broadcast while the game is running: the first
// broken peer loses.
func (s *session) abandon(cause error) {
	for _, p := range s.peers {
		if p.broken {
			s.countError(cause)
			s.forfeit(p.color, cause)
			return
		}
	}
	// timeouts on write mark peers broken too, so this is unreachable
	debug.Assertf(false, "broadcast failed without a broken peer: %v", cause)
}

// broadcast sends packet to every peer that is still reachable, red first.
// both peers observe game events in the same order because events are
// produced and sent one at a time.
func (s *session) broadcast(packet protocol.SPacket) error {
	s.logger.Debug().
		Str("session", s.id).
		Any("packet", packet).
		Msg("broadcast")

	var errs error
	for _, p := range s.peers {
		if p.broken {
			continue
		}
		if err := p.send(packet, s.options.writeTimeout); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("could not send to %s: %w", p.color, err))
		}
	}
	return errs
}

func (s *session) outcome() string {
	if s.forfeited {
		return metrics.OutcomeForfeit
	}
	switch s.result {
	case protocol.RedWin:
		return metrics.OutcomeRedWin
	case protocol.YellowWin:
		return metrics.OutcomeYellowWin
	default:
		return metrics.OutcomeDraw
	}
}

func (s *session) countError(err error) {
	s.metrics.ProtocolErrors.WithLabelValues(errorKind(err)).Inc()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, board.ErrIllegalMove):
		return metrics.ErrorIllegalMove
	case errors.Is(err, protocol.ErrUnexpectedPacket):
		return metrics.ErrorUnexpectedPacket
	case errors.Is(err, protocol.ErrInvalidEncoding):
		return metrics.ErrorInvalidEncoding
	case frame.IsTimeout(err):
		return metrics.ErrorTimeout
	default:
		return metrics.ErrorConnectionClosed
	}
}

func (s *session) close() {
	for _, p := range s.peers {
		if p.requeued {
			continue
		}
		// closing twice is harmless, the error is only net.ErrClosed
		_ = p.conn.Close()
	}
}
