package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	runtimedebug "runtime/debug"
	"sync"
	"time"

	"github.com/blukai/fourparty/internal/metrics"
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/phuslu/log"
)

const (
	DefaultInitTimeout  = 30 * time.Second
	DefaultMoveTimeout  = 2 * time.Minute
	DefaultWriteTimeout = 5 * time.Second
)

type options struct {
	initTimeout  time.Duration
	moveTimeout  time.Duration
	writeTimeout time.Duration
	// coin reports whether the second connection of a pair plays red.
	coin    func() bool
	metrics *metrics.Metrics
}

type Option func(*options)

// WithInitTimeout bounds how long a session waits for each player's init
// packet. zero waits forever.
func WithInitTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.initTimeout = timeout
	}
}

// WithMoveTimeout bounds how long the active player may take for one turn.
// an expired turn counts as a forfeit. zero waits forever.
func WithMoveTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.moveTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// WithCoin replaces the color coin flip.
func WithCoin(coin func() bool) Option {
	return func(o *options) {
		o.coin = coin
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

type connKey uint64

func makeConnKey(conn net.Conn) connKey {
	return connKey(xxhash.Sum64String(conn.RemoteAddr().String()))
}

type GameServer struct {
	listener net.Listener

	logger  *log.Logger
	metrics *metrics.Metrics
	options *options

	matchmaker *Matchmaker
	sessions   sync.WaitGroup

	// every open player connection, pending or in a session. used to tear
	// everything down on shutdown. a reused remote address may briefly map
	// to more than one connection.
	connsMu sync.Mutex
	conns   map[connKey][]net.Conn
	open    int
}

func NewGameServer(network, address string, logger *log.Logger, opts ...Option) (*GameServer, error) {
	listener, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("could not listen %s: %w", network, err)
	}

	// if logger is nil (which might be true in tests) => use default, but
	// silenced logger
	if logger == nil {
		tmp := log.DefaultLogger
		logger = &tmp
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}

	o := &options{
		initTimeout:  DefaultInitTimeout,
		moveTimeout:  DefaultMoveTimeout,
		writeTimeout: DefaultWriteTimeout,
		coin: func() bool {
			return rand.Intn(2) == 1
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	gs := &GameServer{
		listener: listener,

		logger:  logger,
		metrics: o.metrics,
		options: o,

		conns: make(map[connKey][]net.Conn),
	}
	gs.matchmaker = NewMatchmaker(gs.startSession)

	return gs, nil
}

// Addr can be useful to retreive server's address when GameServer was
// constructed with ":0".
func (gs *GameServer) Addr() net.Addr {
	return gs.listener.Addr()
}

func (gs *GameServer) runAccept() {
	for {
		conn, err := gs.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			gs.logger.Error().
				Msgf("could not accept: %v", err)
			// back off a little on things like EMFILE
			time.Sleep(10 * time.Millisecond)
			continue
		}

		gs.track(conn)
		gs.metrics.ConnectionsAccepted.Inc()

		paired := gs.matchmaker.OnConnect(conn)
		gs.logger.Debug().
			Str("addr", conn.RemoteAddr().String()).
			Bool("paired", paired).
			Msg("accepted")
	}
}

// Run accepts connections until ctx is done, then closes every connection
// and waits for all sessions to wind down.
func (gs *GameServer) Run(ctx context.Context) error {
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		gs.runAccept()
	}()

	<-ctx.Done()

	var errs error
	if err := gs.listener.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("could not close listener: %w", err))
	}
	wg.Wait()

	gs.dropPending()
	if err := gs.closeAll(); err != nil {
		errs = multierror.Append(errs, err)
	}
	gs.sessions.Wait()
	// a session that aborted during shutdown may have requeued its survivor
	gs.dropPending()

	return errs
}

func (gs *GameServer) dropPending() {
	pending := gs.matchmaker.Pending()
	if pending == nil || !gs.matchmaker.Forget(pending) {
		return
	}
	gs.logger.Debug().
		Str("addr", pending.RemoteAddr().String()).
		Msg("dropping pending connection")
	_ = pending.Close()
	gs.untrack(pending)
}

func (gs *GameServer) startSession(first, second *Player) {
	gs.sessions.Add(1)
	go func() {
		defer gs.sessions.Done()

		s := newSession(uuid.NewString(), first, second, gs.logger, gs.metrics, gs.options)
		s.requeue = gs.requeue
		defer gs.endSession(s)
		s.run()
	}()
}

func (gs *GameServer) requeue(p *Player) {
	paired := gs.matchmaker.Enqueue(p)
	gs.logger.Debug().
		Str("addr", p.Conn.RemoteAddr().String()).
		Str("name", p.Name).
		Bool("paired", paired).
		Msg("requeued")
}

// endSession keeps a bug in one session from taking the listener down and
// forgets the connections the session was done with.
func (gs *GameServer) endSession(s *session) {
	if r := recover(); r != nil {
		gs.logger.Error().
			Str("session", s.id).
			Str("stack", string(runtimedebug.Stack())).
			Msgf("session panicked: %v", r)
		s.close()
	}

	for _, p := range s.peers {
		if !p.requeued {
			gs.untrack(p.conn)
		}
	}
}

func (gs *GameServer) track(conn net.Conn) {
	gs.connsMu.Lock()
	defer gs.connsMu.Unlock()
	key := makeConnKey(conn)
	gs.conns[key] = append(gs.conns[key], conn)
	gs.open++
	gs.metrics.ConnectionsOpen.Set(float64(gs.open))
}

// untrack forgets conn and only conn, a newer connection from the same
// remote address stays tracked.
func (gs *GameServer) untrack(conn net.Conn) {
	gs.connsMu.Lock()
	defer gs.connsMu.Unlock()
	key := makeConnKey(conn)
	conns := gs.conns[key]
	for i, c := range conns {
		if c != conn {
			continue
		}
		conns = append(conns[:i], conns[i+1:]...)
		gs.open--
		break
	}
	if len(conns) == 0 {
		delete(gs.conns, key)
	} else {
		gs.conns[key] = conns
	}
	gs.metrics.ConnectionsOpen.Set(float64(gs.open))
}

func (gs *GameServer) closeAll() error {
	gs.connsMu.Lock()
	defer gs.connsMu.Unlock()

	var errs error
	for key, conns := range gs.conns {
		for _, conn := range conns {
			if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = multierror.Append(errs, fmt.Errorf("could not close %s: %w", conn.RemoteAddr(), err))
			}
		}
		delete(gs.conns, key)
	}
	gs.open = 0
	gs.metrics.ConnectionsOpen.Set(0)
	return errs
}
