// Package mesh drives the formation of a fully-connected data-channel mesh
// through a signaling relay.
//
// All protocol state changes happen on a single loop (Run). Transport
// callbacks never touch state directly; they post events to the loop.
// Membership reads, sends and handler registration are safe from any
// goroutine, including from inside handlers.
package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/codec"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const DefaultLabel = "mesh"

// ControlHandler receives the data of a user message sent by the relay.
type ControlHandler func(data json.RawMessage)

// PeerHandler receives a user message from a data-ready member. from is the
// member owning the channel the message arrived on.
type PeerHandler func(from domain.MemberID, data json.RawMessage)

type Config struct {
	// WebRTC is passed untouched to the peer factory.
	WebRTC webrtc.Configuration
	Label  string
	Policy app.Policy
}

type Session struct {
	cfg   Config
	ctrl  core.ControlChannel
	peers core.PeerFactory
	mesh  *core.Mesh

	server *app.Registry[ControlHandler]
	p2p    *app.Registry[PeerHandler]
	events lifecycle

	inbox   *mailbox
	hb      *time.Ticker
	running atomic.Bool

	idMu  sync.RWMutex
	id    domain.MemberID
	ready atomic.Bool

	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

func New(ctrl core.ControlChannel, peers core.PeerFactory, cfg Config) *Session {
	if cfg.Label == "" {
		cfg.Label = DefaultLabel
	}
	if cfg.Policy == nil {
		cfg.Policy = app.SimplePolicy{}
	}
	return &Session{
		cfg:     cfg,
		ctrl:    ctrl,
		peers:   peers,
		mesh:    core.NewMesh(),
		server:  app.NewRegistry[ControlHandler]("server"),
		p2p:     app.NewRegistry[PeerHandler]("p2p"),
		inbox:   newMailbox(),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled or Close is called, then tears
// the session down: heartbeat, every member and the control channel.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	defer s.teardown()

	log.Info().Str("module", "app.mesh").Msg("session loop started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closing:
			return nil
		case <-s.inbox.notify:
			for _, fn := range s.inbox.take() {
				fn()
			}
		case <-s.heartbeat():
			s.sendAdmin(codec.Heartbeat, nil)
		}
	}
}

// HandleControlFrame queues one frame received from the relay.
func (s *Session) HandleControlFrame(f core.Frame) {
	if !s.post(func() { s.handleControl(f) }) {
		log.Debug().Str("module", "app.mesh").Msg("control frame after close dropped")
	}
}

func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Done is closed once Run has returned and the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// ID is the relay-assigned id, empty until initInfo arrives.
func (s *Session) ID() domain.MemberID {
	s.idMu.RLock()
	defer s.idMu.RUnlock()
	return s.id
}

func (s *Session) Ready() bool { return s.ready.Load() }

// Members returns the data-ready member ids.
func (s *Session) Members() []domain.MemberID { return s.mesh.ReadyMembers() }

// Snapshot returns every known member with its handshake state.
func (s *Session) Snapshot() []core.MemberDTO { return s.mesh.MembersSnapshot() }

func (s *Session) OnReady(fn func())                       { s.events.setReady(fn) }
func (s *Session) OnMemberJoined(fn func(domain.MemberID)) { s.events.setJoined(fn) }
func (s *Session) OnMemberLeft(fn func(domain.MemberID))   { s.events.setLeft(fn) }

// OnError receives every non-fatal protocol condition.
func (s *Session) OnError(fn func(error)) { s.events.setError(fn) }

func (s *Session) post(fn func()) bool { return s.inbox.post(fn) }

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) setID(id domain.MemberID) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	s.id = id
}

func (s *Session) heartbeat() <-chan time.Time {
	if s.hb == nil {
		return nil
	}
	return s.hb.C
}

func (s *Session) startHeartbeat(every time.Duration) {
	if s.hb != nil {
		s.hb.Reset(every)
		return
	}
	s.hb = time.NewTicker(every)
	log.Info().Str("module", "app.mesh").Dur("interval", every).Msg("heartbeat started")
}

func (s *Session) teardown() {
	s.inbox.close()
	if s.hb != nil {
		s.hb.Stop()
	}
	ids := s.mesh.CloseAll()
	s.ctrl.Close()
	log.Info().Str("module", "app.mesh").Int("members", len(ids)).Msg("session closed")
	close(s.done)
}

// report logs a non-fatal condition and hands it to the error hook.
func (s *Session) report(err error) {
	log.Warn().Err(err).Str("module", "app.mesh").Str("self", string(s.ID())).Msg("protocol condition")
	s.events.condition(err)
}

func (s *Session) sendAdmin(kind codec.AdminKind, data any) {
	f, err := codec.EncodeAdmin(kind, data)
	if err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("admin_kind", string(kind)).Msg("encode admin")
		return
	}
	if err := s.ctrl.TrySend(f); err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("admin_kind", string(kind)).Msg("send admin")
	}
}

// forward asks the relay to deliver an admin message to member `to`.
func (s *Session) forward(to domain.MemberID, kind codec.AdminKind, data any) {
	f, err := codec.EncodeForward(to, kind, data)
	if err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("admin_kind", string(kind)).Msg("encode forward")
		return
	}
	if err := s.ctrl.TrySend(f); err != nil {
		log.Error().Err(err).Str("module", "app.mesh").Str("to", string(to)).Str("admin_kind", string(kind)).Msg("send forward")
	}
}

type lifecycle struct {
	mu       sync.RWMutex
	onReady  func()
	onJoined func(domain.MemberID)
	onLeft   func(domain.MemberID)
	onError  func(error)
}

func (l *lifecycle) setReady(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReady = fn
}

func (l *lifecycle) setJoined(fn func(domain.MemberID)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onJoined = fn
}

func (l *lifecycle) setLeft(fn func(domain.MemberID)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onLeft = fn
}

func (l *lifecycle) setError(fn func(error)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onError = fn
}

func (l *lifecycle) ready() {
	l.mu.RLock()
	fn := l.onReady
	l.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (l *lifecycle) memberJoined(id domain.MemberID) {
	l.mu.RLock()
	fn := l.onJoined
	l.mu.RUnlock()
	if fn != nil {
		fn(id)
	}
}

func (l *lifecycle) memberLeft(id domain.MemberID) {
	l.mu.RLock()
	fn := l.onLeft
	l.mu.RUnlock()
	if fn != nil {
		fn(id)
	}
}

func (l *lifecycle) condition(err error) {
	l.mu.RLock()
	fn := l.onError
	l.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}
