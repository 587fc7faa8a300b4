package mesh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/codec"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

var errAlreadyClosed = errors.New("already closed")

type fakeControl struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *fakeControl) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *fakeControl) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeControl) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeControl) decoded(t *testing.T) []codec.Control {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]codec.Control, 0, len(c.frames))
	for _, f := range c.frames {
		msg, err := codec.DecodeControl(f)
		require.NoError(t, err)
		out = append(out, msg)
	}
	return out
}

func (c *fakeControl) admins(t *testing.T, kind codec.AdminKind) []codec.Admin {
	t.Helper()
	var out []codec.Admin
	for _, msg := range c.decoded(t) {
		if msg.Admin != nil && msg.Admin.Kind == kind {
			out = append(out, *msg.Admin)
		}
	}
	return out
}

// forwards returns the forwarded admin messages of kind, keyed by target.
func (c *fakeControl) forwards(t *testing.T, kind codec.AdminKind) map[domain.MemberID][]codec.Admin {
	t.Helper()
	out := make(map[domain.MemberID][]codec.Admin)
	for _, a := range c.admins(t, codec.Forward) {
		var fwd codec.ForwardData
		require.NoError(t, a.Decode(&fwd))
		if fwd.Msg.Kind == kind {
			out[fwd.To] = append(out[fwd.To], fwd.Msg)
		}
	}
	return out
}

func (c *fakeControl) users(t *testing.T) []codec.User {
	t.Helper()
	var out []codec.User
	for _, msg := range c.decoded(t) {
		if msg.User != nil {
			out = append(out, *msg.User)
		}
	}
	return out
}

type fakeFactory struct {
	mu    sync.Mutex
	peers []*fakePeer
	err   error
}

func (f *fakeFactory) NewPeerConnection(webrtc.Configuration) (core.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{}
	f.peers = append(f.peers, p)
	return p, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *fakeFactory) peer(t *testing.T, i int) *fakePeer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.peers), i, "peer %d not created", i)
	return f.peers[i]
}

type fakePeer struct {
	mu       sync.Mutex
	onICE    func(webrtc.ICECandidateInit)
	onNeg    func()
	onDC     func(core.DataChannel)
	local    *webrtc.SessionDescription
	remote   *webrtc.SessionDescription
	cands    []webrtc.ICECandidateInit
	channels []*fakeChannel
	closed   int
}

// CreateDataChannel fires negotiation-needed right away, like a browser does
// for the first channel.
func (p *fakePeer) CreateDataChannel(label string) (core.DataChannel, error) {
	p.mu.Lock()
	ch := &fakeChannel{label: label}
	p.channels = append(p.channels, ch)
	neg := p.onNeg
	p.mu.Unlock()
	if neg != nil {
		neg()
	}
	return ch, nil
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (p *fakePeer) SetLocalDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.local = &d
	return nil
}

func (p *fakePeer) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remote = &d
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cands = append(p.cands, c)
	return nil
}

func (p *fakePeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICE = fn
}

func (p *fakePeer) OnNegotiationNeeded(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNeg = fn
}

func (p *fakePeer) OnDataChannel(fn func(core.DataChannel)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDC = fn
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	if p.closed > 1 {
		return errAlreadyClosed
	}
	return nil
}

func (p *fakePeer) localDesc() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *fakePeer) remoteDesc() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *fakePeer) candidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.cands...)
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// emitCandidate simulates local candidate discovery.
func (p *fakePeer) emitCandidate(c webrtc.ICECandidateInit) {
	p.mu.Lock()
	fn := p.onICE
	p.mu.Unlock()
	fn(c)
}

// channel returns the channel this side opened (initiator path).
func (p *fakePeer) channel(t *testing.T) *fakeChannel {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.channels, "no data channel created")
	return p.channels[0]
}

// remoteChannel simulates the remote side opening a channel to us
// (responder path).
func (p *fakePeer) remoteChannel(label string) *fakeChannel {
	ch := &fakeChannel{label: label}
	p.mu.Lock()
	fn := p.onDC
	p.mu.Unlock()
	fn(ch)
	return ch
}

type fakeChannel struct {
	mu       sync.Mutex
	label    string
	onOpen   func()
	onMsg    func(core.Frame)
	sent     []core.Frame
	closed   int
	buffered uint64
	sendErr  error
}

func (c *fakeChannel) Label() string { return c.label }

func (c *fakeChannel) Send(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, f)
	return nil
}

func (c *fakeChannel) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

func (c *fakeChannel) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

func (c *fakeChannel) OnMessage(fn func(core.Frame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMsg = fn
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	if c.closed > 1 {
		return errAlreadyClosed
	}
	return nil
}

func (c *fakeChannel) open() {
	c.mu.Lock()
	fn := c.onOpen
	c.mu.Unlock()
	fn()
}

func (c *fakeChannel) deliver(f core.Frame) {
	c.mu.Lock()
	fn := c.onMsg
	c.mu.Unlock()
	fn(f)
}

func (c *fakeChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) sentFrames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.sent...)
}

type harness struct {
	t     *testing.T
	s     *Session
	ctrl  *fakeControl
	peers *fakeFactory

	mu     sync.Mutex
	errs   []error
	ready  int
	joined []domain.MemberID
	left   []domain.MemberID
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{t: t, ctrl: &fakeControl{}, peers: &fakeFactory{}}
	h.s = New(h.ctrl, h.peers, cfg)
	h.s.OnError(func(err error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.errs = append(h.errs, err)
	})
	h.s.OnReady(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.ready++
	})
	h.s.OnMemberJoined(func(id domain.MemberID) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.joined = append(h.joined, id)
	})
	h.s.OnMemberLeft(func(id domain.MemberID) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.left = append(h.left, id)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.s.Done():
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})
	return h
}

// settle waits until the loop has processed every queued event, including
// events posted while processing.
func (h *harness) settle() {
	h.t.Helper()
	for i := 0; i < 100; i++ {
		done := make(chan struct{})
		require.True(h.t, h.s.post(func() { close(done) }), "session closed")
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			h.t.Fatal("session loop stuck")
		}
		if h.s.inbox.len() == 0 {
			return
		}
	}
	h.t.Fatal("session never settled")
}

func (h *harness) recvAdmin(kind codec.AdminKind, data any) {
	h.t.Helper()
	f, err := codec.EncodeAdmin(kind, data)
	require.NoError(h.t, err)
	h.recvFrame(f)
}

func (h *harness) recvFrame(f core.Frame) {
	h.t.Helper()
	h.s.HandleControlFrame(f)
	h.settle()
}

func (h *harness) initInfo(id domain.MemberID, members ...domain.MemberID) {
	h.t.Helper()
	if members == nil {
		members = []domain.MemberID{}
	}
	h.recvAdmin(codec.InitInfo, codec.InitInfoData{ID: id, Members: members})
}

func (h *harness) errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func (h *harness) readyCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

func (h *harness) joinedIDs() []domain.MemberID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.MemberID(nil), h.joined...)
}

func (h *harness) leftIDs() []domain.MemberID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.MemberID(nil), h.left...)
}

func (h *harness) state(id domain.MemberID) domain.HandshakeState {
	st, _ := h.s.mesh.State(id)
	return st
}
