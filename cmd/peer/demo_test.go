package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Mesh/internal/app/mesh"
	"github.com/dkeye/Mesh/internal/codec"
	"github.com/dkeye/Mesh/internal/core"
)

type recordingControl struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *recordingControl) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *recordingControl) Close() {}

func (c *recordingControl) userKinds(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, f := range c.frames {
		msg, err := codec.DecodeControl(f)
		require.NoError(t, err)
		if msg.User != nil {
			out = append(out, msg.User.Kind)
		}
	}
	return out
}

type noPeers struct{}

func (noPeers) NewPeerConnection(webrtc.Configuration) (core.PeerConnection, error) {
	return nil, errors.New("no peers in this test")
}

func TestWireDemo_HandlesRelayReplies(t *testing.T) {
	ctrl := &recordingControl{}
	s := mesh.New(ctrl, noPeers{}, mesh.Config{})
	wireDemo(s)

	var (
		mu   sync.Mutex
		errs []error
	)
	s.OnError(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	})

	control, peer := s.Handlers()
	assert.Equal(t, []string{"broadcastedFromServer", "memberLeft", "newMember", "pong"}, control)
	assert.Equal(t, []string{"ping", "pong"}, peer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	s.HandleControlFrame(core.Frame(`{"kind":"pong","data":{"msg":"pongmsg"}}`))
	s.HandleControlFrame(core.Frame(`{"kind":"broadcastedFromServer","data":{"processedData":"SOME DATA"}}`))
	s.HandleControlFrame(core.Frame(`{"adminKind":"initInfo","data":{"id":"me","members":[],"hbInterval":0}}`))

	require.Eventually(t, func() bool {
		return len(ctrl.userKinds(t)) == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"ping", "processThenBroadcast"}, ctrl.userKinds(t))

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, errs)
}
