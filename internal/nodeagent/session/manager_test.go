package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	up       bool
	connects int
}

func (l *fakeLink) Up() bool { return l.up }

func (l *fakeLink) Connect(context.Context) error {
	l.connects++
	return errors.New("still down")
}

type fakePlatform struct {
	connected  bool
	generation uint64
	connectErr error
	connects   int
}

func (p *fakePlatform) Connect(context.Context) error {
	p.connects++
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connected = true
	p.generation++
	return nil
}

func (p *fakePlatform) Connected() bool    { return p.connected }
func (p *fakePlatform) Generation() uint64 { return p.generation }

type recorder struct {
	calls []string
	fail  map[string]error
}

func (r *recorder) action(name string) Action {
	return func(context.Context) error {
		r.calls = append(r.calls, name)
		return r.fail[name]
	}
}

func newTestManager() (*Manager, *fakeLink, *fakePlatform, *recorder) {
	l := &fakeLink{up: true}
	p := &fakePlatform{}
	r := &recorder{fail: map[string]error{}}
	m := NewManager(l, p, Actions{
		SubscribeRPC:        r.action("rpc"),
		AnnounceFirmware:    r.action("announce"),
		SubscribeAttributes: r.action("attributes"),
	})
	return m, l, p, r
}

func TestLinkDownReturnsDisconnected(t *testing.T) {
	m, l, p, _ := newTestManager()
	l.up = false

	s := m.EnsureConnected(context.Background())
	assert.Equal(t, PhaseDisconnected, s.Phase)
	assert.False(t, s.LinkUp)
	assert.Equal(t, 1, l.connects)
	assert.Zero(t, p.connects, "no platform connect while the link is down")
}

func TestConnectFailureStaysDisconnected(t *testing.T) {
	m, _, p, r := newTestManager()
	p.connectErr = errors.New("refused")

	s := m.EnsureConnected(context.Background())
	assert.Equal(t, PhaseDisconnected, s.Phase)
	assert.True(t, s.LinkUp)
	assert.Empty(t, r.calls)
}

func TestSetupRunsOneActionPerCallInOrder(t *testing.T) {
	m, _, _, r := newTestManager()
	ctx := context.Background()

	s := m.EnsureConnected(ctx)
	require.True(t, s.Connected())
	assert.False(t, s.RPCSubscribed || s.FirmwareInfoSent || s.AttributesSubscribed)
	assert.Empty(t, r.calls)

	s = m.EnsureConnected(ctx)
	assert.Equal(t, []string{"rpc"}, r.calls)
	assert.True(t, s.RPCSubscribed)
	assert.False(t, s.FirmwareInfoSent)

	s = m.EnsureConnected(ctx)
	assert.Equal(t, []string{"rpc", "announce"}, r.calls)
	assert.True(t, s.FirmwareInfoSent)

	s = m.EnsureConnected(ctx)
	assert.Equal(t, []string{"rpc", "announce", "attributes"}, r.calls)
	assert.True(t, s.SetupComplete())

	// Nothing left to do.
	m.EnsureConnected(ctx)
	assert.Len(t, r.calls, 3)
	assert.Equal(t, s, m.Current())
}

func TestFailedActionRetriedNextPoll(t *testing.T) {
	m, _, _, r := newTestManager()
	ctx := context.Background()
	r.fail["rpc"] = errors.New("timeout")

	m.EnsureConnected(ctx)
	s := m.EnsureConnected(ctx)
	assert.False(t, s.RPCSubscribed)

	s = m.EnsureConnected(ctx)
	assert.False(t, s.RPCSubscribed)
	assert.Equal(t, []string{"rpc", "rpc"}, r.calls, "later actions wait for earlier ones")

	delete(r.fail, "rpc")
	s = m.EnsureConnected(ctx)
	assert.True(t, s.RPCSubscribed)
}

func TestFlagsResetOnReconnect(t *testing.T) {
	m, _, p, _ := newTestManager()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		m.EnsureConnected(ctx)
	}
	require.True(t, m.Current().SetupComplete())

	p.connected = false
	s := m.EnsureConnected(ctx)
	require.True(t, s.Connected())
	assert.False(t, s.RPCSubscribed)
	assert.False(t, s.FirmwareInfoSent)
	assert.False(t, s.AttributesSubscribed)
}

func TestFlagsResetOnTransportReconnect(t *testing.T) {
	m, _, p, r := newTestManager()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		m.EnsureConnected(ctx)
	}
	require.True(t, m.Current().SetupComplete())

	// The transport reconnected between polls without being asked.
	p.generation++
	s := m.EnsureConnected(ctx)
	assert.True(t, s.Connected())
	assert.False(t, s.RPCSubscribed || s.FirmwareInfoSent || s.AttributesSubscribed)
	assert.Equal(t, p.generation, s.Generation)
	assert.Len(t, r.calls, 3, "the reset poll performs no action")

	s = m.EnsureConnected(ctx)
	assert.True(t, s.RPCSubscribed)
}

func TestLinkLossDropsSession(t *testing.T) {
	m, l, _, _ := newTestManager()
	ctx := context.Background()

	m.EnsureConnected(ctx)
	m.EnsureConnected(ctx)
	require.True(t, m.Current().RPCSubscribed)

	l.up = false
	s := m.EnsureConnected(ctx)
	assert.Equal(t, PhaseDisconnected, s.Phase)
	assert.False(t, s.RPCSubscribed)
}
