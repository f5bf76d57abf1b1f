package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id     core.ConnID
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func newFakeConn() *fakeConn { return &fakeConn{id: core.NewConnID()} }

func (c *fakeConn) ID() core.ConnID { return c.id }

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return errors.New("queue full")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) received() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}

func (c *fakeConn) presence(t *testing.T) []domain.PresenceEvent {
	t.Helper()
	var out []domain.PresenceEvent
	for _, f := range c.received() {
		var ev domain.PresenceEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

type presenceCall struct {
	online bool
	uid    domain.UserID
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []presenceCall
}

func (o *recordingObserver) UserOnline(_ context.Context, uid domain.UserID) {
	o.mu.Lock()
	o.calls = append(o.calls, presenceCall{true, uid})
	o.mu.Unlock()
}

func (o *recordingObserver) UserOffline(_ context.Context, uid domain.UserID) {
	o.mu.Lock()
	o.calls = append(o.calls, presenceCall{false, uid})
	o.mu.Unlock()
}

func TestRegistry_Register_Resolve(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	obs := &recordingObserver{}
	reg.Observe(obs)
	conn := newFakeConn()

	// When alice registers
	reg.Register(context.Background(), "alice", conn)

	// Then both directions agree
	got, ok := reg.Resolve("alice")
	req.True(ok)
	req.Equal(conn.ID(), got.ID())
	uid, ok := reg.IdentityOf(conn.ID())
	req.True(ok)
	req.Equal(domain.UserID("alice"), uid)
	req.Equal(1, reg.Online())
	req.Equal([]presenceCall{{true, "alice"}}, obs.calls)
}

func TestRegistry_Reconnect_StaleUnregisterIsNoop(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	obs := &recordingObserver{}
	reg.Observe(obs)
	c1, c2 := newFakeConn(), newFakeConn()
	ctx := context.Background()

	// Given alice reconnected on a second connection
	reg.Register(ctx, "alice", c1)
	reg.Register(ctx, "alice", c2)

	// When the first connection finally closes
	uid, ok := reg.Unregister(ctx, c1)

	// Then the live mapping is untouched and nobody hears offline
	req.False(ok)
	req.Empty(uid)
	got, ok := reg.Resolve("alice")
	req.True(ok)
	req.Equal(c2.ID(), got.ID())
	_, ok = reg.IdentityOf(c1.ID())
	req.False(ok)
	for _, call := range obs.calls {
		req.True(call.online)
	}

	// When the live connection closes
	uid, ok = reg.Unregister(ctx, c2)

	// Then alice is gone
	req.True(ok)
	req.Equal(domain.UserID("alice"), uid)
	_, ok = reg.Resolve("alice")
	req.False(ok)
	req.Equal(0, reg.Online())
	req.Equal(presenceCall{false, "alice"}, obs.calls[len(obs.calls)-1])
}

func TestRegistry_ConnectionSwitchesIdentity(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	obs := &recordingObserver{}
	reg.Observe(obs)
	conn := newFakeConn()
	ctx := context.Background()

	// Given a connection registered as alice
	reg.Register(ctx, "alice", conn)

	// When it claims bob
	reg.Register(ctx, "bob", conn)

	// Then alice is freed and offline is announced before bob's online
	_, ok := reg.Resolve("alice")
	req.False(ok)
	uid, _ := reg.IdentityOf(conn.ID())
	req.Equal(domain.UserID("bob"), uid)
	req.Equal([]presenceCall{{true, "alice"}, {false, "alice"}, {true, "bob"}}, obs.calls)
}

func TestRegistry_UnknownConnection(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()

	uid, ok := reg.Unregister(context.Background(), newFakeConn())

	req.False(ok)
	req.Empty(uid)
}

func TestRegistry_ConcurrentReconnects(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	ctx := context.Background()

	// When many identities register and drop concurrently
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := domain.UserID(fmt.Sprintf("user-%d", i%10))
			conn := newFakeConn()
			reg.Register(ctx, uid, conn)
			if i%2 == 0 {
				reg.Unregister(ctx, conn)
			}
		}(i)
	}
	wg.Wait()

	// Then every forward entry has its matching reverse entry
	for i := 0; i < 10; i++ {
		uid := domain.UserID(fmt.Sprintf("user-%d", i))
		conn, ok := reg.Resolve(uid)
		if !ok {
			continue
		}
		back, ok := reg.IdentityOf(conn.ID())
		req.True(ok)
		req.Equal(uid, back)
	}
}
