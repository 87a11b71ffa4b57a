package server

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kktechsolution/mcp-postgress/internal/domain"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/logging"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/metrics"
)

// stubHandler counts dispatches and always answers.
type stubHandler struct {
	mu    sync.Mutex
	calls int
}

func (h *stubHandler) Handle(ctx context.Context, raw json.RawMessage) *domain.Response {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return domain.NewResponse(1, "ok")
}

// fakeChannel records sends and close calls.
type fakeChannel struct {
	mu     sync.Mutex
	sent   []any
	closes int
}

func (c *fakeChannel) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
}

func newTestRegistry() *Registry {
	return NewRegistry(func() Handler { return &stubHandler{} }, logging.NewNop(), metrics.New())
}

func TestRegistry_Create_DistinctIdentifiers(t *testing.T) {
	reg := newTestRegistry()

	const n = 100
	ids := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- reg.Create(&fakeChannel{}).ID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "identifier %s minted twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, reg.Count())
}

func TestRegistry_Get_StableHandlerContext(t *testing.T) {
	reg := newTestRegistry()
	session := reg.Create(&fakeChannel{})

	for i := 0; i < 5; i++ {
		got, ok := reg.Get(session.ID())
		require.True(t, ok)
		assert.Same(t, session, got, "every lookup must route to the same session instance")
	}

	handler := session.handler.(*stubHandler)
	session.Handle(context.Background(), json.RawMessage(`{}`))
	session.Handle(context.Background(), json.RawMessage(`{}`))
	assert.Equal(t, 2, handler.calls)
}

func TestRegistry_Get_UnknownIdentifier(t *testing.T) {
	reg := newTestRegistry()

	_, ok := reg.Get("no-such-session")

	assert.False(t, ok)
}

func TestRegistry_Remove(t *testing.T) {
	t.Run("RemovesAndClosesChannel", func(t *testing.T) {
		reg := newTestRegistry()
		ch := &fakeChannel{}
		session := reg.Create(ch)

		reg.Remove(session.ID())

		_, ok := reg.Get(session.ID())
		assert.False(t, ok, "a removed session must be unknown")
		assert.Equal(t, 1, ch.closes)
		assert.Equal(t, 0, reg.Count())
	})

	t.Run("Idempotent", func(t *testing.T) {
		reg := newTestRegistry()
		ch := &fakeChannel{}
		session := reg.Create(ch)

		reg.Remove(session.ID())
		reg.Remove(session.ID())
		reg.Remove(session.ID())

		assert.Equal(t, 1, ch.closes, "the channel must be closed exactly once")
		assert.Equal(t, 0, reg.Count())
	})

	t.Run("ConcurrentRemovals", func(t *testing.T) {
		reg := newTestRegistry()
		ch := &fakeChannel{}
		session := reg.Create(ch)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				reg.Remove(session.ID())
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, ch.closes)
		assert.Equal(t, 0, reg.Count())
	})
}

func TestRegistry_IDs(t *testing.T) {
	reg := newTestRegistry()
	a := reg.Create(&fakeChannel{})
	b := reg.Create(&fakeChannel{})

	ids := reg.IDs()

	assert.ElementsMatch(t, []string{a.ID(), b.ID()}, ids)
}

func TestRegistry_CloseAll(t *testing.T) {
	reg := newTestRegistry()
	channels := []*fakeChannel{{}, {}, {}}
	for _, ch := range channels {
		reg.Create(ch)
	}

	reg.CloseAll()

	assert.Equal(t, 0, reg.Count())
	for _, ch := range channels {
		assert.Equal(t, 1, ch.closes)
	}
}

func TestSession_SendWithoutChannel(t *testing.T) {
	reg := newTestRegistry()
	session := reg.Create(nil)

	err := session.Send(map[string]any{"hello": "world"})

	assert.NoError(t, err, "delivery without an attached channel is a no-op")
}

func TestSession_AttachChannel(t *testing.T) {
	reg := newTestRegistry()
	session := reg.Create(nil)
	ch := &fakeChannel{}

	session.AttachChannel(ch)
	require.NoError(t, session.Send("hi"))

	assert.Len(t, ch.sent, 1)
}
