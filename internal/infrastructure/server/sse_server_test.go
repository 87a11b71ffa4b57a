package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kktechsolution/mcp-postgress/internal/domain"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/logging"
	"github.com/kktechsolution/mcp-postgress/internal/infrastructure/metrics"
	"github.com/kktechsolution/mcp-postgress/internal/usecases"
)

// stubStore serves canned rows to the dispatcher in transport tests.
type stubStore struct {
	rows []domain.Row
	err  error
}

func (s *stubStore) Query(ctx context.Context, sql string, args ...any) ([]domain.Row, error) {
	return s.rows, s.err
}

func (s *stubStore) QueryReadOnly(ctx context.Context, sql string) ([]domain.Row, error) {
	return s.rows, s.err
}

func newDispatcherRegistry(store domain.DataStore) *Registry {
	info := domain.ServerInfo{Name: "test-server", Version: "0.0.1"}
	return NewRegistry(func() Handler {
		return usecases.NewDispatcher(info, store, logging.NewNop())
	}, logging.NewNop(), metrics.New())
}

func newSSETestServer(t *testing.T, store domain.DataStore) (*httptest.Server, *Registry) {
	t.Helper()
	reg := newDispatcherRegistry(store)
	ts := httptest.NewServer(NewSSEServer(reg, logging.NewNop(), metrics.New()))
	t.Cleanup(ts.Close)
	return ts, reg
}

// openStream connects to /sse and reads the handshake, returning the stream
// reader and the minted session identifier.
func openStream(t *testing.T, ts *httptest.Server) (io.ReadCloser, *bufio.Reader, string) {
	t.Helper()

	resp, err := http.Get(ts.URL + "/sse")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var sessionID string
	for i := 0; i < 10 && sessionID == ""; i++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: /messages?sessionId=") {
			sessionID = strings.TrimSpace(strings.TrimPrefix(line, "data: /messages?sessionId="))
		}
	}
	require.NotEmpty(t, sessionID, "handshake must announce the message endpoint")

	return resp.Body, reader, sessionID
}

func TestSSEServer_Handshake(t *testing.T) {
	ts, reg := newSSETestServer(t, &stubStore{})

	body, _, sessionID := openStream(t, ts)

	assert.Equal(t, 1, reg.Count())
	_, ok := reg.Get(sessionID)
	assert.True(t, ok)

	// Disconnect tears the session down exactly once.
	body.Close()
	assert.Eventually(t, func() bool { return reg.Count() == 0 },
		time.Second, 10*time.Millisecond)

	_, ok = reg.Get(sessionID)
	assert.False(t, ok, "a closed session must be unknown")
}

func TestSSEServer_MessageRoundTrip(t *testing.T) {
	ts, _ := newSSETestServer(t, &stubStore{})

	body, reader, sessionID := openStream(t, ts)
	defer body.Close()

	resp, err := http.Post(
		ts.URL+"/messages?sessionId="+sessionID,
		"application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`),
	)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	postBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(postBody), domain.ProtocolVersion)

	// The same response is delivered on the push stream.
	deadline := time.After(2 * time.Second)
	got := make(chan string, 1)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"result"`) {
				got <- line
				return
			}
		}
	}()
	select {
	case line := <-got:
		assert.Contains(t, line, domain.ProtocolVersion)
	case <-deadline:
		t.Fatal("response never arrived on the push stream")
	}
}

func TestSSEServer_MessageRejections(t *testing.T) {
	ts, _ := newSSETestServer(t, &stubStore{})

	t.Run("MissingSessionID", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/messages", "application/json",
			strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UnknownSessionID", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/messages?sessionId=bogus", "application/json",
			strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"jsonrpc":"2.0"`)
		assert.Contains(t, string(body), "Invalid session ID")
	})

	t.Run("RejectionNeverCreatesSession", func(t *testing.T) {
		ts, reg := newSSETestServer(t, &stubStore{})

		resp, err := http.Post(ts.URL+"/messages?sessionId=bogus", "application/json",
			strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, 0, reg.Count())
	})
}

func TestSSEServer_Diagnostics(t *testing.T) {
	ts, _ := newSSETestServer(t, &stubStore{})

	body, _, sessionID := openStream(t, ts)
	defer body.Close()

	t.Run("Liveness", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		b, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(b), `"ok"`)
	})

	t.Run("Sessions", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/sessions")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		b, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(b), sessionID)
	})

	t.Run("Metrics", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("UnknownPath", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/nope")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
