package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/tether/event"
	"github.com/hedeqiang/tether/signal"
	"github.com/hedeqiang/tether/subscriber"
)

// fakeNode is a WebSocket endpoint speaking the node's request/response
// framing.
type fakeNode struct {
	t  *testing.T
	ts *httptest.Server

	connects atomic.Int32
	reject   atomic.Bool

	mu         sync.Mutex
	tokens     []string
	subscribes [][]string
	conns      []*websocket.Conn
}

type inbound struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()
	n := &fakeNode{t: t}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if n.reject.Load() {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		n.connects.Add(1)
		n.mu.Lock()
		n.tokens = append(n.tokens, r.URL.Query().Get("token"))
		n.conns = append(n.conns, conn)
		n.mu.Unlock()
		n.serve(conn)
	})
	n.ts = httptest.NewServer(mux)
	t.Cleanup(n.ts.Close)
	return n
}

func (n *fakeNode) serve(conn *websocket.Conn) {
	var wmu sync.Mutex
	write := func(v any) {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.WriteJSON(v)
	}
	writeRaw := func(s string) {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(s))
	}

	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		switch in.Method {
		case MethodSubscribe, MethodUnsubscribe:
			var p contextParams
			_ = json.Unmarshal(in.Params, &p)
			if in.Method == MethodSubscribe {
				n.mu.Lock()
				n.subscribes = append(n.subscribes, p.ContextIDs)
				n.mu.Unlock()
			}
			if len(p.ContextIDs) > 0 && p.ContextIDs[0] == "forbidden" {
				write(map[string]any{"id": in.ID, "error": map[string]any{"code": "FORBIDDEN", "message": "not allowed"}})
				continue
			}
			write(map[string]any{"id": in.ID, "result": map[string]any{"ok": true}})
		case "echo":
			write(map[string]any{"id": in.ID, "result": in.Params})
		case "silent":
		case "late":
			go func(id uint64) {
				time.Sleep(150 * time.Millisecond)
				write(map[string]any{"id": id, "result": "late"})
			}(in.ID)
		case "push":
			writeRaw(`{"contextId":"ctx-1","type":"StateMutation","data":{"n":1}}`)
			writeRaw(`{"context_id":"ctx-2","event":"ExecutionEvent","payload":{"n":2}}`)
			writeRaw(`{"type":"Orphan"}`)
			write(map[string]any{"id": in.ID, "result": nil})
		case "bare":
			write(map[string]any{"id": in.ID})
		case "drop":
			conn.Close()
			return
		default:
			write(map[string]any{"id": in.ID, "error": "unknown method"})
		}
	}
}

// dropAll closes every server-side socket abruptly.
func (n *fakeNode) dropAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.conns {
		c.Close()
	}
	n.conns = nil
}

func (n *fakeNode) subscribeCalls() [][]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]string(nil), n.subscribes...)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestClient(t *testing.T, n *fakeNode, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithReconnect(3, 10*time.Millisecond)}, opts...)
	c := New(n.ts.URL, opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_ConnectAndRequest(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n, WithTokenGetter(func(context.Context) (string, error) {
		return "tok-1", nil
	}))
	ctx := testContext(t)

	var states []State
	var smu sync.Mutex
	c.OnStateChange(func(s State) {
		smu.Lock()
		states = append(states, s)
		smu.Unlock()
	})

	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, Connected, c.State())
	require.NoError(t, c.Connect(ctx))
	assert.EqualValues(t, 1, n.connects.Load())

	res, err := c.Request(ctx, "echo", map[string]int{"x": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(res))

	res, err = c.Request(ctx, "echo", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(res))

	n.mu.Lock()
	assert.Equal(t, []string{"tok-1"}, n.tokens)
	n.mu.Unlock()

	smu.Lock()
	assert.Equal(t, []State{Connecting, Connected}, states)
	smu.Unlock()
}

func TestClient_TokenGetterFailureConnectsAnyway(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n, WithTokenGetter(func(context.Context) (string, error) {
		return "", errors.New("store unavailable")
	}))

	require.NoError(t, c.Connect(testContext(t)))
	n.mu.Lock()
	assert.Equal(t, []string{""}, n.tokens)
	n.mu.Unlock()
}

func TestClient_RequestNotConnected(t *testing.T) {
	c := New("http://127.0.0.1:1")
	_, err := c.Request(context.Background(), "echo", nil)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_ConnectFailure(t *testing.T) {
	n := newFakeNode(t)
	n.reject.Store(true)
	c := newTestClient(t, n)

	err := c.Connect(testContext(t))
	require.Error(t, err)
	assert.Equal(t, Disconnected, c.State())
}

func TestClient_ResponseError(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n)
	ctx := testContext(t)
	require.NoError(t, c.Connect(ctx))

	_, err := c.Request(ctx, "nope", nil)
	var rerr *ResponseError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "nope", rerr.Method)
	assert.Equal(t, "unknown method", rerr.Message)
}

func TestClient_SubscribeTracksAcknowledgedContexts(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n)
	ctx := testContext(t)
	require.NoError(t, c.Connect(ctx))

	require.NoError(t, c.Subscribe(ctx, "a", "b"))
	require.NoError(t, c.Subscribe(ctx, "b", "c"))
	assert.Equal(t, []string{"a", "b", "c"}, c.SubscribedContexts())

	err := c.Subscribe(ctx, "forbidden")
	var rerr *ResponseError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "FORBIDDEN", rerr.Code)
	assert.Equal(t, []string{"a", "b", "c"}, c.SubscribedContexts())

	require.NoError(t, c.Unsubscribe(ctx, "b"))
	assert.Equal(t, []string{"a", "c"}, c.SubscribedContexts())

	assert.NoError(t, c.Subscribe(ctx))
}

func TestClient_SubscribeFromConnectedHandler(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n, WithRequestTimeout(500*time.Millisecond))
	ctx := testContext(t)

	subscribed := make(chan error, 1)
	c.OnStateChange(func(s State) {
		if s == Connected {
			subscribed <- c.Subscribe(ctx, "a")
		}
	})

	start := time.Now()
	require.NoError(t, c.Connect(ctx))
	assert.Less(t, time.Since(start), 400*time.Millisecond)

	select {
	case err := <-subscribed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Connected handler did not run")
	}
	assert.Equal(t, []string{"a"}, c.SubscribedContexts())
	assert.Equal(t, [][]string{{"a"}}, n.subscribeCalls())
}

func TestClient_ReplyWithOnlyID(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n, WithRequestTimeout(500*time.Millisecond))
	ctx := testContext(t)

	var errs atomic.Int32
	c.OnError(func(error) { errs.Add(1) })
	require.NoError(t, c.Connect(ctx))

	res, err := c.Request(ctx, "bare", nil)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Zero(t, errs.Load())
}

func TestClient_RequestTimeoutAndLateResponse(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n, WithRequestTimeout(50*time.Millisecond))
	ctx := testContext(t)
	require.NoError(t, c.Connect(ctx))

	_, err := c.Request(ctx, "late", nil)
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.ErrorIs(t, err, signal.ErrTimeout)

	// the late reply arrives and is dropped
	time.Sleep(200 * time.Millisecond)
	res, err := c.Request(ctx, "echo", []int{1})
	require.NoError(t, err)
	assert.JSONEq(t, `[1]`, string(res))
}

func TestClient_RequestHonorsContext(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n)
	require.NoError(t, c.Connect(testContext(t)))

	ctx, abort := signal.WithAbort(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		abort()
	}()
	_, err := c.Request(ctx, "silent", nil)
	assert.ErrorIs(t, err, signal.ErrAborted)
}

func TestClient_Events(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n)
	ctx := testContext(t)

	ch := c.Events(8)
	var cbCount atomic.Int32
	remove := c.OnEvent(func(event.Event) { cbCount.Add(1) })

	errs := make(chan error, 4)
	c.OnError(func(err error) { errs <- err })

	require.NoError(t, c.Connect(ctx))
	_, err := c.Request(ctx, "push", nil)
	require.NoError(t, err)

	first := <-ch.Events()
	assert.Equal(t, "ctx-1", first.ContextID)
	assert.Equal(t, "StateMutation", first.Type)
	assert.JSONEq(t, `{"n":1}`, string(first.Data))

	second := <-ch.Events()
	assert.Equal(t, "ctx-2", second.ContextID)
	assert.Equal(t, "ExecutionEvent", second.Type)
	assert.JSONEq(t, `{"n":2}`, string(second.Data))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, event.ErrMissingField)
	case <-time.After(time.Second):
		t.Fatal("no error reported for undecodable event")
	}
	assert.EqualValues(t, 2, cbCount.Load())

	remove()
	_, err = c.Request(ctx, "push", nil)
	require.NoError(t, err)
	<-ch.Events()
	<-ch.Events()
	assert.EqualValues(t, 2, cbCount.Load())
}

func TestClient_ReconnectResubscribes(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n)
	ctx := testContext(t)
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx, "a", "b"))

	n.dropAll()

	require.Eventually(t, func() bool {
		return n.connects.Load() == 2 && len(n.subscribeCalls()) == 2
	}, 3*time.Second, 10*time.Millisecond)

	calls := n.subscribeCalls()
	assert.Equal(t, []string{"a", "b"}, calls[1])
	assert.Equal(t, Connected, c.State())
	assert.Equal(t, []string{"a", "b"}, c.SubscribedContexts())
}

func TestClient_PendingRejectedOnClose(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n, WithAutoReconnect(false))
	ctx := testContext(t)
	require.NoError(t, c.Connect(ctx))

	done := make(chan error, 1)
	go func() {
		_, err := c.Request(ctx, "silent", nil)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	n.dropAll()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not rejected")
	}
	require.Eventually(t, func() bool { return c.State() == Disconnected }, time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, n.connects.Load())
}

func TestClient_ReconnectExhausted(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n)
	ctx := testContext(t)

	errs := make(chan error, 1)
	c.OnError(func(err error) { errs <- err })

	require.NoError(t, c.Connect(ctx))
	n.reject.Store(true)
	_, err := c.Request(ctx, "drop", nil)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrReconnectExhausted)
	case <-time.After(3 * time.Second):
		t.Fatal("reconnect did not give up")
	}
	assert.Equal(t, Disconnected, c.State())
	assert.EqualValues(t, 1, n.connects.Load())
}

func TestClient_DisconnectForgetsSubscriptions(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n)
	ctx := testContext(t)
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Subscribe(ctx, "a"))

	require.NoError(t, c.Disconnect())
	assert.Equal(t, Disconnected, c.State())
	assert.Empty(t, c.SubscribedContexts())

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, n.connects.Load())

	_, err := c.Request(ctx, "echo", nil)
	assert.ErrorIs(t, err, ErrNotConnected)

	require.NoError(t, c.Connect(ctx))
	assert.EqualValues(t, 2, n.connects.Load())
}

func TestClient_NhooyrDialer(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n, WithDialer(NhooyrDialer{ReadLimit: 1 << 20}))
	ctx := testContext(t)
	require.NoError(t, c.Connect(ctx))

	res, err := c.Request(ctx, "echo", "hi")
	require.NoError(t, err)
	assert.JSONEq(t, `"hi"`, string(res))
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		base string
		path string
		want string
		err  error
	}{
		{base: "http://node:2428", path: "/ws", want: "ws://node:2428/ws"},
		{base: "https://node/api/", path: "/ws", want: "wss://node/api/ws"},
		{base: "wss://node", path: "events", want: "wss://node/events"},
		{base: "ftp://node", path: "/ws", err: ErrUnsupportedScheme},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			c := New(tt.base, WithPath(tt.path))
			u, err := c.socketURL(context.Background())
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}

	c := New("http://node", WithTokenGetter(func(context.Context) (string, error) {
		return "a b", nil
	}))
	u, err := c.socketURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ws://node/ws?token=a+b", u.String())
}

func TestReconnectDelay(t *testing.T) {
	c := New("http://node", WithReconnect(5, 100*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, c.reconnectDelay(1))
	assert.Equal(t, 200*time.Millisecond, c.reconnectDelay(2))
	assert.Equal(t, 800*time.Millisecond, c.reconnectDelay(4))
}

func TestClient_AddSubscriber(t *testing.T) {
	n := newFakeNode(t)
	c := newTestClient(t, n)
	ctx := testContext(t)

	ch := subscriber.NewChannel(4)
	c.AddSubscriber(subscriber.NewFilter(ch, subscriber.ContextIn("ctx-2")))

	require.NoError(t, c.Connect(ctx))
	_, err := c.Request(ctx, "push", nil)
	require.NoError(t, err)

	ev := <-ch.Events()
	assert.Equal(t, "ctx-2", ev.ContextID)

	require.NoError(t, c.Close())
	_, ok := <-ch.Events()
	assert.False(t, ok, "Close closes subscribers")
}
