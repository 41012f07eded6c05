package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

// fakePolygon is a minimal provider cluster: it answers auth frames and
// records every other control frame it receives.
type fakePolygon struct {
	srv      *httptest.Server
	authOK   bool
	received chan controlFrame

	mu      sync.Mutex
	conn    *websocket.Conn
	paths   []string
	accepts int
}

func newFakePolygon(t *testing.T, authOK bool) *fakePolygon {
	t.Helper()
	f := &fakePolygon{authOK: authOK, received: make(chan controlFrame, 256)}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePolygon) URL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakePolygon) serve(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer c.CloseNow()

	f.mu.Lock()
	f.conn = c
	f.paths = append(f.paths, r.URL.Path)
	f.accepts++
	f.mu.Unlock()

	ctx := r.Context()
	_ = c.Write(ctx, websocket.MessageText, []byte(`[{"ev":"status","status":"connected","message":"Connected Successfully"}]`))
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		var frame controlFrame
		if json.Unmarshal(data, &frame) != nil {
			continue
		}
		if frame.Action == "auth" {
			reply := `[{"ev":"status","status":"auth_success","message":"authenticated"}]`
			if !f.authOK {
				reply = `[{"ev":"status","status":"auth_failed","message":"authentication failed"}]`
			}
			_ = c.Write(ctx, websocket.MessageText, []byte(reply))
		}
		f.received <- frame
	}
}

// send pushes a data frame on the current socket.
func (f *fakePolygon) send(t *testing.T, frame string) {
	t.Helper()
	f.mu.Lock()
	c := f.conn
	f.mu.Unlock()
	require.NotNil(t, c)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(frame)))
}

// drop closes the current socket from the provider side.
func (f *fakePolygon) drop() {
	f.mu.Lock()
	c := f.conn
	f.mu.Unlock()
	if c != nil {
		_ = c.Close(websocket.StatusGoingAway, "maintenance")
	}
}

func (f *fakePolygon) acceptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepts
}

// next waits for the next non-auth control frame.
func (f *fakePolygon) next(t *testing.T) controlFrame {
	t.Helper()
	for {
		select {
		case frame := <-f.received:
			if frame.Action == "auth" {
				continue
			}
			return frame
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for a control frame")
			return controlFrame{}
		}
	}
}

// nextAuth waits for the next auth frame.
func (f *fakePolygon) nextAuth(t *testing.T) controlFrame {
	t.Helper()
	for {
		select {
		case frame := <-f.received:
			if frame.Action == "auth" {
				return frame
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for auth")
			return controlFrame{}
		}
	}
}
