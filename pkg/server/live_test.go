package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vango-dev/params/pkg/middleware"
	"github.com/vango-dev/params/pkg/protocol"
)

// liveMessage holds any server message on the live channel.
type liveMessage struct {
	Type    protocol.MessageType `json:"type"`
	Query   map[string]string    `json:"query"`
	Encoded string               `json:"encoded"`
	Code    protocol.ErrorCode   `json:"code"`
	Key     string               `json:"key"`
	Fatal   bool                 `json:"fatal"`
}

func startLive(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return ts
}

func dialLive(t *testing.T, ts *httptest.Server, query string, header http.Header) (*websocket.Conn, *http.Response) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/live"
	if query != "" {
		u += "?" + query
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, header)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, resp
}

func readLive(t *testing.T, conn *websocket.Conn) liveMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg liveMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	return msg
}

func sendLive(t *testing.T, conn *websocket.Conn, msg protocol.ClientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
}

func TestLiveChannel(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(middleware.WithRegistry(registry))
	srv := newTestServer(t, func(c *Config) { c.Metrics = metrics })
	ts := startLive(t, srv)

	conn, resp := dialLive(t, ts, "foo=2", nil)
	if len(resp.Cookies()) == 0 || resp.Cookies()[0].Name != "params_session" {
		t.Errorf("upgrade response cookies = %v", resp.Cookies())
	}

	msg := readLive(t, conn)
	if msg.Type != protocol.TypeURLReplace {
		t.Fatalf("first message type = %q, want url_replace", msg.Type)
	}
	if diff := cmp.Diff(map[string]string{"foo": "2"}, msg.Query); diff != "" {
		t.Errorf("initial query mismatch (-want +got):\n%s", diff)
	}

	t.Run("change", func(t *testing.T) {
		sendLive(t, conn, protocol.ClientMessage{Type: protocol.TypeChange, Key: "ratio", Value: "7.5"})
		msg := readLive(t, conn)
		if msg.Type != protocol.TypeURLReplace || msg.Encoded != "foo=2&ratio=7.5" {
			t.Errorf("got %+v, want url_replace foo=2&ratio=7.5", msg)
		}
	})

	t.Run("conversion error", func(t *testing.T) {
		sendLive(t, conn, protocol.ClientMessage{Type: protocol.TypeChange, Key: "foo", Value: "two"})
		msg := readLive(t, conn)
		if msg.Type != protocol.TypeError || msg.Code != protocol.ErrConversion || msg.Key != "foo" || msg.Fatal {
			t.Errorf("got %+v, want non-fatal Conversion error for foo", msg)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		sendLive(t, conn, protocol.ClientMessage{Type: protocol.TypeChange, Key: "nope", Value: "1"})
		msg := readLive(t, conn)
		if msg.Code != protocol.ErrNotFound || msg.Key != "nope" {
			t.Errorf("got %+v, want NotFound for nope", msg)
		}
	})

	t.Run("invalid message", func(t *testing.T) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"reload"}`)); err != nil {
			t.Fatal(err)
		}
		msg := readLive(t, conn)
		if msg.Code != protocol.ErrInvalidMessage {
			t.Errorf("got %+v, want InvalidMessage", msg)
		}
	})

	t.Run("export all", func(t *testing.T) {
		sendLive(t, conn, protocol.ClientMessage{Type: protocol.TypeExportAll, Value: "true"})
		msg := readLive(t, conn)
		want := map[string]string{"foo": "2", "ratio": "7.5", "on": "false"}
		if diff := cmp.Diff(want, msg.Query); diff != "" {
			t.Errorf("export-all query mismatch (-want +got):\n%s", diff)
		}
	})

	// change/in, export_all/in, url_replace/out, error/out
	n, err := testutil.GatherAndCount(registry, "params_live_messages_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("live message series = %d, want 4", n)
	}
}

func TestLiveSharesSessionWithHTTP(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := startLive(t, srv)

	c := newClient(t, srv)
	decodeView(t, c.do("GET", "/params?on=yes", nil))

	conn, _ := dialLive(t, ts, "", http.Header{"Cookie": {"params_session=" + c.cookie.Value}})
	msg := readLive(t, conn)
	if diff := cmp.Diff(map[string]string{"on": "true"}, msg.Query); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
	if srv.Sessions().Count() != 1 {
		t.Errorf("Count() = %d, want 1", srv.Sessions().Count())
	}
}

func TestLiveBadInitialQuery(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := startLive(t, srv)

	conn, _ := dialLive(t, ts, "ratio=lots", nil)
	msg := readLive(t, conn)
	if msg.Type != protocol.TypeError || msg.Code != protocol.ErrConversion || !msg.Fatal {
		t.Errorf("got %+v, want fatal Conversion error", msg)
	}
}

func TestLiveShutdown(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := startLive(t, srv)

	conn, _ := dialLive(t, ts, "", nil)
	readLive(t, conn)

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	msg := readLive(t, conn)
	if msg.Code != protocol.ErrSessionExpired || !msg.Fatal {
		t.Errorf("got %+v, want fatal SessionExpired", msg)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage() after shutdown = %v, want going-away close", err)
	}
}

func TestLiveRejectsCrossOrigin(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := startLive(t, srv)

	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/live"
	_, resp, err := websocket.DefaultDialer.Dial(u, http.Header{"Origin": {"https://evil.example"}})
	if err == nil {
		t.Fatal("Dial() with foreign origin succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}
