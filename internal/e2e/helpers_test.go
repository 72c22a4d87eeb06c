package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chatd/internal/controller"
	"chatd/internal/engine/replay"
	"chatd/internal/httpapi"
	"chatd/internal/progress"
	"chatd/pkg/types"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// newServer wires a replay runtime through the controller loop and the HTTP
// layer, the same way the serve command does.
func newServer(t *testing.T, rt *replay.Runtime) (*httptest.Server, *controller.Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := httpapi.NewHub(0)
	ctrl := controller.New(controller.Config{
		Engine:    rt,
		Publisher: hub,
		Progress:  progress.New(),
		Logger:    zerolog.Nop(),
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctrl.Run(ctx)
	}()
	srv := httptest.NewServer(httpapi.NewMux(ctrl, hub))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return srv, ctrl
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(testContext(t), url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, req types.Request) {
	t.Helper()
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write %s: %v", req.Type, err)
	}
}

// readUntil collects events until one with the given status arrives.
func readUntil(t *testing.T, conn *websocket.Conn, status types.Status) []types.Event {
	t.Helper()
	var out []types.Event
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev types.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read after %d events: %v", len(out), err)
		}
		out = append(out, ev)
		if ev.Status == status {
			return out
		}
		if ev.Status == types.StatusError && status != types.StatusError {
			t.Fatalf("unexpected error event: %+v", ev)
		}
	}
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(testContext(t), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, v any) (*http.Response, []byte) {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequestWithContext(testContext(t), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func userTurn(text string) *types.GenerateRequest {
	return &types.GenerateRequest{Messages: []types.ChatMessage{{Role: types.RoleUser, Content: text}}}
}
