package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AlverezYari/featherscan/pkg/decode"
)

func dialResults(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/results"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcastResult(t *testing.T) {
	s := New("0")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialResults(t, ts)
	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.BroadcastResult(decode.Result{Text: "hello", Format: decode.FormatQRCode})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ResultMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Type != "result" || msg.Text != "hello" || msg.Format != "QR_CODE" {
		t.Errorf("message = %+v", msg)
	}
}

func TestStatus(t *testing.T) {
	s := New("0", WithStatus(func() any {
		return map[string]string{"state": "previewing"}
	}))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if got["state"] != "previewing" {
		t.Errorf("status = %v", got)
	}
}

func TestStatus_Unavailable(t *testing.T) {
	rec := httptest.NewRecorder()
	New("0").Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestActions(t *testing.T) {
	calls := 0
	s := New("0",
		WithAction("focus", func() error { calls++; return nil }),
		WithAction("pause", func() error { return errors.New("camera is not open") }),
	)
	h := s.Handler()

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodPost, "/actions/focus", http.StatusNoContent},
		{http.MethodGet, "/actions/focus", http.StatusMethodNotAllowed},
		{http.MethodPost, "/actions/pause", http.StatusConflict},
		{http.MethodPost, "/actions/zoom", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.code {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.code)
		}
	}
	if calls != 1 {
		t.Errorf("focus called %d times, want 1", calls)
	}
}

func TestLogBufferIsBounded(t *testing.T) {
	var forwarded int
	s := New("0", WithLogCallback(func(level, message string) { forwarded++ }))
	for i := 0; i < maxLogEntries+20; i++ {
		s.addLog("INFO", "line")
	}
	if got := len(s.GetRecentLogs()); got != maxLogEntries {
		t.Errorf("buffered %d lines, want %d", got, maxLogEntries)
	}
	if forwarded != maxLogEntries+20 {
		t.Errorf("forwarded %d lines, want %d", forwarded, maxLogEntries+20)
	}
}

func TestSetPortWhileStopped(t *testing.T) {
	s := New("8080")
	if err := s.SetPort("9090"); err != nil {
		t.Fatalf("SetPort: %v", err)
	}
	if s.Port() != "9090" {
		t.Errorf("port = %q", s.Port())
	}
	if err := s.Stop(); err == nil {
		t.Error("Stop on a stopped server should fail")
	}
}

func TestAddr(t *testing.T) {
	if got := New("8080").Addr(); got != ":8080" {
		t.Errorf("Addr() = %q, want all interfaces", got)
	}
	if got := New("8080", WithHost("127.0.0.1")).Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", got)
	}
	if got := New("8080", WithHost("::1")).Addr(); got != "[::1]:8080" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestBroadcastResult_DropsStalledClient(t *testing.T) {
	s := New("0")
	s.writeWait = 50 * time.Millisecond
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	// The client never reads, so the socket buffers eventually fill.
	dialResults(t, ts)
	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	big := decode.Result{Text: strings.Repeat("x", 1<<20), Format: decode.FormatCode128}
	deadline = time.Now().Add(10 * time.Second)
	for s.Clients() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("stalled client was never dropped")
		}
		start := time.Now()
		s.BroadcastResult(big)
		if took := time.Since(start); took > 2*time.Second {
			t.Fatalf("broadcast blocked for %v", took)
		}
	}
}
