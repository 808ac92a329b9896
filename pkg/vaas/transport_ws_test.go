package vaas

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// fakeFrameServer is a minimal VaaS frame-transport server used to drive the
// handshake and verdict flows against wsTransport.
type fakeFrameServer struct {
	t          *testing.T
	srv        *httptest.Server
	uploadSrv  *httptest.Server
	uploadSeen chan struct{}
}

func newFakeFrameServer(t *testing.T) *fakeFrameServer {
	t.Helper()
	f := &fakeFrameServer{t: t, uploadSeen: make(chan struct{}, 1)}

	f.uploadSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "upload-token-xyz" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
		f.uploadSeen <- struct{}{}
	}))

	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeFrameServer) wsURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
}

func (f *fakeFrameServer) close() {
	f.srv.Close()
	f.uploadSrv.Close()
}

func (f *fakeFrameServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Handshake.
	_, data, err := conn.ReadMessage()
	if err != nil {
		return
	}
	var auth authRequest
	if err := json.Unmarshal(data, &auth); err != nil {
		return
	}
	reply, _ := json.Marshal(authResponse{Kind: "AuthResponse", Success: true, SessionID: "sess-1"})
	if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var envelope struct {
			Kind   string `json:"kind"`
			GUID   string `json:"guid"`
			Sha256 string `json:"sha256"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			continue
		}

		switch envelope.Kind {
		case "VerdictRequest":
			resp, _ := json.Marshal(verdictResponse{
				Kind: "VerdictResponse", GUID: envelope.GUID, Sha256: envelope.Sha256, Verdict: "Malicious",
			})
			_ = conn.WriteMessage(websocket.TextMessage, resp)
		case "VerdictRequestForStream":
			first, _ := json.Marshal(verdictResponse{
				Kind: "VerdictResponse", GUID: envelope.GUID, Verdict: "Unknown",
				UploadURL: f.uploadSrv.URL, UploadToken: "upload-token-xyz",
			})
			if err := conn.WriteMessage(websocket.TextMessage, first); err != nil {
				return
			}
			select {
			case <-f.uploadSeen:
			case <-time.After(5 * time.Second):
				f.t.Error("timed out waiting for upload")
				return
			}
			second, _ := json.Marshal(verdictResponse{
				Kind: "VerdictResponse", GUID: envelope.GUID, Sha256: strings.Repeat("a", 64), Verdict: "Clean",
			})
			_ = conn.WriteMessage(websocket.TextMessage, second)
		case "VerdictRequestForUrl":
			resp, _ := json.Marshal(verdictResponse{
				Kind: "VerdictResponse", GUID: envelope.GUID, Sha256: strings.Repeat("b", 64), Verdict: "Clean",
			})
			_ = conn.WriteMessage(websocket.TextMessage, resp)
		}
	}
}

func newTestFrameConnection(t *testing.T, f *fakeFrameServer) *Connection {
	t.Helper()
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "test-token", "expires_in": 3600})
	}))
	t.Cleanup(tokenSrv.Close)

	cred := NewClientCredential("client", NewRedactedSecret("secret"), tokenSrv.URL)
	conn, err := NewBuilder(cred).
		WithFrameTransport().
		WithServerURL(f.wsURL()).
		WithKeepAlive(false).
		WithLogger(logr.Discard()).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestFrameTransport_ForSha256(t *testing.T) {
	f := newFakeFrameServer(t)
	defer f.close()
	conn := newTestFrameConnection(t, f)

	sha, _ := ParseSha256(strings.Repeat("1", 64))
	v, err := conn.ForSha256(context.Background(), sha)
	if err != nil {
		t.Fatalf("ForSha256: %v", err)
	}
	if v.Verdict != Malicious {
		t.Errorf("verdict = %q, want Malicious", v.Verdict)
	}
}

func TestFrameTransport_ForURL(t *testing.T) {
	f := newFakeFrameServer(t)
	defer f.close()
	conn := newTestFrameConnection(t, f)

	v, err := conn.ForURL(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("ForURL: %v", err)
	}
	if v.Verdict != Clean {
		t.Errorf("verdict = %q, want Clean", v.Verdict)
	}
}

// TestFrameTransport_UploadOnUnknown exercises the full state machine from
// spec.md §4.5: RequestSent -> UploadPending -> AwaitFinal -> terminal.
func TestFrameTransport_UploadOnUnknown(t *testing.T) {
	f := newFakeFrameServer(t)
	defer f.close()
	conn := newTestFrameConnection(t, f)

	payload := []byte("hello vaas")
	v, err := conn.ForBuf(context.Background(), payload)
	if err != nil {
		t.Fatalf("ForBuf: %v", err)
	}
	if v.Verdict != Clean {
		t.Errorf("verdict = %q, want Clean", v.Verdict)
	}
}

// silentFrameServer completes the handshake but never answers a
// VerdictRequest, so any waiter registered against it stays pending until
// the client tears the connection down.
func newSilentFrameServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		reply, _ := json.Marshal(authResponse{Kind: "AuthResponse", Success: true, SessionID: "sess-1"})
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

// TestFrameTransport_CloseFailsAllWaiters exercises invariant 7: dropping a
// Connection resolves every suspended waiter with ConnectionClosed.
func TestFrameTransport_CloseFailsAllWaiters(t *testing.T) {
	srv := newSilentFrameServer(t)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "test-token", "expires_in": 3600})
	}))
	defer tokenSrv.Close()

	cred := NewClientCredential("client", NewRedactedSecret("secret"), tokenSrv.URL)
	conn, err := NewBuilder(cred).
		WithFrameTransport().
		WithServerURL(wsURL).
		WithKeepAlive(false).
		WithLogger(logr.Discard()).
		Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		sha, _ := ParseSha256(strings.Repeat("9", 64))
		_, err := conn.ForSha256(context.Background(), sha)
		done <- err
	}()

	// Give the goroutine a moment to register before closing.
	time.Sleep(20 * time.Millisecond)
	conn.Close()

	select {
	case err := <-done:
		if err != ConnectionClosed {
			t.Errorf("err = %v, want ConnectionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not resolve after Close")
	}
}
