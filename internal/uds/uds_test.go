package uds

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/msageha/bankstander/internal/logging"
)

// shortSockPath stays under the 104-byte sun_path limit on macOS.
func shortSockPath(t *testing.T, name string) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "bs-uds-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, name)
}

func startServer(t *testing.T) (*Server, *Client, string) {
	t.Helper()
	sockPath := shortSockPath(t, "t.sock")
	server := NewServer(sockPath, logging.Discard())
	server.Handle(CmdPing, func(ctx context.Context, req *Request) *Response {
		return SuccessResponse(map[string]string{"status": "pong"})
	})
	if err := server.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	client := NewClient(sockPath)
	client.SetTimeout(5 * time.Second)
	return server, client, sockPath
}

func TestFraming_RoundTrip(t *testing.T) {
	sockPath := shortSockPath(t, "f.sock")

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		var req Request
		if err := ReadFrame(conn, &req); err != nil {
			t.Errorf("server ReadFrame: %v", err)
			return
		}
		if req.Command != CmdStatus || req.ProtocolVersion != ProtocolVersion {
			t.Errorf("unexpected request %+v", req)
		}
		if err := WriteFrame(conn, SuccessResponse(map[string]int{"items_processed": 27})); err != nil {
			t.Errorf("server WriteFrame: %v", err)
		}
	}()

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req, _ := NewRequest(CmdStatus, nil)
	if err := WriteFrame(conn, req); err != nil {
		t.Fatalf("client WriteFrame: %v", err)
	}
	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		t.Fatalf("client ReadFrame: %v", err)
	}
	if !resp.Success || !strings.Contains(string(resp.Data), "27") {
		t.Errorf("unexpected response %+v", resp)
	}
	<-done
}

func TestReadFrame_RejectsOversizedLength(t *testing.T) {
	frame := []byte{0xff, 0xff, 0xff, 0xff}
	var v map[string]any
	err := ReadFrame(strings.NewReader(string(frame)), &v)
	if err == nil || !strings.Contains(err.Error(), "frame too large") {
		t.Errorf("err = %v, want frame too large", err)
	}
}

func TestServer_ProtocolVersionMismatch(t *testing.T) {
	_, client, _ := startServer(t)

	resp, err := client.Send(context.Background(), &Request{ProtocolVersion: 999, Command: CmdPing})
	if err != nil {
		t.Fatalf("client send: %v", err)
	}
	if resp.Success || resp.Error == nil || resp.Error.Code != ErrCodeProtocolMismatch {
		t.Errorf("expected %s, got %+v", ErrCodeProtocolMismatch, resp)
	}
}

func TestClient_CallUnknownCommand(t *testing.T) {
	_, client, _ := startServer(t)

	err := client.Call(context.Background(), "teleport", nil, nil)
	var detail *ErrorDetail
	if !errors.As(err, &detail) {
		t.Fatalf("err = %v, want *ErrorDetail", err)
	}
	if detail.Code != ErrCodeUnknownCommand {
		t.Errorf("code = %q", detail.Code)
	}
}

func TestClient_CallDecodesParamsAndData(t *testing.T) {
	server, client, _ := startServer(t)

	server.Handle("echo", func(ctx context.Context, req *Request) *Response {
		var p struct {
			Reason string `json:"reason"`
		}
		if err := req.Decode(&p); err != nil {
			return ErrorResponse(ErrCodeValidation, err.Error())
		}
		return SuccessResponse(map[string]string{"reason": p.Reason})
	})

	var out map[string]string
	if err := client.Call(context.Background(), "echo", map[string]string{"reason": "break"}, &out); err != nil {
		t.Fatalf("echo: %v", err)
	}
	if out["reason"] != "break" {
		t.Errorf("reason = %q", out["reason"])
	}

	var pong map[string]string
	if err := client.Call(context.Background(), CmdPing, nil, &pong); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if pong["status"] != "pong" {
		t.Errorf("status = %q", pong["status"])
	}
}

func TestServer_HandlerPanicBecomesInternalError(t *testing.T) {
	server, client, _ := startServer(t)
	server.Handle("boom", func(ctx context.Context, req *Request) *Response {
		panic("handler exploded")
	})

	err := client.Call(context.Background(), "boom", nil, nil)
	var detail *ErrorDetail
	if !errors.As(err, &detail) || detail.Code != ErrCodeInternal {
		t.Fatalf("err = %v, want %s", err, ErrCodeInternal)
	}

	if err := client.Call(context.Background(), CmdPing, nil, nil); err != nil {
		t.Errorf("server should keep serving after a panic: %v", err)
	}
}

func TestServer_MultipleClients(t *testing.T) {
	_, _, sockPath := startServer(t)

	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			c := NewClient(sockPath)
			c.SetTimeout(5 * time.Second)
			errs <- c.Call(context.Background(), CmdPing, nil, nil)
		}()
	}
	for i := 0; i < 10; i++ {
		if err := <-errs; err != nil {
			t.Errorf("client %d: %v", i, err)
		}
	}
}

func TestClient_SessionNotRunning(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "missing.sock"))
	client.SetTimeout(time.Second)

	err := client.Call(context.Background(), CmdPing, nil, nil)
	if err == nil {
		t.Fatal("expected error when no session is running")
	}
	if !strings.Contains(err.Error(), "bankstander run") {
		t.Errorf("expected a hint about 'bankstander run', got: %v", err)
	}
}

func TestServer_ConnectionTimeout(t *testing.T) {
	server, client, sockPath := startServer(t)
	server.SetConnTimeout(300 * time.Millisecond)

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(600 * time.Millisecond)

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	if _, err := conn.Read(buf); err == nil {
		t.Error("expected read error on an idle connection the server timed out")
	}

	if err := client.Call(context.Background(), CmdPing, nil, nil); err != nil {
		t.Errorf("ping after timeout: %v", err)
	}
}

func TestServer_SocketPermissionsAndCleanup(t *testing.T) {
	server, _, sockPath := startServer(t)

	info, err := os.Stat(sockPath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected permissions 0600, got %04o", perm)
	}

	server.Stop()
	server.Stop()
	if _, err := os.Stat(sockPath); !os.IsNotExist(err) {
		t.Error("socket should be removed after stop")
	}
}

func TestResponses(t *testing.T) {
	resp := ErrorResponse(ErrCodeSessionStopped, "session already stopped")
	if resp.Success || resp.Error.Error() != "SESSION_STOPPED: session already stopped" {
		t.Errorf("unexpected error response %+v", resp)
	}

	resp = SuccessResponse(nil)
	if !resp.Success || resp.Data != nil {
		t.Errorf("unexpected nil-data response %+v", resp)
	}

	resp = SuccessResponse(map[string]int{"count": 42})
	var data map[string]int
	json.Unmarshal(resp.Data, &data)
	if data["count"] != 42 {
		t.Errorf("count: got %d", data["count"])
	}

	resp = SuccessResponse(make(chan int))
	if resp.Success || resp.Error.Code != ErrCodeInternal {
		t.Errorf("unmarshalable data should yield an internal error, got %+v", resp)
	}
}
