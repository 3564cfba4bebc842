package notifytcp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/infodancer/campusmaild/internal/dnd"
	"github.com/infodancer/campusmaild/internal/server"
	"github.com/infodancer/campusmaild/internal/sticky"
)

func startTestListener(t *testing.T, handler server.ConnectionHandler) net.Addr {
	t.Helper()
	l := server.NewListener(server.ListenerConfig{Address: "127.0.0.1:0", Handler: handler})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	started := make(chan struct{})
	go func() {
		go func() {
			for l.BoundAddr() == nil {
				time.Sleep(time.Millisecond)
			}
			close(started)
		}()
		_ = l.Start(ctx)
	}()
	<-started
	return l.BoundAddr()
}

var validOctalResponse = strings.Repeat("1", 24)

func adminValidatorFactory(uid int) ValidatorFactory {
	return func(ctx context.Context) (dnd.Validator, error) {
		return &dnd.StaticValidator{
			Passwords: map[string]dnd.Record{"admin": {Name: "admin", UID: uid}},
			Secrets:   map[string]string{"admin": "hunter2"},
			Responder: func(challenge, password string) string {
				return validOctalResponse
			},
		}, nil
	}
}

func TestAuthSequencingRejectsOutOfOrderCommands(t *testing.T) {
	store, err := sticky.Open(":memory:")
	if err != nil {
		t.Fatalf("sticky.Open: %v", err)
	}
	defer store.Close()

	addr := startTestListener(t, Handler(store, nil, nil, adminValidatorFactory(1), nil))

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	line, _ := r.ReadString('\n')
	if line != "220 Notification server ready.\n" {
		t.Fatalf("unexpected banner: %q", line)
	}

	conn.Write([]byte("USER admin\n"))
	line, _ = r.ReadString('\n')
	if line[:4] != "300 " {
		t.Fatalf("unexpected USER response: %q", line)
	}

	conn.Write([]byte("NOOP\n"))
	line, _ = r.ReadString('\n')
	if line != "503 Bad sequence of commands.\n" {
		t.Fatalf("unexpected sequencing response: %q", line)
	}
}

func TestSignOnThenAdminList(t *testing.T) {
	store, err := sticky.Open(":memory:")
	if err != nil {
		t.Fatalf("sticky.Open: %v", err)
	}
	defer store.Close()

	addr := startTestListener(t, Handler(store, nil, nil, adminValidatorFactory(1), nil))

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	r.ReadString('\n') // banner

	conn.Write([]byte("USER admin\n"))
	challengeLine, _ := r.ReadString('\n')
	if challengeLine[:4] != "300 " {
		t.Fatalf("unexpected USER response: %q", challengeLine)
	}

	conn.Write([]byte("PASE " + validOctalResponse + "\n"))
	line, _ := r.ReadString('\n')
	if line != "200 User validated.\n" {
		t.Fatalf("unexpected PASE response: %q", line)
	}

	conn.Write([]byte("LIST notices\n"))
	line, _ = r.ReadString('\n')
	if line != "554 Permission denied.\n" {
		t.Fatalf("expected permission denied since this server has no configured admin, got: %q", line)
	}
}

func TestClearRequiresBroadcastPermissionForUIDZero(t *testing.T) {
	store, err := sticky.Open(":memory:")
	if err != nil {
		t.Fatalf("sticky.Open: %v", err)
	}
	defer store.Close()

	addr := startTestListener(t, Handler(store, nil, nil, adminValidatorFactory(1), nil))

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	r.ReadString('\n') // banner

	conn.Write([]byte("CLEAR 0,1\n"))
	line, _ := r.ReadString('\n')
	if line != "554 Broadcast permission denied.\n" {
		t.Fatalf("unexpected CLEAR response: %q", line)
	}

	conn.Write([]byte("CLEAR 501,1\n"))
	line, _ = r.ReadString('\n')
	if line != "200 Notifications cleared.\n" {
		t.Fatalf("unexpected CLEAR response: %q", line)
	}
}
