package bulletin

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/infodancer/campusmaild/internal/dnd"
	"github.com/infodancer/campusmaild/internal/session"
)

func TestSignOnHappyPath(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(server)
		server.Write([]byte("200 bulletin server 1.0\n"))

		line, _ := r.ReadString('\n')
		if line != "UID# 501\n" {
			t.Errorf("unexpected UID# line: %q", line)
		}
		server.Write([]byte("300 abcdef012345\n"))

		line, _ = r.ReadString('\n')
		if line != "PASE abcdef012345:hunter2\n" {
			t.Errorf("unexpected PASE line: %q", line)
		}
		server.Write([]byte("210 Welcome\n"))
	}()

	sess := &BulletinSession{base: session.NewBase(client), addr: "test"}
	directory := &dnd.Static{Records: map[string]dnd.Record{
		"jqpublic": {Name: "jqpublic", UID: 501},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sess.SignOn(ctx, "jqpublic", "hunter2", directory); err != nil {
		t.Fatalf("SignOn: %v", err)
	}
	if sess.username != "jqpublic" {
		t.Fatalf("username = %q", sess.username)
	}
	<-done
}
