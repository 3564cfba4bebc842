package notifyctl

import (
	"bufio"
	"context"
	"io"
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

		line, _ := r.ReadString('\n')
		if line != "USER #501\n" {
			t.Errorf("unexpected USER line: %q", line)
		}
		server.Write([]byte("300 abcdef012345\n"))

		line, _ = r.ReadString('\n')
		if line != "PASE abcdef012345:hunter2\n" {
			t.Errorf("unexpected PASE line: %q", line)
		}
		server.Write([]byte("200 Ok\n"))
	}()

	sess := &Session{base: session.NewBase(client), addr: "test"}
	directory := &dnd.Static{Records: map[string]dnd.Record{
		"jqpublic": {Name: "jqpublic", UID: 501},
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sess.SignOn(ctx, "jqpublic", "hunter2", directory); err != nil {
		t.Fatalf("SignOn: %v", err)
	}
	if sess.uid != 501 {
		t.Fatalf("uid = %d, want 501", sess.uid)
	}
	<-done
}

func TestPostNotifyFramesPascalString(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r := bufio.NewReader(server)
		line, _ := r.ReadString('\n')
		if line != "NOTIFY 9,501,1,42,1\n" {
			t.Errorf("unexpected NOTIFY line: %q", line)
		}
		buf := make([]byte, 9)
		if _, err := io.ReadFull(r, buf); err != nil {
			t.Errorf("read payload: %v", err)
		}
		if string(buf) != "\x08new mail" {
			t.Errorf("unexpected payload: %q", buf)
		}
		server.Write([]byte("200 Posted\n"))
	}()

	sess := &Session{base: session.NewBase(client), addr: "test"}
	msgID := 42
	text, err := sess.PostNotify("mail", 501, []byte("new mail"), &msgID, true)
	if err != nil {
		t.Fatalf("PostNotify: %v", err)
	}
	if text != "Posted" {
		t.Fatalf("text = %q", text)
	}
	<-done
}
