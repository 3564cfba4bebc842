package session

import (
	"bufio"
	"net"
	"testing"

	"github.com/infodancer/campusmaild/internal/sessionerr"
)

func TestBaseCommandAndExpect(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		r := bufio.NewReader(server)
		line, _ := r.ReadString('\n')
		if line != "USER jqpublic\n" {
			t.Errorf("server got %q", line)
		}
		server.Write([]byte("200 Ready\n"))
	}()

	b := NewBase(client)
	if err := b.Command("USER", ' ', "jqpublic"); err != nil {
		t.Fatalf("Command: %v", err)
	}
	code, text, err := b.Expect(200)
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	if code != 200 || text != "Ready" {
		t.Fatalf("got (%d,%q)", code, text)
	}
}

func TestBaseExpectProtocolError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.Write([]byte("480 Bad sequence\n"))
	}()

	b := NewBase(client)
	_, _, err := b.Expect(200)
	if err == nil {
		t.Fatalf("expected error")
	}
	code, text, ok := sessionerr.AsProtocolError(err)
	if !ok || code != 480 || text != "Bad sequence" {
		t.Fatalf("got code=%d text=%q ok=%v", code, text, ok)
	}
}
