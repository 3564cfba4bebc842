//go:build linux

package tcpstats

import (
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestAddTracksTCPConnOnly(t *testing.T) {
	c := NewCollector([]string{"protocol"}, nil, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	server := <-accepted
	defer server.Close()

	if err := c.Add(server, []string{"notify"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := c.Tracked(); got != 1 {
		t.Fatalf("Tracked() = %d, want 1", got)
	}

	c.Remove(server)
	if got := c.Tracked(); got != 0 {
		t.Fatalf("Tracked() after Remove = %d, want 0", got)
	}
}

func TestAddRejectsNonTCPConn(t *testing.T) {
	c := NewCollector([]string{"protocol"}, nil, nil)

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer pc.Close()

	udpConn, err := net.Dial("udp", pc.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer udpConn.Close()

	if err := c.Add(udpConn, nil); err == nil {
		t.Fatalf("Add: expected error for non-TCP connection")
	}
}

func TestDescribeEmitsEveryDesc(t *testing.T) {
	c := NewCollector([]string{"protocol"}, prometheus.Labels{"service": "notifyd"}, nil)

	ch := make(chan *prometheus.Desc, len(c.descs)+1)
	c.Describe(ch)
	close(ch)

	count := 0
	for range ch {
		count++
	}
	if count != len(c.descs) {
		t.Fatalf("Describe emitted %d descs, want %d", count, len(c.descs))
	}
}
