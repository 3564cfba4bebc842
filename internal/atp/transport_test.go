package atp

import (
	"context"
	"net"
	"testing"
	"time"
)

func newLoopbackConn(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTransportRequestResponseRoundTrip(t *testing.T) {
	serverConn := newLoopbackConn(t)
	clientConn := newLoopbackConn(t)

	server := NewTransport(serverConn, 50*time.Millisecond, time.Second, nil)
	received := make(chan Packet, 1)
	server.SetRequestHandler(func(pkt Packet, from *net.UDPAddr) (bool, []byte) {
		received <- pkt
		return true, []byte("ack")
	})

	client := NewTransport(clientConn, 50*time.Millisecond, time.Second, nil)
	responded := make(chan struct{}, 1)
	client.SetResponseHandler(func(tid uint16, pkt Packet, from *net.UDPAddr) {
		responded <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)
	client.Start(ctx)
	defer server.Stop()
	defer client.Stop()

	client.SendRequest(serverConn.LocalAddr().(*net.UDPAddr), [4]byte{'N', 'O', 'T', 'I'}, []byte("hello"))

	select {
	case pkt := <-received:
		if string(pkt.Data) != "hello" {
			t.Fatalf("server received %q, want hello", pkt.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server to receive request")
	}

	select {
	case <-responded:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client response callback")
	}

	if n := client.PendingCount(); n != 0 {
		t.Fatalf("client pending count = %d, want 0", n)
	}
}
