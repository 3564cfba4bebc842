package notifysrv

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/infodancer/campusmaild/internal/atp"
	"github.com/infodancer/campusmaild/internal/sticky"
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

func newTestServer(t *testing.T) (*Server, *net.UDPConn) {
	t.Helper()
	store, err := sticky.Open(":memory:")
	if err != nil {
		t.Fatalf("sticky.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	conn := newLoopbackConn(t)
	srv := New(conn, store, 50*time.Millisecond, time.Second, time.Hour, nil, nil)
	return srv, conn
}

func TestAddClientReplaysStickyNotices(t *testing.T) {
	srv, serverConn := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Start(ctx)
	defer srv.Stop()

	if err := srv.store.Insert(context.Background(), 501, 1, 1000, []byte("new mail")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	clientConn := newLoopbackConn(t)
	client := atp.NewTransport(clientConn, 50*time.Millisecond, time.Second, nil)
	received := make(chan atp.Packet, 1)
	client.SetRequestHandler(func(pkt atp.Packet, from *net.UDPAddr) (bool, []byte) {
		received <- pkt
		return true, nil
	})
	client.Start(ctx)
	defer client.Stop()

	payload, err := atp.EncodeRegisterRequest("#501", uint16(clientConn.LocalAddr().(*net.UDPAddr).Port), []int{1})
	if err != nil {
		t.Fatalf("EncodeRegisterRequest: %v", err)
	}
	client.SendRequest(serverConn.LocalAddr().(*net.UDPAddr), [4]byte{'N', 'R', '0', '2'}, payload)

	select {
	case pkt := <-received:
		service, uid, msgID, data, err := atp.DecodeNotifyRequest(pkt.Data)
		if err != nil {
			t.Fatalf("DecodeNotifyRequest: %v", err)
		}
		if service != 1 || uid != 501 || msgID != 1000 {
			t.Fatalf("unexpected notify request: service=%d uid=%d msgID=%d", service, uid, msgID)
		}
		if string(data) != "new mail" {
			t.Fatalf("data = %q, want %q", data, "new mail")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sticky notice replay")
	}

	clients := srv.Clients()
	if len(clients) != 1 || clients[0].UID != 501 {
		t.Fatalf("unexpected client table: %+v", clients)
	}
}

func TestPostDeliversToMatchingClient(t *testing.T) {
	srv, serverConn := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.Start(ctx)
	defer srv.Stop()

	clientConn := newLoopbackConn(t)
	client := atp.NewTransport(clientConn, 50*time.Millisecond, time.Second, nil)
	received := make(chan atp.Packet, 1)
	client.SetRequestHandler(func(pkt atp.Packet, from *net.UDPAddr) (bool, []byte) {
		received <- pkt
		return true, nil
	})
	client.Start(ctx)
	defer client.Stop()

	srv.AddClient(501, "127.0.0.1", clientConn.LocalAddr().(*net.UDPAddr).Port, []int{1})

	// drain any sticky replay (none persisted yet) before posting live.
	select {
	case <-received:
	case <-time.After(100 * time.Millisecond):
	}

	if err := srv.Post(context.Background(), Notice{UID: 501, Type: 1, MsgID: 7, Data: []byte("hi")}); err != nil {
		t.Fatalf("Post: %v", err)
	}

	select {
	case pkt := <-received:
		_, uid, msgID, data, err := atp.DecodeNotifyRequest(pkt.Data)
		if err != nil {
			t.Fatalf("DecodeNotifyRequest: %v", err)
		}
		if uid != 501 || msgID != 7 || string(data) != "hi" {
			t.Fatalf("unexpected notify: uid=%d msgID=%d data=%q", uid, msgID, data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for posted notice")
	}

	_ = serverConn
}

func TestClientAge(t *testing.T) {
	c := &Client{UID: 501, IP: "127.0.0.1", Port: 1}
	if got := c.age(); got != 0 {
		t.Fatalf("age of never-pinged client = %v, want 0", got)
	}
	c.sendMark()
	time.Sleep(5 * time.Millisecond)
	if got := c.age(); got <= 0 {
		t.Fatalf("age after send without reply = %v, want > 0", got)
	}
	c.recvMark()
	if got := c.age(); got != 0 {
		t.Fatalf("age after reply = %v, want 0", got)
	}
}
