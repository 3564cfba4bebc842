package atp

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rs/xid"
)

// RequestHandler handles one incoming ATP request. Returning respond=false
// drops the request silently (no response sent); otherwise data becomes the
// response packet's payload.
type RequestHandler func(pkt Packet, from *net.UDPAddr) (respond bool, data []byte)

// ResponseHandler is notified when a response arrives for a request this
// Transport sent.
type ResponseHandler func(tid uint16, pkt Packet, from *net.UDPAddr)

type outboundRequest struct {
	tid      uint16
	debugID  xid.ID
	userData [4]byte
	data     []byte
	addr     *net.UDPAddr
	created  time.Time
	lastSent time.Time
}

type outboundRelease struct {
	tid      uint16
	addr     *net.UDPAddr
	userData [4]byte
}

// Transport runs the reliable-datagram request/response/release exchange
// over a UDP socket: one goroutine receives and dispatches incoming
// packets, another retransmits outstanding requests and flushes pending
// releases, mirroring the original client's reader/writer thread split.
type Transport struct {
	conn            *net.UDPConn
	logger          *slog.Logger
	retransInterval time.Duration
	maxAge          time.Duration

	mu       sync.Mutex
	pending  map[uint16]*outboundRequest
	releases []outboundRelease
	nextTID  uint16

	onRequest  RequestHandler
	onResponse ResponseHandler

	wakeCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewTransport wraps an already-bound UDP socket.
func NewTransport(conn *net.UDPConn, retransInterval, maxAge time.Duration, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		conn:            conn,
		logger:          logger,
		retransInterval: retransInterval,
		maxAge:          maxAge,
		pending:         make(map[uint16]*outboundRequest),
		wakeCh:          make(chan struct{}, 1),
		stopCh:          make(chan struct{}),
		nextTID:         1,
	}
}

// SetRequestHandler installs the callback invoked for incoming requests.
func (t *Transport) SetRequestHandler(h RequestHandler) { t.onRequest = h }

// SetResponseHandler installs the callback invoked when a response arrives
// for a request this Transport sent.
func (t *Transport) SetResponseHandler(h ResponseHandler) { t.onResponse = h }

// Start launches the receive and retransmit goroutines. It returns
// immediately; call Stop to shut them down.
func (t *Transport) Start(ctx context.Context) {
	t.wg.Add(2)
	go t.receiveLoop(ctx)
	go t.retransmitLoop(ctx)
}

// Stop signals both goroutines to exit and waits for them.
func (t *Transport) Stop() {
	close(t.stopCh)
	t.wg.Wait()
}

// PendingCount returns the number of requests awaiting a response, for
// diagnostics and tests.
func (t *Transport) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// SendRequest transmits a new ATP request and registers it for
// retransmission until a response arrives or it ages out.
func (t *Transport) SendRequest(addr *net.UDPAddr, userData [4]byte, data []byte) uint16 {
	t.mu.Lock()
	tid := t.nextTID
	t.nextTID++
	req := &outboundRequest{tid: tid, debugID: xid.New(), userData: userData, data: data, addr: addr, created: time.Now()}
	t.pending[tid] = req
	t.mu.Unlock()

	t.send(req)
	t.wake()
	return tid
}

func (t *Transport) send(req *outboundRequest) {
	pkt := Packet{Kind: KindRequest, Flags: FlagXO, Seq: 1, TID: req.tid, UserData: req.userData, Data: req.data}
	if _, err := t.conn.WriteToUDP(Encode(pkt), req.addr); err != nil {
		t.logger.Warn("atp: send request failed", "tid", req.tid, "request", req.debugID.String(), "addr", req.addr, "error", err)
	}
	req.lastSent = time.Now()
}

func (t *Transport) wake() {
	select {
	case t.wakeCh <- struct{}{}:
	default:
	}
}

func (t *Transport) receiveLoop(ctx context.Context) {
	defer t.wg.Done()
	buf := make([]byte, 1024)
	for {
		select {
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := t.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
			return
		}
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		pkt, err := Decode(buf[:n])
		if err != nil {
			t.logger.Warn("atp: dropping malformed packet", "from", addr, "error", err)
			continue
		}

		switch pkt.Kind {
		case KindRequest:
			t.handleRequest(pkt, addr)
		case KindResponse:
			t.handleResponse(pkt, addr)
		case KindRelease:
			// Releases received here would only arise from a peer that
			// treats this Transport as the request originator, which the
			// campus notification protocol does not do in practice.
		}
	}
}

func (t *Transport) handleRequest(pkt Packet, addr *net.UDPAddr) {
	respond, data := true, []byte(nil)
	if t.onRequest != nil {
		respond, data = t.onRequest(pkt, addr)
	}
	if !respond {
		return
	}
	resp := Packet{Kind: KindResponse, Flags: pkt.Flags, Seq: pkt.Seq, TID: pkt.TID, UserData: pkt.UserData, Data: data}
	if _, err := t.conn.WriteToUDP(Encode(resp), addr); err != nil {
		t.logger.Warn("atp: send response failed", "tid", pkt.TID, "addr", addr, "error", err)
	}
}

func (t *Transport) handleResponse(pkt Packet, addr *net.UDPAddr) {
	t.mu.Lock()
	req, ok := t.pending[pkt.TID]
	if ok {
		delete(t.pending, pkt.TID)
		t.releases = append(t.releases, outboundRelease{tid: pkt.TID, addr: addr, userData: pkt.UserData})
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	_ = req
	if t.onResponse != nil {
		t.onResponse(pkt.TID, pkt, addr)
	}
	t.wake()
}

func (t *Transport) retransmitLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.retransInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ctx.Done():
			return
		case <-t.wakeCh:
		case <-ticker.C:
		}
		t.sweep()
	}
}

func (t *Transport) sweep() {
	now := time.Now()

	t.mu.Lock()
	var toSend []*outboundRequest
	for tid, req := range t.pending {
		if now.Sub(req.created) > t.maxAge {
			t.logger.Debug("atp: request aged out", "tid", tid, "request", req.debugID.String())
			delete(t.pending, tid)
			continue
		}
		if now.Sub(req.lastSent) >= t.retransInterval {
			toSend = append(toSend, req)
		}
	}
	releases := t.releases
	t.releases = nil
	t.mu.Unlock()

	for _, req := range toSend {
		t.send(req)
	}
	for _, rel := range releases {
		pkt := Packet{Kind: KindRelease, Flags: FlagXO, Seq: 1, TID: rel.tid, UserData: rel.userData}
		if _, err := t.conn.WriteToUDP(Encode(pkt), rel.addr); err != nil {
			t.logger.Warn("atp: send release failed", "tid", rel.tid, "addr", rel.addr, "error", err)
		}
	}
}
