// Package notifysrv implements the UDP side of the campus notification
// service: client registration, sticky-notice replay, live notification
// fan-out, and reaping of clients that have gone quiet.
package notifysrv

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/infodancer/campusmaild/internal/atp"
	"github.com/infodancer/campusmaild/internal/metrics"
	"github.com/infodancer/campusmaild/internal/sticky"
)

var registerUserData = [4]byte{'N', 'R', '0', '2'}
var clearUserData = [4]byte{'C', 'L', 'E', 'N'}
var resetUserData = [4]byte{0, 0, 0, 0}

// Notice is one notification to deliver to registered clients.
type Notice struct {
	UID    int
	Type   int
	MsgID  int
	Sticky bool
	Data   []byte
}

// Server is the UDP notification server: it answers client registration
// and sticky-clear requests, and fans out posted notices to every
// registered client interested in them.
type Server struct {
	transport *atp.Transport
	store     *sticky.Store
	metrics   metrics.Collector
	logger    *slog.Logger
	maxAge    time.Duration

	reapInterval time.Duration

	mu      sync.Mutex
	clients []*Client
}

// New builds a notification server bound to conn. maxClientAge is how long
// a client may go without replying before it is reaped.
func New(conn *net.UDPConn, store *sticky.Store, retransInterval, maxPacketAge, maxClientAge time.Duration, collector metrics.Collector, logger *slog.Logger) *Server {
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:        store,
		metrics:      collector,
		logger:       logger,
		maxAge:       maxClientAge,
		reapInterval: retransInterval,
	}
	s.transport = atp.NewTransport(conn, retransInterval, maxPacketAge, logger)
	s.transport.SetRequestHandler(s.handleRequest)
	s.transport.SetResponseHandler(s.handleResponse)
	return s
}

// Start launches the transport's goroutines and the client reaper.
func (s *Server) Start(ctx context.Context) {
	s.transport.Start(ctx)
	go s.reapLoop(ctx)
}

// Stop sends a reset to every registered client, giving them a moment to
// notice before tearing down the transport.
func (s *Server) Stop() {
	s.mu.Lock()
	clients := append([]*Client(nil), s.clients...)
	s.mu.Unlock()

	for _, c := range clients {
		s.transport.SendRequest(c.Addr(), resetUserData, []byte{0, 0, 0, 1})
	}
	if len(clients) > 0 {
		time.Sleep(time.Second)
	}
	s.transport.Stop()
}

func (s *Server) handleRequest(pkt atp.Packet, from *net.UDPAddr) (bool, []byte) {
	switch pkt.UserData {
	case registerUserData:
		uid, port, svcs, err := atp.DecodeRegisterRequest(pkt.Data)
		if err != nil {
			s.logger.Warn("notifysrv: malformed register request", "from", from, "error", err)
			return false, nil
		}
		if port == 0 {
			port = uint16(from.Port)
		}
		uidInt, err := strconv.Atoi(trimUID(uid))
		if err != nil {
			s.logger.Warn("notifysrv: malformed register uid", "uid", uid, "error", err)
			return false, nil
		}
		s.AddClient(uidInt, from.IP.String(), int(port), svcs)
		return true, nil

	case clearUserData:
		uid, svc, err := atp.DecodeClearRequest(pkt.Data)
		if err != nil {
			s.logger.Warn("notifysrv: malformed clear request", "from", from, "error", err)
			return false, nil
		}
		s.ClearSticky(context.Background(), int(uid), svc)
		return true, nil

	default:
		return false, nil
	}
}

func (s *Server) handleResponse(_ uint16, _ atp.Packet, from *net.UDPAddr) {
	s.touch(from.IP.String(), from.Port)
}

func (s *Server) touch(ip string, port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if c.IP == ip && c.Port == port {
			c.recvMark()
		}
	}
}

// AddClient registers (or refreshes) a client wanting notifications for
// svcs, and immediately replays any matching sticky notices to it.
func (s *Server) AddClient(uid int, ip string, port int, svcs []int) *Client {
	s.mu.Lock()
	var client *Client
	for _, c := range s.clients {
		if c.matches(uid, ip, port) {
			client = c
			break
		}
	}
	if client == nil {
		client = newClient(uid, ip, port, svcs)
		s.clients = append(s.clients, client)
		s.metrics.ClientRegistered()
	} else {
		client.setSvcs(svcs)
	}
	client.sendMark()
	client.recvMark()
	s.mu.Unlock()

	s.sendSticky(client)
	return client
}

func (s *Server) sendSticky(client *Client) {
	notices, err := s.store.Notices(context.Background())
	if err != nil {
		s.logger.Warn("notifysrv: failed to load sticky notices", "error", err)
		return
	}
	for _, n := range notices {
		if (n.UID == 0 || n.UID == client.UID) && client.Wants(n.Type) {
			payload := atp.EncodeNotifyRequest(n.Type, uint32(n.UID), uint32(n.MsgID), n.Data)
			s.transport.SendRequest(client.Addr(), [4]byte{'N', 'O', 'T', 'I'}, payload)
			client.sendMark()
		}
	}
}

// Post enqueues delivery of notice to every registered client matching its
// uid (or every client, if uid is 0) and notification type, persisting it
// first if it is marked sticky.
func (s *Server) Post(ctx context.Context, notice Notice) error {
	if notice.Sticky {
		if err := s.store.Insert(ctx, notice.UID, notice.Type, notice.MsgID, notice.Data); err != nil {
			return err
		}
		s.metrics.StickyNoticeStored()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delivered := false
	for _, c := range s.clients {
		if (notice.UID == 0 || c.UID == notice.UID) && c.Wants(notice.Type) {
			payload := atp.EncodeNotifyRequest(notice.Type, uint32(notice.UID), uint32(notice.MsgID), notice.Data)
			s.transport.SendRequest(c.Addr(), [4]byte{'N', 'O', 'T', 'I'}, payload)
			c.sendMark()
			delivered = true
		}
	}
	s.metrics.NoticePosted(delivered)
	return nil
}

// ClearSticky removes persisted sticky notices matching uid and service.
func (s *Server) ClearSticky(ctx context.Context, uid, service int) {
	if err := s.store.ClearType(ctx, uid, service); err != nil {
		s.logger.Warn("notifysrv: failed to clear sticky notices", "uid", uid, "service", service, "error", err)
		return
	}
	s.metrics.StickyNoticeCleared(1)
}

// Clients returns a snapshot of the registered-client table.
func (s *Server) Clients() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Client(nil), s.clients...)
}

func (s *Server) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(s.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reap()
		}
	}
}

func (s *Server) reap() {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.clients[:0]
	for _, c := range s.clients {
		if c.age() > s.maxAge {
			s.logger.Debug("notifysrv: reaping stale client", "uid", c.UID, "ip", c.IP, "port", c.Port)
			s.metrics.ClientReaped()
			continue
		}
		kept = append(kept, c)
	}
	s.clients = kept
}
