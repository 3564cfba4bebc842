package notifysrv

import (
	"net"
	"strings"
	"time"

	"github.com/bits-and-blooms/bitset"
)

// Client is a registered receiver of UDP notifications for one user.
type Client struct {
	UID  int
	IP   string
	Port int
	Svcs []int

	svcSet *bitset.BitSet
	sentAt time.Time
	recvAt time.Time
}

// newClient builds a Client, indexing its service codes into a bitset for
// constant-time Wants lookups regardless of how many services it carries.
func newClient(uid int, ip string, port int, svcs []int) *Client {
	c := &Client{UID: uid, IP: ip, Port: port}
	c.setSvcs(svcs)
	return c
}

// setSvcs replaces the client's registered service codes.
func (c *Client) setSvcs(svcs []int) {
	c.Svcs = svcs
	set := bitset.New(0)
	for _, s := range svcs {
		if s >= 0 {
			set.Set(uint(s))
		}
	}
	c.svcSet = set
}

// Addr returns the client's UDP address.
func (c *Client) Addr() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(c.IP), Port: c.Port}
}

// Wants reports whether this client is registered for notification type.
func (c *Client) Wants(typ int) bool {
	if typ < 0 || c.svcSet == nil {
		return false
	}
	return c.svcSet.Test(uint(typ))
}

func (c *Client) sendMark() { c.sentAt = time.Now() }
func (c *Client) recvMark() { c.recvAt = time.Now() }

// age returns how long it has been since the client was last heard from,
// counted only once we have sent it something more recently than we last
// heard back — a client we have never pinged is never considered stale.
func (c *Client) age() time.Duration {
	if c.sentAt.IsZero() || c.sentAt.Before(c.recvAt) {
		return 0
	}
	return time.Since(c.recvAt)
}

// Age reports how long it has been since the client was last heard from, for
// diagnostics such as the notify-control server's LIST clients response.
func (c *Client) Age() time.Duration { return c.age() }

func (c *Client) matches(uid int, ip string, port int) bool {
	return c.UID == uid && c.IP == ip && c.Port == port
}

// trimUID removes the leading '#' the wire protocol uses for numeric uids.
func trimUID(raw string) string {
	return strings.TrimPrefix(raw, "#")
}
