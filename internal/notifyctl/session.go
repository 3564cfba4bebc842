// Package notifyctl implements the notify-control dialect of the campus
// session protocol: the TCP client used to clear sticky notices, register
// non-standard clients, and post notifications to the UDP notification
// server.
package notifyctl

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/infodancer/campusmaild/internal/atp"
	"github.com/infodancer/campusmaild/internal/dnd"
	"github.com/infodancer/campusmaild/internal/passmask"
	"github.com/infodancer/campusmaild/internal/session"
)

// Session is a signed-on (or anonymous) connection to the notify-control
// server.
type Session struct {
	base *session.Base
	addr string

	username string
	uid      int
	password passmask.Masked
}

// Connect dials the notify-control server at addr and reads its welcome
// banner.
func Connect(ctx context.Context, addr string) (*Session, error) {
	base, err := session.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Session{base: base, addr: addr}
	if _, _, err := s.base.Expect(220); err != nil {
		return nil, err
	}
	return s, nil
}

// SignOn authenticates as name, delegating user lookup and challenge
// encryption to the name-directory collaborator.
func (s *Session) SignOn(ctx context.Context, name, password string, directory dnd.Directory) error {
	record, err := directory.LookupUnique(ctx, name, "name", "uid", "notifyserv")
	if err != nil {
		return fmt.Errorf("notifyctl: directory lookup for %q failed: %w", name, err)
	}

	if err := s.base.Command("USER", ' ', "#"+strconv.Itoa(record.UID)); err != nil {
		return err
	}
	_, challenge, err := s.base.Expect(300)
	if err != nil {
		return err
	}

	response, err := directory.EncryptChallenge(ctx, challenge, password)
	if err != nil {
		return fmt.Errorf("notifyctl: challenge encryption failed: %w", err)
	}

	if err := s.base.Command("PASE", ' ', response); err != nil {
		return err
	}
	if _, _, err := s.base.Expect(200); err != nil {
		return err
	}

	s.username = name
	s.uid = record.UID
	s.password = passmask.Mask(password, passmask.NotifyKey)
	return nil
}

// Close sends QUIT and closes the connection.
func (s *Session) Close() error {
	if s.base.Connected() {
		if err := s.base.Command("QUIT", ' '); err == nil {
			_, _, _ = s.base.Expect(221)
		}
	}
	return s.base.Close()
}

// ClearSticky clears sticky notifications of the named service for uid.
func (s *Session) ClearSticky(uid int, service string) error {
	code, ok := atp.ResolveService(service)
	if !ok {
		return fmt.Errorf("notifyctl: unknown service %q", service)
	}
	arg := fmt.Sprintf("%d,%d", uid, code)
	if err := s.base.Command("CLEAR", ' ', arg); err != nil {
		return err
	}
	_, _, err := s.base.Expect(200)
	return err
}

// AddClient registers a non-standard client to receive notifications for
// uid at ip:port for the named services. This is a non-standard extension
// that stock servers will reject.
func (s *Session) AddClient(uid int, ip string, port int, services []string) error {
	codes := make([]string, 0, len(services))
	for _, svc := range services {
		code, ok := atp.ResolveService(svc)
		if !ok {
			return fmt.Errorf("notifyctl: unknown service %q", svc)
		}
		codes = append(codes, strconv.Itoa(code))
	}
	arg := strings.Join(append([]string{strconv.Itoa(uid), ip, strconv.Itoa(port)}, codes...), ",")
	if err := s.base.Command("CLIENT", ' ', arg); err != nil {
		return err
	}
	_, _, err := s.base.Expect(200)
	return err
}

// PostNotify posts a new notification of the named service type for uid.
// msgID, if nil, is derived from the current time. data may be up to 255
// bytes and is framed as a Pascal-style string when service != control.
func (s *Session) PostNotify(service string, uid int, data []byte, msgID *int, sticky bool) (string, error) {
	code, ok := atp.ResolveService(service)
	if !ok {
		return "", fmt.Errorf("notifyctl: unknown service %q", service)
	}

	var payload []byte
	switch {
	case data == nil:
		payload = []byte{0}
	case code != atp.ServiceControl:
		if len(data) > 255 {
			return "", fmt.Errorf("notifyctl: notification data too long (%d, max 255)", len(data))
		}
		payload = append([]byte{byte(len(data))}, data...)
	default:
		payload = data
	}

	mid := 0
	if msgID != nil {
		mid = *msgID
	} else {
		mid = int(time.Now().Unix())
	}

	stickyFlag := 0
	if sticky {
		stickyFlag = 1
	}
	arg := fmt.Sprintf("%d,%d,%d,%d,%d", len(payload), uid, code, mid, stickyFlag)
	if err := s.base.Command("NOTIFY", ' ', arg); err != nil {
		return "", err
	}
	if err := s.base.RawSend(payload); err != nil {
		return "", err
	}
	_, text, err := s.base.Expect(200)
	return text, err
}

// PostReset posts a reset control message telling the client at uid to go
// find another notification server.
func (s *Session) PostReset(uid int) (string, error) {
	msgID := 0
	return s.PostNotify("reset", uid, []byte{0, 0, 0, 1}, &msgID, false)
}

// KeepAlive sends a NOOP to the server to keep the connection alive.
func (s *Session) KeepAlive() error {
	if err := s.base.Command("NOOP", ' '); err != nil {
		return err
	}
	_, _, err := s.base.Expect(200)
	return err
}
