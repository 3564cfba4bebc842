// Package bulletin implements the bulletin-access dialect of the campus
// session protocol: topic browsing, article retrieval, and per-user read
// tracking over a BlitzMail-style bulletin-board server.
package bulletin

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/infodancer/campusmaild/internal/dnd"
	"github.com/infodancer/campusmaild/internal/passmask"
	"github.com/infodancer/campusmaild/internal/session"
)

// BulletinSession is a signed-on connection to the bulletin server.
type BulletinSession struct {
	base *session.Base
	addr string

	username string
	password passmask.Masked

	serverVersion string

	topics       map[string]*Topic
	topicsLoaded bool

	selectedTopic string
}

// Connect dials the bulletin server at addr without signing on.
func Connect(ctx context.Context, addr string) (*BulletinSession, error) {
	base, err := session.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &BulletinSession{base: base, addr: addr}, nil
}

// SignOn performs the banner/UID#/PASE challenge-response exchange,
// delegating user lookup and challenge encryption to the name-directory
// collaborator.
func (s *BulletinSession) SignOn(ctx context.Context, name, password string, directory dnd.Directory) error {
	record, err := directory.LookupUnique(ctx, name, "name", "uid", "bullserv")
	if err != nil {
		return fmt.Errorf("bulletin: directory lookup for %q failed: %w", name, err)
	}

	_, banner, err := s.base.Expect(200)
	if err != nil {
		return err
	}
	s.serverVersion = banner

	if err := s.base.Command("UID#", ' ', strconv.Itoa(record.UID)); err != nil {
		return err
	}
	_, challenge, err := s.base.Expect(300)
	if err != nil {
		return err
	}

	response, err := directory.EncryptChallenge(ctx, challenge, password)
	if err != nil {
		return fmt.Errorf("bulletin: challenge encryption failed: %w", err)
	}

	if err := s.base.Command("PASE", ' ', response); err != nil {
		return err
	}
	if _, _, err := s.base.Expect(210); err != nil {
		return err
	}

	s.username = name
	s.password = passmask.Mask(password, passmask.BulletinKey)
	return nil
}

// Reconnect re-dials addr and signs on again with the credentials from the
// last successful SignOn.
func (s *BulletinSession) Reconnect(ctx context.Context, directory dnd.Directory) error {
	if s.username == "" {
		return fmt.Errorf("bulletin: no prior sign-on to reconnect with")
	}
	base, err := session.Dial(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	s.base = base
	s.topics = nil
	s.topicsLoaded = false
	s.selectedTopic = ""
	return s.SignOn(ctx, s.username, s.password.Reveal(), directory)
}

// Close sends QUIT and closes the connection.
func (s *BulletinSession) Close() error {
	if s.base.Connected() {
		_ = s.base.Command("QUIT", ' ')
	}
	return s.base.Close()
}

// Topics returns the names of available bulletin topics, caching the
// listing via LSTB on first access.
func (s *BulletinSession) Topics(force bool) ([]string, error) {
	if err := s.ensureTopics(force); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.topics))
	for _, t := range s.topics {
		names = append(names, t.Name)
	}
	return names, nil
}

// Topic looks up one topic by name, case-insensitively.
func (s *BulletinSession) Topic(name string) (*Topic, error) {
	if err := s.ensureTopics(false); err != nil {
		return nil, err
	}
	t, ok := s.topics[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("bulletin: no such topic %q", name)
	}
	return t, nil
}

// MatchTopics returns the names of topics whose name matches pattern.
func (s *BulletinSession) MatchTopics(pattern *regexp.Regexp) ([]string, error) {
	if err := s.ensureTopics(false); err != nil {
		return nil, err
	}
	var matches []string
	for _, t := range s.topics {
		if pattern.MatchString(t.Name) {
			matches = append(matches, t.Name)
		}
	}
	return matches, nil
}

func (s *BulletinSession) ensureTopics(force bool) error {
	if s.topicsLoaded && !force {
		return nil
	}
	if err := s.base.Command("LSTB", ' '); err != nil {
		return err
	}
	if _, _, err := s.base.Expect(260); err != nil {
		return err
	}
	lines, err := s.base.ReadMultiline()
	if err != nil {
		return err
	}
	topics := make(map[string]*Topic, len(lines))
	for _, line := range lines {
		t, err := newTopic(s, line)
		if err != nil {
			return err
		}
		topics[strings.ToLower(t.Name)] = t
	}
	s.topics = topics
	s.topicsLoaded = true
	return nil
}

// NewTopics returns the names of topics that have bulletins the user has
// not yet seen, via NEWB.
func (s *BulletinSession) NewTopics() ([]string, error) {
	if err := s.ensureTopics(false); err != nil {
		return nil, err
	}
	if err := s.base.Command("NEWB", ' '); err != nil {
		return nil, err
	}
	if _, _, err := s.base.Expect(290); err != nil {
		return nil, err
	}
	lines, err := s.base.ReadMultiline()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		names = append(names, strings.SplitN(line, ",", 2)[0])
	}
	return names, nil
}

// ServerTime returns the server's time/date stamp, via TOD.
func (s *BulletinSession) ServerTime() (string, error) {
	if err := s.base.Command("TOD", ' '); err != nil {
		return "", err
	}
	_, text, err := s.base.Expect(200)
	return text, err
}

// Subscribed returns the names of topics the user is monitoring.
func (s *BulletinSession) Subscribed() ([]string, error) {
	if err := s.ensureTopics(false); err != nil {
		return nil, err
	}
	var names []string
	for _, t := range s.topics {
		if t.Watch {
			names = append(names, t.Name)
		}
	}
	return names, nil
}

// KeepAlive sends a NOOP to the server, preventing an idle disconnect. Any
// response code is accepted.
func (s *BulletinSession) KeepAlive() error {
	if err := s.base.Command("NOOP", ' '); err != nil {
		return err
	}
	_, _, err := s.base.Expect()
	return err
}
