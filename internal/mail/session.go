// Package mail implements the mail-access dialect of the campus session
// protocol: sign-on through the name-directory collaborator, folder and
// message browsing, mailing-list membership, preferences, and outbound
// message composition.
package mail

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/infodancer/campusmaild/internal/dnd"
	"github.com/infodancer/campusmaild/internal/passmask"
	"github.com/infodancer/campusmaild/internal/session"
	"github.com/infodancer/campusmaild/internal/sessionerr"
)

// PushDecision decides whether to forcibly disconnect an existing signed-on
// session for the same account, given the server's explanation text for the
// conflict. A nil PushDecision always abandons the new sign-on when the
// account is already in use.
type PushDecision func(explanation string) bool

// Session is a signed-on connection to the mail server.
type Session struct {
	base *session.Base

	username string
	uid      int
	password passmask.Masked
	addr     string

	warnFlag int

	folders      map[int]*Folder
	foldersState FolderState

	groupLists   map[string]*MailingList
	privateLists map[string]*MailingList
	listsState   FolderState

	selectedFolderID int
}

// Connect dials the mail server at addr without signing on.
func Connect(ctx context.Context, addr string) (*Session, error) {
	base, err := session.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Session{base: base, addr: addr}, nil
}

// SignOn performs the VERS/UID#/PASE challenge-response exchange,
// delegating challenge encryption to the name-directory collaborator. UID#
// carries the challenge in its response; PASE carries the encrypted
// response and doubles as the final outcome of the exchange: success, or a
// busy-conflict indicating the account is already signed on elsewhere.
//
// pushOff resolves a busy conflict: given the server's explanation text, it
// reports whether the existing session should be forced off so this sign-on
// can proceed. A nil pushOff always abandons the sign-on on conflict.
func (s *Session) SignOn(ctx context.Context, name, password string, directory dnd.Directory, pushOff PushDecision) error {
	rec, err := directory.LookupUnique(ctx, name, "name", "uid", "mailserver")
	if err != nil {
		return fmt.Errorf("mail: directory lookup for %q failed: %w", name, err)
	}

	if err := s.base.Command("VERS", ' '); err != nil {
		return err
	}
	if _, _, err := s.expect(10); err != nil {
		return err
	}

	if err := s.base.Command("UID#", ' ', strconv.Itoa(rec.UID)); err != nil {
		return err
	}
	_, challenge, err := s.expect(33)
	if err != nil {
		return err
	}

	response, err := directory.EncryptChallenge(ctx, challenge, password)
	if err != nil {
		return fmt.Errorf("mail: challenge encryption failed: %w", err)
	}

	if err := s.base.Command("PASE", ' ', response); err != nil {
		return err
	}
	code, text, err := s.expect(30, 34)
	if err != nil {
		return err
	}
	if code == 34 {
		allow := pushOff != nil && pushOff(text)
		if !allow {
			_ = s.Close()
			return sessionerr.NewProtocolError(code, text)
		}
		if err := s.base.Command("PUSH", ' '); err != nil {
			return err
		}
		if _, _, err := s.expect(10); err != nil {
			return err
		}
	}

	s.username = rec.Name
	s.uid = rec.UID
	s.password = passmask.Mask(password, passmask.MailKey)
	return nil
}

// Reconnect re-dials addr and signs on again with the credentials from the
// last successful SignOn.
func (s *Session) Reconnect(ctx context.Context, directory dnd.Directory) error {
	if s.username == "" {
		return sessionerr.NewNotConnected(fmt.Errorf("mail: no prior sign-on to reconnect with"))
	}
	base, err := session.Dial(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	s.base = base
	pw := s.password.Reveal()
	return s.SignOn(ctx, s.username, pw, directory, nil)
}

// Close closes the underlying connection, via QUIT if still connected.
func (s *Session) Close() error {
	if s.base.Connected() {
		_ = s.base.Command("QUIT", ' ')
	}
	return s.base.Close()
}

// Username returns the signed-on user's name.
func (s *Session) Username() string { return s.username }

// UID returns the signed-on user's numeric id.
func (s *Session) UID() int { return s.uid }

// expect reads one response and splits its hundreds digit into a pending-
// warning flag, comparing wanted codes only against the remainder. This
// mirrors the mail dialect's response-code convention, where the hundreds
// digit multiplexes "warnings are pending" alongside the ordinary status
// code in the tens/units digits.
func (s *Session) expect(wanted ...int) (code int, text string, err error) {
	raw, text, err := s.base.Expect()
	if err != nil {
		return 0, "", err
	}
	s.warnFlag = raw / 100
	value := raw % 100
	if len(wanted) == 0 {
		return value, text, nil
	}
	for _, w := range wanted {
		if value == w {
			return value, text, nil
		}
	}
	return value, text, sessionerr.NewProtocolError(raw, text)
}

// HasPendingWarnings reports whether the last response indicated pending
// warnings via its hundreds digit.
func (s *Session) HasPendingWarnings() bool { return s.warnFlag != 0 }

// CheckWarnings fetches pending warnings via WARN, reading until the
// terminator code.
func (s *Session) CheckWarnings() ([]Warning, error) {
	if err := s.base.Command("WARN", ' '); err != nil {
		return nil, err
	}
	var warnings []Warning
	for {
		code, text, err := s.expect()
		if err != nil {
			return warnings, err
		}
		if code == warnTerminator {
			return warnings, nil
		}
		w, err := ParseWarning(code, text)
		if err != nil {
			return warnings, err
		}
		if w.Code == WarnNewMail {
			if f, ok := s.folders[w.FolderID]; ok {
				f.MarkStale()
			}
		}
		warnings = append(warnings, w)
	}
}

// WriteLogMessage appends msg to the server's session log, via SLOG. A
// server without logging support returns 14 rather than 10; both are
// treated as success since the absence of logging is not an error the
// caller can act on.
func (s *Session) WriteLogMessage(msg string) error {
	if err := s.base.Command("SLOG", ' ', msg); err != nil {
		return err
	}
	_, _, err := s.expect(10, 14)
	return err
}

// Folders returns the signed-on user's folders, fetching and caching them
// via FLIS on first access.
func (s *Session) Folders() ([]*Folder, error) {
	if s.foldersState != FolderLoaded {
		if err := s.loadFolders(); err != nil {
			return nil, err
		}
	}
	out := make([]*Folder, 0, len(s.folders))
	for _, f := range s.folders {
		out = append(out, f)
	}
	return out, nil
}

// Folder returns one folder by id, loading the folder cache first if
// needed.
func (s *Session) Folder(id int) (*Folder, error) {
	if s.foldersState != FolderLoaded {
		if err := s.loadFolders(); err != nil {
			return nil, err
		}
	}
	f, ok := s.folders[id]
	if !ok {
		return nil, fmt.Errorf("mail: no such folder %d", id)
	}
	if err := f.ensureLoaded(); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Session) loadFolders() error {
	if err := s.base.Command("FLIS", ' '); err != nil {
		return err
	}
	if _, _, err := s.expect(0); err != nil {
		return err
	}
	lines, err := s.base.ReadMultiline()
	if err != nil {
		return err
	}
	folders := make(map[int]*Folder, len(lines))
	for _, line := range lines {
		f, err := newFolder(s, line)
		if err != nil {
			return err
		}
		folders[f.ID] = f
	}
	s.folders = folders
	s.foldersState = FolderLoaded
	return nil
}

// GroupLists returns the signed-on user's group mailing lists, via LSTS 2.
func (s *Session) GroupLists() ([]*MailingList, error) {
	if err := s.ensureLists(); err != nil {
		return nil, err
	}
	return mapValues(s.groupLists), nil
}

// PrivateLists returns the signed-on user's private mailing lists, via LSTS 1.
func (s *Session) PrivateLists() ([]*MailingList, error) {
	if err := s.ensureLists(); err != nil {
		return nil, err
	}
	return mapValues(s.privateLists), nil
}

// GroupList looks up one group list by name, loading the list cache first if
// needed. Lookup is case-insensitive.
func (s *Session) GroupList(name string) (*MailingList, error) {
	if err := s.ensureLists(); err != nil {
		return nil, err
	}
	l, ok := s.groupLists[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("mail: no such group list %q", name)
	}
	return l, nil
}

// PrivateList looks up one private list by name, loading the list cache
// first if needed. Lookup is case-insensitive.
func (s *Session) PrivateList(name string) (*MailingList, error) {
	if err := s.ensureLists(); err != nil {
		return nil, err
	}
	l, ok := s.privateLists[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("mail: no such private list %q", name)
	}
	return l, nil
}

// CreateGroupList returns the named group list if it already exists, or
// otherwise a fresh, not-yet-persisted one. Nothing happens on the server
// until the new list's members are saved.
func (s *Session) CreateGroupList(name string) (*MailingList, error) {
	return s.createList(name, ListGroup, s.GroupList)
}

// CreatePrivateList returns the named private list if it already exists, or
// otherwise a fresh, not-yet-persisted one.
func (s *Session) CreatePrivateList(name string) (*MailingList, error) {
	return s.createList(name, ListPrivate, s.PrivateList)
}

func (s *Session) createList(name string, kind ListKind, lookup func(string) (*MailingList, error)) (*MailingList, error) {
	l, err := lookup(name)
	if err == nil {
		return l, nil
	}
	fresh := &MailingList{session: s, Name: name, Kind: kind, Fresh: true}
	key := strings.ToLower(name)
	if kind == ListGroup {
		s.groupLists[key] = fresh
	} else {
		s.privateLists[key] = fresh
	}
	return fresh, nil
}

func mapValues(m map[string]*MailingList) []*MailingList {
	out := make([]*MailingList, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

func (s *Session) ensureLists() error {
	if s.listsState == FolderLoaded {
		return nil
	}
	groupLines, err := s.fetchListLines("2")
	if err != nil {
		return err
	}
	privateLines, err := s.fetchListLines("1")
	if err != nil {
		return err
	}
	groups := make(map[string]*MailingList, len(groupLines))
	for _, line := range groupLines {
		l, err := newGroupList(s, line)
		if err != nil {
			return err
		}
		groups[strings.ToLower(l.Name)] = l
	}
	privates := make(map[string]*MailingList, len(privateLines))
	for _, line := range privateLines {
		privates[strings.ToLower(line)] = newPrivateList(s, line)
	}
	s.groupLists = groups
	s.privateLists = privates
	s.listsState = FolderLoaded
	return nil
}

// fetchListLines issues LSTS with the given list-type argument ("2" for
// group, "1" for private) and returns its listing lines. Code 2 means no
// lists of that type exist.
func (s *Session) fetchListLines(typeArg string) ([]string, error) {
	if err := s.base.Command("LSTS", ' ', typeArg); err != nil {
		return nil, err
	}
	code, _, err := s.expect(0, 2)
	if err != nil {
		return nil, err
	}
	if code == 2 {
		return nil, nil
	}
	return s.base.ReadMultiline()
}

// getPref fetches one preference value, via PREF. Code 0 carries a defined
// value; code 2 means the preference is unset, returned as "". The returned
// value has the wire-level double-quote escaping undone.
func (s *Session) getPref(name string) (string, error) {
	if err := s.base.Command("PREF", ' ', name); err != nil {
		return "", err
	}
	code, text, err := s.expect(0, 2)
	if err != nil {
		return "", err
	}
	if code == 2 {
		return "", nil
	}
	return unmungePref(text), nil
}

// setPref sets one preference value, via PDEF.
func (s *Session) setPref(name, value string) error {
	if err := s.base.Command("PDEF", ' ', name, mungePref(value)); err != nil {
		return err
	}
	_, _, err := s.expect(10)
	return err
}

// removePref removes one preference, via PREM.
func (s *Session) removePref(name string) error {
	if err := s.base.Command("PREM", ' ', name); err != nil {
		return err
	}
	_, _, err := s.expect(0, 2)
	return err
}

// mungePref wraps a preference value in double quotes, doubling any
// internal double quotes, as the preference wire encoding requires.
func mungePref(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// unmungePref reverses mungePref.
func unmungePref(value string) string {
	value = strings.TrimPrefix(value, `"`)
	value = strings.TrimSuffix(value, `"`)
	return strings.ReplaceAll(value, `""`, `"`)
}

// SessionID returns the server's per-session identifier preference.
func (s *Session) SessionID() (string, error) { return s.getPref("SessionID") }

// LastLogin returns the user's last-login-time preference.
func (s *Session) LastLogin() (string, error) { return s.getPref("LastLogin") }

// Forwarding returns the user's forwarding-address preference.
func (s *Session) Forwarding() (string, error) { return s.getPref("Forward") }

// SetForwarding sets the user's forwarding address preference.
func (s *Session) SetForwarding(addr string) error { return s.setPref("Forward", addr) }

// SetVacationMessage uploads a vacation-message body, via sized VDAT upload.
func (s *Session) SetVacationMessage(text string) error {
	data := []byte(strings.ReplaceAll(text, "\n", "\r"))
	if err := s.base.Command("VDAT", ' ', strconv.Itoa(len(data))); err != nil {
		return err
	}
	if _, _, err := s.expect(50); err != nil {
		return err
	}
	if err := s.base.RawSend(data); err != nil {
		return err
	}
	_, _, err := s.expect(10)
	return err
}

// VacationMessage fetches the current vacation-message body, via VTXT.
// Returns "" if no vacation message is set.
func (s *Session) VacationMessage() (string, error) {
	if err := s.base.Command("VTXT", ' '); err != nil {
		return "", err
	}
	code, text, err := s.expect(2, 50)
	if err != nil {
		return "", err
	}
	if code == 2 {
		return "", nil
	}
	n, err := strconv.Atoi(strings.Fields(text)[0])
	if err != nil {
		return "", fmt.Errorf("mail: malformed VTXT size %q: %w", text, err)
	}
	data, err := s.base.ReadBlock(n)
	if err != nil {
		return "", err
	}
	if _, _, err := s.expect(10); err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(data), "\r", "\n"), nil
}

// ClearVacationMessage removes the vacation message, via VREM. Reports
// whether a message was present and is now removed.
func (s *Session) ClearVacationMessage() (bool, error) {
	if err := s.base.Command("VREM", ' '); err != nil {
		return false, err
	}
	code, _, err := s.expect(2, 10)
	if err != nil {
		return false, err
	}
	return code == 10, nil
}

// CreateFolder defines a new folder on the server, via FDEF, and invalidates
// the folder cache. The returned Folder is fresh and loads its metadata from
// the server on first access.
func (s *Session) CreateFolder(name string) (*Folder, error) {
	if err := s.base.Command("FDEF", ' ', mungePref(name)); err != nil {
		return nil, err
	}
	_, text, err := s.expect(0)
	if err != nil {
		return nil, err
	}
	id, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("mail: malformed FDEF id %q: %w", text, err)
	}
	s.foldersState = FolderFresh
	return &Folder{session: s, ID: id, Name: name, state: FolderStale}, nil
}

// EmptyTrash empties the trash folder, via TRSH, and marks its cached
// metadata stale.
func (s *Session) EmptyTrash() error {
	if err := s.base.Command("TRSH", ' '); err != nil {
		return err
	}
	if _, _, err := s.expect(10); err != nil {
		return err
	}
	for _, f := range s.folders {
		if strings.EqualFold(f.Name, "trash") {
			f.MarkStale()
			break
		}
	}
	return nil
}

// CreateNewMessage returns a fresh OutboundMessage composer.
func (s *Session) CreateNewMessage() *OutboundMessage {
	return newOutboundMessage(s)
}
