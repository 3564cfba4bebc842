package mail

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ListKind distinguishes group lists (owned by a department/organization)
// from private lists (owned by an individual user). The wire encoding for
// each (the kind field of the LIST/LDEF/LREM "name,kind" argument, and the
// sole LSTS argument) is the type's value: group=2, private=1.
type ListKind int

const (
	ListPrivate ListKind = 1
	ListGroup   ListKind = 2
)

func (k ListKind) String() string { return strconv.Itoa(int(k)) }

// Permission bits for a group mailing list, matching the original client's
// read/write/send bitmask. Private lists carry no permission bits; Perms is
// always 0 for them.
const (
	PermRead  = 4
	PermWrite = 2
	PermSend  = 1
)

// MailingList is a cached view of one mailing list's membership, named
// rather than numbered: the server addresses lists by name and kind
// together, never by a numeric id.
type MailingList struct {
	session *Session

	Name  string
	Kind  ListKind
	Perms int

	// Fresh is true for a list that exists only locally and has never been
	// saved to the server (see Session.CreateGroupList/CreatePrivateList).
	Fresh bool

	members      []string
	membersState FolderState
}

// newGroupList builds a MailingList from one LSTS 2 listing line: name,access
func newGroupList(sess *Session, line string) (*MailingList, error) {
	name, access, ok := strings.Cut(line, ",")
	if !ok {
		return nil, fmt.Errorf("mail: malformed group list entry %q", line)
	}
	perms, err := strconv.Atoi(access)
	if err != nil {
		return nil, fmt.Errorf("mail: malformed group list entry %q: %w", line, err)
	}
	return &MailingList{session: sess, Name: name, Kind: ListGroup, Perms: perms}, nil
}

// newPrivateList builds a MailingList from one LSTS 1 listing line, which
// carries only the list's name.
func newPrivateList(sess *Session, name string) *MailingList {
	return &MailingList{session: sess, Name: name, Kind: ListPrivate}
}

// CanRead reports whether the signed-on user may read this list's membership.
func (l *MailingList) CanRead() bool { return l.Perms&PermRead != 0 }

// CanWrite reports whether the signed-on user may modify this list's membership.
func (l *MailingList) CanWrite() bool { return l.Perms&PermWrite != 0 }

// CanSend reports whether the signed-on user may send to this list.
func (l *MailingList) CanSend() bool { return l.Perms&PermSend != 0 }

// Members returns the list's member addresses, fetching and caching them
// via LIST on first access. A Fresh list (never saved) has no members to
// fetch and returns an empty slice.
func (l *MailingList) Members() ([]string, error) {
	if l.membersState == FolderLoaded {
		return l.members, nil
	}
	if l.Fresh {
		l.membersState = FolderLoaded
		return nil, nil
	}
	if err := l.session.base.Command("LIST", ' ', l.Name+","+l.Kind.String()); err != nil {
		return nil, err
	}
	if _, _, err := l.session.expect(0); err != nil {
		return nil, err
	}
	lines, err := l.session.base.ReadMultiline()
	if err != nil {
		return nil, err
	}
	l.members = lines
	l.membersState = FolderLoaded
	return l.members, nil
}

// SaveMembers uploads a new membership list, via sized LDAT upload followed
// by LDEF confirmation.
func (l *MailingList) SaveMembers(members []string) error {
	data := []byte(strings.Join(members, "\n"))
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	if err := l.session.base.Command("LDAT", ' ', strconv.Itoa(len(data))); err != nil {
		return err
	}
	if _, _, err := l.session.expect(50); err != nil {
		return err
	}
	if err := l.session.base.RawSend(data); err != nil {
		return err
	}
	if _, _, err := l.session.expect(10); err != nil {
		return err
	}
	if err := l.session.base.Command("LDEF", ' ', l.Name+","+l.Kind.String()); err != nil {
		return err
	}
	if _, _, err := l.session.expect(10); err != nil {
		return err
	}
	l.members = append([]string(nil), members...)
	l.membersState = FolderLoaded
	l.Fresh = false
	return nil
}

// Remove deletes the list, via LREM, and drops it from the session's list
// cache. A Fresh list has never been saved server-side, so no LREM is sent.
func (l *MailingList) Remove() error {
	if !l.Fresh {
		if err := l.session.base.Command("LREM", ' ', l.Name+","+l.Kind.String()); err != nil {
			return err
		}
		if _, _, err := l.session.expect(10); err != nil {
			return err
		}
	}
	key := strings.ToLower(l.Name)
	if l.Kind == ListGroup {
		delete(l.session.groupLists, key)
	} else {
		delete(l.session.privateLists, key)
	}
	return nil
}

// Match returns the indexes of cached members matching pattern, fetching
// the membership first if it has not been loaded yet.
func (l *MailingList) Match(pattern *regexp.Regexp) ([]int, error) {
	members, err := l.Members()
	if err != nil {
		return nil, err
	}
	var matches []int
	for i, m := range members {
		if pattern.MatchString(m) {
			matches = append(matches, i)
		}
	}
	return matches, nil
}
