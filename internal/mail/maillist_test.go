package mail

import "testing"

func TestNewGroupList(t *testing.T) {
	l, err := newGroupList(nil, "engineering,7")
	if err != nil {
		t.Fatalf("newGroupList: %v", err)
	}
	if l.Name != "engineering" {
		t.Fatalf("Name = %q want engineering", l.Name)
	}
	if l.Kind != ListGroup {
		t.Fatalf("Kind = %v want ListGroup", l.Kind)
	}
	if l.Perms != 7 {
		t.Fatalf("Perms = %d want 7", l.Perms)
	}
	if !l.CanRead() || !l.CanWrite() || !l.CanSend() {
		t.Fatalf("expected all permission bits set for Perms=7")
	}
}

func TestNewGroupListReadOnly(t *testing.T) {
	l, err := newGroupList(nil, "announce,4")
	if err != nil {
		t.Fatalf("newGroupList: %v", err)
	}
	if !l.CanRead() || l.CanWrite() || l.CanSend() {
		t.Fatalf("expected only read permission for Perms=4")
	}
}

func TestNewGroupListMalformed(t *testing.T) {
	if _, err := newGroupList(nil, "noaccessfield"); err == nil {
		t.Fatalf("expected an error for a line with no access field")
	}
	if _, err := newGroupList(nil, "name,notanumber"); err == nil {
		t.Fatalf("expected an error for a non-numeric access field")
	}
}

func TestNewPrivateList(t *testing.T) {
	l := newPrivateList(nil, "my-list")
	if l.Name != "my-list" {
		t.Fatalf("Name = %q want my-list", l.Name)
	}
	if l.Kind != ListPrivate {
		t.Fatalf("Kind = %v want ListPrivate", l.Kind)
	}
	if l.Perms != 0 {
		t.Fatalf("Perms = %d want 0 for a private list", l.Perms)
	}
}

func TestListKindString(t *testing.T) {
	if ListGroup.String() != "2" {
		t.Fatalf("ListGroup.String() = %q want 2", ListGroup.String())
	}
	if ListPrivate.String() != "1" {
		t.Fatalf("ListPrivate.String() = %q want 1", ListPrivate.String())
	}
}

func TestMailingListMembersFreshIsEmpty(t *testing.T) {
	l := &MailingList{Name: "new-list", Kind: ListPrivate, Fresh: true}
	members, err := l.Members()
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected a fresh list to report no members, got %v", members)
	}
}

func TestMailingListRemoveFreshSkipsNetwork(t *testing.T) {
	sess := &Session{
		groupLists:   map[string]*MailingList{},
		privateLists: map[string]*MailingList{"my-list": {Name: "my-list", Kind: ListPrivate}},
	}
	l := &MailingList{session: sess, Name: "my-list", Kind: ListPrivate, Fresh: true}
	if err := l.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := sess.privateLists["my-list"]; ok {
		t.Fatalf("expected my-list to be evicted from the session cache")
	}
}
