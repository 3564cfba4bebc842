package bulletin

import "testing"

func TestTopicParseInfo(t *testing.T) {
	topic := &Topic{rcache: make(map[int]bool)}
	if err := topic.parseInfo(`campus.general,"Campus announcements",Y,N,"1-50",42,"1-3,7;moderated"`); err != nil {
		t.Fatalf("parseInfo: %v", err)
	}
	if topic.Name != "campus.general" || topic.Title != "Campus announcements" {
		t.Fatalf("unexpected name/title: %+v", topic)
	}
	if !topic.Watch || topic.Post {
		t.Fatalf("unexpected watch/post: %+v", topic)
	}
	if topic.idLow != 1 || topic.idHigh != 50 || topic.lastID != 42 {
		t.Fatalf("unexpected id range: %+v", topic)
	}
	if topic.info != "moderated" {
		t.Fatalf("unexpected info: %q", topic.info)
	}
	for _, id := range []int{1, 2, 3, 7} {
		if !topic.rcache[id] {
			t.Errorf("expected id %d marked read", id)
		}
	}
	if topic.rcache[4] {
		t.Errorf("id 4 should not be marked read")
	}
}

func TestTopicMakeReadList(t *testing.T) {
	topic := &Topic{idLow: 1, rcache: map[int]bool{1: true, 2: true, 3: true, 7: true, 9: true, 10: true}}
	if got := topic.makeReadList(); got != "1-3,7,9-10" {
		t.Fatalf("makeReadList() = %q", got)
	}

	empty := &Topic{rcache: map[int]bool{}}
	if got := empty.makeReadList(); got != "0-0" {
		t.Fatalf("makeReadList() on empty = %q, want 0-0", got)
	}
}

func TestTopicMakeReadListPrunesBelowLowWaterMark(t *testing.T) {
	topic := &Topic{idLow: 5, rcache: map[int]bool{1: true, 5: true, 6: true}}
	if got := topic.makeReadList(); got != "5-6" {
		t.Fatalf("makeReadList() = %q, want 5-6", got)
	}
	if topic.rcache[1] {
		t.Errorf("expected id 1 pruned from rcache")
	}
}
