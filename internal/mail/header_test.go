package mail

import "testing"

func TestHeaderCaseInsensitiveOrderPreserving(t *testing.T) {
	h := ParseHeader([]string{
		"From: jqpublic@example.edu",
		"Subject: Hello",
		"Received: one",
		"Received: two",
		"X-Folded: part one",
		" part two",
	})

	if v, ok := h.First("from"); !ok || v != "jqpublic@example.edu" {
		t.Fatalf("From lookup failed: %q %v", v, ok)
	}
	if got := h.Get("RECEIVED"); len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("Received values = %v", got)
	}
	if v, _ := h.First("x-folded"); v != "part one part two" {
		t.Fatalf("folded continuation = %q", v)
	}
	names := h.Names()
	want := []string{"From", "Subject", "Received", "X-Folded"}
	if len(names) != len(want) {
		t.Fatalf("names = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names[%d] = %q want %q", i, names[i], want[i])
		}
	}
}
