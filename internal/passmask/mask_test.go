package passmask

import "testing"

func TestMaskRoundTrip(t *testing.T) {
	for _, key := range []byte{MailKey, BulletinKey, NotifyKey} {
		got := Mask("hunter2", key).Reveal()
		if got != "hunter2" {
			t.Fatalf("key %#x: got %q", key, got)
		}
	}
}

func TestMaskObfuscates(t *testing.T) {
	m := Mask("hunter2", MailKey)
	if string(m.data) == "hunter2" {
		t.Fatalf("masked data equals plaintext")
	}
}
