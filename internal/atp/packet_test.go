package atp

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := Packet{
		Kind:     KindRequest,
		Flags:    FlagXO,
		Seq:      1,
		TID:      0xBEEF,
		UserData: [4]byte{'N', 'O', 'T', 'I'},
		Data:     []byte("hello"),
	}
	raw := Encode(p)
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Kind != p.Kind || got.Flags != p.Flags || got.Seq != p.Seq || got.TID != p.TID {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
	if got.UserData != p.UserData {
		t.Fatalf("user data mismatch: got %v, want %v", got.UserData, p.UserData)
	}
	if !bytes.Equal(got.Data, p.Data) {
		t.Fatalf("data mismatch: got %q, want %q", got.Data, p.Data)
	}
}

func TestDecodeRejectsWrongTag(t *testing.T) {
	raw := Encode(Packet{Kind: KindRequest, UserData: [4]byte{'N', 'O', 'T', 'I'}})
	raw[0] = 0xFF
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected error for wrong DDP tag")
	}
}

func TestNotifyRequestRoundTrip(t *testing.T) {
	payload := EncodeNotifyRequest(ServiceMail, 501, 1000, []byte("new mail"))
	svc, uid, mid, data, err := DecodeNotifyRequest(payload)
	if err != nil {
		t.Fatalf("DecodeNotifyRequest: %v", err)
	}
	if svc != ServiceMail || uid != 501 || mid != 1000 || string(data) != "new mail" {
		t.Fatalf("unexpected decode: svc=%d uid=%d mid=%d data=%q", svc, uid, mid, data)
	}
}

func TestRegisterRequestRoundTrip(t *testing.T) {
	payload, err := EncodeRegisterRequest("#501", 4500, []int{ServiceMail, ServiceBulletin})
	if err != nil {
		t.Fatalf("EncodeRegisterRequest: %v", err)
	}
	uid, port, svcs, err := DecodeRegisterRequest(payload)
	if err != nil {
		t.Fatalf("DecodeRegisterRequest: %v", err)
	}
	if uid != "#501" || port != 4500 || len(svcs) != 2 || svcs[0] != ServiceMail || svcs[1] != ServiceBulletin {
		t.Fatalf("unexpected decode: uid=%q port=%d svcs=%v", uid, port, svcs)
	}
}

func TestClearRequestRoundTrip(t *testing.T) {
	payload := EncodeClearRequest(501, ServiceBulletin)
	uid, svc, err := DecodeClearRequest(payload)
	if err != nil {
		t.Fatalf("DecodeClearRequest: %v", err)
	}
	if uid != 501 || svc != ServiceBulletin {
		t.Fatalf("unexpected decode: uid=%d svc=%d", uid, svc)
	}
}

func TestResolveService(t *testing.T) {
	if code, ok := ResolveService("mail"); !ok || code != ServiceMail {
		t.Fatalf("ResolveService(mail) = %d, %v", code, ok)
	}
	if code, ok := ResolveService("7"); !ok || code != 7 {
		t.Fatalf("ResolveService(7) = %d, %v", code, ok)
	}
	if _, ok := ResolveService("bogus"); ok {
		t.Fatal("expected ResolveService(bogus) to fail")
	}
}
