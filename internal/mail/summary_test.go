package mail

import "testing"

func TestParseSummary(t *testing.T) {
	s, err := ParseSummary(nil, nil, `42,03/14/25,09:27:05,2,"Alice","Bob","Hello",1024,0,N,4009644800`)
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if s.ID != 42 {
		t.Fatalf("ID = %d want 42", s.ID)
	}
	if s.Format != FormatMIME {
		t.Fatalf("Format = %v want MIME", s.Format)
	}
	if s.Sender != "Alice" || s.Recipient != "Bob" || s.Subject != "Hello" {
		t.Fatalf("Sender/Recipient/Subject = %q/%q/%q", s.Sender, s.Recipient, s.Subject)
	}
	if s.Length != 1024 {
		t.Fatalf("Length = %d want 1024", s.Length)
	}
	if s.NumEnclosures != 0 || s.Status != "N" {
		t.Fatalf("NumEnclosures/Status = %d/%q", s.NumEnclosures, s.Status)
	}
	exp, ok := s.Expiration()
	if !ok {
		t.Fatalf("expected a finite expiration")
	}
	if got := exp.Unix(); got != 1926818000 {
		t.Fatalf("expiration unix = %d want 1926818000", got)
	}
}

func TestParseSummaryQuoteEscaping(t *testing.T) {
	s, err := ParseSummary(nil, nil, `1,01/01/26,00:00:00,1,"Jo ""JJ"" Doe","Bob","Re: ""hi""",10,0,R,0`)
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if s.Sender != `Jo "JJ" Doe` {
		t.Fatalf("Sender = %q", s.Sender)
	}
	if s.Subject != `Re: "hi"` {
		t.Fatalf("Subject = %q", s.Subject)
	}
}

func TestParseSummaryMalformed(t *testing.T) {
	if _, err := ParseSummary(nil, nil, "not a summary line"); err == nil {
		t.Fatalf("expected an error for a malformed line")
	}
}

func TestSummaryNeverExpires(t *testing.T) {
	s, err := ParseSummary(nil, nil, `1,01/01/26,00:00:00,1,"A","B","C",1,0,N,4294967295`)
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if _, ok := s.Expiration(); ok {
		t.Fatalf("expected never-expires sentinel to report no expiration")
	}
}
