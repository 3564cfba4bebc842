package wire

import (
	"bufio"
	"bytes"
	"testing"
)

func newCodecOver(input string) (*Codec, *bytes.Buffer) {
	var out bytes.Buffer
	r := bufio.NewReader(bytes.NewBufferString(input))
	w := bufio.NewWriter(&out)
	return New(r, w), &out
}

func TestParseResponse(t *testing.T) {
	cases := []struct {
		line     string
		wantCode int
		wantText string
		wantErr  bool
	}{
		{"200 Ready", 200, "Ready", false},
		{"480 Bad format", 480, "Bad format", false},
		{"500", 500, "", false},
		{"notanumber text", 0, "notanumber text", true},
	}
	for _, tc := range cases {
		code, text, err := ParseResponse(tc.line)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseResponse(%q) err=%v wantErr=%v", tc.line, err, tc.wantErr)
		}
		if err == nil {
			if code != tc.wantCode || text != tc.wantText {
				t.Fatalf("ParseResponse(%q) = (%d,%q) want (%d,%q)", tc.line, code, text, tc.wantCode, tc.wantText)
			}
		}
	}
}

func TestReadMultilineUnstuffing(t *testing.T) {
	c, _ := newCodecOver("hello\n..dotted\nworld\n.\n")
	lines, err := c.ReadMultiline()
	if err != nil {
		t.Fatalf("ReadMultiline: %v", err)
	}
	want := []string{"hello", ".dotted", "world"}
	if len(lines) != len(want) {
		t.Fatalf("got %v want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q want %q", i, lines[i], want[i])
		}
	}
}

func TestReadBlock(t *testing.T) {
	c, _ := newCodecOver("hello world")
	data, err := c.ReadBlock(5)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}
}

func TestWriteCommand(t *testing.T) {
	c, out := newCodecOver("")
	if err := c.WriteCommand("USER", ' ', "jqpublic"); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}
	if out.String() != "USER jqpublic\n" {
		t.Fatalf("got %q", out.String())
	}
}
