package dnd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeDirectoryFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notifyd.directory")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestFileDirectoryValidatesCorrectResponse(t *testing.T) {
	path := writeDirectoryFile(t, "# comment\njqpublic:501:hunter2\n")
	dir, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	ctx := context.Background()
	v, err := dir.NewValidator(ctx)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	challenge, err := v.BeginValidate(ctx, "jqpublic")
	if err != nil {
		t.Fatalf("BeginValidate: %v", err)
	}

	rec, err := v.CompleteValidate(ctx, challenge+":hunter2")
	if err != nil {
		t.Fatalf("CompleteValidate: %v", err)
	}
	if rec.UID != 501 || rec.Name != "jqpublic" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestFileDirectoryRejectsWrongResponse(t *testing.T) {
	path := writeDirectoryFile(t, "jqpublic:501:hunter2\n")
	dir, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	ctx := context.Background()
	v, _ := dir.NewValidator(ctx)
	challenge, _ := v.BeginValidate(ctx, "jqpublic")

	if _, err := v.CompleteValidate(ctx, challenge+":wrongsecret"); err == nil {
		t.Fatalf("expected error for wrong response")
	}
}

func TestFileDirectoryRejectsUnknownUser(t *testing.T) {
	path := writeDirectoryFile(t, "jqpublic:501:hunter2\n")
	dir, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	ctx := context.Background()
	v, _ := dir.NewValidator(ctx)
	challenge, _ := v.BeginValidate(ctx, "nosuchuser")

	if _, err := v.CompleteValidate(ctx, challenge+":whatever"); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

func TestOpenFileRejectsMalformedEntry(t *testing.T) {
	path := writeDirectoryFile(t, "not-enough-fields\n")
	if _, err := OpenFile(path); err == nil {
		t.Fatalf("expected error for malformed entry")
	}
}
