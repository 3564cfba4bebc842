package dnd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// fileRecord is one entry of a FileDirectory's backing store.
type fileRecord struct {
	rec    Record
	secret string
}

// FileDirectory is a Validator factory backed by a local flat file of
// "name:uid:secret" lines, one user per line. It exists as the
// notification daemon's standalone directory backend for deployments that
// do not run against a separate campus name-directory service. Its
// challenge/response scheme is the one dnd.Static uses by default: a fixed
// challenge, answered by the challenge and the user's secret joined with a
// colon. It does not perform the directory service's challenge encryption.
type FileDirectory struct {
	records map[string]fileRecord
}

// OpenFile loads a FileDirectory from the flat file at path.
func OpenFile(path string) (*FileDirectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dnd: open %q: %w", path, err)
	}
	defer f.Close()

	records := make(map[string]fileRecord)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("dnd: malformed entry %q in %q", line, path)
		}
		uid, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("dnd: malformed uid in %q: %w", line, err)
		}
		records[parts[0]] = fileRecord{
			rec:    Record{Name: parts[0], UID: uid},
			secret: parts[2],
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dnd: reading %q: %w", path, err)
	}
	return &FileDirectory{records: records}, nil
}

// NewValidator opens a fresh, single-use Validator against this directory,
// for a caller such as notifytcp that dials a new validation exchange for
// every USER command.
func (d *FileDirectory) NewValidator(context.Context) (Validator, error) {
	return &fileValidation{dir: d}, nil
}

const fileChallenge = "abcdef012345"

// fileValidation is the per-exchange state for one BeginValidate/
// CompleteValidate pair against a FileDirectory. It is not safe for use by
// more than one exchange concurrently, which matches how callers use it:
// one instance per connection's in-flight sign-on.
type fileValidation struct {
	dir     *FileDirectory
	pending string
}

func (v *fileValidation) BeginValidate(_ context.Context, name string) (string, error) {
	v.pending = name
	return fileChallenge, nil
}

func (v *fileValidation) CompleteValidate(_ context.Context, response string) (Record, error) {
	name := v.pending
	v.pending = ""

	entry, ok := v.dir.records[name]
	if !ok {
		return Record{}, fmt.Errorf("dnd: no such user %q", name)
	}
	if response != fileChallenge+":"+entry.secret {
		return Record{}, fmt.Errorf("dnd: validation failed for %q", name)
	}
	return entry.rec, nil
}
