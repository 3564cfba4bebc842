package mail

import (
	"fmt"
	"strconv"
	"strings"
)

// FolderState tracks whether a Folder's cached metadata is known to be
// current. It replaces the original client's boolean "need reload" flag
// with an explicit three-state machine.
type FolderState int

const (
	// FolderFresh means the folder has never been loaded from the server.
	FolderFresh FolderState = iota
	// FolderLoaded means cached fields reflect the server's last answer.
	FolderLoaded
	// FolderStale means the server has indicated new mail arrived and the
	// cached message count should be treated as out of date until reloaded.
	FolderStale
)

// Folder is one mail folder (inbox, a named subfolder, or the trash).
type Folder struct {
	session *Session

	ID    int
	Name  string
	Count int
	Size  int

	state FolderState
}

// newFolder builds a Folder from one FLIS listing line: id,count,"name",size
func newFolder(sess *Session, line string) (*Folder, error) {
	fields, err := splitQuotedCSV(line)
	if err != nil || len(fields) != 4 {
		return nil, fmt.Errorf("mail: malformed folder listing %q", line)
	}
	id, err1 := strconv.Atoi(fields[0])
	count, err2 := strconv.Atoi(fields[1])
	size, err3 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, fmt.Errorf("mail: malformed folder listing %q", line)
	}
	return &Folder{
		session: sess,
		ID:      id,
		Name:    fields[2],
		Count:   count,
		Size:    size,
		state:   FolderLoaded,
	}, nil
}

// MarkStale flags the folder for reload on next access, called when a
// NewMail warning names this folder.
func (f *Folder) MarkStale() { f.state = FolderStale }

// ensureLoaded reloads folder metadata from the server if it is stale.
func (f *Folder) ensureLoaded() error {
	if f.state != FolderStale {
		return nil
	}
	if err := f.session.base.Command("FLIS", ' ', strconv.Itoa(f.ID)); err != nil {
		return err
	}
	_, text, err := f.session.expect(0)
	if err != nil {
		return err
	}
	reloaded, err := newFolder(f.session, text)
	if err != nil {
		return err
	}
	f.Name = reloaded.Name
	f.Count = reloaded.Count
	f.Size = reloaded.Size
	f.state = FolderLoaded
	return nil
}

// Rename renames the folder, via FNAM.
func (f *Folder) Rename(name string) error {
	if err := f.session.base.Command("FNAM", ' ', strconv.Itoa(f.ID), name); err != nil {
		return err
	}
	if _, _, err := f.session.expect(10); err != nil {
		return err
	}
	f.Name = name
	return nil
}

// Remove deletes the folder, via FREM.
func (f *Folder) Remove() error {
	if err := f.session.base.Command("FREM", ' ', strconv.Itoa(f.ID)); err != nil {
		return err
	}
	_, _, err := f.session.expect(10)
	return err
}

// Touch forces a reload of the folder's cached metadata on next access,
// regardless of whether the server has announced new mail.
func (f *Folder) Touch() {
	f.state = FolderStale
}

// GetSummaries fetches message summaries for messages lo..hi (inclusive),
// via FSUM. An empty folder (Count == 0) returns an empty slice without
// contacting the server, matching the original client's special case.
func (f *Folder) GetSummaries(lo, hi int) ([]*MessageSummary, error) {
	if err := f.ensureLoaded(); err != nil {
		return nil, err
	}
	if f.Count == 0 {
		return nil, nil
	}
	if err := f.session.base.Command("FSUM", ' ', strconv.Itoa(f.ID), strconv.Itoa(lo), strconv.Itoa(hi)); err != nil {
		return nil, err
	}
	if _, _, err := f.session.expect(0); err != nil {
		return nil, err
	}
	lines, err := f.session.base.ReadMultiline()
	if err != nil {
		return nil, err
	}
	summaries := make([]*MessageSummary, 0, len(lines))
	for _, line := range lines {
		s, err := ParseSummary(f.session, f, line)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// sessionTag returns the per-folder preference key for a named setting,
// e.g. "AutoExp12" for folder id 12.
func (f *Folder) sessionTag(name string) string {
	return fmt.Sprintf("%s%d", name, f.ID)
}

// SessionTag exposes the per-folder preference key convention used for
// folder-scoped settings such as auto-expiration.
func (f *Folder) SessionTag(name string) string { return f.sessionTag(name) }

// AutoExpiration returns the folder's auto-expiration period in days, or 0
// if unset, via the folder-scoped "AutoExp" preference.
func (f *Folder) AutoExpiration() (int, error) {
	val, err := f.session.getPref(f.sessionTag("AutoExp"))
	if err != nil {
		return 0, err
	}
	if val == "" {
		return 0, nil
	}
	days, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("mail: malformed AutoExp preference %q: %w", val, err)
	}
	return days, nil
}

// SetAutoExpiration sets the folder's auto-expiration period in days.
func (f *Folder) SetAutoExpiration(days int) error {
	return f.session.setPref(f.sessionTag("AutoExp"), strconv.Itoa(days))
}

// ExpiredIDs returns the message ids most recently auto-expired from this
// folder, via the folder-scoped "Expired" preference (a comma-joined list).
func (f *Folder) ExpiredIDs() ([]int, error) {
	val, err := f.session.getPref(f.sessionTag("Expired"))
	if err != nil {
		return nil, err
	}
	if val == "" {
		return nil, nil
	}
	parts := strings.Split(val, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ClearExpiredIDs removes the folder's expired-id preference, via PREM.
func (f *Folder) ClearExpiredIDs() error {
	return f.session.removePref(f.sessionTag("Expired"))
}
