package mail

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CatalogEntry describes one part of a multi-part message, as returned by
// the MCAT command.
type CatalogEntry struct {
	Tag  string
	Type string
	Size int
}

// MessageFormat distinguishes a plain-text body from a MIME-structured one.
type MessageFormat int

const (
	FormatPlain MessageFormat = 1
	FormatMIME  MessageFormat = 2
)

// summaryLine recognizes the format of a summary info line sent by the mail
// server: id,date,time,format,"sender","recipient","subject",length,
// enclosures,status,expiration.
var summaryLine = regexp.MustCompile(`^(\d+),(\d{2}/\d{2}/\d{2}),(\d{2}:\d{2}:\d{2}),` +
	`(\d),"((?:[^"]|"")*)","((?:[^"]|"")*)",` +
	`"((?:[^"]|"")*)",(\d+),(\d+),([A-Z]),(\d+)$`)

// MessageSummary is the lightweight, lazily-detailed view of one message in
// a folder. Most fields come from the folder's summary listing; header,
// body, and catalog are faulted in on first access and cached.
type MessageSummary struct {
	session *Session
	folder  *Folder

	ID            int
	DeliveryDate  string
	DeliveryTime  string
	Delivered     time.Time
	Format        MessageFormat
	Sender        string
	Recipient     string
	Subject       string
	Length        int
	NumEnclosures int
	Status        string

	expiration int64

	header *Header

	bCacheOffset int
	bCache       []byte

	catalog map[string]CatalogEntry
}

// ParseSummary parses one summary info line as sent in response to FSUM.
func ParseSummary(sess *Session, folder *Folder, line string) (*MessageSummary, error) {
	m := summaryLine.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("mail: malformed summary line %q", line)
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("mail: malformed summary id %q: %w", m[1], err)
	}
	format, err := strconv.Atoi(m[4])
	if err != nil {
		return nil, fmt.Errorf("mail: malformed summary format %q: %w", m[4], err)
	}
	length, err := strconv.Atoi(m[8])
	if err != nil {
		return nil, fmt.Errorf("mail: malformed summary length %q: %w", m[8], err)
	}
	enclosures, err := strconv.Atoi(m[9])
	if err != nil {
		return nil, fmt.Errorf("mail: malformed summary enclosure count %q: %w", m[9], err)
	}
	exp, err := strconv.ParseInt(m[11], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("mail: malformed summary expiration %q: %w", m[11], err)
	}
	delivered, err := time.Parse("01/02/06 15:04:05", m[2]+" "+m[3])
	if err != nil {
		return nil, fmt.Errorf("mail: malformed summary delivery time %q %q: %w", m[2], m[3], err)
	}
	return &MessageSummary{
		session:       sess,
		folder:        folder,
		ID:            id,
		DeliveryDate:  m[2],
		DeliveryTime:  m[3],
		Delivered:     delivered,
		Format:        MessageFormat(format),
		Sender:        unescapeQuotes(m[5]),
		Recipient:     unescapeQuotes(m[6]),
		Subject:       unescapeQuotes(m[7]),
		Length:        length,
		NumEnclosures: enclosures,
		Status:        m[10],
		expiration:    exp,
	}, nil
}

// unescapeQuotes reverses the doubled-double-quote escaping used inside
// quoted summary fields.
func unescapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// splitQuotedCSV splits a line on commas that are not inside double quotes.
func splitQuotedCSV(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quoted field")
	}
	fields = append(fields, cur.String())
	return fields, nil
}

// Expiration returns the message's expiration time and whether it expires
// at all (false means "never expires").
func (m *MessageSummary) Expiration() (time.Time, bool) {
	if NeverExpires(m.expiration) {
		return time.Time{}, false
	}
	return FromServerTime(m.expiration), true
}

// folderMsgTag returns the "folder_id/message_id" composite argument the
// server expects wherever a command addresses a message directly.
func (m *MessageSummary) folderMsgTag() string {
	return fmt.Sprintf("%d/%d", m.folder.ID, m.ID)
}

// SetExpiration sets the message's expiration, via EXPR, and reloads the
// summary's cached fields from the server afterward. Pass a zero time.Time
// to mean "never expires".
func (m *MessageSummary) SetExpiration(t time.Time) error {
	var arg string
	if t.IsZero() {
		arg = strconv.FormatInt(neverExpires, 10)
	} else {
		arg = strconv.FormatInt(ToServerTime(t), 10)
	}
	if err := m.session.base.Command("EXPR", ' ', m.folderMsgTag(), arg); err != nil {
		return err
	}
	if _, _, err := m.session.expect(10); err != nil {
		return err
	}
	return m.reload()
}

// reload re-fetches this summary's fields from the server, via MSUM.
func (m *MessageSummary) reload() error {
	if err := m.session.base.Command("MSUM", ' ', m.folderMsgTag()); err != nil {
		return err
	}
	_, text, err := m.session.expect(0)
	if err != nil {
		return err
	}
	reloaded, err := ParseSummary(m.session, m.folder, text)
	if err != nil {
		return err
	}
	reloaded.session, reloaded.folder = m.session, m.folder
	reloaded.header, reloaded.bCacheOffset, reloaded.bCache, reloaded.catalog =
		m.header, m.bCacheOffset, m.bCache, m.catalog
	*m = *reloaded
	return nil
}

// Select makes this message the session's selected message, via MESS.
func (m *MessageSummary) Select() error {
	if err := m.session.base.Command("MESS", ' ', m.folderMsgTag()); err != nil {
		return err
	}
	_, _, err := m.session.expect(10)
	return err
}

// GetHeader fetches and caches the message's header, via HEAD.
func (m *MessageSummary) GetHeader() (*Header, error) {
	if m.header != nil {
		return m.header, nil
	}
	if err := m.Select(); err != nil {
		return nil, err
	}
	if err := m.session.base.Command("HEAD", ' '); err != nil {
		return nil, err
	}
	code, text, err := m.session.expect(50)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.Fields(text)[0])
	if err != nil {
		return nil, fmt.Errorf("mail: malformed HEAD size in %q (code %d): %w", text, code, err)
	}
	data, err := m.session.base.ReadBlock(n)
	if err != nil {
		return nil, err
	}
	m.header = ParseHeader(strings.Split(string(data), "\n"))
	return m.header, nil
}

// Body returns length bytes of the message body starting at offset,
// extending the incrementally-built body cache as needed via TEXT.
func (m *MessageSummary) Body(offset, length int) ([]byte, error) {
	end := offset + length
	if offset >= m.bCacheOffset && end <= m.bCacheOffset+len(m.bCache) {
		start := offset - m.bCacheOffset
		return m.bCache[start : start+length], nil
	}

	fetchOffset := offset
	fetchEnd := end
	if len(m.bCache) > 0 {
		if m.bCacheOffset < fetchOffset {
			fetchOffset = m.bCacheOffset
		}
		if m.bCacheOffset+len(m.bCache) > fetchEnd {
			fetchEnd = m.bCacheOffset + len(m.bCache)
		}
	}

	if err := m.Select(); err != nil {
		return nil, err
	}
	if err := m.session.base.Command("TEXT", ' ', strconv.Itoa(fetchOffset), strconv.Itoa(fetchEnd-fetchOffset)); err != nil {
		return nil, err
	}
	code, text, err := m.session.expect(50)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.Fields(text)[0])
	if err != nil {
		return nil, fmt.Errorf("mail: malformed TEXT size in %q (code %d): %w", text, code, err)
	}
	data, err := m.session.base.ReadBlock(n)
	if err != nil {
		return nil, err
	}
	m.bCache = data
	m.bCacheOffset = fetchOffset

	start := offset - m.bCacheOffset
	if start < 0 || start+length > len(m.bCache) {
		return nil, fmt.Errorf("mail: server returned short body for message %d", m.ID)
	}
	return m.bCache[start : start+length], nil
}

// GetCatalog fetches and caches the message's MIME part catalog, via MCAT.
func (m *MessageSummary) GetCatalog() (map[string]CatalogEntry, error) {
	if m.catalog != nil {
		return m.catalog, nil
	}
	if err := m.Select(); err != nil {
		return nil, err
	}
	if err := m.session.base.Command("MCAT", ' '); err != nil {
		return nil, err
	}
	if _, _, err := m.session.expect(0); err != nil {
		return nil, err
	}
	lines, err := m.session.base.ReadMultiline()
	if err != nil {
		return nil, err
	}
	catalog := make(map[string]CatalogEntry, len(lines))
	for _, line := range lines {
		fields, err := splitQuotedCSV(line)
		if err != nil || len(fields) < 3 {
			continue
		}
		size, _ := strconv.Atoi(fields[2])
		catalog[fields[0]] = CatalogEntry{Tag: fields[0], Type: fields[1], Size: size}
	}
	m.catalog = catalog
	return catalog, nil
}

// MoveTo moves this message to another folder, via MOVE. The message's
// expiration may change depending on the target folder's AutoExp setting.
func (m *MessageSummary) MoveTo(target *Folder) error {
	if err := m.move("MOVE", target.ID); err != nil {
		return err
	}
	m.folder = target
	return nil
}

// CopyTo copies this message to another folder, via COPY. The original
// message is left in place; the server assigns the copy its own id.
func (m *MessageSummary) CopyTo(target *Folder) error {
	return m.move("COPY", target.ID)
}

func (m *MessageSummary) move(cmd string, targetFolderID int) error {
	if err := m.session.base.Command(cmd, ' ', strconv.Itoa(m.folder.ID), strconv.Itoa(targetFolderID), strconv.Itoa(m.ID)); err != nil {
		return err
	}
	code, text, err := m.session.expect(1)
	if err != nil {
		return err
	}
	if exp, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64); err == nil && exp != -1 && cmd != "COPY" {
		m.expiration = exp
	}
	for code != 0 {
		code, _, err = m.session.expect(0, 1)
		if err != nil {
			return err
		}
	}
	m.folder.MarkStale()
	if tgt, ok := m.session.folders[targetFolderID]; ok {
		tgt.MarkStale()
	}
	return nil
}

// MarkRead marks this message read.
func (m *MessageSummary) MarkRead() error { return m.mark(true) }

// MarkUnread marks this message unread.
func (m *MessageSummary) MarkUnread() error { return m.mark(false) }

func (m *MessageSummary) mark(read bool) error {
	flag := "U"
	if read {
		flag = "R"
	}
	if err := m.session.base.Command("MARK", ' ', flag, m.folderMsgTag()); err != nil {
		return err
	}
	_, _, err := m.session.expect(10)
	return err
}
