package bulletin

import (
	"regexp"
	"strconv"
	"strings"
)

var xheadLine = regexp.MustCompile(`^([-\w]+): *(.+)$`)

// Article is one posting within a Topic. Its summary header fields are
// parsed once at construction; header, body, and full message text are
// fetched from the server on demand.
type Article struct {
	topic *Topic
	ID    string
	xhead map[string]string
}

// newArticle builds an Article from its id and the XHEAD summary lines
// the server returned for it.
func newArticle(topic *Topic, id string, xhead []string) *Article {
	fields := make(map[string]string, len(xhead))
	for _, line := range xhead {
		if m := xheadLine.FindStringSubmatch(line); m != nil {
			fields[strings.ToLower(m[1])] = m[2]
		}
	}
	return &Article{topic: topic, ID: id, xhead: fields}
}

// Keys returns the available summary header field names.
func (a *Article) Keys() []string {
	keys := make([]string, 0, len(a.xhead))
	for k := range a.xhead {
		keys = append(keys, k)
	}
	return keys
}

// Summary returns one summary header field, case-insensitively.
func (a *Article) Summary(name string) (string, bool) {
	v, ok := a.xhead[strings.ToLower(name)]
	return v, ok
}

// Select makes this article's topic the server's active group, if needed.
func (a *Article) Select() error {
	return a.topic.Select(false)
}

// Header fetches the article's full header lines, via HEAD.
func (a *Article) Header() ([]string, error) {
	if err := a.Select(); err != nil {
		return nil, err
	}
	sess := a.topic.session
	if err := sess.base.Command("HEAD", ' ', a.ID); err != nil {
		return nil, err
	}
	if _, _, err := sess.base.Expect(221); err != nil {
		return nil, err
	}
	return sess.base.ReadMultiline()
}

// Body fetches the article's body lines, via BODY.
func (a *Article) Body() ([]string, error) {
	if err := a.Select(); err != nil {
		return nil, err
	}
	sess := a.topic.session
	if err := sess.base.Command("BODY", ' ', a.ID); err != nil {
		return nil, err
	}
	if _, _, err := sess.base.Expect(222); err != nil {
		return nil, err
	}
	return sess.base.ReadMultiline()
}

// Message fetches the full article text (header and body together), via
// ARTICLE.
func (a *Article) Message() (string, error) {
	if err := a.Select(); err != nil {
		return "", err
	}
	sess := a.topic.session
	if err := sess.base.Command("ARTICLE", ' ', a.ID); err != nil {
		return "", err
	}
	if _, _, err := sess.base.Expect(220); err != nil {
		return "", err
	}
	lines, err := sess.base.ReadMultiline()
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// MarkRead marks this article as read in the topic's local read cache.
func (a *Article) MarkRead() {
	id, err := strconv.Atoi(a.ID)
	if err != nil {
		return
	}
	a.topic.rcache[id] = true
}

// MarkUnread clears this article from the topic's local read cache.
func (a *Article) MarkUnread() {
	id, err := strconv.Atoi(a.ID)
	if err != nil {
		return
	}
	delete(a.topic.rcache, id)
}

// IsRead reports whether this article is marked read in the topic's local
// read cache.
func (a *Article) IsRead() bool {
	id, err := strconv.Atoi(a.ID)
	if err != nil {
		return false
	}
	return a.topic.rcache[id]
}
