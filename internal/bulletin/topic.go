package bulletin

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Topic represents one bulletin group: its name, title, subscription and
// posting permissions, article-id range, and the locally-tracked set of
// articles the user has read.
type Topic struct {
	session *BulletinSession

	Name  string
	Title string
	Watch bool
	Post  bool

	idLow, idHigh, lastID int
	info                  string

	rcache map[int]bool

	loaded   bool
	articles []*Article
}

// newTopic parses one LSTB listing line into a Topic.
func newTopic(sess *BulletinSession, line string) (*Topic, error) {
	t := &Topic{session: sess, rcache: make(map[int]bool)}
	if err := t.parseInfo(line); err != nil {
		return nil, err
	}
	return t, nil
}

// parseInfo loads topic metadata from one line of the form:
// name,"title",watch,post,"lo-hi",lastid,"read;info"
func (t *Topic) parseInfo(line string) error {
	r := csv.NewReader(strings.NewReader(line))
	fields, err := r.Read()
	if err != nil || len(fields) < 7 {
		return fmt.Errorf("bulletin: malformed topic info %q", line)
	}

	t.Name = fields[0]
	t.Title = fields[1]
	t.Watch = fields[2] == "Y"
	t.Post = fields[3] == "Y"

	lohi := strings.SplitN(fields[4], "-", 2)
	if len(lohi) != 2 {
		return fmt.Errorf("bulletin: malformed topic id range %q", fields[4])
	}
	idLow, err1 := strconv.Atoi(lohi[0])
	idHigh, err2 := strconv.Atoi(lohi[1])
	if err1 != nil || err2 != nil {
		return fmt.Errorf("bulletin: malformed topic id range %q", fields[4])
	}
	t.idLow, t.idHigh = idLow, idHigh

	lastID, err := strconv.Atoi(fields[5])
	if err != nil {
		return fmt.Errorf("bulletin: malformed topic last id %q", fields[5])
	}
	t.lastID = lastID

	readPart := fields[6]
	info := ""
	if idx := strings.Index(readPart, ";"); idx >= 0 {
		info = readPart[idx+1:]
		readPart = readPart[:idx]
	}
	t.info = info

	rcache := make(map[int]bool)
	for _, r := range strings.Split(readPart, ",") {
		if r == "" {
			continue
		}
		if idx := strings.Index(r, "-"); idx >= 0 {
			lo, err1 := strconv.Atoi(r[:idx])
			hi, err2 := strconv.Atoi(r[idx+1:])
			if err1 != nil || err2 != nil {
				continue
			}
			for id := lo; id <= hi; id++ {
				if id != 0 {
					rcache[id] = true
				}
			}
		} else if id, err := strconv.Atoi(r); err == nil && id != 0 {
			rcache[id] = true
		}
	}
	t.rcache = rcache
	t.loaded = true
	return nil
}

// makeReadList compresses the read-article cache into the server's
// range-compact form, e.g. "1-3,7,9-12", pruning ids below the topic's
// current low water mark. Returns "0-0" if nothing is read.
func (t *Topic) makeReadList() string {
	ids := make([]int, 0, len(t.rcache))
	for id := range t.rcache {
		if id < t.idLow {
			delete(t.rcache, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var out []string
	lo := 0
	for lo < len(ids) {
		hi := lo + 1
		for hi < len(ids) && ids[hi] == ids[hi-1]+1 {
			hi++
		}
		if lo == hi-1 {
			out = append(out, strconv.Itoa(ids[lo]))
		} else {
			out = append(out, fmt.Sprintf("%d-%d", ids[lo], ids[hi-1]))
		}
		lo = hi
	}
	if len(out) == 0 {
		return "0-0"
	}
	return strings.Join(out, ",")
}

// Load fetches topic metadata from the server, via BULL, if it has not
// been loaded yet or force is true.
func (t *Topic) Load(force bool) error {
	if t.loaded && !force {
		return nil
	}
	if err := t.session.base.Command("BULL", ' ', t.Name); err != nil {
		return err
	}
	if _, _, err := t.session.base.Expect(290); err != nil {
		return err
	}
	lines, err := t.session.base.ReadMultiline()
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("bulletin: empty BULL response for topic %q", t.Name)
	}
	return t.parseInfo(lines[0])
}

// Update reports the last-seen article id and reader info to the server,
// via UPDT. Pass 0 to keep the topic's current last-seen id.
func (t *Topic) Update(id int) error {
	if id != 0 {
		t.lastID = id
	}
	read := t.makeReadList()
	if t.info != "" {
		read += ";" + t.info
	}
	arg := fmt.Sprintf(`%s,%d,"%s"`, t.Name, t.lastID, read)
	if err := t.session.base.Command("UPDT", ' ', arg); err != nil {
		return err
	}
	_, _, err := t.session.base.Expect(280)
	return err
}

// Monitor subscribes the user to this topic, via ADDB.
func (t *Topic) Monitor() error {
	if err := t.session.base.Command("ADDB", ' ', t.Name); err != nil {
		return err
	}
	if _, _, err := t.session.base.Expect(240); err != nil {
		return err
	}
	return t.Load(true)
}

// Unmonitor unsubscribes the user from this topic, via REMB.
func (t *Topic) Unmonitor() error {
	if err := t.session.base.Command("REMB", ' ', t.Name); err != nil {
		return err
	}
	if _, _, err := t.session.base.Expect(270); err != nil {
		return err
	}
	return t.Load(true)
}

// Select makes this topic the server's active group for subsequent
// article commands, via GROUP, skipping the round trip if it already is
// unless force is true.
func (t *Topic) Select(force bool) error {
	if t.session.selectedTopic == t.Name && !force {
		return nil
	}
	if err := t.session.base.Command("GROUP", ' ', t.Name); err != nil {
		return err
	}
	if _, _, err := t.session.base.Expect(211); err != nil {
		return err
	}
	t.session.selectedTopic = t.Name
	return nil
}

// Articles returns the topic's articles, fetching and caching the summary
// list via XHEAD on first access (or when force is true).
func (t *Topic) Articles(force bool) ([]*Article, error) {
	if t.articles != nil && !force {
		return t.articles, nil
	}
	if err := t.Load(false); err != nil {
		return nil, err
	}
	if err := t.Select(false); err != nil {
		return nil, err
	}
	if err := t.session.base.Command("XHEAD", ' ', fmt.Sprintf("%d-%d", t.idLow, t.idHigh)); err != nil {
		return nil, err
	}
	if _, _, err := t.session.base.Expect(221); err != nil {
		return nil, err
	}
	data, err := t.session.base.ReadMultiline()
	if err != nil {
		return nil, err
	}

	var articles []*Article
	last := 0
	for pos, line := range data {
		if line == "" {
			articles = append(articles, newArticle(t, data[last], data[last+1:pos]))
			last = pos + 1
		}
	}
	t.articles = articles
	return articles, nil
}

// About returns the topic's descriptive "About" text, via WHAT.
func (t *Topic) About() (string, error) {
	if err := t.session.base.Command("WHAT", ' ', t.Name); err != nil {
		return "", err
	}
	if _, _, err := t.session.base.Expect(200); err != nil {
		return "", err
	}
	lines, err := t.session.base.ReadMultiline()
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// ReadList returns the topic's compacted read-article range string,
// loading metadata first if needed.
func (t *Topic) ReadList() (string, error) {
	if err := t.Load(false); err != nil {
		return "", err
	}
	return t.makeReadList(), nil
}
