package mail

import (
	"fmt"
	"strconv"
	"strings"
)

// Warning codes reported by the WARN command: the response value left once
// Session.expect has split off the hundreds-digit pending-warnings flag.
const (
	WarnUnreadMail = 61
	WarnMessage    = 62
	WarnShutdown   = 63
	WarnNewMail    = 66
	warnTerminator = 60
)

// Warning is a pending-warning notice surfaced by CheckWarnings.
type Warning struct {
	Code int
	Text string

	// Populated for WarnNewMail only.
	MessageID int
	FolderID  int
	Position  int
}

// ParseWarning interprets one WARN response line's code/text as a Warning.
func ParseWarning(code int, text string) (Warning, error) {
	w := Warning{Code: code, Text: text}
	if code != WarnNewMail {
		return w, nil
	}
	fields := strings.Fields(text)
	if len(fields) != 3 {
		return w, fmt.Errorf("mail: malformed new-mail warning %q", text)
	}
	msgid, err := strconv.Atoi(fields[0])
	if err != nil {
		return w, fmt.Errorf("mail: malformed new-mail warning %q: %w", text, err)
	}
	folderid, err := strconv.Atoi(fields[1])
	if err != nil {
		return w, fmt.Errorf("mail: malformed new-mail warning %q: %w", text, err)
	}
	position, err := strconv.Atoi(fields[2])
	if err != nil {
		return w, fmt.Errorf("mail: malformed new-mail warning %q: %w", text, err)
	}
	w.MessageID, w.FolderID, w.Position = msgid, folderid, position
	return w, nil
}
