// Package wire implements the line-oriented framing shared by the mail,
// bulletin, and notify-control TCP dialects: "CMD[ sep ARG]*\n" command
// lines, "DDD TEXT\n" numeric response lines, dot-terminated multi-line
// payloads, and sized raw block transfers.
package wire

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Codec frames commands and responses over a byte stream. It owns no
// lifecycle of its own; callers provide the underlying reader/writer (a
// net.Conn's buffered wrapper, typically).
type Codec struct {
	r *bufio.Reader
	w *bufio.Writer
}

// New wraps a buffered reader/writer pair in a Codec.
func New(r *bufio.Reader, w *bufio.Writer) *Codec {
	return &Codec{r: r, w: w}
}

// WriteCommand writes a command line: the command name followed by args
// joined with sep, terminated with a single LF. Internal CRs in arguments
// are not expected; callers pass already-normalized text.
func (c *Codec) WriteCommand(name string, sep byte, args ...string) error {
	var buf bytes.Buffer
	buf.WriteString(name)
	for _, a := range args {
		buf.WriteByte(sep)
		buf.WriteString(a)
	}
	buf.WriteByte('\n')
	if _, err := c.w.Write(buf.Bytes()); err != nil {
		return err
	}
	return c.w.Flush()
}

// WriteResponse writes a "DDD TEXT\n" response line.
func (c *Codec) WriteResponse(code int, text string) error {
	_, err := fmt.Fprintf(c.w, "%d %s\n", code, text)
	if err != nil {
		return err
	}
	return c.w.Flush()
}

// ReadLine reads a single LF-terminated line, stripping the trailing CR/LF
// and normalizing any remaining internal CR to LF (the wire convention used
// by the original mail protocols for embedded newlines within a line).
func (c *Codec) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	line = strings.ReplaceAll(line, "\r", "\n")
	return line, nil
}

// ReadResponse reads a "DDD TEXT" response line and splits it into its
// numeric code and trailing text. A line whose first field does not parse
// as an integer is returned as code 0 with the full line as text, together
// with a non-nil error.
func (c *Codec) ReadResponse() (code int, text string, err error) {
	line, err := c.ReadLine()
	if err != nil {
		return 0, "", err
	}
	return ParseResponse(line)
}

// ParseResponse splits a raw response line into its numeric code and text.
func ParseResponse(line string) (code int, text string, err error) {
	idx := strings.IndexByte(line, ' ')
	var codeStr string
	if idx < 0 {
		codeStr, text = line, ""
	} else {
		codeStr, text = line[:idx], line[idx+1:]
	}
	code, err = strconv.Atoi(codeStr)
	if err != nil {
		return 0, line, fmt.Errorf("wire: malformed response line %q: %w", line, err)
	}
	return code, text, nil
}

// ReadMultiline reads lines until a line consisting of a single "." is
// seen, undoing byte-stuffing (a leading ".." on an input line becomes a
// single leading "." in the returned line). The terminator line is
// consumed but not included in the result.
func (c *Codec) ReadMultiline() ([]string, error) {
	var lines []string
	for {
		line, err := c.ReadLine()
		if err != nil {
			return lines, err
		}
		if line == "." {
			return lines, nil
		}
		if strings.HasPrefix(line, "..") {
			line = line[1:]
		}
		lines = append(lines, line)
	}
}

// ReadBlock reads exactly n raw bytes (a sized binary block, as announced
// by a preceding response's byte count) with no line framing applied.
func (c *Codec) ReadBlock(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteBlock writes raw bytes with no framing applied, for sized uploads
// such as message bodies or mailing-list member data.
func (c *Codec) WriteBlock(data []byte) error {
	if _, err := c.w.Write(data); err != nil {
		return err
	}
	return c.w.Flush()
}

// Reader exposes the underlying buffered reader for callers that need
// lower-level access (such as peeking for pipelined data).
func (c *Codec) Reader() *bufio.Reader { return c.r }

// Writer exposes the underlying buffered writer.
func (c *Codec) Writer() *bufio.Writer { return c.w }
