package session

import (
	"bufio"
	"io"
)

func newBufReader(r io.Reader) *bufio.Reader { return bufio.NewReader(r) }
func newBufWriter(w io.Writer) *bufio.Writer { return bufio.NewWriter(w) }
