package mail

import "strings"

// headerField holds one header's original-case name and its values in the
// order they appeared, supporting repeated headers (e.g. "Received").
type headerField struct {
	name   string
	values []string
}

// Header is a case-insensitive, insertion-order-preserving multi-map of
// message header fields, modeled on the original mail client's header
// parser: lookups are case-insensitive but the original casing and the
// document order of distinct field names are both preserved.
type Header struct {
	order []string // lowercased keys, in first-seen order
	index map[string]*headerField
}

// NewHeader returns an empty Header.
func NewHeader() *Header {
	return &Header{index: make(map[string]*headerField)}
}

// ParseHeader parses a block of header lines, unfolding continuation lines
// (lines beginning with a space or tab are appended to the previous field).
func ParseHeader(lines []string) *Header {
	h := NewHeader()
	var last string
	for _, line := range lines {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && last != "" {
			h.appendContinuation(last, strings.TrimLeft(line, " \t"))
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		name := line[:idx]
		value := strings.TrimLeft(line[idx+1:], " \t")
		h.Add(name, value)
		last = name
	}
	return h
}

// Add appends a value for name, preserving its original case and insertion order.
func (h *Header) Add(name, value string) {
	key := strings.ToLower(name)
	f, ok := h.index[key]
	if !ok {
		f = &headerField{name: name}
		h.index[key] = f
		h.order = append(h.order, key)
	}
	f.values = append(f.values, value)
}

func (h *Header) appendContinuation(name, extra string) {
	key := strings.ToLower(name)
	f, ok := h.index[key]
	if !ok || len(f.values) == 0 {
		h.Add(name, extra)
		return
	}
	f.values[len(f.values)-1] += " " + extra
}

// Get returns all values for name, in the order they appeared.
func (h *Header) Get(name string) []string {
	f, ok := h.index[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return append([]string(nil), f.values...)
}

// First returns the first value for name, and whether it was present.
func (h *Header) First(name string) (string, bool) {
	f, ok := h.index[strings.ToLower(name)]
	if !ok || len(f.values) == 0 {
		return "", false
	}
	return f.values[0], true
}

// Names returns the distinct header field names in document order, using
// each field's original casing.
func (h *Header) Names() []string {
	names := make([]string, 0, len(h.order))
	for _, key := range h.order {
		names = append(names, h.index[key].name)
	}
	return names
}
