package engine

import (
	"fmt"
	"math"
	"strings"
)

// LineContext exposes one logical line to compiled rule programs. It
// is built immediately before rule dispatch and torn down after; the
// engine reference lets programs reach the stash, the records and the
// abort flag. Field indexing is 0-based with negative-from-end.
type LineContext struct {
	line      string
	fields    []string
	nr        int
	indent    int
	hasFields bool
	eng       *Engine
}

// ThisLine returns the full logical line
func (c *LineContext) ThisLine() string { return c.line }

// ThisIndent returns the indent level computed for this line
func (c *LineContext) ThisIndent() int { return c.indent }

// NR returns the number of physical lines read so far
func (c *LineContext) NR() int { return c.nr }

// NF returns the number of fields, zero when auto-split is off
func (c *LineContext) NF() int {
	if !c.hasFields {
		return 0
	}
	return len(c.fields)
}

// Fields returns a copy of the field list
func (c *LineContext) Fields() []string {
	out := make([]string, len(c.fields))
	copy(out, c.fields)
	return out
}

// resolveIndex maps a possibly negative index onto the field list
func (c *LineContext) resolveIndex(i int) (int, error) {
	n := c.NF()
	idx := i
	if idx < 0 {
		idx = n + idx
	}
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("field index %d out of range (NF=%d)", i, n)
	}
	return idx, nil
}

// Field returns the field at i; negative indices count from the end
func (c *LineContext) Field(i int) (string, error) {
	idx, err := c.resolveIndex(i)
	if err != nil {
		return "", err
	}
	return c.fields[idx], nil
}

// FieldRange returns the inclusive range of fields from i to j. If i
// resolves past j the result is reversed.
func (c *LineContext) FieldRange(i, j int) ([]string, error) {
	from, err := c.resolveIndex(i)
	if err != nil {
		return nil, err
	}
	to, err := c.resolveIndex(j)
	if err != nil {
		return nil, err
	}
	if from > to {
		out := make([]string, 0, from-to+1)
		for k := from; k >= to; k-- {
			out = append(out, c.fields[k])
		}
		return out, nil
	}
	out := make([]string, to-from+1)
	copy(out, c.fields[from:to+1])
	return out, nil
}

// JoinRange joins FieldRange(i, j) with sep
func (c *LineContext) JoinRange(i, j int, sep string) (string, error) {
	fields, err := c.FieldRange(i, j)
	if err != nil {
		return "", err
	}
	return strings.Join(fields, sep), nil
}

// FindField returns the first field satisfying pred
func (c *LineContext) FindField(pred func(string) bool) (string, bool) {
	for _, f := range c.fields {
		if pred(f) {
			return f, true
		}
	}
	return "", false
}

// FindFieldIndex returns the index of the first field satisfying
// pred, or -1
func (c *LineContext) FindFieldIndex(pred func(string) bool) int {
	for i, f := range c.fields {
		if pred(f) {
			return i
		}
	}
	return -1
}

// SpliceFields removes length fields at offset, inserts replacement
// in their place and returns the removed fields. Negative offsets
// count from the end; a negative length leaves that many fields at
// the end; math.MinInt means remove everything from offset. The
// mutation is visible to rules that run later on the same line.
func (c *LineContext) SpliceFields(offset, length int, replacement []string) ([]string, error) {
	n := len(c.fields)
	if offset < 0 {
		offset = n + offset
	}
	if offset < 0 || offset > n {
		return nil, fmt.Errorf("splice offset %d out of range (NF=%d)", offset, n)
	}
	var count int
	switch {
	case length == math.MinInt:
		count = n - offset
	case length < 0:
		count = n - offset + length
	default:
		count = length
	}
	if count < 0 {
		count = 0
	}
	if offset+count > n {
		count = n - offset
	}

	removed := make([]string, count)
	copy(removed, c.fields[offset:offset+count])

	rest := make([]string, 0, n-count+len(replacement))
	rest = append(rest, c.fields[:offset]...)
	rest = append(rest, replacement...)
	rest = append(rest, c.fields[offset+count:]...)
	c.fields = rest
	return removed, nil
}

// Stashed reads a stash variable through the unified view
func (c *LineContext) Stashed(name string) (interface{}, bool) {
	return c.eng.stash.get(name)
}

// SetStashed writes a stash variable through the unified view
func (c *LineContext) SetStashed(name string, value interface{}) {
	c.eng.stash.set(name, value)
}

// DeleteStashed erases the transient copy of a stash variable
func (c *LineContext) DeleteStashed(name string) {
	c.eng.stash.deleteTransient(name)
}

// Prestash writes a persistent stash variable
func (c *LineContext) Prestash(name string, value interface{}) {
	c.eng.stash.prestash(name, value)
}

// AbortReading sets the engine's sticky abort flag
func (c *LineContext) AbortReading() {
	c.eng.aborted = true
}

// SetFieldSeparator replaces the engine's split pattern. Lines split
// after the current one use the new separator.
func (c *LineContext) SetFieldSeparator(pattern string) error {
	return c.eng.SetFieldSeparator(pattern)
}
