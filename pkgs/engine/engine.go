// Package engine implements the rule-driven text parsing engine: the
// read loop, line unwrapping, rule dispatch, the record list and the
// stash. Rules are written in the mini-language compiled by the
// interp package.
package engine

import (
	"io"
	"strings"

	"github.com/textparser-go/textparser/pkgs/errors"
	"github.com/textparser-go/textparser/pkgs/input"
)

// Engine drives rules over the logical lines of a text input and
// accumulates the records their actions return.
type Engine struct {
	settings

	classRules []*Rule
	rules      []*Rule
	beginRule  *Rule
	endRule    *Rule

	records []interface{}
	stash   *stash

	linesParsed int
	aborted     bool
	thisLine    string
	thisIndent  int

	filename   string
	filehandle io.Reader

	dispatch []*Rule // class rules then instance rules, built per read
}

// New creates an engine with the given options
func New(opts ...Option) (*Engine, error) {
	s := defaultSettings()
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, err
		}
	}
	return &Engine{settings: s, stash: newStash()}, nil
}

// Apply reconfigures the engine between reads
func (e *Engine) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(&e.settings); err != nil {
			return err
		}
	}
	return nil
}

// SetFieldSeparator replaces the split pattern used by auto-split
func (e *Engine) SetFieldSeparator(pattern string) error {
	return e.Apply(FieldSeparator(pattern))
}

// CustomLineUnwrapRoutines installs a custom wrap-detection and join
// pair and selects the custom wrap style.
func (e *Engine) CustomLineUnwrapRoutines(mt MultilineType, isWrapped func(string) bool, join func(last, cur string) string) error {
	return e.settings.setUnwrapRoutines(mt, isWrapped, join)
}

// AddRule compiles and appends an instance rule. Adding a rule turns
// auto-split on.
func (e *Engine) AddRule(opts ...RuleOption) error {
	r, err := NewRule(opts...)
	if err != nil {
		return err
	}
	e.rules = append(e.rules, r)
	e.autoSplit = true
	return nil
}

// ClearRules removes all instance rules
func (e *Engine) ClearRules() {
	e.rules = nil
}

// Rules returns the instance rules in dispatch order
func (e *Engine) Rules() []*Rule {
	out := make([]*Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// AttachClassRules installs the resolved rule list of a parser class.
// Class rules dispatch before instance rules.
func (e *Engine) AttachClassRules(rules []*Rule) {
	e.classRules = append([]*Rule(nil), rules...)
}

// BeginRule sets the action run before the first line of every read.
// Successive calls concatenate their action sources. The result is
// not recorded unless DontRecord(false) is given.
func (e *Engine) BeginRule(opts ...RuleOption) error {
	spec := &ruleSpec{dontRecord: true}
	for _, opt := range opts {
		opt(spec)
	}
	if spec.ifSet {
		return errors.New(errors.ErrBadRuleOptions, "BEGIN rule takes only an action")
	}
	if !spec.doSet {
		return errors.New(errors.ErrRuleShape, "BEGIN rule requires an action")
	}
	if e.beginRule != nil && strings.TrimSpace(e.beginRule.doSrc) != "" {
		spec.doSrc = e.beginRule.doSrc + "; " + spec.doSrc
	}
	r, err := newRuleFromSpec(spec)
	if err != nil {
		return err
	}
	e.beginRule = r
	return nil
}

// EndRule sets the action run after the last line of every read.
// Successive calls concatenate their action sources. The result is
// recorded unless DontRecord(true) is given.
func (e *Engine) EndRule(opts ...RuleOption) error {
	spec := &ruleSpec{}
	for _, opt := range opts {
		opt(spec)
	}
	if spec.ifSet {
		return errors.New(errors.ErrBadRuleOptions, "END rule takes only an action")
	}
	if !spec.doSet {
		return errors.New(errors.ErrRuleShape, "END rule requires an action")
	}
	if e.endRule != nil && strings.TrimSpace(e.endRule.doSrc) != "" {
		spec.doSrc = e.endRule.doSrc + "; " + spec.doSrc
	}
	r, err := newRuleFromSpec(spec)
	if err != nil {
		return err
	}
	e.endRule = r
	return nil
}

// SetFilename selects a file as the input source, verifying it up
// front. Clears any filehandle selection.
func (e *Engine) SetFilename(path string) error {
	if err := input.Verify(path); err != nil {
		return err
	}
	e.filename = path
	e.filehandle = nil
	return nil
}

// Filename returns the currently selected input file
func (e *Engine) Filename() string { return e.filename }

// SetFilehandle selects a caller-owned reader as the input source.
// Clears any filename selection; the engine never closes the reader.
func (e *Engine) SetFilehandle(r io.Reader) {
	e.filehandle = r
	e.filename = ""
}

// Filehandle returns the currently selected reader
func (e *Engine) Filehandle() io.Reader { return e.filehandle }

// Read parses the currently selected source. With no source selected
// it returns without touching any state.
func (e *Engine) Read() error {
	var it *input.Iterator
	switch {
	case e.filehandle != nil:
		it = input.FromReader(e.filehandle)
	case e.filename != "":
		opened, err := input.Open(e.filename)
		if err != nil {
			return err
		}
		it = opened
	default:
		return nil
	}
	err := e.read(it)
	if cerr := it.Close(); cerr != nil && err == nil {
		err = errors.NewFileError(errors.ErrFileUnreadable, e.filename, cerr)
	}
	return err
}

// ReadFile selects path and reads it
func (e *Engine) ReadFile(path string) error {
	if err := e.SetFilename(path); err != nil {
		return err
	}
	return e.Read()
}

// ReadFrom selects r and reads it
func (e *Engine) ReadFrom(r io.Reader) error {
	e.SetFilehandle(r)
	return e.Read()
}

// ReadString reads s as the input
func (e *Engine) ReadString(s string) error {
	return e.ReadFrom(strings.NewReader(s))
}

// read is the §4.5-shaped loop: reset, BEGIN, per-line dispatch, END.
func (e *Engine) read(it *input.Iterator) error {
	e.records = nil
	e.stash.clearTransient()
	e.linesParsed = 0
	e.aborted = false
	e.thisLine = ""
	e.thisIndent = 0
	e.dispatch = append(append([]*Rule(nil), e.classRules...), e.rules...)

	u, err := newUnwrapper(&e.settings)
	if err != nil {
		return err
	}

	if e.beginRule != nil {
		if err := e.beginRule.Run(e.emptyContext()); err != nil {
			return err
		}
	}

	for !e.aborted {
		raw, rerr := it.Next()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return errors.Wrap(errors.ErrFileUnreadable, "read failed", rerr)
		}
		e.linesParsed++
		logical, uerr := u.push(raw, e.linesParsed)
		if uerr != nil {
			return uerr
		}
		for _, line := range logical {
			if err := e.processLine(line); err != nil {
				return err
			}
			if e.aborted {
				break
			}
		}
	}
	if !e.aborted {
		logical, uerr := u.finish(e.linesParsed)
		if uerr != nil {
			return uerr
		}
		for _, line := range logical {
			if err := e.processLine(line); err != nil {
				return err
			}
			if e.aborted {
				break
			}
		}
	}

	if e.endRule != nil {
		if err := e.endRule.Run(e.emptyContext()); err != nil {
			return err
		}
	}

	e.stash.clearTransient()
	e.thisLine = ""
	e.thisIndent = 0
	return nil
}

// emptyContext builds the line-less context BEGIN and END actions see
func (e *Engine) emptyContext() *LineContext {
	return &LineContext{nr: e.linesParsed, eng: e}
}

// processLine prepares a logical line and walks the rule chain
func (e *Engine) processLine(logical string) error {
	line := logical
	if e.autoChomp {
		line = chompStr(line)
	}

	indent := 0
	if e.trackIndentation {
		indent = countIndent(line, e.indentationStr)
	}

	if e.customTrimmer != nil {
		line = e.customTrimmer(line)
	} else {
		switch e.autoTrim {
		case TrimLeft:
			line = strings.TrimLeft(line, " \t")
		case TrimRight:
			line = strings.TrimRight(line, " \t\r\n")
		case TrimBoth:
			line = strings.TrimSpace(line)
		}
	}

	ctx := &LineContext{line: line, nr: e.linesParsed, indent: indent, eng: e}
	if e.autoSplit {
		ctx.hasFields = true
		// Outer whitespace goes before splitting so a leading
		// separator run does not produce an empty first field.
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			ctx.fields = e.fieldSep.Split(trimmed, -1)
		}
	}
	e.thisLine = line
	e.thisIndent = indent

	for _, r := range e.dispatch {
		ok, err := r.Test(ctx)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := r.Run(ctx); err != nil {
			return err
		}
		if !r.continueToNext {
			break
		}
	}
	return nil
}

// countIndent counts leading repetitions of unit in line
func countIndent(line, unit string) int {
	count := 0
	for strings.HasPrefix(line, unit) {
		line = line[len(unit):]
		count++
	}
	return count
}

// --- Records ---

// Records returns a copy of the accumulated records
func (e *Engine) Records() []interface{} {
	out := make([]interface{}, len(e.records))
	copy(out, e.records)
	return out
}

// LastRecord returns the most recent record, nil when there is none
func (e *Engine) LastRecord() interface{} {
	if len(e.records) == 0 {
		return nil
	}
	return e.records[len(e.records)-1]
}

// PopRecord removes and returns the most recent record
func (e *Engine) PopRecord() interface{} {
	if len(e.records) == 0 {
		return nil
	}
	last := e.records[len(e.records)-1]
	e.records = e.records[:len(e.records)-1]
	return last
}

// PushRecords appends values to the record list directly
func (e *Engine) PushRecords(values ...interface{}) {
	e.records = append(e.records, values...)
}

func (e *Engine) pushRecord(v interface{}) {
	e.records = append(e.records, v)
}

// --- Stash ---

// Stashed reads a stash variable; nil when absent
func (e *Engine) Stashed(name string) interface{} {
	v, _ := e.stash.get(name)
	return v
}

// HasStashed reports whether name is stashed in either tier
func (e *Engine) HasStashed(name string) bool {
	return e.stash.has(name)
}

// HasEmptyStash reports whether both stash tiers are empty
func (e *Engine) HasEmptyStash() bool {
	return e.stash.empty()
}

// Prestash sets a persistent stash variable
func (e *Engine) Prestash(name string, value interface{}) {
	e.stash.prestash(name, value)
}

// Forget erases names from both stash tiers; with no names it clears
// the transient tier.
func (e *Engine) Forget(names ...string) {
	e.stash.forget(names...)
}

// --- State accessors ---

// LinesParsed returns the number of physical lines read
func (e *Engine) LinesParsed() int { return e.linesParsed }

// HasAborted reports whether the last read was aborted
func (e *Engine) HasAborted() bool { return e.aborted }

// ThisLine returns the logical line currently being dispatched
func (e *Engine) ThisLine() string { return e.thisLine }

// ThisIndent returns the indent of the current logical line
func (e *Engine) ThisIndent() int { return e.thisIndent }

// AbortReading sets the sticky abort flag; the read stops after the
// current line's rule dispatch and the END rule still runs.
func (e *Engine) AbortReading() {
	e.aborted = true
}
