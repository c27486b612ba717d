// Package registry holds the process-wide parser classes. A class
// carries an ordered list of named rules, inherits its parents' lists
// and can anchor, disable or clone inherited rules. Engines built
// from a class dispatch the class rules before their instance rules.
//
// Classes are populated at definition time and treated as immutable
// while reads are running.
package registry

import (
	"regexp"
	"strings"
	"sync"

	"github.com/textparser-go/textparser/pkgs/engine"
	"github.com/textparser-go/textparser/pkgs/errors"
)

// reservedRuleNames cannot be used for class rules
var reservedRuleNames = map[string]bool{
	"BEGIN": true,
	"END":   true,
}

var (
	mu      sync.Mutex
	classes = make(map[string]*Class)
	rules   = make(map[string]*engine.Rule) // qualified name -> compiled rule
)

// Class is a named parser class in the registry
type Class struct {
	name    string
	parents []*Class

	order  []string // fully-qualified rule names in dispatch order
	seeded bool

	autoSplit bool

	unwrapSet       bool
	unwrapMT        engine.MultilineType
	unwrapIsWrapped func(string) bool
	unwrapJoin      func(last, cur string) string
}

// Define registers a new class inheriting from parents, in order.
func Define(name string, parents ...*Class) (*Class, error) {
	if name == "" {
		return nil, errors.New(errors.ErrClassRequired, "parser class needs a name")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := classes[name]; exists {
		return nil, errors.Newf(errors.ErrDuplicateRule, "parser class %q already defined", name)
	}
	c := &Class{name: name, parents: parents}
	classes[name] = c
	return c, nil
}

// Lookup finds a previously defined class
func Lookup(name string) (*Class, bool) {
	mu.Lock()
	defer mu.Unlock()
	c, ok := classes[name]
	return c, ok
}

// Reset clears the whole registry. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	classes = make(map[string]*Class)
	rules = make(map[string]*engine.Rule)
}

// Name returns the class name
func (c *Class) Name() string { return c.name }

// RuleOrder returns the fully-qualified rule names in dispatch order
func (c *Class) RuleOrder() []string {
	mu.Lock()
	defer mu.Unlock()
	return append([]string(nil), c.resolvedOrder()...)
}

// resolvedOrder returns the class's own order, or its inherited one
// when no rule has been applied yet. Callers hold mu.
func (c *Class) resolvedOrder() []string {
	if c.seeded {
		return c.order
	}
	var order []string
	for _, p := range c.parents {
		order = append(order, p.resolvedOrder()...)
	}
	return order
}

// seed materializes the inherited order before the first mutation
func (c *Class) seed() {
	if c.seeded {
		return
	}
	c.order = append([]string(nil), c.resolvedOrder()...)
	c.seeded = true
}

type anchorKind int

const (
	anchorNone anchorKind = iota
	anchorBefore
	anchorAfter
)

type anchor struct {
	kind anchorKind
	name string
}

// AppliesRule registers a rule at the end of the class's order.
func (c *Class) AppliesRule(name string, opts ...engine.RuleOption) error {
	return c.applyRule(name, anchor{}, opts...)
}

// AppliesRuleBefore registers a rule just before an inherited rule.
// The anchor must be a fully-qualified superclass rule name.
func (c *Class) AppliesRuleBefore(anchorName, name string, opts ...engine.RuleOption) error {
	return c.applyRule(name, anchor{kind: anchorBefore, name: anchorName}, opts...)
}

// AppliesRuleAfter registers a rule just after an inherited rule.
func (c *Class) AppliesRuleAfter(anchorName, name string, opts ...engine.RuleOption) error {
	return c.applyRule(name, anchor{kind: anchorAfter, name: anchorName}, opts...)
}

func (c *Class) applyRule(name string, a anchor, opts ...engine.RuleOption) error {
	if c == nil {
		return errors.New(errors.ErrClassRequired, "rule registered without a parser class")
	}
	if err := validateRuleName(name); err != nil {
		return err
	}
	rule, err := engine.NewRule(append(opts, engine.RuleName(name))...)
	if err != nil {
		return err
	}
	return c.insert(name, rule, a)
}

// AppliesClonedRule copies an existing rule (its own or inherited,
// named by fully-qualified name) and applies overrides on the copy.
func (c *Class) AppliesClonedRule(name, sourceQName string, opts ...engine.RuleOption) error {
	return c.applyClonedRule(name, sourceQName, anchor{}, opts...)
}

// AppliesClonedRuleBefore clones with a before-anchor placement
func (c *Class) AppliesClonedRuleBefore(anchorName, name, sourceQName string, opts ...engine.RuleOption) error {
	return c.applyClonedRule(name, sourceQName, anchor{kind: anchorBefore, name: anchorName}, opts...)
}

// AppliesClonedRuleAfter clones with an after-anchor placement
func (c *Class) AppliesClonedRuleAfter(anchorName, name, sourceQName string, opts ...engine.RuleOption) error {
	return c.applyClonedRule(name, sourceQName, anchor{kind: anchorAfter, name: anchorName}, opts...)
}

func (c *Class) applyClonedRule(name, sourceQName string, a anchor, opts ...engine.RuleOption) error {
	if c == nil {
		return errors.New(errors.ErrClassRequired, "rule registered without a parser class")
	}
	if err := validateRuleName(name); err != nil {
		return err
	}
	mu.Lock()
	source, ok := rules[sourceQName]
	mu.Unlock()
	if !ok {
		return errors.Newf(errors.ErrUnknownRule, "no rule %q to clone", sourceQName)
	}
	rule, err := source.CloneWith(append(opts, engine.RuleName(name))...)
	if err != nil {
		return err
	}
	return c.insert(name, rule, a)
}

func validateRuleName(name string) error {
	if name == "" {
		return errors.New(errors.ErrMissingRuleName, "class rule needs a name")
	}
	if reservedRuleNames[name] {
		return errors.Newf(errors.ErrBadRuleOptions, "rule name %q is reserved", name)
	}
	if strings.Contains(name, "/") {
		return errors.Newf(errors.ErrBadRuleOptions, "rule name %q must not be qualified", name)
	}
	return nil
}

// insert places the compiled rule into the class order
func (c *Class) insert(name string, rule *engine.Rule, a anchor) error {
	mu.Lock()
	defer mu.Unlock()

	c.seed()
	qname := c.name + "/" + name
	for _, existing := range c.order {
		if existing == qname {
			return errors.Newf(errors.ErrDuplicateRule, "rule %q already registered", qname)
		}
	}

	pos := len(c.order)
	if a.kind != anchorNone {
		if strings.HasPrefix(a.name, c.name+"/") {
			return errors.Newf(errors.ErrBadAnchor, "anchor %q is not a superclass rule", a.name)
		}
		found := -1
		for i, existing := range c.order {
			if existing == a.name {
				found = i
				break
			}
		}
		if found < 0 {
			return errors.Newf(errors.ErrBadAnchor, "anchor %q is not an inherited rule of %q", a.name, c.name)
		}
		if a.kind == anchorBefore {
			pos = found
		} else {
			pos = found + 1
		}
	}

	c.order = append(c.order, "")
	copy(c.order[pos+1:], c.order[pos:])
	c.order[pos] = qname
	rules[qname] = rule
	c.autoSplit = true
	return nil
}

// DisablesSuperclassRules removes inherited rules matching any of the
// selectors: an exact fully-qualified name, a *regexp.Regexp, or a
// func(string) bool over qualified names. The class's own rules
// cannot be disabled.
func (c *Class) DisablesSuperclassRules(selectors ...interface{}) error {
	if c == nil {
		return errors.New(errors.ErrClassRequired, "rules disabled without a parser class")
	}
	mu.Lock()
	defer mu.Unlock()

	c.seed()
	ownPrefix := c.name + "/"
	matchers := make([]func(string) bool, 0, len(selectors))
	for _, sel := range selectors {
		switch s := sel.(type) {
		case string:
			if strings.HasPrefix(s, ownPrefix) {
				return errors.Newf(errors.ErrSameClassRule, "cannot disable own rule %q", s)
			}
			if !strings.Contains(s, "/") {
				return errors.Newf(errors.ErrBadDisableSelector, "selector %q is not a qualified rule name", s)
			}
			want := s
			matchers = append(matchers, func(q string) bool { return q == want })
		case *regexp.Regexp:
			matchers = append(matchers, s.MatchString)
		case func(string) bool:
			matchers = append(matchers, s)
		default:
			return errors.Newf(errors.ErrBadDisableSelector, "bad selector type %T", sel)
		}
	}

	// Matching happens before any mutation so a same-class hit leaves
	// the order untouched.
	kept := make([]string, 0, len(c.order))
	for _, qname := range c.order {
		matched := false
		for _, m := range matchers {
			if m(qname) {
				matched = true
				break
			}
		}
		if matched && strings.HasPrefix(qname, ownPrefix) {
			return errors.Newf(errors.ErrSameClassRule, "cannot disable own rule %q", qname)
		}
		if !matched {
			kept = append(kept, qname)
		}
	}
	c.order = kept
	return nil
}

// UnwrapsLinesUsing installs a custom unwrap pair as this class's
// default line handling. Engines built from the class start with the
// custom wrap style selected.
func (c *Class) UnwrapsLinesUsing(mt engine.MultilineType, isWrapped func(string) bool, join func(last, cur string) string) error {
	if c == nil {
		return errors.New(errors.ErrClassRequired, "unwrap routines installed without a parser class")
	}
	if isWrapped == nil || join == nil {
		return errors.New(errors.ErrBadUnwrapRoutine, "both unwrap routines must be provided")
	}
	if mt != engine.JoinNext && mt != engine.JoinLast {
		return errors.Newf(errors.ErrBadUnwrapRoutine, "custom unwrap needs join_next or join_last, got %s", mt)
	}
	mu.Lock()
	defer mu.Unlock()
	c.unwrapSet = true
	c.unwrapMT = mt
	c.unwrapIsWrapped = isWrapped
	c.unwrapJoin = join
	return nil
}

// ResolvedRules maps the class's rule order to compiled rules
func (c *Class) ResolvedRules() []*engine.Rule {
	mu.Lock()
	defer mu.Unlock()
	order := c.resolvedOrder()
	out := make([]*engine.Rule, 0, len(order))
	for _, qname := range order {
		if r, ok := rules[qname]; ok {
			out = append(out, r)
		}
	}
	return out
}

// NewEngine builds an engine carrying the class's defaults and rules.
// Class defaults apply first so explicit options can override them.
func (c *Class) NewEngine(opts ...engine.Option) (*engine.Engine, error) {
	var classOpts []engine.Option
	mu.Lock()
	if c.autoSplit || len(c.resolvedOrder()) > 0 {
		classOpts = append(classOpts, engine.AutoSplit(true))
	}
	if c.unwrapSet {
		classOpts = append(classOpts, engine.UnwrapRoutines(c.unwrapMT, c.unwrapIsWrapped, c.unwrapJoin))
	}
	mu.Unlock()

	eng, err := engine.New(append(classOpts, opts...)...)
	if err != nil {
		return nil, err
	}
	eng.AttachClassRules(c.ResolvedRules())
	return eng, nil
}
