package engine

import (
	"strings"

	"github.com/textparser-go/textparser/pkgs/errors"
	"github.com/textparser-go/textparser/pkgs/interp"
)

// Rule pairs a compiled predicate with a compiled action. Apart from
// AddPrecondition, a rule does not change once built; cloning produces
// an independent copy.
type Rule struct {
	name string

	ifSrc string
	doSrc string
	ifSet bool
	doSet bool

	predicate *interp.Program // nil when the predicate source is blank
	action    *interp.Program // nil when the action source is blank

	preconds    []*interp.Program
	precondSrcs []string

	minNF          int
	dontRecord     bool
	continueToNext bool
}

// ruleSpec accumulates rule options before compilation
type ruleSpec struct {
	name           string
	ifSrc          string
	doSrc          string
	ifSet          bool
	doSet          bool
	dontRecord     bool
	continueToNext bool
	precondSrcs    []string
}

// RuleOption configures a rule under construction
type RuleOption func(*ruleSpec)

// RuleName names the rule. Required for class-registered rules.
func RuleName(name string) RuleOption {
	return func(s *ruleSpec) { s.name = name }
}

// If sets the predicate source. An empty string is an always-true
// predicate.
func If(src string) RuleOption {
	return func(s *ruleSpec) {
		s.ifSrc = src
		s.ifSet = true
	}
}

// Do sets the action source. A blank action runs with no effect; an
// absent one records the whole line.
func Do(src string) RuleOption {
	return func(s *ruleSpec) {
		s.doSrc = src
		s.doSet = true
	}
}

// AppendDo appends to the action source
func AppendDo(src string) RuleOption {
	return func(s *ruleSpec) {
		if s.doSet && strings.TrimSpace(s.doSrc) != "" {
			s.doSrc = s.doSrc + "; " + src
		} else {
			s.doSrc = src
		}
		s.doSet = true
	}
}

// PrependDo prepends to the action source
func PrependDo(src string) RuleOption {
	return func(s *ruleSpec) {
		if s.doSet && strings.TrimSpace(s.doSrc) != "" {
			s.doSrc = src + "; " + s.doSrc
		} else {
			s.doSrc = src
		}
		s.doSet = true
	}
}

// DontRecord controls whether the action result is pushed to records
func DontRecord(on bool) RuleOption {
	return func(s *ruleSpec) { s.dontRecord = on }
}

// ContinueToNext lets rule dispatch keep walking after this rule
// matches. Only legal together with DontRecord.
func ContinueToNext(on bool) RuleOption {
	return func(s *ruleSpec) { s.continueToNext = on }
}

// Precondition adds a predicate ANDed before the main one. May be
// given multiple times; preconditions run in order.
func Precondition(src string) RuleOption {
	return func(s *ruleSpec) { s.precondSrcs = append(s.precondSrcs, src) }
}

// NewRule compiles a rule from options
func NewRule(opts ...RuleOption) (*Rule, error) {
	spec := &ruleSpec{}
	for _, opt := range opts {
		opt(spec)
	}
	return newRuleFromSpec(spec)
}

func newRuleFromSpec(spec *ruleSpec) (*Rule, error) {
	if !spec.ifSet && !spec.doSet {
		return nil, errors.New(errors.ErrRuleShape, "rule must have at least one of a predicate or an action")
	}
	if spec.continueToNext && !spec.dontRecord {
		return nil, errors.New(errors.ErrIllegalRuleCont, "illegal rule cont: continue_to_next requires dont_record")
	}

	r := &Rule{
		name:           spec.name,
		ifSrc:          spec.ifSrc,
		doSrc:          spec.doSrc,
		ifSet:          spec.ifSet,
		doSet:          spec.doSet,
		dontRecord:     spec.dontRecord,
		continueToNext: spec.continueToNext,
	}

	if strings.TrimSpace(spec.ifSrc) != "" {
		prog, err := interp.Compile(spec.ifSrc)
		if err != nil {
			return nil, err
		}
		r.predicate = prog
	}
	if strings.TrimSpace(spec.doSrc) != "" {
		prog, err := interp.Compile(spec.doSrc)
		if err != nil {
			return nil, err
		}
		r.action = prog
	}
	for _, src := range spec.precondSrcs {
		prog, err := interp.Compile(src)
		if err != nil {
			return nil, err
		}
		r.preconds = append(r.preconds, prog)
		r.precondSrcs = append(r.precondSrcs, src)
	}
	r.recomputeMinNF()
	return r, nil
}

func (r *Rule) recomputeMinNF() {
	min := 0
	if r.predicate != nil && r.predicate.MinNF > min {
		min = r.predicate.MinNF
	}
	if r.action != nil && r.action.MinNF > min {
		min = r.action.MinNF
	}
	for _, pc := range r.preconds {
		if pc.MinNF > min {
			min = pc.MinNF
		}
	}
	r.minNF = min
}

// Name returns the rule's name, empty for anonymous instance rules
func (r *Rule) Name() string { return r.name }

// IfSource returns the original predicate source
func (r *Rule) IfSource() string { return r.ifSrc }

// DoSource returns the original action source
func (r *Rule) DoSource() string { return r.doSrc }

// MinNF returns the smallest field count a line needs for this rule
func (r *Rule) MinNF() int { return r.minNF }

// DontRecordSet reports whether the action result is discarded
func (r *Rule) DontRecordSet() bool { return r.dontRecord }

// ContinuesToNext reports whether dispatch keeps walking after a match
func (r *Rule) ContinuesToNext() bool { return r.continueToNext }

// AddPrecondition compiles and appends another precondition
func (r *Rule) AddPrecondition(src string) error {
	prog, err := interp.Compile(src)
	if err != nil {
		return err
	}
	r.preconds = append(r.preconds, prog)
	r.precondSrcs = append(r.precondSrcs, src)
	r.recomputeMinNF()
	return nil
}

// CloneWith returns an independent copy with the given overrides
// applied and recompiled.
func (r *Rule) CloneWith(opts ...RuleOption) (*Rule, error) {
	spec := &ruleSpec{
		name:           r.name,
		ifSrc:          r.ifSrc,
		doSrc:          r.doSrc,
		ifSet:          r.ifSet,
		doSet:          r.doSet,
		dontRecord:     r.dontRecord,
		continueToNext: r.continueToNext,
		precondSrcs:    append([]string(nil), r.precondSrcs...),
	}
	for _, opt := range opts {
		opt(spec)
	}
	return newRuleFromSpec(spec)
}

// Test evaluates the preconditions and the predicate against ctx.
// Rules never match when auto-split is off or the line has fewer
// fields than the rule references.
func (r *Rule) Test(ctx *LineContext) (bool, error) {
	if ctx == nil || !ctx.eng.autoSplit {
		return false, nil
	}
	if ctx.NF() < r.minNF {
		return false, nil
	}
	for _, pc := range r.preconds {
		ok, err := pc.EvalBool(ctx)
		if err != nil {
			return false, errors.Wrap(errors.ErrRuleRuntime, "precondition failed", err).
				WithContext("code", pc.Source)
		}
		if !ok {
			return false, nil
		}
	}
	if r.predicate == nil {
		return true, nil
	}
	ok, err := r.predicate.EvalBool(ctx)
	if err != nil {
		return false, errors.Wrap(errors.ErrRuleRuntime, "predicate failed", err).
			WithContext("code", r.ifSrc)
	}
	return ok, nil
}

// Run executes the action against ctx. The result is pushed to the
// engine's records unless dont_record is set; an absent action
// records the whole line, a blank one runs with no effect.
func (r *Rule) Run(ctx *LineContext) error {
	if ctx == nil {
		return errors.New(errors.ErrRuleRunImproper, "rule run improperly without a line context")
	}
	if r.action == nil {
		if !r.doSet && !r.dontRecord {
			ctx.eng.pushRecord(ctx.ThisLine())
		}
		return nil
	}
	result, err := r.action.Eval(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrRuleRuntime, "action failed", err).
			WithContext("code", r.doSrc)
	}
	if !r.dontRecord {
		ctx.eng.pushRecord(result)
	}
	return nil
}
