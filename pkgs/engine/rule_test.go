package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/textparser-go/textparser/pkgs/errors"
)

// lineCtx builds a context over a whitespace-split line for rule tests
func lineCtx(t *testing.T, line string, fields []string) *LineContext {
	t.Helper()
	eng, err := New(AutoSplit(true))
	require.NoError(t, err)
	return &LineContext{line: line, fields: fields, nr: 1, hasFields: true, eng: eng}
}

func TestRuleShapeValidation(t *testing.T) {
	_, err := NewRule()
	assert.True(t, errors.IsCode(err, errors.ErrRuleShape), "rule without predicate or action: %v", err)

	_, err = NewRule(If(`$1 eq "x"`))
	assert.NoError(t, err, "predicate-only rule")

	_, err = NewRule(Do("return $1"))
	assert.NoError(t, err, "action-only rule")

	_, err = NewRule(If(""), Do("return $1"))
	assert.NoError(t, err, "empty predicate is always-true")
}

func TestIllegalContinueToNext(t *testing.T) {
	_, err := NewRule(If("1"), Do("~c++"), ContinueToNext(true))
	assert.True(t, errors.IsCode(err, errors.ErrIllegalRuleCont), "got %v", err)

	_, err = NewRule(If("1"), Do("~c++"), DontRecord(true), ContinueToNext(true))
	assert.NoError(t, err)
}

func TestRuleCompileErrorPropagates(t *testing.T) {
	_, err := NewRule(If("$1 +"))
	assert.True(t, errors.IsCode(err, errors.ErrRuleCompile), "got %v", err)

	_, err = NewRule(If("1"), Do("nosuchfn()"))
	assert.True(t, errors.IsCode(err, errors.ErrRuleCompile), "got %v", err)
}

func TestRuleMinNF(t *testing.T) {
	r, err := NewRule(If(`$2 eq "x"`), Do("return ${4+}"))
	require.NoError(t, err)
	assert.Equal(t, 4, r.MinNF())

	require.NoError(t, r.AddPrecondition("${-6} ne \"skip\""))
	assert.Equal(t, 6, r.MinNF())
}

func TestRuleSkipsShortLines(t *testing.T) {
	r, err := NewRule(If(`$3 eq "z"`))
	require.NoError(t, err)

	ok, err := r.Test(lineCtx(t, "a b", []string{"a", "b"}))
	require.NoError(t, err)
	assert.False(t, ok, "rule must skip when NF < min_nf")

	ok, err = r.Test(lineCtx(t, "a b z", []string{"a", "b", "z"}))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRuleRequiresAutoSplit(t *testing.T) {
	eng, err := New() // auto-split off
	require.NoError(t, err)
	ctx := &LineContext{line: "a b", nr: 1, eng: eng}

	r, err := NewRule(If("1"))
	require.NoError(t, err)
	ok, err := r.Test(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "rules never match with auto-split off")
}

func TestPreconditionsShortCircuit(t *testing.T) {
	r, err := NewRule(If("1"), Do("return $1"))
	require.NoError(t, err)
	require.NoError(t, r.AddPrecondition(`$1 ne "skip"`))
	require.NoError(t, r.AddPrecondition(`$1 ne "also"`))

	ok, err := r.Test(lineCtx(t, "skip this", []string{"skip", "this"}))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Test(lineCtx(t, "keep this", []string{"keep", "this"}))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunWithoutContext(t *testing.T) {
	r, err := NewRule(Do("return 1"))
	require.NoError(t, err)
	err = r.Run(nil)
	assert.True(t, errors.IsCode(err, errors.ErrRuleRunImproper), "got %v", err)
}

func TestRunRecordsResult(t *testing.T) {
	ctx := lineCtx(t, "a b c", []string{"a", "b", "c"})

	r, err := NewRule(Do("return $2"))
	require.NoError(t, err)
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, []interface{}{"b"}, ctx.eng.Records())
}

func TestRunDefaultActionRecordsLine(t *testing.T) {
	ctx := lineCtx(t, "whole line", []string{"whole", "line"})

	r, err := NewRule(If("1"))
	require.NoError(t, err)
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, []interface{}{"whole line"}, ctx.eng.Records())
}

func TestRunBlankActionIsNoop(t *testing.T) {
	ctx := lineCtx(t, "a", []string{"a"})

	r, err := NewRule(If("1"), Do("   "))
	require.NoError(t, err)
	require.NoError(t, r.Run(ctx))
	assert.Empty(t, ctx.eng.Records())
}

func TestRunDontRecord(t *testing.T) {
	ctx := lineCtx(t, "a", []string{"a"})

	r, err := NewRule(Do("return $1"), DontRecord(true))
	require.NoError(t, err)
	require.NoError(t, r.Run(ctx))
	assert.Empty(t, ctx.eng.Records())
}

func TestUndefIsAValidRecord(t *testing.T) {
	ctx := lineCtx(t, "a", []string{"a"})

	r, err := NewRule(Do("return undef"))
	require.NoError(t, err)
	require.NoError(t, r.Run(ctx))
	records := ctx.eng.Records()
	require.Len(t, records, 1)
	assert.Nil(t, records[0])
}

func TestCloneWithOverrides(t *testing.T) {
	orig, err := NewRule(RuleName("orig"), If(`$1 eq "x"`), Do("return $2"))
	require.NoError(t, err)

	clone, err := orig.CloneWith(RuleName("copy"), Do("return $1"))
	require.NoError(t, err)
	assert.Equal(t, "copy", clone.Name())
	assert.Equal(t, "return $1", clone.DoSource())
	// Original is untouched.
	assert.Equal(t, "orig", orig.Name())
	assert.Equal(t, "return $2", orig.DoSource())

	appended, err := orig.CloneWith(AppendDo("~c++"))
	require.NoError(t, err)
	assert.Equal(t, "return $2; ~c++", appended.DoSource())

	prepended, err := orig.CloneWith(PrependDo("~c++"))
	require.NoError(t, err)
	assert.Equal(t, "~c++; return $2", prepended.DoSource())
}

func TestSpliceFieldsMutatesContext(t *testing.T) {
	ctx := lineCtx(t, "a b c d", []string{"a", "b", "c", "d"})

	removed, err := ctx.SpliceFields(1, 2, []string{"X"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, removed)
	assert.Equal(t, []string{"a", "X", "d"}, ctx.fields)
	assert.Equal(t, 3, ctx.NF())
}

func TestFieldRangeReversal(t *testing.T) {
	ctx := lineCtx(t, "a b c", []string{"a", "b", "c"})

	fields, err := ctx.FieldRange(-1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, fields)
}

func TestFieldIndexing(t *testing.T) {
	ctx := lineCtx(t, "a b c", []string{"a", "b", "c"})

	f, err := ctx.Field(0)
	require.NoError(t, err)
	assert.Equal(t, "a", f)

	f, err = ctx.Field(-1)
	require.NoError(t, err)
	assert.Equal(t, "c", f)

	_, err = ctx.Field(3)
	assert.Error(t, err)
	_, err = ctx.Field(-4)
	assert.Error(t, err)
}
