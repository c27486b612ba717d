package interp

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// builtin describes one host function callable from rule source
type builtin struct {
	minArgs int
	maxArgs int // -1 means variadic
	fn      func(env Env, args []interface{}) (interface{}, error)
}

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		// Line context accessors
		"NF":          {0, 0, biNF},
		"NR":          {0, 0, biNR},
		"this_line":   {0, 0, biThisLine},
		"this_indent": {0, 0, biThisIndent},
		"field":       {1, 1, biField},
		"field_range": {2, 2, biFieldRange},
		"join_range":  {2, 3, biJoinRange},
		"find_field":       {1, 1, biFindField},
		"find_field_index": {1, 1, biFindFieldIndex},
		"splice_fields":    {1, -1, biSpliceFields},

		// Stash and control
		"stashed":         {1, 1, biStashed},
		"prestash":        {2, 2, biPrestash},
		"abort_reading":   {0, 0, biAbortReading},
		"defined":         {1, 1, biDefined},
		"field_separator": {1, 1, biFieldSeparator},

		// String functions
		"substr":  {2, 3, biSubstr},
		"index":   {2, 3, biIndex},
		"length":  {1, 1, biLength},
		"uc":      {1, 1, biUc},
		"lc":      {1, 1, biLc},
		"ucfirst": {1, 1, biUcfirst},
		"lcfirst": {1, 1, biLcfirst},
		"trim":    {1, 1, biTrim},
		"chomp":   {1, 1, biChomp},
		"sprintf": {1, -1, biSprintf},
		"join":    {1, -1, biJoin},
		"split":   {2, 2, biSplit},

		// Numeric functions
		"abs": {1, 1, biAbs},
		"int": {1, 1, biInt},
	}
}

func biNF(env Env, args []interface{}) (interface{}, error) {
	return float64(env.NF()), nil
}

func biNR(env Env, args []interface{}) (interface{}, error) {
	return float64(env.NR()), nil
}

func biThisLine(env Env, args []interface{}) (interface{}, error) {
	return env.ThisLine(), nil
}

func biThisIndent(env Env, args []interface{}) (interface{}, error) {
	return float64(env.ThisIndent()), nil
}

// biField is 1-based like the $N surface: field(1) == $1, negative
// indices count from the end.
func biField(env Env, args []interface{}) (interface{}, error) {
	index := int(Num(args[0]))
	if index == 0 {
		return nil, fmt.Errorf("field index must be 1-based or negative, got 0")
	}
	if index > 0 {
		return env.Field(index - 1)
	}
	return env.Field(index)
}

func biFieldRange(env Env, args []interface{}) (interface{}, error) {
	return env.FieldRange(int(Num(args[0])), int(Num(args[1])))
}

func biJoinRange(env Env, args []interface{}) (interface{}, error) {
	sep := " "
	if len(args) == 3 {
		sep = Str(args[2])
	}
	return env.JoinRange(int(Num(args[0])), int(Num(args[1])), sep)
}

// fieldPred builds a field predicate from a regex or a literal value
func fieldPred(arg interface{}) func(string) bool {
	if re, ok := arg.(*regexp.Regexp); ok {
		return re.MatchString
	}
	want := Str(arg)
	return func(f string) bool { return f == want }
}

func biFindField(env Env, args []interface{}) (interface{}, error) {
	if f, ok := env.FindField(fieldPred(args[0])); ok {
		return f, nil
	}
	return nil, nil
}

func biFindFieldIndex(env Env, args []interface{}) (interface{}, error) {
	return float64(env.FindFieldIndex(fieldPred(args[0]))), nil
}

func biSpliceFields(env Env, args []interface{}) (interface{}, error) {
	offset := int(Num(args[0]))
	length := math.MinInt // omitted: remove everything from offset
	if len(args) >= 2 {
		length = int(Num(args[1]))
	}
	var replacement []string
	rest := args
	if len(rest) > 2 {
		rest = rest[2:]
	} else {
		rest = nil
	}
	for _, a := range rest {
		switch v := a.(type) {
		case []string:
			replacement = append(replacement, v...)
		case []interface{}:
			for _, e := range v {
				replacement = append(replacement, Str(e))
			}
		default:
			replacement = append(replacement, Str(v))
		}
	}
	return env.SpliceFields(offset, length, replacement)
}

func biStashed(env Env, args []interface{}) (interface{}, error) {
	v, _ := env.Stashed(Str(args[0]))
	return v, nil
}

func biPrestash(env Env, args []interface{}) (interface{}, error) {
	env.Prestash(Str(args[0]), args[1])
	return args[1], nil
}

func biAbortReading(env Env, args []interface{}) (interface{}, error) {
	env.AbortReading()
	return nil, nil
}

func biDefined(env Env, args []interface{}) (interface{}, error) {
	return args[0] != nil, nil
}

// biFieldSeparator replaces the engine's split pattern; a BEGIN rule
// can call it before the first data line is split.
func biFieldSeparator(env Env, args []interface{}) (interface{}, error) {
	pattern := ""
	if re, ok := args[0].(*regexp.Regexp); ok {
		pattern = re.String()
	} else {
		pattern = Str(args[0])
	}
	if err := env.SetFieldSeparator(pattern); err != nil {
		return nil, err
	}
	return nil, nil
}

// biSubstr implements substr with negative offsets counting from the
// end, like the surface language it imitates.
func biSubstr(env Env, args []interface{}) (interface{}, error) {
	s := Str(args[0])
	offset := int(Num(args[1]))
	if offset < 0 {
		offset = len(s) + offset
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(s) {
		return "", nil
	}
	length := len(s) - offset
	if len(args) == 3 {
		length = int(Num(args[2]))
		if length < 0 {
			length = len(s) - offset + length
		}
	}
	if length <= 0 {
		return "", nil
	}
	if offset+length > len(s) {
		length = len(s) - offset
	}
	return s[offset : offset+length], nil
}

func biIndex(env Env, args []interface{}) (interface{}, error) {
	s := Str(args[0])
	sub := Str(args[1])
	from := 0
	if len(args) == 3 {
		from = int(Num(args[2]))
		if from < 0 {
			from = 0
		}
		if from > len(s) {
			return float64(-1), nil
		}
	}
	idx := strings.Index(s[from:], sub)
	if idx < 0 {
		return float64(-1), nil
	}
	return float64(idx + from), nil
}

func biLength(env Env, args []interface{}) (interface{}, error) {
	switch v := args[0].(type) {
	case []string:
		return float64(len(v)), nil
	case []interface{}:
		return float64(len(v)), nil
	default:
		return float64(len(Str(v))), nil
	}
}

func biUc(env Env, args []interface{}) (interface{}, error) {
	return strings.ToUpper(Str(args[0])), nil
}

func biLc(env Env, args []interface{}) (interface{}, error) {
	return strings.ToLower(Str(args[0])), nil
}

func biUcfirst(env Env, args []interface{}) (interface{}, error) {
	s := Str(args[0])
	if s == "" {
		return s, nil
	}
	return strings.ToUpper(s[:1]) + s[1:], nil
}

func biLcfirst(env Env, args []interface{}) (interface{}, error) {
	s := Str(args[0])
	if s == "" {
		return s, nil
	}
	return strings.ToLower(s[:1]) + s[1:], nil
}

func biTrim(env Env, args []interface{}) (interface{}, error) {
	return strings.TrimSpace(Str(args[0])), nil
}

func biChomp(env Env, args []interface{}) (interface{}, error) {
	s := Str(args[0])
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, nil
}

// biSprintf adapts numeric arguments so integer verbs work with the
// float-only number model.
func biSprintf(env Env, args []interface{}) (interface{}, error) {
	format := Str(args[0])
	converted := make([]interface{}, 0, len(args)-1)
	argIdx := 1
	for i := 0; i < len(format) && argIdx < len(args); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		for i < len(format) && strings.ContainsRune("-+ #0123456789.*", rune(format[i])) {
			i++
		}
		if i >= len(format) {
			break
		}
		arg := args[argIdx]
		switch format[i] {
		case '%':
			continue
		case 'd', 'o', 'x', 'X', 'b', 'c':
			converted = append(converted, int64(Num(arg)))
		case 'e', 'E', 'f', 'F', 'g', 'G':
			converted = append(converted, Num(arg))
		case 's', 'q', 'v':
			converted = append(converted, Str(arg))
		default:
			converted = append(converted, arg)
		}
		argIdx++
	}
	return fmt.Sprintf(format, converted...), nil
}

func biJoin(env Env, args []interface{}) (interface{}, error) {
	sep := Str(args[0])
	var parts []string
	for _, a := range args[1:] {
		switch v := a.(type) {
		case []string:
			parts = append(parts, v...)
		case []interface{}:
			for _, e := range v {
				parts = append(parts, Str(e))
			}
		default:
			parts = append(parts, Str(v))
		}
	}
	return strings.Join(parts, sep), nil
}

func biSplit(env Env, args []interface{}) (interface{}, error) {
	var re *regexp.Regexp
	switch v := args[0].(type) {
	case *regexp.Regexp:
		re = v
	default:
		compiled, err := regexp.Compile(Str(v))
		if err != nil {
			return nil, fmt.Errorf("bad split pattern: %w", err)
		}
		re = compiled
	}
	s := Str(args[1])
	if s == "" {
		return []string{}, nil
	}
	return re.Split(s, -1), nil
}

func biAbs(env Env, args []interface{}) (interface{}, error) {
	return math.Abs(Num(args[0])), nil
}

func biInt(env Env, args []interface{}) (interface{}, error) {
	return math.Trunc(Num(args[0])), nil
}
