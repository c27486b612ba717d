package engine

import (
	"regexp"

	"github.com/textparser-go/textparser/pkgs/errors"
)

// TrimMode selects which side of a line auto-trimming removes
// whitespace from.
type TrimMode int

const (
	TrimNone TrimMode = iota
	TrimLeft
	TrimRight
	TrimBoth
)

func (m TrimMode) String() string {
	switch m {
	case TrimNone:
		return "none"
	case TrimLeft:
		return "left"
	case TrimRight:
		return "right"
	case TrimBoth:
		return "both"
	default:
		return "TrimMode(?)"
	}
}

// WrapStyle selects the built-in line-unwrapping behavior.
type WrapStyle int

const (
	WrapNone WrapStyle = iota
	WrapTrailingBackslash
	WrapSpice
	WrapJustNextLine
	WrapSlurp
	WrapCustom
)

func (s WrapStyle) String() string {
	switch s {
	case WrapNone:
		return "none"
	case WrapTrailingBackslash:
		return "trailing_backslash"
	case WrapSpice:
		return "spice"
	case WrapJustNextLine:
		return "just_next_line"
	case WrapSlurp:
		return "slurp"
	case WrapCustom:
		return "custom"
	default:
		return "WrapStyle(?)"
	}
}

// MultilineType says whether a wrap signal joins the current line to
// the next one or to the previous one.
type MultilineType int

const (
	MultiNone MultilineType = iota
	JoinNext
	JoinLast
)

func (t MultilineType) String() string {
	switch t {
	case MultiNone:
		return "none"
	case JoinNext:
		return "join_next"
	case JoinLast:
		return "join_last"
	default:
		return "MultilineType(?)"
	}
}

// settings holds the engine configuration assembled from options
type settings struct {
	autoChomp        bool
	autoSplit        bool
	autoTrim         TrimMode
	customTrimmer    func(string) string
	fieldSep         *regexp.Regexp
	trackIndentation bool
	indentationStr   string
	wrapStyle        WrapStyle
	multilineType    MultilineType
	customIsWrapped  func(string) bool
	customJoin       func(last, cur string) string
}

func defaultSettings() settings {
	return settings{
		autoTrim:       TrimNone,
		fieldSep:       regexp.MustCompile(`\s+`),
		indentationStr: " ",
		wrapStyle:      WrapNone,
		multilineType:  MultiNone,
	}
}

// Option configures an Engine at construction time
type Option func(*settings) error

// AutoChomp strips the line terminator from each logical line.
func AutoChomp(on bool) Option {
	return func(s *settings) error {
		s.autoChomp = on
		return nil
	}
}

// AutoSplit splits each logical line into fields on the field
// separator. Adding a rule turns this on implicitly.
func AutoSplit(on bool) Option {
	return func(s *settings) error {
		s.autoSplit = on
		return nil
	}
}

// AutoTrim removes outer whitespace from each logical line.
func AutoTrim(mode TrimMode) Option {
	return func(s *settings) error {
		if mode < TrimNone || mode > TrimBoth {
			return errors.Newf(errors.ErrBadOption, "bad auto_trim mode %d", int(mode))
		}
		s.autoTrim = mode
		return nil
	}
}

// CustomLineTrimmer installs a trimming callback that replaces
// AutoTrim entirely.
func CustomLineTrimmer(fn func(string) string) Option {
	return func(s *settings) error {
		if fn == nil {
			return errors.New(errors.ErrBadOption, "custom line trimmer must not be nil")
		}
		s.customTrimmer = fn
		return nil
	}
}

// FieldSeparator sets the split pattern used when auto-split is on.
// The default is /\s+/.
func FieldSeparator(pattern string) Option {
	return func(s *settings) error {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return errors.Wrap(errors.ErrBadOption, "bad field separator", err).
				WithContext("pattern", pattern)
		}
		s.fieldSep = re
		return nil
	}
}

// FieldSeparatorRegexp sets a pre-compiled split pattern.
func FieldSeparatorRegexp(re *regexp.Regexp) Option {
	return func(s *settings) error {
		if re == nil {
			return errors.New(errors.ErrBadOption, "field separator must not be nil")
		}
		s.fieldSep = re
		return nil
	}
}

// TrackIndentation computes the indent level of each logical line.
func TrackIndentation(on bool) Option {
	return func(s *settings) error {
		s.trackIndentation = on
		return nil
	}
}

// IndentationStr sets the string counted when tracking indentation.
// The default is a single space.
func IndentationStr(str string) Option {
	return func(s *settings) error {
		if str == "" {
			return errors.New(errors.ErrBadOption, "indentation string must not be empty")
		}
		s.indentationStr = str
		return nil
	}
}

// LineWrapStyle selects a built-in unwrap style. The multiline type
// is derived from the style except for WrapCustom, where
// CustomLineUnwrapRoutines chooses it.
func LineWrapStyle(style WrapStyle) Option {
	return func(s *settings) error {
		switch style {
		case WrapNone:
			s.multilineType = MultiNone
		case WrapTrailingBackslash:
			s.multilineType = JoinNext
		case WrapSpice, WrapJustNextLine, WrapSlurp:
			s.multilineType = JoinLast
		case WrapCustom:
			if s.multilineType == MultiNone {
				s.multilineType = JoinNext
			}
		default:
			return errors.Newf(errors.ErrBadOption, "bad line wrap style %d", int(style))
		}
		s.wrapStyle = style
		return nil
	}
}

// UnwrapRoutines installs custom wrap detection and joining and
// selects WrapCustom. mt picks the direction the wrap signal applies.
func UnwrapRoutines(mt MultilineType, isWrapped func(string) bool, join func(last, cur string) string) Option {
	return func(s *settings) error {
		return s.setUnwrapRoutines(mt, isWrapped, join)
	}
}

func (s *settings) setUnwrapRoutines(mt MultilineType, isWrapped func(string) bool, join func(last, cur string) string) error {
	if isWrapped == nil || join == nil {
		return errors.New(errors.ErrBadUnwrapRoutine, "both unwrap routines must be provided")
	}
	if mt != JoinNext && mt != JoinLast {
		return errors.Newf(errors.ErrBadUnwrapRoutine, "custom unwrap needs join_next or join_last, got %s", mt)
	}
	if s.wrapStyle != WrapNone && s.wrapStyle != WrapCustom {
		return errors.Newf(errors.ErrBadUnwrapRoutine,
			"cannot install custom unwrap routines while line_wrap_style is %s", s.wrapStyle)
	}
	s.wrapStyle = WrapCustom
	s.multilineType = mt
	s.customIsWrapped = isWrapped
	s.customJoin = join
	return nil
}
