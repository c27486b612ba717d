package engine

import (
	"strings"

	"github.com/textparser-go/textparser/pkgs/errors"
)

// unwrapper joins physical lines into logical lines. It is a small
// two-state machine: idle, or buffering one partial logical line.
type unwrapper struct {
	mt        MultilineType
	isWrapped func(line string, first bool) bool
	join      func(last, cur string) string

	buf       string
	buffering bool
}

// newUnwrapper resolves the configured style to its routine pair
func newUnwrapper(s *settings) (*unwrapper, error) {
	u := &unwrapper{mt: s.multilineType}
	switch s.wrapStyle {
	case WrapNone:
		u.mt = MultiNone
	case WrapTrailingBackslash:
		u.isWrapped = func(line string, first bool) bool {
			return strings.HasSuffix(strings.TrimSpace(line), "\\")
		}
		u.join = func(last, cur string) string {
			last = strings.TrimRight(last, " \t\r\n")
			last = strings.TrimSuffix(last, "\\")
			last = strings.TrimRight(last, " \t")
			return last + " " + strings.TrimLeft(cur, " \t")
		}
	case WrapSpice:
		u.isWrapped = func(line string, first bool) bool {
			return strings.HasPrefix(line, "+")
		}
		u.join = func(last, cur string) string {
			return chompStr(last) + strings.TrimPrefix(cur, "+")
		}
	case WrapJustNextLine:
		u.isWrapped = func(line string, first bool) bool {
			return !first && strings.TrimSpace(line) != ""
		}
		u.join = func(last, cur string) string {
			return chompStr(last) + cur
		}
	case WrapSlurp:
		u.isWrapped = func(line string, first bool) bool {
			return !first
		}
		u.join = func(last, cur string) string {
			return last + cur
		}
	case WrapCustom:
		if s.customIsWrapped == nil || s.customJoin == nil {
			return nil, errors.New(errors.ErrNoUnwrapRoutines,
				"line_wrap_style is custom but no unwrap routines are installed")
		}
		userWrapped := s.customIsWrapped
		u.isWrapped = func(line string, first bool) bool {
			return userWrapped(line)
		}
		u.join = s.customJoin
	}
	return u, nil
}

// push feeds one physical line and returns any logical lines it
// completes. lineNum is the physical line number, for error context.
func (u *unwrapper) push(raw string, lineNum int) ([]string, error) {
	switch u.mt {
	case JoinNext:
		return u.pushJoinNext(raw), nil
	case JoinLast:
		return u.pushJoinLast(raw, lineNum)
	default:
		return []string{raw}, nil
	}
}

// pushJoinNext handles styles where a wrapped line continues onto the
// next physical line.
func (u *unwrapper) pushJoinNext(raw string) []string {
	if !u.buffering {
		u.buf = raw
		u.buffering = true
		return nil
	}
	if u.isWrapped(u.buf, false) {
		u.buf = u.join(u.buf, raw)
		return nil
	}
	out := u.buf
	u.buf = raw
	return []string{out}
}

// pushJoinLast handles styles where a wrapped line joins onto the
// previous physical line.
func (u *unwrapper) pushJoinLast(raw string, lineNum int) ([]string, error) {
	if u.isWrapped(raw, !u.buffering) {
		if !u.buffering {
			return nil, errors.NewUnexpectedContinuationError(raw, lineNum)
		}
		u.buf = u.join(u.buf, raw)
		return nil, nil
	}
	var out []string
	if u.buffering {
		out = append(out, u.buf)
	}
	u.buf = raw
	u.buffering = true
	return out, nil
}

// finish flushes the machine at end of input. A join_next buffer that
// is still marked wrapped has no line to continue onto.
func (u *unwrapper) finish(lineNum int) ([]string, error) {
	if !u.buffering {
		return nil, nil
	}
	out := u.buf
	u.buf = ""
	u.buffering = false
	if u.mt == JoinNext && u.isWrapped(out, false) {
		return nil, errors.NewUnexpectedEOFError(out, lineNum)
	}
	return []string{out}, nil
}

func (u *unwrapper) reset() {
	u.buf = ""
	u.buffering = false
}

// chompStr strips one trailing line terminator
func chompStr(s string) string {
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s
}
