// Package config loads engine and rule definitions from TOML files,
// the on-disk form the textparser CLI consumes.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/textparser-go/textparser/pkgs/engine"
	"github.com/textparser-go/textparser/pkgs/errors"
)

// Options mirrors the engine's construction options
type Options struct {
	AutoChomp        bool   `toml:"auto_chomp"`
	AutoSplit        bool   `toml:"auto_split"`
	AutoTrim         string `toml:"auto_trim"`
	FieldSeparator   string `toml:"field_separator"`
	TrackIndentation bool   `toml:"track_indentation"`
	IndentationStr   string `toml:"indentation_str"`
	LineWrapStyle    string `toml:"line_wrap_style"`
}

// Rule is one declarative rule entry
type Rule struct {
	Name           string   `toml:"name"`
	If             string   `toml:"if"`
	Do             string   `toml:"do"`
	DontRecord     bool     `toml:"dont_record"`
	ContinueToNext bool     `toml:"continue_to_next"`
	Preconditions  []string `toml:"preconditions"`
}

// Action is a bare BEGIN or END action
type Action struct {
	Do         string `toml:"do"`
	DontRecord *bool  `toml:"dont_record"`
}

// File is a full parser definition
type File struct {
	Options Options `toml:"options"`
	Begin   *Action `toml:"begin"`
	End     *Action `toml:"end"`
	Rules   []Rule  `toml:"rules"`
}

// Load reads and parses a parser definition file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewFileError(errors.ErrFileNotFound, path, err)
	}
	return Parse(data)
}

// Parse parses a TOML parser definition
func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, "bad parser definition", err)
	}
	return &f, nil
}

// trimModes maps the on-disk trim names
var trimModes = map[string]engine.TrimMode{
	"":      engine.TrimNone,
	"none":  engine.TrimNone,
	"left":  engine.TrimLeft,
	"right": engine.TrimRight,
	"both":  engine.TrimBoth,
}

// wrapStyles maps the on-disk wrap style names
var wrapStyles = map[string]engine.WrapStyle{
	"":                   engine.WrapNone,
	"none":               engine.WrapNone,
	"trailing_backslash": engine.WrapTrailingBackslash,
	"spice":              engine.WrapSpice,
	"just_next_line":     engine.WrapJustNextLine,
	"slurp":              engine.WrapSlurp,
}

// EngineOptions translates the file's options section
func (f *File) EngineOptions() ([]engine.Option, error) {
	trim, ok := trimModes[f.Options.AutoTrim]
	if !ok {
		return nil, errors.Newf(errors.ErrBadOption, "bad auto_trim %q", f.Options.AutoTrim)
	}
	style, ok := wrapStyles[f.Options.LineWrapStyle]
	if !ok {
		return nil, errors.Newf(errors.ErrBadOption, "bad line_wrap_style %q", f.Options.LineWrapStyle)
	}

	opts := []engine.Option{
		engine.AutoChomp(f.Options.AutoChomp),
		engine.AutoSplit(f.Options.AutoSplit),
		engine.AutoTrim(trim),
		engine.TrackIndentation(f.Options.TrackIndentation),
		engine.LineWrapStyle(style),
	}
	if f.Options.FieldSeparator != "" {
		opts = append(opts, engine.FieldSeparator(f.Options.FieldSeparator))
	}
	if f.Options.IndentationStr != "" {
		opts = append(opts, engine.IndentationStr(f.Options.IndentationStr))
	}
	return opts, nil
}

// NewEngine builds a fully configured engine from the definition
func (f *File) NewEngine() (*engine.Engine, error) {
	opts, err := f.EngineOptions()
	if err != nil {
		return nil, err
	}
	eng, err := engine.New(opts...)
	if err != nil {
		return nil, err
	}

	if f.Begin != nil {
		beginOpts := []engine.RuleOption{engine.Do(f.Begin.Do)}
		if f.Begin.DontRecord != nil {
			beginOpts = append(beginOpts, engine.DontRecord(*f.Begin.DontRecord))
		}
		if err := eng.BeginRule(beginOpts...); err != nil {
			return nil, err
		}
	}
	if f.End != nil {
		endOpts := []engine.RuleOption{engine.Do(f.End.Do)}
		if f.End.DontRecord != nil {
			endOpts = append(endOpts, engine.DontRecord(*f.End.DontRecord))
		}
		if err := eng.EndRule(endOpts...); err != nil {
			return nil, err
		}
	}

	for _, r := range f.Rules {
		var ruleOpts []engine.RuleOption
		if r.Name != "" {
			ruleOpts = append(ruleOpts, engine.RuleName(r.Name))
		}
		if r.If != "" {
			ruleOpts = append(ruleOpts, engine.If(r.If))
		}
		if r.Do != "" {
			ruleOpts = append(ruleOpts, engine.Do(r.Do))
		}
		if r.DontRecord {
			ruleOpts = append(ruleOpts, engine.DontRecord(true))
		}
		if r.ContinueToNext {
			ruleOpts = append(ruleOpts, engine.ContinueToNext(true))
		}
		for _, pc := range r.Preconditions {
			ruleOpts = append(ruleOpts, engine.Precondition(pc))
		}
		if err := eng.AddRule(ruleOpts...); err != nil {
			return nil, err
		}
	}
	return eng, nil
}
