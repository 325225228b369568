// Package language holds the fixed set of translation targets.
package language

import (
	"fmt"
	"strings"
)

// Target is a translation target language. Code is what the user sees,
// Name goes into the translation instruction, Locale selects the voice.
type Target struct {
	Code   string
	Name   string
	Locale string
}

var (
	Chinese  = Target{Code: "CN", Name: "Chinese", Locale: "zh-CN"}
	English  = Target{Code: "EN", Name: "English", Locale: "en-US"}
	Japanese = Target{Code: "JP", Name: "Japanese", Locale: "ja-JP"}
)

// All lists the targets in button order.
var All = []Target{Chinese, English, Japanese}

func (t Target) IsZero() bool { return t.Code == "" }

func (t Target) String() string { return t.Code }

// Lang returns the ISO-639-1 part of the locale ("zh" for "zh-CN").
func (t Target) Lang() string {
	if i := strings.IndexByte(t.Locale, '-'); i > 0 {
		return t.Locale[:i]
	}
	return t.Locale
}

// Parse accepts a display code, a locale or a name, case-insensitively.
func Parse(s string) (Target, error) {
	s = strings.TrimSpace(s)
	for _, t := range All {
		if strings.EqualFold(s, t.Code) || strings.EqualFold(s, t.Locale) || strings.EqualFold(s, t.Name) {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("unknown target language %q", s)
}

// ByLocale returns the target whose locale is locale.
func ByLocale(locale string) (Target, bool) {
	for _, t := range All {
		if strings.EqualFold(t.Locale, locale) {
			return t, true
		}
	}
	return Target{}, false
}
