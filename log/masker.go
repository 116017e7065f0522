/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"regexp"
	"strings"
)

// Mask replaces every match of RegExp with Mask.
type Mask struct {
	RegExp *regexp.Regexp
	Mask   string
}

// NewMask compiles the mask config. It panics on an invalid regular expression.
func NewMask(cfg MaskConfig) Mask {
	return Mask{regexp.MustCompile(cfg.RegExp), cfg.Mask}
}

// FieldMasker masks a single field in all configured formats.
// Its masks run only when the lowercased Field occurs in the string.
type FieldMasker struct {
	Field string
	Masks []Mask
}

// NewFieldMasker creates a FieldMasker from the rule config.
func NewFieldMasker(cfg MaskingRuleConfig) FieldMasker {
	fm := FieldMasker{Field: strings.ToLower(cfg.Field), Masks: make([]Mask, 0, len(cfg.Masks)+len(cfg.Formats))}
	for _, maskCfg := range cfg.Masks {
		fm.Masks = append(fm.Masks, NewMask(maskCfg))
	}
	field := regexp.QuoteMeta(cfg.Field)
	for _, format := range cfg.Formats {
		switch format {
		case FieldMaskFormatHTTPHeader:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)` + field + `: .+?\r\n`, cfg.Field + ": ***\r\n"}))
		case FieldMaskFormatJSON:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)"` + field + `"\s*:\s*".*?[^\\]"`, `"` + cfg.Field + `": "***"`}))
		case FieldMaskFormatURLEncoded:
			fm.Masks = append(fm.Masks, NewMask(MaskConfig{`(?i)\b` + field + `\s*=\s*[^&\s]+`, cfg.Field + "=***"}))
		}
	}
	return fm
}

// Masker hides secrets in strings.
type Masker struct {
	FieldMasks []FieldMasker
}

// NewMasker creates a Masker from the rules.
func NewMasker(rules []MaskingRuleConfig) *Masker {
	m := &Masker{FieldMasks: make([]FieldMasker, 0, len(rules))}
	for _, rule := range rules {
		m.FieldMasks = append(m.FieldMasks, NewFieldMasker(rule))
	}
	return m
}

// Mask returns s with all known secrets replaced.
func (m *Masker) Mask(s string) string {
	lower := strings.ToLower(s)
	for _, fm := range m.FieldMasks {
		if !strings.Contains(lower, fm.Field) {
			continue
		}
		for _, mask := range fm.Masks {
			s = mask.RegExp.ReplaceAllString(s, mask.Mask)
		}
	}
	return s
}

// DefaultMasks covers the secrets the site handles: the Slack OAuth exchange
// (client_secret, code, access tokens), the session payload and the Airtable personal access token.
var DefaultMasks = []MaskingRuleConfig{
	{
		Field:   "Authorization",
		Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader},
	},
	{
		Field:   "client_secret",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "code",
		Formats: []FieldMaskFormat{FieldMaskFormatURLEncoded},
	},
	{
		Field:   "access_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "refresh_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "accessToken",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON},
	},
	{
		Field: "xox",
		Masks: []MaskConfig{{RegExp: `xox[abposre]-[A-Za-z0-9-]+`, Mask: "xox*-***"}},
	},
	{
		Field: "pat",
		Masks: []MaskConfig{{RegExp: `\bpat[A-Za-z0-9]{14}\.[A-Za-z0-9]{64}\b`, Mask: "pat***"}},
	},
}
