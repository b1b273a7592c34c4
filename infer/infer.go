// Package infer guesses a column's semantic type from sample values and,
// failing that, from its name.
package infer

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/ridoystarlord/sheetmatch/normalize"
	"github.com/ridoystarlord/sheetmatch/schema"
)

var (
	// Leading zeros are excluded so zip codes and account numbers stay text.
	integerPattern = regexp.MustCompile(`^[+-]?(0|[1-9][0-9]*)$`)
	groupedInteger = regexp.MustCompile(`^[+-]?[1-9][0-9]{0,2}(,[0-9]{3})+$`)
	decimalPattern = regexp.MustCompile(`^[+-]?(0|[1-9][0-9]*)?\.[0-9]+([eE][+-]?[0-9]+)?$|^[+-]?(0|[1-9][0-9]*)([eE][+-]?[0-9]+)?$`)
	groupedDecimal = regexp.MustCompile(`^[+-]?[1-9][0-9]{0,2}(,[0-9]{3})+(\.[0-9]+)?$`)
	digitsOnly     = regexp.MustCompile(`^[0-9]+$`)
	accountingWrap = regexp.MustCompile(`^\((.+)\)$`)
	dateSeparator  = regexp.MustCompile(`[-/. ]`)
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"2/1/2006",
	"1-2-2006",
	"01-02-2006",
	"2-1-2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02.01.2006",
}

var timestampLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"01/02/2006 15:04:05",
}

var blankTokens = map[string]bool{
	"":     true,
	"null": true,
	"nil":  true,
	"n/a":  true,
	"#n/a": true,
	"na":   true,
	"-":    true,
}

var booleanTokens = map[string]bool{
	"true": true, "false": true,
	"yes": true, "no": true,
	"0": true, "1": true,
}

// Options tunes inference.
type Options struct {
	// Majority is the share of non-empty samples a type must satisfy.
	Majority float64
	// IDConvention is the type assigned to names ending in "id".
	IDConvention schema.DataType
}

type Inferrer struct {
	opts Options
}

func New(opts Options) *Inferrer {
	if opts.Majority <= 0 || opts.Majority > 1 {
		opts.Majority = 0.8
	}
	if opts.IDConvention != schema.UUID {
		opts.IDConvention = schema.Text
	}
	return &Inferrer{opts: opts}
}

// InferType returns the type satisfied by a majority of non-empty samples.
// With no conclusive samples it falls back to name keywords, and returns
// schema.Unknown when neither gives evidence.
func (in *Inferrer) InferType(fieldName string, samples []any) schema.DataType {
	if t := in.FromSamples(samples); t != schema.Unknown {
		return t
	}
	return in.FromName(fieldName)
}

// FromSamples applies value-based inference only.
func (in *Inferrer) FromSamples(samples []any) schema.DataType {
	var classes []valueClass
	for _, s := range samples {
		c, ok := classify(s)
		if !ok {
			continue
		}
		classes = append(classes, c)
	}
	if len(classes) == 0 {
		return schema.Unknown
	}

	need := int(math.Ceil(in.opts.Majority * float64(len(classes))))
	count := func(pred func(valueClass) bool) int {
		n := 0
		for _, c := range classes {
			if pred(c) {
				n++
			}
		}
		return n
	}

	if count(func(c valueClass) bool { return c.boolean }) >= need {
		return schema.Boolean
	}
	if count(func(c valueClass) bool { return c.integer }) >= need {
		return schema.Integer
	}
	if count(func(c valueClass) bool { return c.numeric }) >= need {
		return schema.Numeric
	}
	if count(func(c valueClass) bool { return c.date }) >= need {
		return schema.Date
	}
	if count(func(c valueClass) bool { return c.date || c.timestamp }) >= need {
		return schema.Timestamp
	}
	if count(func(c valueClass) bool { return c.uuid }) >= need {
		return schema.UUID
	}
	if count(func(c valueClass) bool { return c.text() }) >= need {
		return schema.Text
	}
	return schema.Unknown
}

// valueClass records every type a single sample satisfies.
type valueClass struct {
	boolean, integer, numeric, date, timestamp, uuid bool
}

func (c valueClass) text() bool {
	return !c.boolean && !c.integer && !c.numeric && !c.date && !c.timestamp && !c.uuid
}

// classify reports ok=false for blank samples.
func classify(v any) (valueClass, bool) {
	switch x := v.(type) {
	case nil:
		return valueClass{}, false
	case bool:
		return valueClass{boolean: true}, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return valueClass{integer: true, numeric: true}, true
	case float32:
		return classifyFloat(float64(x)), true
	case float64:
		return classifyFloat(x), true
	case time.Time:
		if x.IsZero() {
			return valueClass{}, false
		}
		h, m, s := x.Clock()
		if h == 0 && m == 0 && s == 0 && x.Nanosecond() == 0 {
			return valueClass{date: true}, true
		}
		return valueClass{timestamp: true}, true
	}

	s, err := cast.ToStringE(v)
	if err != nil {
		return valueClass{}, false
	}
	s = cleanSample(s)
	if blankTokens[strings.ToLower(s)] {
		return valueClass{}, false
	}
	return classifyString(s), true
}

func classifyFloat(f float64) valueClass {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return valueClass{}
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return valueClass{integer: true, numeric: true}
	}
	return valueClass{numeric: true}
}

// cleanSample trims whitespace and one layer of surrounding quotes.
func cleanSample(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func classifyString(s string) valueClass {
	var c valueClass
	lower := strings.ToLower(s)
	c.boolean = booleanTokens[lower]
	c.integer = integerPattern.MatchString(s) || groupedInteger.MatchString(s)
	c.numeric = c.integer || isNumeric(s)
	if !digitsOnly.MatchString(s) && dateSeparator.MatchString(s) {
		c.date = parsesAs(s, dateLayouts)
		if !c.date {
			c.timestamp = parsesAs(s, timestampLayouts)
		}
	}
	if len(s) >= 32 {
		if _, err := uuid.Parse(s); err == nil {
			c.uuid = true
		}
	}
	return c
}

// isNumeric accepts decimals with optional currency sign, thousands
// separators, a trailing percent sign or accounting parentheses.
func isNumeric(s string) bool {
	if m := accountingWrap.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	if strings.HasPrefix(s, "-$") || strings.HasPrefix(s, "+$") {
		s = s[:1] + s[2:]
	} else {
		s = strings.TrimPrefix(s, "$")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return decimalPattern.MatchString(s) || groupedDecimal.MatchString(s)
}

func parsesAs(s string, layouts []string) bool {
	for _, layout := range layouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// nameRule assigns a type when a normalized name token or fragment matches.
type nameRule struct {
	typ      schema.DataType
	tokens   []string
	prefixes []string
	suffixes []string
}

var nameRules = []nameRule{
	{typ: schema.Timestamp, tokens: []string{"timestamp", "datetime"}, suffixes: []string{"_at", "_ts"}},
	{typ: schema.Date, tokens: []string{"date", "dob"}, suffixes: []string{"_dt"}},
	{typ: schema.Boolean, tokens: []string{"flag", "enabled", "required", "active"}, prefixes: []string{"is_", "has_"}},
	{typ: schema.Numeric, tokens: []string{"amount", "amt", "rate", "score", "balance", "pct", "percent", "percentage", "price", "ratio", "fee", "ltv", "dti", "apr"}},
	{typ: schema.Integer, tokens: []string{"count", "qty", "quantity", "days", "months", "term"}},
	{typ: schema.UUID, tokens: []string{"uuid", "guid"}},
}

// FromName applies the field-name keyword heuristics only.
func (in *Inferrer) FromName(fieldName string) schema.DataType {
	n := normalize.Normalize(fieldName)
	if n == "" {
		return schema.Unknown
	}
	tokens := strings.Split(n, "_")
	has := func(want string) bool {
		for _, t := range tokens {
			if t == want {
				return true
			}
		}
		return false
	}

	for _, rule := range nameRules {
		for _, t := range rule.tokens {
			if has(t) {
				return rule.typ
			}
		}
		for _, p := range rule.prefixes {
			if strings.HasPrefix(n, p) {
				return rule.typ
			}
		}
		for _, s := range rule.suffixes {
			if strings.HasSuffix(n, s) {
				return rule.typ
			}
		}
	}

	if tokens[len(tokens)-1] == "id" {
		return in.opts.IDConvention
	}
	return schema.Unknown
}
