// Package normalize canonicalizes sheet and column labels. Comparison
// (Normalize, Compact) and persistence (ToSQLSafeName) are kept separate:
// the first is lossy on purpose, the second must yield a valid identifier.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxIdentifierLength is the Postgres identifier limit.
const MaxIdentifierLength = 63

// Placeholder is returned by ToSQLSafeName when nothing usable remains.
const Placeholder = "unnamed"

// digitPrefix is prepended to generated names that would start with a digit.
const digitPrefix = "n_"

// Normalizer folds labels for comparison. Prefixes are literal table-name
// prefixes (e.g. "ln_") stripped after folding.
type Normalizer struct {
	prefixes []string
}

func New(prefixes ...string) *Normalizer {
	n := &Normalizer{}
	for _, p := range prefixes {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			n.prefixes = append(n.prefixes, p)
		}
	}
	return n
}

// Default strips no prefixes.
var Default = New()

// Normalize is Default.Normalize.
func Normalize(name string) string { return Default.Normalize(name) }

// Compact is Default.Compact.
func Compact(name string) string { return Default.Compact(name) }

// Normalize case-folds, trims, splits camelCase words, drops punctuation and
// collapses runs of whitespace, hyphens and underscores into one "_".
// "Loan ID", "loan-id" and "LoanID" all become "loan_id".
func (n *Normalizer) Normalize(name string) string {
	s := strings.TrimSpace(stripMarks(name))
	if s == "" {
		return ""
	}
	// Casers are stateful, so one is built per call.
	s = cases.Fold().String(splitCamel(s))

	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '/' || r == '.':
			pendingSep = true
		default:
			// other punctuation is dropped without separating words
		}
	}
	out := b.String()

	for _, p := range n.prefixes {
		if strings.HasPrefix(out, p) && len(out) > len(p) {
			out = strings.TrimLeft(out[len(p):], "_")
			break
		}
	}
	return out
}

// Compact is Normalize with every separator removed, so "Loan ID",
// "loan_id" and "loanid" coincide.
func (n *Normalizer) Compact(name string) string {
	return strings.ReplaceAll(n.Normalize(name), "_", "")
}

// ToSQLSafeName produces a lowercase Postgres identifier matching
// ^[a-z][a-z0-9_]*$ of at most 63 bytes. It is deterministic and
// idempotent; empty results become Placeholder.
func ToSQLSafeName(name string) string {
	s := strings.ToLower(splitCamel(stripMarks(name)))

	var b strings.Builder
	pendingSep := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	out := b.String()
	if out == "" {
		return Placeholder
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = digitPrefix + out
	}
	return Truncate(out, MaxIdentifierLength)
}

// Truncate cuts an identifier to max bytes without leaving a trailing "_".
func Truncate(name string, max int) string {
	if len(name) > max {
		name = name[:max]
	}
	return strings.TrimRight(name, "_")
}

var markStripper = runes.Remove(runes.In(unicode.Mn))

// stripMarks removes diacritics: "Año Préstamo" -> "Ano Prestamo".
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, markStripper, norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// splitCamel inserts a space at lower->upper and acronym->word boundaries:
// "NewLoanType" -> "New Loan Type", "LoanID" -> "Loan ID",
// "HTTPServer" -> "HTTP Server".
func splitCamel(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range rs {
		if i > 0 && unicode.IsUpper(r) {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
