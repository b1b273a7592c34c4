package similarity

import (
	"math"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/ridoystarlord/sheetmatch/normalize"
)

// Scorer rates how alike two labels are on a 0-100 scale.
type Scorer struct {
	norm           *normalize.Normalizer
	substringScore int
}

// New returns a scorer using n for normalization. A nil n uses
// normalize.Default.
func New(n *normalize.Normalizer, substringScore int) *Scorer {
	if n == nil {
		n = normalize.Default
	}
	return &Scorer{norm: n, substringScore: substringScore}
}

// Normalizer returns the normalizer the scorer compares with.
func (s *Scorer) Normalizer() *normalize.Normalizer {
	return s.norm
}

// Score evaluates the tiers in order, first match wins:
//
//	exact equality                         100
//	equal after Normalize                  100
//	equal after Compact                    100
//	one compact form contains the other    substringScore
//	otherwise                              floor(100 * (1 - lev/maxLen))
func (s *Scorer) Score(a, b string) int {
	if a == b {
		return 100
	}
	na, nb := s.norm.Normalize(a), s.norm.Normalize(b)
	if na == nb {
		return 100
	}
	ca, cb := strings.ReplaceAll(na, "_", ""), strings.ReplaceAll(nb, "_", "")
	if ca == cb {
		return 100
	}
	if ca == "" || cb == "" {
		return 0
	}
	if strings.Contains(ca, cb) || strings.Contains(cb, ca) {
		return s.substringScore
	}
	return editScore(na, nb)
}

func editScore(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptionsWithSub)
	score := int(math.Floor(100 * (1 - float64(dist)/float64(maxLen))))
	// only the equality tiers may report a full match
	if score >= 100 {
		score = 99
	}
	if score < 0 {
		score = 0
	}
	return score
}
