package infer

import "github.com/ridoystarlord/sheetmatch/schema"

// Compatibility grades how an inferred type fits a declared one.
type Compatibility int

const (
	Incompatible Compatibility = iota
	// Lenient fits only because the names matched closely.
	Lenient
	Strict
)

func (c Compatibility) Compatible() bool {
	return c != Incompatible
}

// Checker decides type compatibility. Names scoring at least lenientFrom
// widen acceptance.
type Checker struct {
	lenientFrom int
}

func NewChecker(lenientFrom int) *Checker {
	return &Checker{lenientFrom: lenientFrom}
}

// IsCompatible reports whether inferred may be loaded into a column
// declared as existing.
func (c *Checker) IsCompatible(inferred, existing schema.DataType, nameSimilarity int) bool {
	return c.Check(inferred, existing, nameSimilarity).Compatible()
}

// Check grades the pair. Identical types and the safe coercions
// integer<->numeric and date<->timestamp are strict; with a near-certain
// name match anything fits a text column and unknown types are accepted.
func (c *Checker) Check(inferred, existing schema.DataType, nameSimilarity int) Compatibility {
	if inferred.Known() && inferred == existing {
		return Strict
	}
	if safeCoercion(inferred, existing) {
		return Strict
	}
	if nameSimilarity < c.lenientFrom {
		return Incompatible
	}
	if existing == schema.Text || existing == schema.Unknown || inferred == schema.Unknown {
		return Lenient
	}
	return Incompatible
}

func safeCoercion(a, b schema.DataType) bool {
	switch {
	case a == schema.Integer && b == schema.Numeric, a == schema.Numeric && b == schema.Integer:
		return true
	case a == schema.Date && b == schema.Timestamp, a == schema.Timestamp && b == schema.Date:
		return true
	}
	return false
}
