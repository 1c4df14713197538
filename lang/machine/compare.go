package machine

import "math"

// totalOrderCmp performs a three-valued, NaN-consistent comparison of two
// numbers: NaN sorts above every non-NaN value and is equal only to
// another NaN. This is required by Lt/Le over Number so that programs that
// sort or compare NaN-bearing data get a stable, total order instead of
// Go's native IEEE-754 partial order (where every comparison against NaN
// is false). Eq over Number uses native IEEE-754 equality instead, see
// Equal in value.go.
func totalOrderCmp(x, y float64) int {
	if x < y {
		return -1
	} else if x > y {
		return +1
	} else if x == y {
		return 0
	}

	// At least one operand is NaN.
	if x == x {
		return -1 // y is NaN
	} else if y == y {
		return +1 // x is NaN
	}
	return 0 // both NaN
}

// numLess reports whether x < y under total order.
func numLess(x, y Number) bool { return totalOrderCmp(float64(x), float64(y)) < 0 }

// numLessEqual reports whether x <= y under total order.
func numLessEqual(x, y Number) bool { return totalOrderCmp(float64(x), float64(y)) <= 0 }

// luaMod computes the floored modulo (result takes the sign of y), as
// opposed to Go's % operator which takes the sign of x.
func luaMod(x, y float64) float64 {
	r := math.Mod(x, y)
	if r != 0 && (r < 0) != (y < 0) {
		r += y
	}
	return r
}

// powNumber computes x raised to the y power.
func powNumber(x, y float64) float64 { return math.Pow(x, y) }
