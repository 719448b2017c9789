package flowmon

import (
	"fmt"
	"strconv"
)

// Mean is an average that may have no samples.
type Mean struct {
	Value   float64
	Defined bool
}

// Undefined is the Mean of zero samples.
var Undefined = Mean{}

// Divide returns sum / n, or ErrDivisionUndefined if n is zero.
func Divide(sum float64, n uint64) (float64, error) {
	if n == 0 {
		return 0, fmt.Errorf("%w: %g / 0", ErrDivisionUndefined, sum)
	}

	return sum / float64(n), nil
}

func meanOf(sum float64, n uint64) Mean {
	v, err := Divide(sum, n)
	if err != nil {
		return Undefined
	}

	return Mean{Value: v, Defined: true}
}

// Or returns the value, or def when undefined.
func (m Mean) Or(def float64) float64 {
	if !m.Defined {
		return def
	}

	return m.Value
}

// Scale multiplies a defined mean.
func (m Mean) Scale(k float64) Mean {
	if !m.Defined {
		return m
	}

	return Mean{Value: m.Value * k, Defined: true}
}

func (m Mean) String() string {
	if !m.Defined {
		return "undefined"
	}

	return strconv.FormatFloat(m.Value, 'g', -1, 64)
}

// MarshalText writes "undefined" or the number.
func (m Mean) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
