// Package units converts quantities between units of measure that share a
// magnitude class (mass, volume, length, area, time, count).
package units

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownUnit  = errors.New("unknown unit")
	ErrUnitMismatch = errors.New("unit magnitude mismatch")
)

// Precision is the number of significant digits kept by Convert.
const Precision = 20

// divisionPlaces bounds the intermediate quotient before significant-digit rounding.
const divisionPlaces = 48

type Magnitude int

const (
	Mass Magnitude = iota + 1
	Volume
	Length
	Area
	Time
	Count
)

var magnitudeNames = map[Magnitude]string{
	Mass:   "mass",
	Volume: "volume",
	Length: "length",
	Area:   "area",
	Time:   "time",
	Count:  "count",
}

func (m Magnitude) String() string {
	if s, ok := magnitudeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("magnitude(%d)", int(m))
}

// ParseMagnitude resolves a magnitude class by its lower-case name.
func ParseMagnitude(s string) (Magnitude, error) {
	for m, name := range magnitudeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown magnitude %q", s)
}

// Magnitudes lists every class in declaration order.
func Magnitudes() []Magnitude {
	return []Magnitude{Mass, Volume, Length, Area, Time, Count}
}

type Unit string

func (u Unit) String() string { return string(u) }

type entry struct {
	unit   Unit
	factor string
}

type definition struct {
	magnitude Magnitude
	factor    decimal.Decimal
}

// Factors are relative to the first (base) unit of each class.
var tables = map[Magnitude][]entry{
	Mass: {
		{"g", "1"},
		{"mg", "0.001"},
		{"kg", "1000"},
		{"lb", "453.59237"},
		{"oz", "28.349523125"},
		{"ton", "907184.74"},
		{"t", "1000000"},
	},
	Volume: {
		{"L", "1"},
		{"mL", "0.001"},
		{"cL", "0.01"},
		{"dL", "0.1"},
		{"kL", "1000"},
		{"m3", "1000"},
		{"cm3", "0.001"},
		{"gal", "3.785411784"},
		{"qt", "0.946352946"},
		{"pt", "0.473176473"},
		{"cup", "0.2365882365"},
		{"fl_oz", "0.0295735295625"},
		{"tbsp", "0.01478676478125"},
		{"tsp", "0.00492892159375"},
	},
	Length: {
		{"m", "1"},
		{"km", "1000"},
		{"cm", "0.01"},
		{"mm", "0.001"},
		{"in", "0.0254"},
		{"ft", "0.3048"},
		{"yd", "0.9144"},
		{"mi", "1609.344"},
	},
	Area: {
		{"m2", "1"},
		{"km2", "1000000"},
		{"cm2", "0.0001"},
		{"mm2", "0.000001"},
		{"ha", "10000"},
		{"acre", "4046.8564224"},
		{"ft2", "0.09290304"},
		{"in2", "0.00064516"},
	},
	Time: {
		{"s", "1"},
		{"ms", "0.001"},
		{"min", "60"},
		{"hr", "3600"},
		{"day", "86400"},
	},
	Count: {
		{"unit", "1"},
		{"dozen", "12"},
		{"box", "1"},
		{"pack", "1"},
		{"roll", "1"},
		{"ream", "500"},
	},
}

var registry = func() map[Unit]definition {
	r := make(map[Unit]definition)
	for m, entries := range tables {
		for _, e := range entries {
			r[e.unit] = definition{magnitude: m, factor: decimal.RequireFromString(e.factor)}
		}
	}
	return r
}()

func lookup(u Unit) (definition, error) {
	d, ok := registry[u]
	if !ok {
		return definition{}, fmt.Errorf("%w: %q", ErrUnknownUnit, string(u))
	}
	return d, nil
}

// Valid reports whether u is a registered unit.
func Valid(u Unit) bool {
	_, ok := registry[u]
	return ok
}

// MagnitudeOf returns the class u belongs to.
func MagnitudeOf(u Unit) (Magnitude, error) {
	d, err := lookup(u)
	if err != nil {
		return 0, err
	}
	return d.magnitude, nil
}

// Compatible reports whether both units are registered and share a class.
func Compatible(a, b Unit) bool {
	da, errA := lookup(a)
	db, errB := lookup(b)
	return errA == nil && errB == nil && da.magnitude == db.magnitude
}

// Base returns the canonical unit of a class.
func Base(m Magnitude) (Unit, bool) {
	entries, ok := tables[m]
	if !ok || len(entries) == 0 {
		return "", false
	}
	return entries[0].unit, true
}

// UnitsOf returns the units registered for a class, base unit first.
func UnitsOf(m Magnitude) []Unit {
	entries := tables[m]
	out := make([]Unit, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.unit)
	}
	return out
}

// Convert expresses value (in from) as a quantity of to.
func Convert(value decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	df, err := lookup(from)
	if err != nil {
		return decimal.Zero, err
	}
	dt, err := lookup(to)
	if err != nil {
		return decimal.Zero, err
	}
	if df.magnitude != dt.magnitude {
		return decimal.Zero, fmt.Errorf("%w: %s (%s) to %s (%s)",
			ErrUnitMismatch, from, df.magnitude, to, dt.magnitude)
	}
	if from == to {
		return value, nil
	}
	q := value.Mul(df.factor).DivRound(dt.factor, divisionPlaces)
	return RoundSignificant(q, Precision), nil
}

// RoundSignificant rounds d to n significant digits.
func RoundSignificant(d decimal.Decimal, n int) decimal.Decimal {
	if d.IsZero() {
		return d
	}
	intDigits := d.NumDigits() + int(d.Exponent())
	return d.Round(int32(n - intDigits))
}
