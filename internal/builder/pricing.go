package builder

import "math"

// DefaultBasePrice is the price of one square metre of float glass.
const DefaultBasePrice = 50.0

var multipliers = map[string]float64{
	GlassTempered:  1.5,
	GlassLaminated: 1.8,
	GlassInsulated: 2.2,
	GlassFloat:     1.0,
}

// Multiplier returns the price multiplier for a glass type. Unknown types
// are priced like float glass.
func Multiplier(glassType string) float64 {
	if m, ok := multipliers[glassType]; ok {
		return m
	}
	return 1.0
}

// UnitPrice prices one pane of width x height millimetres.
func UnitPrice(basePrice, width, height float64, glassType string) float64 {
	area := width * height / 1_000_000
	return round2(basePrice * area * Multiplier(glassType))
}

// TotalPrice prices quantity panes at unitPrice each.
func TotalPrice(unitPrice float64, quantity int) float64 {
	return round2(unitPrice * float64(quantity))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
