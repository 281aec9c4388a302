package units

import (
	"math"
	"testing"
)

func TestConvertDistance(t *testing.T) {
	tests := []struct {
		name     string
		meters   float64
		units    string
		expected float64
	}{
		{"1000 m to km", 1000, Kilometers, 1},
		{"1 m to ft", 1, Feet, 3.28084},
		{"1609.344 m to mi", 1609.344, Miles, 1},
		{"5 m to m", 5, Meters, 5},
		{"unknown units default to m", 5, "furlong", 5},
		{"0 m to ft", 0, Feet, 0},
		{"gnss accuracy 4.5 m to ft", 4.5, Feet, 14.76378},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertDistance(tt.meters, tt.units)
			if math.Abs(result-tt.expected) > 1e-4 {
				t.Errorf("ConvertDistance(%f, %s) = %f, want %f", tt.meters, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit     string
		expected bool
	}{
		{Meters, true},
		{Feet, true},
		{Kilometers, true},
		{Miles, true},
		{"mph", false},
		{"", false},
		{"M", false},
	}

	for _, tt := range tests {
		if got := IsValid(tt.unit); got != tt.expected {
			t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
		}
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "m, ft, km, mi" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}
