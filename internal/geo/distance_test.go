package geo

import (
	"math"
	"testing"

	"trainwatch/internal/types"
)

var (
	chennaiCentral = types.NewGeoPoint(13.0827, 80.2707)
	villupuram     = types.NewGeoPoint(11.9393, 79.4924)
)

func TestDistance_Identity(t *testing.T) {
	points := []types.GeoPoint{
		chennaiCentral,
		villupuram,
		types.NewGeoPoint(0, 0),
		types.NewGeoPoint(-89.9, 179.9),
	}
	for _, p := range points {
		if d := Distance(p, p); d != 0 {
			t.Errorf("Distance(%+v, same) = %v, want 0", p, d)
		}
	}
}

func TestDistance_Symmetry(t *testing.T) {
	ab := Distance(chennaiCentral, villupuram)
	ba := Distance(villupuram, chennaiCentral)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("distance not symmetric: a->b=%v b->a=%v", ab, ba)
	}
}

func TestDistance_ChennaiToVillupuram(t *testing.T) {
	// Known reference: roughly 137 km along the great circle.
	d := Distance(chennaiCentral, villupuram)
	if math.Abs(d-137) > 1 {
		t.Errorf("Distance(Chennai Central, Villupuram) = %v km, want 137 +/- 1", d)
	}
}

func TestDistance_MissingCoordinateIsUnknown(t *testing.T) {
	missing := types.GeoPoint{}
	if d := Distance(missing, villupuram); !IsUnknown(d) {
		t.Errorf("Distance(missing, valid) = %v, want Unknown", d)
	}
	if d := Distance(chennaiCentral, missing); !IsUnknown(d) {
		t.Errorf("Distance(valid, missing) = %v, want Unknown", d)
	}
	if d := Distance(missing, missing); !IsUnknown(d) {
		t.Errorf("Distance(missing, missing) = %v, want Unknown", d)
	}
}

func TestDistance_OutOfRangeIsUnknown(t *testing.T) {
	bogus := types.NewGeoPoint(91.5, 80.0)
	if d := Distance(bogus, villupuram); !IsUnknown(d) {
		t.Errorf("Distance(out-of-range, valid) = %v, want Unknown", d)
	}
}

func TestDistance_UnknownExceedsAllThresholds(t *testing.T) {
	d := Distance(types.GeoPoint{}, villupuram)
	th := types.DefaultThresholds()
	if d <= th.ApproachKm || d <= th.AlarmKm || d <= th.PreAlertKm {
		t.Errorf("Unknown sentinel %v must compare greater than every threshold", d)
	}
}

func TestFormatDistance(t *testing.T) {
	tests := []struct {
		km   float64
		want string
	}{
		{0.05, "50 m"},
		{0.5, "500 m"},
		{0.999, "999 m"},
		{1.0, "1.00 km"},
		{2.345, "2.35 km"},
		{9.99, "9.99 km"},
		{10, "10 km"},
		{137.4, "137 km"},
		{137.5, "138 km"},
		{Unknown, "unknown"},
	}
	for _, tt := range tests {
		if got := FormatDistance(tt.km); got != tt.want {
			t.Errorf("FormatDistance(%v) = %q, want %q", tt.km, got, tt.want)
		}
	}
}
