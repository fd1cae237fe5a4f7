package device

import (
	"errors"
	"math"
	"testing"
)

// TestLightnessConversions pins known values across the brightness,
// fraction and mesh scales.
func TestLightnessConversions(t *testing.T) {
	t.Run("brightness to fraction", func(t *testing.T) {
		got, err := BrightnessToFraction(255)
		if err != nil || got != 1 {
			t.Errorf("BrightnessToFraction(255) = %v, %v", got, err)
		}
		got, err = BrightnessToFraction(0)
		if err != nil || got != 0 {
			t.Errorf("BrightnessToFraction(0) = %v, %v", got, err)
		}
		got, err = BrightnessToFraction(128)
		if err != nil || math.Abs(got-128.0/255.0) > 1e-9 {
			t.Errorf("BrightnessToFraction(128) = %v, %v", got, err)
		}
	})

	t.Run("fraction to brightness", func(t *testing.T) {
		got, err := FractionToBrightness(1)
		if err != nil || got != 255 {
			t.Errorf("FractionToBrightness(1) = %v, %v", got, err)
		}
		got, err = FractionToBrightness(0.5)
		if err != nil || got != 128 {
			t.Errorf("FractionToBrightness(0.5) = %v, %v, want 128", got, err)
		}
	})

	t.Run("mesh to brightness", func(t *testing.T) {
		got, err := MeshToBrightness(65535)
		if err != nil || got != 255 {
			t.Errorf("MeshToBrightness(65535) = %v, %v", got, err)
		}
		got, err = MeshToBrightness(32768)
		if err != nil || got != 128 {
			t.Errorf("MeshToBrightness(32768) = %v, %v, want 128", got, err)
		}
	})

	t.Run("brightness to mesh", func(t *testing.T) {
		got, err := BrightnessToMesh(1)
		if err != nil || got != 257 {
			t.Errorf("BrightnessToMesh(1) = %v, %v, want 257", got, err)
		}
		got, err = BrightnessToMesh(128)
		if err != nil || got != 32896 {
			t.Errorf("BrightnessToMesh(128) = %v, %v, want 32896", got, err)
		}
	})

	t.Run("fraction and mesh", func(t *testing.T) {
		got, err := FractionToMesh(0.5)
		if err != nil || got != 32768 {
			t.Errorf("FractionToMesh(0.5) = %v, %v, want 32768", got, err)
		}
		frac, err := MeshToFraction(65535)
		if err != nil || frac != 1 {
			t.Errorf("MeshToFraction(65535) = %v, %v", frac, err)
		}
	})

	t.Run("percent and mesh", func(t *testing.T) {
		got, err := PercentToMesh(50)
		if err != nil || got != 32768 {
			t.Errorf("PercentToMesh(50) = %v, %v, want 32768", got, err)
		}
		pct, err := MeshToPercent(65535)
		if err != nil || pct != 100 {
			t.Errorf("MeshToPercent(65535) = %v, %v", pct, err)
		}
	})
}

// TestBrightnessMeshRoundTrip verifies the brightness to mesh mapping
// is lossless for every brightness step.
func TestBrightnessMeshRoundTrip(t *testing.T) {
	for b := 0; b <= BrightnessMax; b++ {
		mesh, err := BrightnessToMesh(b)
		if err != nil {
			t.Fatalf("BrightnessToMesh(%d) error = %v", b, err)
		}
		back, err := MeshToBrightness(mesh)
		if err != nil {
			t.Fatalf("MeshToBrightness(%d) error = %v", mesh, err)
		}
		if back != b {
			t.Fatalf("round trip %d -> %d -> %d", b, mesh, back)
		}
	}
}

// TestTemperatureConversions pins known values across the mesh, mired
// and Kelvin scales. The mired mapping is cool-to-warm while the
// Kelvin mapping is warm-to-cool, matching the device firmware.
func TestTemperatureConversions(t *testing.T) {
	tests := []struct {
		name string
		fn   func(int) (int, error)
		in   int
		want int
	}{
		{"MeshToMireds min", MeshToMireds, 0, 153},
		{"MeshToMireds max", MeshToMireds, 65535, 500},
		{"MeshToMireds mid", MeshToMireds, 32768, 327},
		{"MiredsToMesh min", MiredsToMesh, 153, 0},
		{"MiredsToMesh max", MiredsToMesh, 500, 65535},
		{"MiredsToMesh mid", MiredsToMesh, 327, 32862},
		{"MeshToKelvin min", MeshToKelvin, 0, 2000},
		{"MeshToKelvin max", MeshToKelvin, 65535, 6500},
		{"MeshToKelvin mid", MeshToKelvin, 32768, 4250},
		{"KelvinToMesh min", KelvinToMesh, 2000, 0},
		{"KelvinToMesh max", KelvinToMesh, 6500, 65535},
		{"KelvinToMesh mid", KelvinToMesh, 4250, 32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn(tt.in)
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

// TestMiredsMeshRoundTrip verifies the mired mapping is lossless for
// every mired step.
func TestMiredsMeshRoundTrip(t *testing.T) {
	for m := MinMireds; m <= MaxMireds; m++ {
		mesh, err := MiredsToMesh(m)
		if err != nil {
			t.Fatalf("MiredsToMesh(%d) error = %v", m, err)
		}
		back, err := MeshToMireds(mesh)
		if err != nil {
			t.Fatalf("MeshToMireds(%d) error = %v", mesh, err)
		}
		if back != m {
			t.Fatalf("round trip %d -> %d -> %d", m, mesh, back)
		}
	}
}

// TestKelvinMeshRoundTrip verifies the Kelvin mapping is lossless for
// every Kelvin step.
func TestKelvinMeshRoundTrip(t *testing.T) {
	for k := MinKelvin; k <= MaxKelvin; k++ {
		mesh, err := KelvinToMesh(k)
		if err != nil {
			t.Fatalf("KelvinToMesh(%d) error = %v", k, err)
		}
		back, err := MeshToKelvin(mesh)
		if err != nil {
			t.Fatalf("MeshToKelvin(%d) error = %v", mesh, err)
		}
		if back != k {
			t.Fatalf("round trip %d -> %d -> %d", k, mesh, back)
		}
	}
}

// TestConversionRanges verifies out-of-range inputs are rejected with
// ErrOutOfRange.
func TestConversionRanges(t *testing.T) {
	checks := []struct {
		name string
		err  error
	}{
		{"brightness low", func() error { _, err := BrightnessToFraction(-1); return err }()},
		{"brightness high", func() error { _, err := BrightnessToFraction(256); return err }()},
		{"fraction low", func() error { _, err := FractionToBrightness(-0.01); return err }()},
		{"fraction high", func() error { _, err := FractionToMesh(1.01); return err }()},
		{"mesh low", func() error { _, err := MeshToBrightness(-1); return err }()},
		{"mesh high", func() error { _, err := MeshToMireds(65536); return err }()},
		{"mireds low", func() error { _, err := MiredsToMesh(152); return err }()},
		{"mireds high", func() error { _, err := MiredsToMesh(501); return err }()},
		{"kelvin low", func() error { _, err := KelvinToMesh(1999); return err }()},
		{"kelvin high", func() error { _, err := KelvinToMesh(6501); return err }()},
		{"percent high", func() error { _, err := PercentToMesh(101); return err }()},
	}

	for _, tt := range checks {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, ErrOutOfRange) {
				t.Errorf("error = %v, want ErrOutOfRange", tt.err)
			}
		})
	}
}
