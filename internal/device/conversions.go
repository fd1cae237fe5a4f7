package device

import (
	"fmt"
	"math"
)

// Scale boundaries for the lightness and colour temperature
// representations the bridge translates between. Lightness exists on
// three scales: Home Assistant brightness (0-255), the cloud command
// fraction (0.0-1.0) and the mesh scale (0-65535). Colour temperature
// exists on the mesh scale, in Kelvin and in mireds.
const (
	// BrightnessMax is the Home Assistant brightness ceiling.
	BrightnessMax = 255

	// MeshMax is the upper bound of mesh lightness and temperature values.
	MeshMax = 65535

	// MinKelvin and MaxKelvin bound the colour temperatures the
	// multiwhite hardware accepts.
	MinKelvin = 2000
	MaxKelvin = 6500

	// MinMireds and MaxMireds are the mired equivalents advertised in
	// MQTT discovery payloads.
	MinMireds = 153
	MaxMireds = 500
)

// BrightnessToFraction converts a 0-255 brightness value to the 0.0-1.0
// fraction the cloud lightness command expects.
func BrightnessToFraction(brightness int) (float64, error) {
	if brightness < 0 || brightness > BrightnessMax {
		return 0, fmt.Errorf("%w: brightness %d not in 0-%d", ErrOutOfRange, brightness, BrightnessMax)
	}
	return float64(brightness) / BrightnessMax, nil
}

// FractionToBrightness converts a 0.0-1.0 fraction to a 0-255
// brightness value.
func FractionToBrightness(fraction float64) (int, error) {
	if fraction < 0 || fraction > 1 {
		return 0, fmt.Errorf("%w: fraction %v not in 0-1", ErrOutOfRange, fraction)
	}
	return int(math.Round(fraction * BrightnessMax)), nil
}

// MeshToBrightness converts a mesh lightness value to a 0-255
// brightness value.
func MeshToBrightness(mesh int) (int, error) {
	if mesh < 0 || mesh > MeshMax {
		return 0, fmt.Errorf("%w: mesh value %d not in 0-%d", ErrOutOfRange, mesh, MeshMax)
	}
	return int(math.Round(float64(mesh) / MeshMax * BrightnessMax)), nil
}

// BrightnessToMesh converts a 0-255 brightness value to the mesh scale.
func BrightnessToMesh(brightness int) (int, error) {
	if brightness < 0 || brightness > BrightnessMax {
		return 0, fmt.Errorf("%w: brightness %d not in 0-%d", ErrOutOfRange, brightness, BrightnessMax)
	}
	return int(math.Round(float64(brightness) / BrightnessMax * MeshMax)), nil
}

// FractionToMesh converts a 0.0-1.0 fraction to the mesh scale.
func FractionToMesh(fraction float64) (int, error) {
	if fraction < 0 || fraction > 1 {
		return 0, fmt.Errorf("%w: fraction %v not in 0-1", ErrOutOfRange, fraction)
	}
	return int(math.Round(fraction * MeshMax)), nil
}

// MeshToFraction converts a mesh lightness value to a 0.0-1.0 fraction.
func MeshToFraction(mesh int) (float64, error) {
	if mesh < 0 || mesh > MeshMax {
		return 0, fmt.Errorf("%w: mesh value %d not in 0-%d", ErrOutOfRange, mesh, MeshMax)
	}
	return float64(mesh) / MeshMax, nil
}

// MeshToPercent converts a mesh lightness value to a 0-100 percentage.
func MeshToPercent(mesh int) (int, error) {
	if mesh < 0 || mesh > MeshMax {
		return 0, fmt.Errorf("%w: mesh value %d not in 0-%d", ErrOutOfRange, mesh, MeshMax)
	}
	return int(math.Round(float64(mesh) / MeshMax * 100)), nil
}

// PercentToMesh converts a 0-100 percentage to the mesh scale.
func PercentToMesh(percent int) (int, error) {
	if percent < 0 || percent > 100 {
		return 0, fmt.Errorf("%w: percentage %d not in 0-100", ErrOutOfRange, percent)
	}
	return int(math.Round(float64(percent) / 100 * MeshMax)), nil
}

// MeshToMireds converts a mesh temperature value to mireds. The mesh
// scale maps linearly onto the mired range, so 0 is the coolest and
// 65535 the warmest setting.
func MeshToMireds(mesh int) (int, error) {
	if mesh < 0 || mesh > MeshMax {
		return 0, fmt.Errorf("%w: mesh value %d not in 0-%d", ErrOutOfRange, mesh, MeshMax)
	}
	return int(math.Round(MinMireds + float64(mesh)/MeshMax*(MaxMireds-MinMireds))), nil
}

// MiredsToMesh converts a mired value to the mesh temperature scale.
func MiredsToMesh(mireds int) (int, error) {
	if mireds < MinMireds || mireds > MaxMireds {
		return 0, fmt.Errorf("%w: mireds %d not in %d-%d", ErrOutOfRange, mireds, MinMireds, MaxMireds)
	}
	return int(math.Round(float64(mireds-MinMireds) / (MaxMireds - MinMireds) * MeshMax)), nil
}

// MeshToKelvin converts a mesh temperature value to Kelvin. The mesh
// scale maps linearly onto the Kelvin range, so 0 is the warmest and
// 65535 the coolest setting.
func MeshToKelvin(mesh int) (int, error) {
	if mesh < 0 || mesh > MeshMax {
		return 0, fmt.Errorf("%w: mesh value %d not in 0-%d", ErrOutOfRange, mesh, MeshMax)
	}
	return int(math.Round(MinKelvin + float64(mesh)/MeshMax*(MaxKelvin-MinKelvin))), nil
}

// KelvinToMesh converts a Kelvin value to the mesh temperature scale.
func KelvinToMesh(kelvin int) (int, error) {
	if kelvin < MinKelvin || kelvin > MaxKelvin {
		return 0, fmt.Errorf("%w: kelvin %d not in %d-%d", ErrOutOfRange, kelvin, MinKelvin, MaxKelvin)
	}
	return int(math.Round(float64(kelvin-MinKelvin) / (MaxKelvin - MinKelvin) * MeshMax)), nil
}
