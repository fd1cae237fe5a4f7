package device

import (
	"testing"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/cloud"
)

// TestTypePredicates verifies capability classification across the
// product families.
func TestTypePredicates(t *testing.T) {
	tests := []struct {
		typ       Type
		light     bool
		colorTemp bool
		hsl       bool
		socket    bool
		sensor    bool
	}{
		{TypeLEDWhite, true, false, false, false, false},
		{TypeLEDWhiteStrip, true, false, false, false, false},
		{TypeLEDMultiwhiteSpot, true, true, false, false, false},
		{TypeLEDMultiwhite2700K, true, true, false, false, false},
		{TypeLEDRGB, true, false, true, false, false},
		{TypeLEDRGBSpot, true, false, true, false, false},
		{TypeQDevMultiwhite, false, true, false, false, false},
		{TypeGenericLEDMultiwhite, true, true, false, false, false},
		{TypeGenericLEDRGB, true, false, true, false, false},
		{TypeNimbusQClassic, true, true, false, false, false},
		{TypeNimbusZen, true, false, false, false, false},
		{TypeNimbusLeggera, true, false, false, false, false},
		{TypeSocket, false, false, false, true, false},
		{TypeLedvanceSocket, false, false, false, true, false},
		{TypeJungSocket, false, false, false, true, false},
		{TypeMotionSensor, false, false, false, false, true},
		{TypeFurnitureSensorMains, false, false, false, false, true},
		{TypeFurnitureSensorBattery, false, false, false, false, true},
		{TypeTVLift, false, false, false, false, false},
		{TypePushlock, false, false, false, false, false},
		{TypeWallController, false, false, false, false, false},
		// "com.generic.level" must not match the "com.generic.led" prefix.
		{TypeGenericLevel, false, false, false, false, false},
		{Type("com.example.widget"), false, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := tt.typ.IsLight(); got != tt.light {
				t.Errorf("IsLight() = %v, want %v", got, tt.light)
			}
			if got := tt.typ.SupportsColorTemp(); got != tt.colorTemp {
				t.Errorf("SupportsColorTemp() = %v, want %v", got, tt.colorTemp)
			}
			if got := tt.typ.SupportsHSL(); got != tt.hsl {
				t.Errorf("SupportsHSL() = %v, want %v", got, tt.hsl)
			}
			if got := tt.typ.IsSocket(); got != tt.socket {
				t.Errorf("IsSocket() = %v, want %v", got, tt.socket)
			}
			if got := tt.typ.IsSensor(); got != tt.sensor {
				t.Errorf("IsSensor() = %v, want %v", got, tt.sensor)
			}
		})
	}
}

// TestTypeManufacturer verifies the vendor derivation from the type
// prefix, including the fallback for unrecognised prefixes.
func TestTypeManufacturer(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{TypeLedvanceSocket, "LEDVANCE"},
		{TypeJungSocket, "JUNG"},
		{TypeNimbusZen, "Nimbus"},
		{TypeLEDWhite, "Häfele"},
		{TypeGenericLEDRGB, "Generic"},
		{TypeNordicDevkitLevel, "Unknown"},
		{Type(""), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := tt.typ.Manufacturer(); got != tt.want {
				t.Errorf("Manufacturer() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestFromCloud verifies the catalogue field mapping from the cloud
// representation.
func TestFromCloud(t *testing.T) {
	cd := cloud.Device{
		ID:                "obj-1",
		UniqueID:          "uid-1",
		NetworkID:         "net-1",
		Name:              "Worktop Spots",
		Description:       "under cabinet",
		Type:              "com.haefele.led.multiwhite.spot",
		UnicastAddress:    42,
		BLEAddress:        "AA:BB:CC:DD:EE:FF",
		MACBytes:          "aabbccddeeff",
		BootloaderVersion: "3.2.1",
		DeviceKey:         "secret",
		Elements: []cloud.Element{
			{DeviceID: "uid-1", UnicastAddress: 42, Models: []int{4096, 4871}},
		},
	}

	d := FromCloud(cd)

	if d.UniqueID != "uid-1" || d.ID != "obj-1" || d.NetworkID != "net-1" {
		t.Errorf("identity fields = %q/%q/%q", d.UniqueID, d.ID, d.NetworkID)
	}
	if d.Type != TypeLEDMultiwhiteSpot {
		t.Errorf("Type = %q, want %q", d.Type, TypeLEDMultiwhiteSpot)
	}
	if !d.Type.SupportsColorTemp() {
		t.Error("expected colour temperature support")
	}
	if d.UnicastAddress != 42 || d.BootloaderVersion != "3.2.1" {
		t.Errorf("addressing fields = %d/%q", d.UnicastAddress, d.BootloaderVersion)
	}
	if len(d.Elements) != 1 || len(d.Elements[0].Models) != 2 {
		t.Fatalf("Elements = %+v", d.Elements)
	}
	if d.State != nil || d.Online {
		t.Error("new device should carry no state or availability")
	}

	// The element model slice must be independent of the cloud value.
	cd.Elements[0].Models[0] = 9999
	if d.Elements[0].Models[0] != 4096 {
		t.Error("element models share backing array with cloud device")
	}
}

// TestStateFromCloud verifies mesh-scale rounding and optional field
// handling when converting a polled status.
func TestStateFromCloud(t *testing.T) {
	lightness := 32767.6
	last := 65535.0
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	st := StateFromCloud(cloud.DeviceState{
		Power:         true,
		Lightness:     &lightness,
		LastLightness: &last,
	}, at)

	if !st.Power {
		t.Error("Power = false, want true")
	}
	if st.Lightness == nil || *st.Lightness != 32768 {
		t.Errorf("Lightness = %v, want 32768", st.Lightness)
	}
	if st.LastLightness == nil || *st.LastLightness != 65535 {
		t.Errorf("LastLightness = %v, want 65535", st.LastLightness)
	}
	if st.Temperature != nil || st.Hue != nil || st.Saturation != nil {
		t.Error("absent cloud fields should stay nil")
	}
	if !st.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want %v", st.UpdatedAt, at)
	}
}

// TestDeviceDeepCopy verifies that mutations of a copy never reach the
// original through shared slices or pointers.
func TestDeviceDeepCopy(t *testing.T) {
	lightness := 100
	original := &Device{
		UniqueID: "uid-1",
		Name:     "Pantry Light",
		Type:     TypeLEDWhite,
		Elements: []Element{
			{DeviceID: "uid-1", UnicastAddress: 7, Models: []int{4096}},
		},
		State: &State{Power: true, Lightness: &lightness},
	}

	cpy := original.DeepCopy()

	cpy.Name = "changed"
	cpy.Elements[0].Models[0] = 1
	*cpy.State.Lightness = 1
	cpy.State.Power = false

	if original.Name != "Pantry Light" {
		t.Errorf("Name mutated through copy: %q", original.Name)
	}
	if original.Elements[0].Models[0] != 4096 {
		t.Error("element models mutated through copy")
	}
	if *original.State.Lightness != 100 {
		t.Error("state lightness mutated through copy")
	}
	if !original.State.Power {
		t.Error("state power mutated through copy")
	}
}

// TestDeviceDeepCopyNil verifies nil receivers are passed through.
func TestDeviceDeepCopyNil(t *testing.T) {
	var d *Device
	if d.DeepCopy() != nil {
		t.Error("DeepCopy of nil device should be nil")
	}
	var s *State
	if s.DeepCopy() != nil {
		t.Error("DeepCopy of nil state should be nil")
	}
}
