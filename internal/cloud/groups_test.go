package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestGroupUnmarshalNormalisesIDs verifies identifier casing and the
// deviceEntries flattening.
func TestGroupUnmarshalNormalisesIDs(t *testing.T) {
	data := []byte(`{
		"id": "GRP-AA01",
		"networkId": "NET-BB02",
		"name": "Kitchen Worktops",
		"deviceEntries": [
			{"deviceId": "DEV-CC03"},
			{"deviceId": "dev-dd04"}
		]
	}`)

	var group Group
	if err := json.Unmarshal(data, &group); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if group.ID != "grp-aa01" {
		t.Errorf("ID = %q, want grp-aa01", group.ID)
	}
	if group.NetworkID != "net-bb02" {
		t.Errorf("NetworkID = %q, want net-bb02", group.NetworkID)
	}
	if group.Name != "Kitchen Worktops" {
		t.Errorf("Name = %q, want Kitchen Worktops", group.Name)
	}
	want := []string{"dev-cc03", "dev-dd04"}
	if len(group.DeviceIDs) != len(want) {
		t.Fatalf("DeviceIDs = %v, want %v", group.DeviceIDs, want)
	}
	for i, id := range want {
		if group.DeviceIDs[i] != id {
			t.Errorf("DeviceIDs[%d] = %q, want %q", i, group.DeviceIDs[i], id)
		}
	}
}

// TestGroupsForNetworkFilters verifies network filtering is case
// insensitive on the caller's side too.
func TestGroupsForNetworkFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/groups" {
			t.Fatalf("path = %q, want /groups", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"grp-1","networkId":"NET-1","name":"Worktops","deviceEntries":[]},
			{"id":"grp-2","networkId":"net-2","name":"Cabinets","deviceEntries":[]}
		]`))
	}))
	defer server.Close()

	client := newTestClient(server, 1)

	groups, err := client.GroupsForNetwork(context.Background(), "NET-1")
	if err != nil {
		t.Fatalf("GroupsForNetwork() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("len(groups) = %d, want 1", len(groups))
	}
	if groups[0].ID != "grp-1" {
		t.Errorf("ID = %q, want grp-1", groups[0].ID)
	}
}

// TestSetGroupPowerPayload verifies the multicast command payload.
func TestSetGroupPowerPayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server, 1)

	if err := client.SetGroupPower(context.Background(), "grp-1", false, nil); err != nil {
		t.Fatalf("SetGroupPower() error = %v", err)
	}
	if gotPath != "/groups/power" {
		t.Errorf("path = %q, want /groups/power", gotPath)
	}
	if gotBody["power"] != "off" {
		t.Errorf("power = %v, want off", gotBody["power"])
	}
	if gotBody["uniqueId"] != "grp-1" {
		t.Errorf("uniqueId = %v, want grp-1", gotBody["uniqueId"])
	}
}

// TestSetGroupLightnessCommandFailure verifies refused group commands
// surface the cloud's error code.
func TestSetGroupLightnessCommandFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false,"error":"GROUP_UNREACHABLE"}`))
	}))
	defer server.Close()

	client := newTestClient(server, 1)

	err := client.SetGroupLightness(context.Background(), "grp-1", 0.4, nil)
	if !errors.Is(err, ErrCommandFailed) {
		t.Errorf("error = %v, want ErrCommandFailed", err)
	}
}

// TestSetGroupLightnessRejectsOutOfRange verifies range validation.
func TestSetGroupLightnessRejectsOutOfRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should be sent for invalid input")
	}))
	defer server.Close()

	client := newTestClient(server, 1)

	if err := client.SetGroupLightness(context.Background(), "grp-1", 2, nil); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("error = %v, want ErrOutOfRange", err)
	}
}
