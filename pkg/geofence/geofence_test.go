package geofence_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"BillboardAnalyzer/pkg/geofence"
)

func TestClassify_DefaultZones(t *testing.T) {
	cl := geofence.NewClassifier(geofence.DefaultZones())

	tests := []struct {
		name       string
		coord      geofence.Coordinate
		authorized bool
		reasonPart string
	}{
		{"commercial", geofence.Coordinate{Latitude: 9.9252, Longitude: 78.1198}, true, "commercial zone"},
		{"residential", geofence.Coordinate{Latitude: 9.9400, Longitude: 78.1400}, false, "residential zone"},
		{"new york", geofence.Coordinate{Latitude: 40.7128, Longitude: -74.0060}, false, "no known zone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := cl.Classify(tt.coord)
			if ok != tt.authorized {
				t.Errorf("expected authorized=%v, got %v", tt.authorized, ok)
			}
			if !strings.Contains(reason, tt.reasonPart) {
				t.Errorf("expected reason to contain %q, got %q", tt.reasonPart, reason)
			}
		})
	}
}

func TestZoneContains_InclusiveEdges(t *testing.T) {
	z := geofence.Zone{LatMin: 1, LatMax: 2, LonMin: 3, LonMax: 4}

	edges := []geofence.Coordinate{
		{Latitude: 1, Longitude: 3.5},
		{Latitude: 2, Longitude: 3.5},
		{Latitude: 1.5, Longitude: 3},
		{Latitude: 1.5, Longitude: 4},
		{Latitude: 2, Longitude: 4},
	}
	for _, c := range edges {
		if !z.Contains(c) {
			t.Errorf("expected %+v to be inside", c)
		}
	}

	outside := []geofence.Coordinate{
		{Latitude: 0.9999, Longitude: 3.5},
		{Latitude: 2.0001, Longitude: 3.5},
		{Latitude: 1.5, Longitude: 2.9999},
		{Latitude: 1.5, Longitude: 4.0001},
	}
	for _, c := range outside {
		if z.Contains(c) {
			t.Errorf("expected %+v to be outside", c)
		}
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	cl := geofence.NewClassifier([]geofence.Zone{
		{Name: "wide", LatMin: 0, LatMax: 10, LonMin: 0, LonMax: 10, Authorized: false, Reason: "wide"},
		{Name: "narrow", LatMin: 4, LatMax: 6, LonMin: 4, LonMax: 6, Authorized: true, Reason: "narrow"},
	})

	ok, reason := cl.Classify(geofence.Coordinate{Latitude: 5, Longitude: 5})
	if ok || reason != "wide" {
		t.Fatalf("expected first configured zone to win, got %v %q", ok, reason)
	}
}

func TestClassify_EmptyZoneList(t *testing.T) {
	cl := geofence.NewClassifier(nil)

	ok, reason := cl.Classify(geofence.Coordinate{Latitude: 9.9252, Longitude: 78.1198})
	if ok {
		t.Fatal("expected unauthorized with no zones configured")
	}
	if reason != geofence.ReasonNoKnownZone {
		t.Errorf("unexpected reason %q", reason)
	}
}

func TestNewClassifier_CopiesZones(t *testing.T) {
	zones := geofence.DefaultZones()
	cl := geofence.NewClassifier(zones)

	zones[0].Authorized = false
	zones[0].Reason = "mutated"

	ok, reason := cl.Classify(geofence.Coordinate{Latitude: 9.9252, Longitude: 78.1198})
	if !ok || reason == "mutated" {
		t.Fatalf("classifier picked up caller mutation: %v %q", ok, reason)
	}

	listed := cl.Zones()
	listed[0].Name = "changed"
	if cl.Zones()[0].Name != "commercial" {
		t.Error("Zones() must return a copy")
	}
}

func TestLoadZones_EmptyPathUsesDefaults(t *testing.T) {
	zones, err := geofence.LoadZones("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(zones) != len(geofence.DefaultZones()) {
		t.Fatalf("expected %d default zones, got %d", len(geofence.DefaultZones()), len(zones))
	}
}

func TestLoadZones_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	content := `zones:
  - name: downtown
    lat_min: 10.0
    lat_max: 10.5
    lon_min: 20.0
    lon_max: 20.5
    authorized: true
    reason: Downtown billboard corridor.
  - name: park
    lat_min: 10.1
    lat_max: 10.2
    lon_min: 20.1
    lon_max: 20.2
    authorized: false
    reason: Parks do not allow billboards.
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write zone file: %v", err)
	}

	zones, err := geofence.LoadZones(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(zones) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(zones))
	}
	if zones[0].Name != "downtown" || !zones[0].Authorized {
		t.Errorf("unexpected first zone: %+v", zones[0])
	}

	// park overlaps downtown but is configured second
	ok, reason := geofence.NewClassifier(zones).Classify(geofence.Coordinate{Latitude: 10.15, Longitude: 20.15})
	if !ok || reason != "Downtown billboard corridor." {
		t.Errorf("expected downtown to win, got %v %q", ok, reason)
	}
}

func TestParseZones_Invalid(t *testing.T) {
	_, err := geofence.ParseZones([]byte("zones: []\n"))
	if !errors.Is(err, geofence.ErrNoZones) {
		t.Fatalf("expected ErrNoZones, got %v", err)
	}

	_, err = geofence.ParseZones([]byte(`zones:
  - name: ""
    lat_min: 2
    lat_max: 1
    lon_min: 0
    lon_max: 1
    reason: ""
`))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, part := range []string{"name is required", "reason is required", "lat_min"} {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("expected error to mention %q, got %v", part, err)
		}
	}
}

func TestLoadZones_MissingFile(t *testing.T) {
	if _, err := geofence.LoadZones(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
