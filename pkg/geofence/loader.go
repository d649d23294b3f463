package geofence

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

var ErrNoZones = errors.New("zone file defines no zones")

type zoneFile struct {
	Zones []Zone `yaml:"zones"`
}

// LoadZones reads zones from a YAML file. An empty path yields DefaultZones.
func LoadZones(path string) ([]Zone, error) {
	if path == "" {
		return DefaultZones(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zone file: %w", err)
	}

	return ParseZones(raw)
}

func ParseZones(raw []byte) ([]Zone, error) {
	var f zoneFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse zone file: %w", err)
	}

	if len(f.Zones) == 0 {
		return nil, ErrNoZones
	}

	var errs []string
	for i, z := range f.Zones {
		if strings.TrimSpace(z.Name) == "" {
			errs = append(errs, fmt.Sprintf("zones[%d]: name is required", i))
		}
		if strings.TrimSpace(z.Reason) == "" {
			errs = append(errs, fmt.Sprintf("zones[%d]: reason is required", i))
		}
		if z.LatMin > z.LatMax {
			errs = append(errs, fmt.Sprintf("zones[%d]: lat_min %.6f is greater than lat_max %.6f", i, z.LatMin, z.LatMax))
		}
		if z.LonMin > z.LonMax {
			errs = append(errs, fmt.Sprintf("zones[%d]: lon_min %.6f is greater than lon_max %.6f", i, z.LonMin, z.LonMax))
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid zone file:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return f.Zones, nil
}
