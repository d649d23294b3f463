package geofence

const ReasonNoKnownZone = "Billboard location is in no known zone."

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Zone is an axis-aligned lat/lon rectangle carrying its own verdict.
type Zone struct {
	Name       string  `json:"name" yaml:"name"`
	LatMin     float64 `json:"lat_min" yaml:"lat_min"`
	LatMax     float64 `json:"lat_max" yaml:"lat_max"`
	LonMin     float64 `json:"lon_min" yaml:"lon_min"`
	LonMax     float64 `json:"lon_max" yaml:"lon_max"`
	Authorized bool    `json:"authorized" yaml:"authorized"`
	Reason     string  `json:"reason" yaml:"reason"`
}

// Contains reports whether c lies inside the zone. All four edges are inclusive.
func (z Zone) Contains(c Coordinate) bool {
	if c.Latitude < z.LatMin || c.Latitude > z.LatMax {
		return false
	}
	if c.Longitude < z.LonMin || c.Longitude > z.LonMax {
		return false
	}
	return true
}

type IClassifier interface {
	Classify(c Coordinate) (bool, string)
	Zones() []Zone
}

type classifier struct {
	zones []Zone
}

// NewClassifier keeps its own copy of zones; order is priority order.
func NewClassifier(zones []Zone) IClassifier {
	owned := make([]Zone, len(zones))
	copy(owned, zones)

	return &classifier{zones: owned}
}

// Classify returns the verdict of the first zone containing c.
func (cl *classifier) Classify(c Coordinate) (bool, string) {
	for _, z := range cl.zones {
		if z.Contains(c) {
			return z.Authorized, z.Reason
		}
	}

	return false, ReasonNoKnownZone
}

func (cl *classifier) Zones() []Zone {
	out := make([]Zone, len(cl.zones))
	copy(out, cl.zones)
	return out
}

func DefaultZones() []Zone {
	return []Zone{
		{
			Name:       "commercial",
			LatMin:     9.9100,
			LatMax:     9.9300,
			LonMin:     78.1000,
			LonMax:     78.1300,
			Authorized: true,
			Reason:     "Billboard is located in an authorized commercial zone.",
		},
		{
			Name:       "residential",
			LatMin:     9.9350,
			LatMax:     9.9450,
			LonMin:     78.1350,
			LonMax:     78.1450,
			Authorized: false,
			Reason:     "Billboard is located in a residential zone where billboards are not permitted.",
		},
	}
}
