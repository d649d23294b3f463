package analyzer

import (
	"context"
	"image"

	"BillboardAnalyzer/pkg/detector"
	"BillboardAnalyzer/pkg/geofence"
)

const ReasonNoObject = "Billboard is not authorized: no object detected in the image."

type State string

const (
	StateNoObject     State = "NO_OBJECT"
	StateAuthorized   State = "AUTHORIZED"
	StateUnauthorized State = "UNAUTHORIZED"
)

type Verdict struct {
	IsAuthorized bool   `json:"is_authorized"`
	Reason       string `json:"reason"`
}

type Result struct {
	Verdict        Verdict
	State          State
	Detections     int
	ModelAvailable bool
}

type PresenceDetector interface {
	Detect(ctx context.Context, img image.Image) (detector.Detection, error)
}

type ZoneClassifier interface {
	Classify(c geofence.Coordinate) (bool, string)
}

type IAnalyzer interface {
	Analyze(ctx context.Context, img image.Image, coord geofence.Coordinate) (Result, error)
}

type analyzer struct {
	detector PresenceDetector
	zones    ZoneClassifier
}

func New(d PresenceDetector, z ZoneClassifier) IAnalyzer {
	return &analyzer{
		detector: d,
		zones:    z,
	}
}

// Analyze runs detection and, only when an object is present, the zone check.
// The returned error is non-nil only for detector backend faults.
func (a *analyzer) Analyze(ctx context.Context, img image.Image, coord geofence.Coordinate) (Result, error) {
	detection, err := a.detector.Detect(ctx, img)
	if err != nil {
		return Result{}, err
	}

	if !detection.Present {
		return Result{
			Verdict:        Verdict{IsAuthorized: false, Reason: ReasonNoObject},
			State:          StateNoObject,
			ModelAvailable: detection.Available,
		}, nil
	}

	authorized, reason := a.zones.Classify(coord)

	state := StateUnauthorized
	if authorized {
		state = StateAuthorized
	}

	return Result{
		Verdict:        Verdict{IsAuthorized: authorized, Reason: reason},
		State:          state,
		Detections:     len(detection.Boxes),
		ModelAvailable: detection.Available,
	}, nil
}
