// Package detector answers whether any object is present in a decoded image.
//
// Any box returned by the backend counts as presence. Detections are not
// filtered by class label, so a photographed car counts the same as a
// billboard.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrModelUnavailable = errors.New("detection model unavailable")

type Box struct {
	X1         float32 `json:"x1"`
	Y1         float32 `json:"y1"`
	X2         float32 `json:"x2"`
	Y2         float32 `json:"y2"`
	Confidence float32 `json:"confidence"`
	Class      int     `json:"class"`
	Label      string  `json:"label,omitempty"`
}

type Detection struct {
	Present   bool
	Boxes     []Box
	Available bool
}

// Backend runs one model over one image. Implementations must be safe for
// concurrent use.
type Backend interface {
	Name() string
	Infer(ctx context.Context, img image.Image) ([]Box, error)
	Close() error
}

type IDetector interface {
	Detect(ctx context.Context, img image.Image) (Detection, error)
	Available() bool
	Close() error
}

type Option func(*detector)

func WithTimeout(timeout time.Duration) Option {
	return func(d *detector) {
		d.timeout = timeout
	}
}

type detector struct {
	backend Backend
	cause   error
	timeout time.Duration
	log     *logrus.Logger
}

func New(backend Backend, log *logrus.Logger, options ...Option) IDetector {
	d := &detector{
		backend: backend,
		log:     log,
	}

	for _, option := range options {
		option(d)
	}

	if backend == nil {
		d.cause = ErrModelUnavailable
	}

	return d
}

// Unavailable returns a detector that fails closed on every call.
func Unavailable(cause error, log *logrus.Logger) IDetector {
	if cause == nil {
		cause = ErrModelUnavailable
	} else if !errors.Is(cause, ErrModelUnavailable) {
		cause = fmt.Errorf("%w: %w", ErrModelUnavailable, cause)
	}

	return &detector{
		cause: cause,
		log:   log,
	}
}

func (d *detector) Available() bool {
	return d.backend != nil
}

func (d *detector) Detect(ctx context.Context, img image.Image) (Detection, error) {
	if d.backend == nil {
		d.log.WithFields(logrus.Fields{
			"error": d.cause.Error(),
		}).Warn("Detection model unavailable, reporting no object")
		return Detection{Available: false}, nil
	}

	if img == nil || img.Bounds().Empty() {
		d.log.Debug("Empty image buffer, reporting no object")
		return Detection{Available: true}, nil
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	boxes, err := d.backend.Infer(ctx, img)
	if err != nil {
		return Detection{Available: true}, fmt.Errorf("%s inference: %w", d.backend.Name(), err)
	}

	d.log.WithFields(logrus.Fields{
		"backend":    d.backend.Name(),
		"boxes":      len(boxes),
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("Inference finished")

	return Detection{
		Present:   len(boxes) > 0,
		Boxes:     boxes,
		Available: true,
	}, nil
}

func (d *detector) Close() error {
	if d.backend == nil {
		return nil
	}
	return d.backend.Close()
}
