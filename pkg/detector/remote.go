package detector

import (
	"bytes"
	"context"
	"fmt"
	"image"

	websocketPkg "BillboardAnalyzer/pkg/websocket"

	"github.com/disintegration/imaging"
)

type remoteBackend struct {
	client websocketPkg.IWebsocket
}

// NewRemoteBackend runs inference on an external server reached over a websocket.
func NewRemoteBackend(client websocketPkg.IWebsocket) Backend {
	return &remoteBackend{client: client}
}

func (b *remoteBackend) Name() string {
	return "remote"
}

func (b *remoteBackend) Infer(ctx context.Context, img image.Image) ([]Box, error) {
	frame, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}

	result, err := b.client.ProcessFrame(ctx, frame)
	if err != nil {
		return nil, err
	}

	boxes := make([]Box, 0, len(result.Detections))
	for _, d := range result.Detections {
		box := Box{
			Confidence: float32(d.Confidence),
			Class:      d.Class,
			Label:      d.Label,
		}
		if len(d.BBox) == 4 {
			box.X1 = float32(d.BBox[0])
			box.Y1 = float32(d.BBox[1])
			box.X2 = float32(d.BBox[2])
			box.Y2 = float32(d.BBox[3])
		}
		boxes = append(boxes, box)
	}

	return boxes, nil
}

func (b *remoteBackend) Close() error {
	b.client.CloseConnections()
	return nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
