package detector

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"strings"

	"BillboardAnalyzer/pkg/gemini"
)

const objectListPrompt = `
	List every distinct physical object visible in this photograph.
	For each object give a short label, a confidence between 0 and 1, and its
	bounding box as [ymin, xmin, ymax, xmax] normalised to 0-1000.

	Output format:
	{
		"objects": [
			{"label": "billboard", "confidence": 0.92, "box_2d": [120, 80, 560, 940]}
		]
	}

	If nothing is visible return {"objects": []}.
	Return ONLY the JSON, without any additional text.
	`

type geminiObject struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box_2d"`
}

type geminiObjectList struct {
	Objects []geminiObject `json:"objects"`
}

type geminiBackend struct {
	client gemini.IGemini
}

// NewGeminiBackend asks a Gemini vision model to enumerate objects.
func NewGeminiBackend(client gemini.IGemini) Backend {
	return &geminiBackend{client: client}
}

func (b *geminiBackend) Name() string {
	return "gemini"
}

func (b *geminiBackend) Infer(ctx context.Context, img image.Image) ([]Box, error) {
	frame, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}

	reply, err := b.client.AnalyzeImage(ctx, frame, objectListPrompt)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return parseObjectList(reply, bounds.Dx(), bounds.Dy())
}

func (b *geminiBackend) Close() error {
	b.client.Close()
	return nil
}

func parseObjectList(response string, width, height int) ([]Box, error) {
	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")

	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return nil, errors.New("cannot find valid JSON in response")
	}

	var list geminiObjectList
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &list); err != nil {
		return nil, err
	}

	boxes := make([]Box, 0, len(list.Objects))
	for _, obj := range list.Objects {
		box := Box{
			Confidence: float32(obj.Confidence),
			Class:      -1,
			Label:      obj.Label,
		}
		if len(obj.Box) == 4 {
			box.Y1 = float32(obj.Box[0] / 1000 * float64(height))
			box.X1 = float32(obj.Box[1] / 1000 * float64(width))
			box.Y2 = float32(obj.Box[2] / 1000 * float64(height))
			box.X2 = float32(obj.Box[3] / 1000 * float64(width))
		}
		boxes = append(boxes, box)
	}

	return boxes, nil
}
