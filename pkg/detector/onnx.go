package detector

import (
	"context"
	"fmt"
	"image"
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

type ONNXConfig struct {
	ModelPath      string
	LibraryPath    string
	InputName      string
	OutputName     string
	InputSize      int
	NumClasses     int
	NumPredictions int
	ScoreFloor     float32
	PoolSize       int
}

func ONNXConfigFromEnv() ONNXConfig {
	cfg := ONNXConfig{
		ModelPath:      getEnv("DETECTOR_MODEL_PATH", "./models/yolov8n.onnx"),
		LibraryPath:    os.Getenv("ONNXRUNTIME_LIB_PATH"),
		InputName:      getEnv("DETECTOR_INPUT_NAME", "images"),
		OutputName:     getEnv("DETECTOR_OUTPUT_NAME", "output0"),
		InputSize:      getEnvInt("DETECTOR_INPUT_SIZE", 640),
		NumClasses:     getEnvInt("DETECTOR_NUM_CLASSES", 80),
		NumPredictions: getEnvInt("DETECTOR_NUM_PREDICTIONS", 8400),
		ScoreFloor:     0.25,
		PoolSize:       getEnvInt("DETECTOR_POOL_SIZE", DefaultPoolSize),
	}

	if v, err := strconv.ParseFloat(os.Getenv("DETECTOR_SCORE_FLOOR"), 32); err == nil {
		cfg.ScoreFloor = float32(v)
	}

	return cfg
}

var (
	envOnce sync.Once
	envErr  error
)

func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

type onnxBackend struct {
	cfg  ONNXConfig
	pool *sessionPool
}

// NewONNXBackend loads the model once per pooled session; weights are never
// reloaded afterwards.
func NewONNXBackend(cfg ONNXConfig) (Backend, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	pool, err := newSessionPool(cfg.PoolSize, func() (*modelSession, error) {
		return initSession(cfg)
	})
	if err != nil {
		return nil, err
	}

	return &onnxBackend{cfg: cfg, pool: pool}, nil
}

func (b *onnxBackend) Name() string {
	return "onnx"
}

func (b *onnxBackend) Infer(ctx context.Context, img image.Image) ([]Box, error) {
	session, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer b.pool.Release(session)

	resized := imaging.Resize(img, b.cfg.InputSize, b.cfg.InputSize, imaging.Linear)
	fillInput(resized, session.input.GetData(), b.cfg.InputSize)

	if err := session.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	boxes := decodePredictions(session.output.GetData(), b.cfg.NumClasses, b.cfg.NumPredictions, b.cfg.ScoreFloor)

	bounds := img.Bounds()
	scaleBoxes(boxes, b.cfg.InputSize, bounds.Dx(), bounds.Dy())

	return suppress(boxes, IoUThreshold), nil
}

func (b *onnxBackend) Close() error {
	b.pool.Destroy()
	return nil
}

type modelSession struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func (m *modelSession) Destroy() {
	if m.session != nil {
		m.session.Destroy()
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
}

func initSession(cfg ONNXConfig) (*modelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	threads := runtime.NumCPU() / max(cfg.PoolSize, 1)
	options.SetIntraOpNumThreads(max(threads, 1))
	options.SetInterOpNumThreads(1)

	inputShape := ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize))
	outputShape := ort.NewShape(1, int64(4+cfg.NumClasses), int64(cfg.NumPredictions))

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &modelSession{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
	}, nil
}

// fillInput writes pic as a normalised CHW float buffer.
func fillInput(pic *image.NRGBA, dst []float32, size int) {
	channelSize := size * size
	for y := 0; y < size; y++ {
		row := pic.Pix[y*pic.Stride:]
		for x := 0; x < size; x++ {
			i := y*size + x
			p := row[x*4 : x*4+3]
			dst[i] = float32(p[0]) / 255.0
			dst[channelSize+i] = float32(p[1]) / 255.0
			dst[channelSize*2+i] = float32(p[2]) / 255.0
		}
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, err := strconv.Atoi(os.Getenv(key)); err == nil && val > 0 {
		return val
	}
	return defaultVal
}
