package config

import (
	"BillboardAnalyzer/database/postgres"
	analysisHandler "BillboardAnalyzer/internal/api/analysis/handler"
	analysisRepository "BillboardAnalyzer/internal/api/analysis/repository"
	analysisService "BillboardAnalyzer/internal/api/analysis/service"
	"BillboardAnalyzer/internal/middleware"
	"BillboardAnalyzer/pkg/analyzer"
	"BillboardAnalyzer/pkg/detector"
	"BillboardAnalyzer/pkg/gemini"
	"BillboardAnalyzer/pkg/geofence"
	"BillboardAnalyzer/pkg/metrics"
	"BillboardAnalyzer/pkg/redis"
	"BillboardAnalyzer/pkg/s3"
	"BillboardAnalyzer/pkg/utils"
	websocketPkg "BillboardAnalyzer/pkg/websocket"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const defaultDetectorTimeout = 15 * time.Second

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	db          *sqlx.DB
	log         *logrus.Logger
	middleware  middleware.Middleware
	validator   *validator.Validate
	utils       utils.IUtils
	handlers    []handler
	detector    detector.IDetector
	classifier  geofence.IClassifier
	redisServer redis.IRedis
	s3Client    s3.ItfS3
	stopMetrics context.CancelFunc
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.classifier == nil {
		server.classifier = geofence.NewClassifier(geofence.DefaultZones())
	}
	if server.detector == nil {
		server.detector = detector.Unavailable(detector.ErrModelUnavailable, server.log)
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

// WithDatabase connects the submission store. A failed connection disables
// the audit trail instead of aborting startup.
func WithDatabase() ServerOption {
	return func(s *Server) error {
		if os.Getenv("DB_HOST") == "" {
			if s.log != nil {
				s.log.Warn("DB_HOST not set, submission storage disabled")
			}
			return nil
		}

		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database, submission storage disabled: %v", err)
			}
			return nil
		}
		s.db = db
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithS3Client() ServerOption {
	return func(s *Server) error {
		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Warnf("S3 client not initialized, image archive disabled: %v", err)
			}
			return nil
		}
		s.s3Client = client
		return nil
	}
}

// WithZones loads the geofence table from ZONES_FILE, or the built-in zones
// when it is unset. A malformed file is a startup error.
func WithZones() ServerOption {
	return func(s *Server) error {
		zones, err := geofence.LoadZones(os.Getenv("ZONES_FILE"))
		if err != nil {
			return fmt.Errorf("failed to load zones: %w", err)
		}
		s.classifier = geofence.NewClassifier(zones)
		if s.log != nil {
			s.log.Infof("Loaded %d billboard zones", len(zones))
		}
		return nil
	}
}

// WithDetector builds the detection backend named by DETECTOR_BACKEND
// (onnx, remote or gemini). A backend that fails to load leaves the
// detector unavailable, which fails every analysis closed.
func WithDetector() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before detector")
		}

		timeout := defaultDetectorTimeout
		if raw := os.Getenv("DETECTOR_TIMEOUT"); raw != "" {
			if d, err := time.ParseDuration(raw); err == nil && d > 0 {
				timeout = d
			}
		}

		backend, err := newDetectorBackend(strings.ToLower(os.Getenv("DETECTOR_BACKEND")))
		if err != nil {
			s.log.Errorf("Detection model unavailable: %v", err)
			s.detector = detector.Unavailable(err, s.log)
			return nil
		}

		s.log.Infof("Detection backend %q loaded", backend.Name())
		s.detector = detector.New(backend, s.log, detector.WithTimeout(timeout))
		return nil
	}
}

func newDetectorBackend(name string) (detector.Backend, error) {
	switch name {
	case "", "onnx":
		return detector.NewONNXBackend(detector.ONNXConfigFromEnv())
	case "remote":
		return detector.NewRemoteBackend(websocketPkg.NewInferenceClient()), nil
	case "gemini":
		client, err := gemini.NewGeminiClient()
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return detector.NewGeminiBackend(client), nil
	default:
		return nil, fmt.Errorf("unknown detector backend %q", name)
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	var repo analysisRepository.Repository
	if s.db != nil {
		repo = analysisRepository.New(s.db, s.log)
	}

	if !s.detector.Available() {
		s.log.Warn("No detection model loaded, every analysis will report no object")
	}

	analysisServices := analysisService.NewAnalysisService(s.log, analysisService.Dependencies{
		Analyzer:   analyzer.New(s.detector, s.classifier),
		Classifier: s.classifier,
		Repository: repo,
		Cache:      s.redisServer,
		Storage:    s.s3Client,
		Utils:      s.utils,
		CacheTTL:   analysisService.CacheTTLFromEnv(),
	})
	analysisHandlers := analysisHandler.New(s.log, s.validator, s.middleware, analysisServices, s.utils)

	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())
	s.engine.Use(metrics.Middleware())

	s.setupHealthCheck()
	s.engine.Get("/metrics", metrics.Handler())
	analysisHandlers.StartRoot(s.engine)

	s.handlers = append(s.handlers, analysisHandlers)
}

func (s *Server) Run() error {
	router := s.engine.Group("/api/v1")

	for _, h := range s.handlers {
		h.Start(router)
	}

	if s.db != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopMetrics = cancel
		go s.reportDBStats(ctx)
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

func (s *Server) Shutdown() error {
	if s.stopMetrics != nil {
		s.stopMetrics()
	}

	err := s.engine.ShutdownWithTimeout(10 * time.Second)

	if s.detector != nil {
		if cerr := s.detector.Close(); cerr != nil {
			s.log.Warnf("Failed to release detector: %v", cerr)
		}
	}
	if s.redisServer != nil {
		_ = s.redisServer.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}

	return err
}

func (s *Server) reportDBStats(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(s.db.Stats())
		}
	}
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"status":  "OK",
			"message": "Welcome to the Billboard Analysis API!",
		})
	})
}
