package analysisHandler

import (
	analysisService "BillboardAnalyzer/internal/api/analysis/service"
	"BillboardAnalyzer/internal/middleware"
	"BillboardAnalyzer/pkg/utils"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const defaultAnalyzeTimeout = 30 * time.Second

type AnalysisHandler struct {
	log             *logrus.Logger
	validator       *validator.Validate
	middleware      middleware.Middleware
	analysisService analysisService.IAnalysisService
	utils           utils.IUtils
	analyzeTimeout  time.Duration
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	as analysisService.IAnalysisService,
	utils utils.IUtils,
) *AnalysisHandler {
	return &AnalysisHandler{
		log:             log,
		validator:       validator,
		middleware:      middleware,
		analysisService: as,
		utils:           utils,
		analyzeTimeout:  defaultAnalyzeTimeout,
	}
}

func (h *AnalysisHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	srv.Post("/analyze", h.middleware.NewRateLimiter, h.Analyze)

	analyze := srv.Group("/analyze")
	analyze.Use("/ws", wsMiddleware)
	analyze.Get("/ws", websocket.New(h.handleAnalyzeWebSocket))

	srv.Get("/zones", h.Zones)
	srv.Get("/submissions", h.ListSubmissions)
	srv.Get("/submissions/:id", h.GetSubmission)
}

// StartRoot mounts the unversioned upload path used by the mobile client.
func (h *AnalysisHandler) StartRoot(app fiber.Router) {
	app.Post("/analyze", h.middleware.NewRateLimiter, h.Analyze)
}
