package metrics

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	unmatchedRoute = "unmatched"
	methodUse      = "USE"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billboard",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "billboard",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "path"})

	// Analysis metrics
	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billboard",
		Subsystem: "analysis",
		Name:      "verdicts_total",
		Help:      "Total verdicts issued, by pipeline state",
	}, []string{"state"})

	ModelUnavailableTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "billboard",
		Subsystem: "analysis",
		Name:      "model_unavailable_total",
		Help:      "Analyses served while the detection model was unavailable",
	})

	AnalysisErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "billboard",
		Subsystem: "analysis",
		Name:      "errors_total",
		Help:      "Analyses aborted by a detector fault",
	})

	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "billboard",
		Subsystem: "analysis",
		Name:      "inference_duration_seconds",
		Help:      "Duration of the detect and classify pipeline",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billboard",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billboard",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "billboard",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "billboard",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "billboard",
		Subsystem: "db",
		Name:      "pool_conns_in_use",
		Help:      "Connections currently in use",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "billboard",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		path := routeLabel(c)
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// routeLabel is the registered route pattern, or unmatchedRoute when the
// request only passed through middleware.
func routeLabel(c *fiber.Ctx) string {
	route := c.Route()
	if route == nil || route.Path == "" || route.Method == methodUse {
		return unmatchedRoute
	}
	return route.Path
}

// Handler returns a Fiber handler serving the Prometheus exposition.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

func UpdateDBPoolMetrics(stats sql.DBStats) {
	DBPoolConnsOpen.Set(float64(stats.OpenConnections))
	DBPoolConnsInUse.Set(float64(stats.InUse))
	DBPoolConnsIdle.Set(float64(stats.Idle))
}
