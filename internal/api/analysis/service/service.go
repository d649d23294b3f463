package analysisService

import (
	"BillboardAnalyzer/internal/api/analysis"
	analysisRepository "BillboardAnalyzer/internal/api/analysis/repository"
	"BillboardAnalyzer/internal/entity"
	"BillboardAnalyzer/pkg/analyzer"
	"BillboardAnalyzer/pkg/geofence"
	"BillboardAnalyzer/pkg/redis"
	"BillboardAnalyzer/pkg/s3"
	"BillboardAnalyzer/pkg/utils"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const (
	DefaultCacheTTL  = 10 * time.Minute
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type IAnalysisService interface {
	Analyze(ctx context.Context, input analysis.AnalyzeInput) (analysis.AnalysisResponse, error)
	GetSubmission(ctx context.Context, id string) (entity.Submission, error)
	ListSubmissions(ctx context.Context, limit int) ([]entity.Submission, error)
	Zones() []geofence.Zone
}

// Dependencies groups the collaborators of the analysis service. Repository,
// Cache and Storage are optional; a nil value disables that concern.
type Dependencies struct {
	Analyzer   analyzer.IAnalyzer
	Classifier geofence.IClassifier
	Repository analysisRepository.Repository
	Cache      redis.IRedis
	Storage    s3.ItfS3
	Utils      utils.IUtils
	CacheTTL   time.Duration
}

type analysisService struct {
	log        *logrus.Logger
	analyzer   analyzer.IAnalyzer
	classifier geofence.IClassifier
	repository analysisRepository.Repository
	cache      redis.IRedis
	storage    s3.ItfS3
	utils      utils.IUtils
	cacheTTL   time.Duration
}

func NewAnalysisService(log *logrus.Logger, deps Dependencies) IAnalysisService {
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	u := deps.Utils
	if u == nil {
		u = utils.New()
	}

	return &analysisService{
		log:        log,
		analyzer:   deps.Analyzer,
		classifier: deps.Classifier,
		repository: deps.Repository,
		cache:      deps.Cache,
		storage:    deps.Storage,
		utils:      u,
		cacheTTL:   ttl,
	}
}

// CacheTTLFromEnv reads VERDICT_CACHE_TTL as a Go duration string.
func CacheTTLFromEnv() time.Duration {
	raw := os.Getenv("VERDICT_CACHE_TTL")
	if raw == "" {
		return DefaultCacheTTL
	}

	ttl, err := time.ParseDuration(raw)
	if err != nil || ttl <= 0 {
		logrus.Warnf("Invalid VERDICT_CACHE_TTL %q, using %s", raw, DefaultCacheTTL)
		return DefaultCacheTTL
	}

	return ttl
}
