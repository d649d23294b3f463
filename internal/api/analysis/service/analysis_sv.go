package analysisService

import (
	"BillboardAnalyzer/internal/api/analysis"
	"BillboardAnalyzer/internal/entity"
	"BillboardAnalyzer/pkg/analyzer"
	contextPkg "BillboardAnalyzer/pkg/context"
	"BillboardAnalyzer/pkg/geofence"
	"BillboardAnalyzer/pkg/metrics"
	"BillboardAnalyzer/pkg/redis"
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"image"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type cachedVerdict struct {
	IsAuthorized bool   `json:"is_authorized"`
	Reason       string `json:"reason"`
	State        string `json:"state"`
	Detections   int    `json:"detections"`
}

func (s *analysisService) Analyze(ctx context.Context, input analysis.AnalyzeInput) (analysis.AnalysisResponse, error) {
	requestID := contextPkg.GetRequestID(ctx)
	coord := geofence.Coordinate{Latitude: input.Latitude, Longitude: input.Longitude}
	key := verdictCacheKey(input.Image, coord)

	if cached, ok := s.lookupVerdict(ctx, key); ok {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"state":      cached.State,
		}).Debug("Serving cached verdict")

		result := analyzer.Result{
			Verdict:        analyzer.Verdict{IsAuthorized: cached.IsAuthorized, Reason: cached.Reason},
			State:          analyzer.State(cached.State),
			Detections:     cached.Detections,
			ModelAvailable: true,
		}
		metrics.VerdictsTotal.WithLabelValues(cached.State).Inc()

		return analysis.AnalysisResponse{
			IsAuthorized: cached.IsAuthorized,
			Reason:       cached.Reason,
			SubmissionID: s.recordSubmission(ctx, input, result),
		}, nil
	}

	img := s.decodeImage(requestID, input.Image)

	start := time.Now()
	result, err := s.analyzer.Analyze(ctx, img, coord)
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AnalysisErrorsTotal.Inc()
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Billboard analysis failed")
		return analysis.AnalysisResponse{}, fmt.Errorf("analyze billboard: %w", err)
	}

	metrics.VerdictsTotal.WithLabelValues(string(result.State)).Inc()
	if !result.ModelAvailable {
		metrics.ModelUnavailableTotal.Inc()
	}

	s.log.WithFields(logrus.Fields{
		"request_id":      requestID,
		"state":           result.State,
		"detections":      result.Detections,
		"model_available": result.ModelAvailable,
		"latitude":        coord.Latitude,
		"longitude":       coord.Longitude,
	}).Info("Billboard analysis completed")

	if result.ModelAvailable {
		s.storeVerdict(ctx, key, result)
	}

	return analysis.AnalysisResponse{
		IsAuthorized: result.Verdict.IsAuthorized,
		Reason:       result.Verdict.Reason,
		SubmissionID: s.recordSubmission(ctx, input, result),
	}, nil
}

func (s *analysisService) GetSubmission(ctx context.Context, id string) (entity.Submission, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if s.repository == nil {
		return entity.Submission{}, analysis.ErrStorageUnavailable
	}

	repo, err := s.repository.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create new client")
		return entity.Submission{}, err
	}

	submission, err := repo.Submission.GetSubmissionByID(ctx, id)
	if err != nil {
		return entity.Submission{}, err
	}

	s.presignImage(ctx, &submission)

	return submission, nil
}

func (s *analysisService) ListSubmissions(ctx context.Context, limit int) ([]entity.Submission, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if s.repository == nil {
		return nil, analysis.ErrStorageUnavailable
	}

	repo, err := s.repository.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create new client")
		return nil, err
	}

	submissions, err := repo.Submission.ListSubmissions(ctx, ClampLimit(limit))
	if err != nil {
		return nil, err
	}

	for i := range submissions {
		s.presignImage(ctx, &submissions[i])
	}

	return submissions, nil
}

// presignImage swaps the stored object location for a short-lived download
// link. The archive bucket is private, so an unsigned location is dropped.
func (s *analysisService) presignImage(ctx context.Context, submission *entity.Submission) {
	if submission.ImageURL == "" {
		return
	}

	if s.storage == nil {
		submission.ImageURL = ""
		return
	}

	signed, err := s.storage.PresignUrl(submission.ImageURL)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"id":         submission.ID,
			"error":      err.Error(),
		}).Warn("Failed to presign archived image")
		submission.ImageURL = ""
		return
	}

	submission.ImageURL = signed
}

func (s *analysisService) Zones() []geofence.Zone {
	return s.classifier.Zones()
}

// ClampLimit maps a requested page size onto [1, MaxListLimit], defaulting
// non-positive values to DefaultListLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}

func (s *analysisService) decodeImage(requestID string, data []byte) image.Image {
	if len(data) == 0 {
		return nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
			"size":       len(data),
		}).Warn("Failed to decode uploaded image")
		return nil
	}

	return img
}

func (s *analysisService) lookupVerdict(ctx context.Context, key string) (cachedVerdict, bool) {
	if s.cache == nil {
		return cachedVerdict{}, false
	}

	payload, err := s.cache.GetVerdict(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.WithFields(logrus.Fields{
				"request_id": contextPkg.GetRequestID(ctx),
				"error":      err.Error(),
			}).Warn("Verdict cache lookup failed")
		}
		metrics.CacheMisses.WithLabelValues("verdict").Inc()
		return cachedVerdict{}, false
	}

	var cached cachedVerdict
	if err := jsoniter.Unmarshal(payload, &cached); err != nil || cached.Reason == "" {
		metrics.CacheMisses.WithLabelValues("verdict").Inc()
		return cachedVerdict{}, false
	}

	metrics.CacheHits.WithLabelValues("verdict").Inc()
	return cached, true
}

func (s *analysisService) storeVerdict(ctx context.Context, key string, result analyzer.Result) {
	if s.cache == nil {
		return
	}

	payload, err := jsoniter.Marshal(cachedVerdict{
		IsAuthorized: result.Verdict.IsAuthorized,
		Reason:       result.Verdict.Reason,
		State:        string(result.State),
		Detections:   result.Detections,
	})
	if err != nil {
		return
	}

	if err := s.cache.SetVerdict(ctx, key, payload, s.cacheTTL); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Warn("Failed to cache verdict")
	}
}

// recordSubmission archives the image and the verdict. Failures are logged
// and reported as an empty submission id; they never alter the verdict.
func (s *analysisService) recordSubmission(ctx context.Context, input analysis.AnalyzeInput, result analyzer.Result) string {
	if s.repository == nil {
		return ""
	}
	requestID := contextPkg.GetRequestID(ctx)

	id, err := s.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to generate ULID")
		return ""
	}

	var imageURL string
	if s.storage != nil && len(input.Image) > 0 {
		imageURL, err = s.storage.UploadImage(input.Image, input.Filename, "image/jpeg")
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      err.Error(),
			}).Warn("Failed to archive uploaded image")
			imageURL = ""
		}
	}

	repo, err := s.repository.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create new client")
		s.discardImage(requestID, imageURL)
		return ""
	}

	submission := entity.Submission{
		ID:            id,
		ImageFilename: input.Filename,
		ImageURL:      imageURL,
		Latitude:      input.Latitude,
		Longitude:     input.Longitude,
		IsAuthorized:  result.Verdict.IsAuthorized,
		Reason:        result.Verdict.Reason,
		State:         string(result.State),
		Detections:    result.Detections,
		CreatedAt:     time.Now(),
	}

	if err := repo.Submission.CreateSubmission(ctx, submission); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Failed to record submission")
		s.discardImage(requestID, imageURL)
		return ""
	}

	return id
}

// discardImage removes an archived image whose submission row was never written.
func (s *analysisService) discardImage(requestID, imageURL string) {
	if imageURL == "" {
		return
	}

	if err := s.storage.DeleteFile(imageURL); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"image_url":  imageURL,
			"error":      err.Error(),
		}).Warn("Failed to remove orphaned image")
	}
}

func verdictCacheKey(data []byte, coord geofence.Coordinate) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("analysis:verdict:%x:%s:%s",
		sum,
		strconv.FormatFloat(coord.Latitude, 'f', -1, 64),
		strconv.FormatFloat(coord.Longitude, 'f', -1, 64),
	)
}
