package analysisHandler

import (
	"BillboardAnalyzer/internal/api/analysis"
	"BillboardAnalyzer/internal/entity"
	contextPkg "BillboardAnalyzer/pkg/context"
	"BillboardAnalyzer/pkg/handlerUtil"
	"BillboardAnalyzer/pkg/log"
	"BillboardAnalyzer/pkg/utils"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

func (h *AnalysisHandler) Analyze(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), h.analyzeTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing billboard analysis request")

	file, err := ctx.FormFile("image")
	if err != nil || file == nil {
		return errHandler.Handle(ctx, requestID, analysis.ErrImageRequired, ctx.Path(), "read_image")
	}

	if err := h.utils.ValidateJPEGFile(file); err != nil {
		return errHandler.Handle(ctx, requestID, mapFileError(err), ctx.Path(), "validate_image_file")
	}

	var form analysis.AnalyzeForm
	if err := ctx.BodyParser(&form); err != nil {
		return errHandler.Handle(ctx, requestID, analysis.ErrInvalidCoordinates, ctx.Path(), "parse_form")
	}

	if err := h.validator.Struct(form); err != nil {
		return errHandler.Handle(ctx, requestID, analysis.ErrInvalidCoordinates, ctx.Path(), "validate_form")
	}

	latitude, latOK := parseCoordinate(form.Latitude)
	longitude, lonOK := parseCoordinate(form.Longitude)
	if !latOK || !lonOK {
		return errHandler.Handle(ctx, requestID, analysis.ErrInvalidCoordinates, ctx.Path(), "parse_coordinates")
	}

	data, err := h.utils.ReadFile(file)
	if err != nil {
		return errHandler.Handle(ctx, requestID, mapFileError(err), ctx.Path(), "read_image")
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"file_name":  file.Filename,
		"file_size":  file.Size,
		"latitude":   latitude,
		"longitude":  longitude,
	}).Info("Analyzing billboard submission")

	result, err := h.analysisService.Analyze(c, analysis.AnalyzeInput{
		Image:     data,
		Filename:  file.Filename,
		Latitude:  latitude,
		Longitude: longitude,
	})
	if err != nil {
		if c.Err() != nil {
			return errHandler.HandleRequestTimeout(ctx)
		}
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "analyze")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
	}
}

func (h *AnalysisHandler) Zones(ctx *fiber.Ctx) error {
	errHandler := handlerUtil.New(h.log)

	zones := h.analysisService.Zones()
	response := make([]analysis.ZoneResponse, 0, len(zones))
	for _, z := range zones {
		response = append(response, analysis.ZoneResponse{
			Name:       z.Name,
			LatMin:     z.LatMin,
			LatMax:     z.LatMax,
			LonMin:     z.LonMin,
			LonMax:     z.LonMax,
			Authorized: z.Authorized,
			Reason:     z.Reason,
		})
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, fiber.Map{
		"zones": response,
	})
}

func (h *AnalysisHandler) GetSubmission(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	id := ctx.Params("id")
	if id == "" {
		return errHandler.HandleValidationError(ctx, requestID,
			errors.New("submission ID is required"), ctx.Path())
	}

	submission, err := h.analysisService.GetSubmission(c, id)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_submission")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, makeSubmissionResponse(submission))
	}
}

func (h *AnalysisHandler) ListSubmissions(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), 10*time.Second)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return errHandler.Handle(ctx, requestID, analysis.ErrInvalidLimit, ctx.Path(), "parse_limit")
		}
		limit = parsed
	}

	submissions, err := h.analysisService.ListSubmissions(c, limit)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "list_submissions")
	}

	response := analysis.SubmissionListResponse{
		Submissions: make([]analysis.SubmissionResponse, 0, len(submissions)),
	}
	for _, s := range submissions {
		response.Submissions = append(response.Submissions, makeSubmissionResponse(s))
	}
	response.Count = len(response.Submissions)

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, response)
	}
}

// parseCoordinate accepts any finite decimal number; range is not checked.
func parseCoordinate(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func mapFileError(err error) error {
	switch {
	case errors.Is(err, utils.ErrNoFile):
		return analysis.ErrImageRequired
	case errors.Is(err, utils.ErrFileTooLarge):
		return analysis.ErrFileTooLarge
	case errors.Is(err, utils.ErrNotJPEG):
		return analysis.ErrInvalidFileType
	default:
		return err
	}
}

func makeSubmissionResponse(s entity.Submission) analysis.SubmissionResponse {
	return analysis.SubmissionResponse{
		ID:            s.ID,
		ImageFilename: s.ImageFilename,
		ImageURL:      s.ImageURL,
		Latitude:      s.Latitude,
		Longitude:     s.Longitude,
		IsAuthorized:  s.IsAuthorized,
		Reason:        s.Reason,
		State:         s.State,
		Detections:    s.Detections,
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
	}
}
