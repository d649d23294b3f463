package analysisHandler

import (
	"BillboardAnalyzer/internal/api/analysis"
	"BillboardAnalyzer/internal/middleware"
	contextPkg "BillboardAnalyzer/pkg/context"
	"BillboardAnalyzer/pkg/metrics"
	"BillboardAnalyzer/pkg/response"
	"BillboardAnalyzer/pkg/utils"
	"encoding/base64"
	"errors"
	"math"
	"time"

	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/context"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

type wsError struct {
	Error string `json:"error"`
}

func (h *AnalysisHandler) handleAnalyzeWebSocket(c *websocket.Conn) {
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)
	h.log.WithField("request_id", requestID).Info("Analysis WebSocket client connected")
	metrics.ActiveWebSockets.Inc()
	defer func() {
		metrics.ActiveWebSockets.Dec()
		h.log.WithField("request_id", requestID).Info("Analysis WebSocket client disconnected")
	}()

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			h.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for {
		if err := c.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			h.log.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Errorf("Analysis WebSocket error: %v", err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			h.log.Warnf("Received unexpected message type: %d", messageType)
			if !h.writeWS(c, wsError{Error: "expected a JSON text message"}) {
				break
			}
			continue
		}

		var reply interface{}
		result, err := h.analyzeFrame(requestID, message)
		if err != nil {
			reply = wsError{Error: wsErrorMessage(err)}
		} else {
			reply = result
		}

		if !h.writeWS(c, reply) {
			break
		}
	}
}

func (h *AnalysisHandler) analyzeFrame(requestID string, message []byte) (analysis.AnalysisResponse, error) {
	var req analysis.WSAnalyzeRequest
	if err := jsoniter.Unmarshal(message, &req); err != nil {
		return analysis.AnalysisResponse{}, analysis.ErrBadRequest
	}

	if req.ImageBase64 == "" {
		return analysis.AnalysisResponse{}, analysis.ErrImageRequired
	}

	if req.Latitude == nil || req.Longitude == nil {
		return analysis.AnalysisResponse{}, analysis.ErrInvalidCoordinates
	}

	if err := h.validator.Struct(req); err != nil {
		return analysis.AnalysisResponse{}, analysis.ErrBadRequest
	}

	lat, lon := *req.Latitude, *req.Longitude
	if !finite(lat) || !finite(lon) {
		return analysis.AnalysisResponse{}, analysis.ErrInvalidCoordinates
	}

	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return analysis.AnalysisResponse{}, analysis.ErrBadRequest
	}
	if len(data) > utils.MaxImageSize {
		return analysis.AnalysisResponse{}, analysis.ErrFileTooLarge
	}

	ctx, cancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), requestID), h.analyzeTimeout)
	defer cancel()

	return h.analysisService.Analyze(ctx, analysis.AnalyzeInput{
		Image:     data,
		Filename:  "websocket.jpg",
		Latitude:  lat,
		Longitude: lon,
	})
}

func (h *AnalysisHandler) writeWS(c *websocket.Conn, payload interface{}) bool {
	if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		h.log.Errorf("Error setting write deadline: %v", err)
		return false
	}

	if err := c.WriteJSON(payload); err != nil {
		h.log.Errorf("Error writing JSON response: %v", err)
		return false
	}

	return true
}

func wsErrorMessage(err error) string {
	if respErr, ok := response.As(err); ok {
		return respErr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return "An unexpected error occurred"
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
