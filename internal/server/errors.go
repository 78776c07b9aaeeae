package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/fmueller/voxscribe/internal/audio"
	"github.com/fmueller/voxscribe/internal/service"
	"go.uber.org/zap"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Detail    string `json:"detail"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

const (
	kindCancelled = "cancelled"
	kindTimeout   = "timeout"
	kindTooLarge  = "payload_too_large"
	kindInternal  = "internal"
)

// errorResponse maps an error to a status code and body. Context errors are
// checked first so a timed out fetch reports 504 whatever stage it hit.
func errorResponse(err error, requestID string) (int, errorBody) {
	body := errorBody{Detail: err.Error(), RequestID: requestID}

	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		body.Kind = string(svcErr.Kind)
		body.Detail = svcErr.Err.Error()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		if body.Kind == "" {
			body.Kind = kindTimeout
		}
		return http.StatusGatewayTimeout, body
	case errors.Is(err, context.Canceled):
		body.Kind = kindCancelled
		body.Detail = "request cancelled"
		return http.StatusRequestTimeout, body
	}

	var maxBytesErr *http.MaxBytesError
	if errors.Is(err, audio.ErrTooLarge) || errors.As(err, &maxBytesErr) {
		if body.Kind == "" {
			body.Kind = kindTooLarge
		}
		body.Detail = "audio payload exceeds the configured upload limit"
		return http.StatusRequestEntityTooLarge, body
	}

	if svcErr == nil {
		body.Kind = kindInternal
		body.Detail = "internal error"
		return http.StatusInternalServerError, body
	}

	switch svcErr.Kind {
	case service.KindInvalidRequest, service.KindUnsupportedFormat:
		return http.StatusBadRequest, body
	case service.KindFetchFailure:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return http.StatusGatewayTimeout, body
		}
		return http.StatusBadGateway, body
	case service.KindStorageFailure:
		return http.StatusInsufficientStorage, body
	default:
		return http.StatusInternalServerError, body
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := service.RequestID(r.Context())
	status, body := errorResponse(err, requestID)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("request_id", requestID), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, body)
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	writeJSON(w, http.StatusBadRequest, errorBody{
		Detail:    detail,
		Kind:      string(service.KindInvalidRequest),
		RequestID: service.RequestID(r.Context()),
	})
}
