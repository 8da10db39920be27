// Package httpapi is the synchronous JSON surface of the game server. It
// routes /api/v1, enforces authentication, rate limits and input hygiene,
// and maps the application services onto the wire contract: problem-shaped
// errors, pagination envelopes and rate headers.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sectorwars/gameserver/internal/application/common"
	"github.com/sectorwars/gameserver/internal/domain/shared"
)

// errorBody is the problem envelope of every failed request.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	RequestID string            `json:"request_id"`
}

// pagination is the list envelope's cursor block.
type pagination struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

type listBody struct {
	Data       any        `json:"data"`
	Pagination pagination `json:"pagination"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respond writes a success body.
func respond(w http.ResponseWriter, status int, body any) {
	writeJSON(w, status, body)
}

// respondList wraps a page of results in the pagination envelope.
func respondList(w http.ResponseWriter, data any, total int64, page, perPage int) {
	totalPages := 0
	if perPage > 0 {
		totalPages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	writeJSON(w, http.StatusOK, listBody{
		Data: data,
		Pagination: pagination{
			Total:      total,
			Page:       page,
			PerPage:    perPage,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1 && totalPages > 0,
		},
	})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind shared.ErrorKind) int {
	switch kind {
	case shared.KindValidation, shared.KindInvariantViolation:
		return http.StatusBadRequest
	case shared.KindUnauthorized:
		return http.StatusUnauthorized
	case shared.KindForbidden:
		return http.StatusForbidden
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindRateLimited:
		return http.StatusTooManyRequests
	case shared.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError shapes any error into the problem envelope. Non-domain errors
// are masked as internal; the cause goes to the log, never the client.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := common.RequestIDFromContext(r.Context())
	detail := errorDetail{
		Code:      shared.CodeOf(err),
		Message:   "internal error",
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
	status := http.StatusInternalServerError

	var domainErr *shared.Error
	if errors.As(err, &domainErr) {
		status = statusFor(domainErr.Kind)
		detail.Message = domainErr.Message
		detail.Details = domainErr.Details
		if domainErr.Kind == shared.KindRateLimited {
			if retry, ok := domainErr.Details["retry_after"]; ok {
				w.Header().Set("Retry-After", retry)
			}
		}
	} else {
		detail.Code = "INTERNAL"
		log.Ctx(r.Context()).Error().Err(err).Msg("unclassified handler error")
	}
	if status >= 500 && detail.Code != shared.CodeUnavailable {
		log.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, errorBody{Error: detail})
}
