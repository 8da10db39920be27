package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

var (
	validate  = validator.New()
	sanitizer = bluemonday.StrictPolicy()
)

// decodeJSON reads a request body into dst with the strict profile: body size
// already capped by the middleware, unknown fields rejected, exactly one JSON
// value, then validation tags applied.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytes):
			return shared.NewValidationErrorf("request body exceeds %d bytes", maxBytes.Limit)
		case errors.Is(err, io.EOF):
			return shared.NewValidationErrorf("request body is empty")
		default:
			return shared.NewValidationErrorf("malformed request body: %v", err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return shared.NewValidationErrorf("request body must contain a single JSON value")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError folds validator failures into the field-keyed details map.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return shared.NewValidationErrorf("invalid request: %v", err)
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[strings.ToLower(fe.Field())] = "failed " + fe.Tag() + " constraint"
	}
	return &shared.Error{
		Kind:    shared.KindValidation,
		Code:    shared.CodeValidation,
		Message: "request validation failed",
		Details: details,
	}
}

// sanitize strips markup from free-text input before it reaches storage.
func sanitize(s string) string {
	return strings.TrimSpace(sanitizer.Sanitize(s))
}

func sanitizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, sanitize(s))
	}
	return out
}

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

// pageParams reads page/per_page query values, clamped to sane bounds.
func pageParams(r *http.Request) (page, perPage int) {
	page = queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage = queryInt(r, "per_page", defaultPerPage)
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func queryInt64(r *http.Request, key string, fallback int64) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
