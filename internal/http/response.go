package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"expenses/internal/core"
	"expenses/internal/log"
)

type successBody struct {
	Success bool   `json:"success"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

type errorBody struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Errors  []core.ValidationError `json:"errors,omitempty"`
}

// apiError is what a failed request reports to the client.
type apiError struct {
	Kind       string
	Message    string
	StatusCode int
	Fields     core.ValidationErrors
}

const (
	kindValidation  = "validation"
	kindNotFound    = "not_found"
	kindConflict    = "conflict"
	kindBadRequest  = "bad_request"
	kindUnavailable = "unavailable"
	kindRateLimited = "rate_limited"
	kindInternal    = "internal"
)

// toAPIError classifies err by the sentinels and store codes it wraps.
func toAPIError(err error) apiError {
	var verrs core.ValidationErrors
	if errors.As(err, &verrs) {
		return apiError{Kind: kindValidation, StatusCode: http.StatusBadRequest, Fields: verrs}
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return apiError{Kind: kindBadRequest, Message: "Request body too large", StatusCode: http.StatusRequestEntityTooLarge}
	}
	if errors.Is(err, errMalformedBody) {
		return apiError{Kind: kindBadRequest, Message: "Invalid JSON payload", StatusCode: http.StatusBadRequest}
	}
	if errors.Is(err, core.ErrNotFound) {
		return apiError{Kind: kindNotFound, Message: "Expense not found", StatusCode: http.StatusNotFound}
	}

	switch core.StoreCodeOf(err) {
	case core.CodeUniqueViolation:
		return apiError{Kind: kindConflict, Message: "Duplicate entry detected", StatusCode: http.StatusConflict}
	case core.CodeForeignKeyViolation:
		return apiError{Kind: kindBadRequest, Message: "Referenced record not found", StatusCode: http.StatusBadRequest}
	case core.CodeNotNullViolation:
		return apiError{Kind: kindBadRequest, Message: "Required field is missing", StatusCode: http.StatusBadRequest}
	case core.CodeInvalidFormat:
		return apiError{Kind: kindBadRequest, Message: "Invalid data format", StatusCode: http.StatusBadRequest}
	case core.CodeUnavailable:
		return apiError{Kind: kindUnavailable, Message: "Database connection failed", StatusCode: http.StatusServiceUnavailable}
	case core.CodeOther:
		return apiError{Kind: kindInternal, Message: "Database operation failed", StatusCode: http.StatusInternalServerError}
	}
	return apiError{Kind: kindInternal, Message: "Internal server error", StatusCode: http.StatusInternalServerError}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, successBody{Success: true, Data: data, Message: message})
}

func writeList(w http.ResponseWriter, expenses []core.Expense) {
	count := len(expenses)
	writeJSON(w, http.StatusOK, successBody{Success: true, Count: &count, Data: expenses})
}

func writeAPIError(w http.ResponseWriter, e apiError) {
	if e.Kind == kindValidation {
		writeJSON(w, e.StatusCode, errorBody{Success: false, Errors: e.Fields})
		return
	}
	writeJSON(w, e.StatusCode, errorBody{Success: false, Error: e.Message})
}

// writeError maps err to a response. Server-side failures are logged with
// the underlying error, which never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	e := toAPIError(err)
	if e.StatusCode >= http.StatusInternalServerError {
		log.FromContext(r.Context()).LogError(r.Context(), "Request failed", op, err,
			log.FieldErrorKind, e.Kind)
	}
	writeAPIError(w, e)
}
