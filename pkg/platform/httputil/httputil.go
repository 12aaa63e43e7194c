// Package httputil centralizes JSON encoding and domain-error translation
// for HTTP handlers so transport mapping lives in exactly one place.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "conforma/pkg/domain-errors"
)

// statusByCode maps domain error codes onto HTTP statuses.
var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:           http.StatusBadRequest,
	dErrors.CodeInvalidInput:         http.StatusBadRequest,
	dErrors.CodeInvalidRule:          http.StatusUnprocessableEntity,
	dErrors.CodeInvariantViolation:   http.StatusUnprocessableEntity,
	dErrors.CodeNotFound:             http.StatusNotFound,
	dErrors.CodeConflict:             http.StatusConflict,
	dErrors.CodeDerivationInProgress: http.StatusConflict,
	dErrors.CodeUnauthorized:         http.StatusUnauthorized,
	dErrors.CodeForbidden:            http.StatusForbidden,
	dErrors.CodeCrossTenant:          http.StatusForbidden,
	dErrors.CodeTimeout:              http.StatusGatewayTimeout,
	dErrors.CodeCancelled:            http.StatusRequestTimeout,
	dErrors.CodeIntegrity:            http.StatusInternalServerError,
	dErrors.CodeInternal:             http.StatusInternalServerError,
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON encodes v with the given status. Encoding failures are ignored as
// the status line has already been committed.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into a JSON error response.
//
// Server-side codes (internal, integrity) omit the description so storage
// details never leak. Cross-tenant violations are deliberately collapsed to a
// bare "forbidden": the response must not let a caller probe another tenant's
// data, so the distinct code is kept for logs and metrics only.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)

	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := errorBody{Error: string(code)}
	switch code {
	case dErrors.CodeInternal, dErrors.CodeIntegrity:
		// no description
	case dErrors.CodeCrossTenant:
		body.Error = string(dErrors.CodeForbidden)
	default:
		body.ErrorDescription = dErrors.MessageOf(err)
	}

	WriteJSON(w, status, body)
}

// DecodeAndPrepare decodes a JSON request body into T and runs its Validate
// method. Returns false after writing the error response when either fails.
func DecodeAndPrepare[T interface{ Validate() error }](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "malformed request body", "request_id", requestID, "error", err)
		}
		WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed JSON body"))
		return req, false
	}
	if err := req.Validate(); err != nil {
		WriteError(w, err)
		return req, false
	}
	return req, true
}
