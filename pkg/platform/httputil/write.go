// Package httputil maps domain errors onto HTTP responses.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "match-gateway/pkg/domain-errors"
)

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:    http.StatusBadRequest,
	dErrors.CodeUnauthorized:  http.StatusUnauthorized,
	dErrors.CodeNotFound:      http.StatusNotFound,
	dErrors.CodeUnprocessable: http.StatusUnprocessableEntity,
	dErrors.CodeConfig:        http.StatusBadRequest,
	dErrors.CodeIngestion:     http.StatusInternalServerError,
	dErrors.CodeInternal:      http.StatusInternalServerError,
}

// WriteError renders a coded error as a JSON body. Internal errors omit the
// description so backend details never reach callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := map[string]string{"error": string(code)}
	if status < http.StatusInternalServerError {
		body["error_description"] = dErrors.MessageOf(err)
	}

	WriteJSON(w, status, body)
}

// WriteJSON renders v with the given status and a JSON content type.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
