package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/pipelinedash/authcore"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    authcore.ErrorCode `json:"code"`
	Message string             `json:"message"`
}

// WriteError writes err as {"error":{"code","message"}} with the status
// mapped by [authcore.StatusOf]. Errors outside the taxonomy are reported
// as internal errors without their text.
func WriteError(w http.ResponseWriter, err error) {
	status := authcore.StatusOf(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="authcore"`)
	}
	WriteJSON(w, status, errorBody{Error: errorDetail{
		Code:    authcore.CodeOf(err),
		Message: authcore.MessageOf(err),
	}})
}

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
