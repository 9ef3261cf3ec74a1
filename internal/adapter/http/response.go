package http

import (
	"encoding/json"
	"net/http"

	"github.com/fleetwatch/fleetwatch/pkg/apperror"
)

// Envelope is the body of every API response
type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, Envelope{Status: true, Message: message, Data: data})
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Envelope{Status: false, Message: message, Code: code})
}

func writeError(w http.ResponseWriter, err error) {
	appErr := apperror.MapError(err)
	writeErrorResponse(w, appErr.Status, appErr.Code, appErr.Message)
}
