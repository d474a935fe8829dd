package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
)

// RespondJSON writes data as a JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes {"error": message}
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{
		"error": message,
	})
}

// RespondRequestError writes field errors with 400, or a plain 400 for other errors
func RespondRequestError(w http.ResponseWriter, err error) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		RespondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":  "invalid request",
			"errors": reqErr.Errors,
		})
		return
	}
	RespondError(w, http.StatusBadRequest, err.Error())
}
