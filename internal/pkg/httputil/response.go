// Package httputil holds the JSON response helpers and middleware shared by
// the operator API and the tracking surface.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/phishdrill-backend/internal/errors"
)

// ErrorResponse is the error envelope for every API error.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// JSON writes data with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("json encode failed")
	}
}

func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

func Error(w http.ResponseWriter, status int, message string, details ...string) {
	JSON(w, status, ErrorResponse{Error: message, Details: details})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// WriteError maps service errors onto status codes. Anything that is not a
// caller mistake is logged and reported with a generic message.
func WriteError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	var ve *appErrors.ValidationError
	var nf *appErrors.NotFoundError
	switch {
	case errors.As(err, &ve):
		Error(w, http.StatusBadRequest, ve.Message, ve.Items...)
	case errors.As(err, &nf):
		Error(w, http.StatusNotFound, nf.Error())
	default:
		if log != nil {
			log.WithError(err).Error("request failed")
		}
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}

// Decode reads a JSON body into dst. It writes a 400 and returns false when
// the body does not parse.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}
