package controllers

import (
	"encoding/json"
	"net/http"

	"labchat_server/apperrors"

	"github.com/sirupsen/logrus"
)

// HealthCheckHandler provides a basic health check
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// WelcomeHandler provides a welcome message
func WelcomeHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "Welcome to the LabChat API."})
}

// WriteJSONResponse writes v as a JSON body with the given status.
func WriteJSONResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its status code and a {"error": message} body. Internal causes are
// logged, never returned.
func WriteError(w http.ResponseWriter, r *http.Request, log *logrus.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	entry := log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path, "status": status})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	WriteJSONResponse(w, status, map[string]string{"error": apperrors.PublicMessage(err)})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.InvalidInput("invalid request body")
	}
	return nil
}
