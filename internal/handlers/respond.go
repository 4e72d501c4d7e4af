package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/sirupsen/logrus"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with the status of its kind. Unclassified errors
// are logged and replaced by the generic message.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	kind := apperr.KindOf(err)
	entry := log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"kind":   kind.String(),
	})
	if kind == apperr.KindInternal {
		entry.WithError(err).Error("request failed")
	} else {
		entry.Debug(apperr.PublicMessage(err))
	}
	writeJSON(w, kind.StatusCode(), ErrorResponse{Error: apperr.PublicMessage(err)})
}

// decodeJSON reads a JSON body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.BadRequest("Request body too large")
		}
		return apperr.BadRequest("Invalid JSON body")
	}
	return nil
}

func tokenFrom(r *http.Request) string {
	return r.Header.Get(TokenHeader)
}
