package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// AppHandler serves the service-level endpoints.
type AppHandler struct {
	health      StatusChecker
	userCounter Counter
	fileCounter Counter
	log         logrus.FieldLogger
}

// NewAppHandler creates a new app handler
func NewAppHandler(health StatusChecker, userCounter, fileCounter Counter, log logrus.FieldLogger) *AppHandler {
	return &AppHandler{
		health:      health,
		userCounter: userCounter,
		fileCounter: fileCounter,
		log:         log,
	}
}

// StatusResponse reports store liveness.
type StatusResponse struct {
	Redis bool `json:"redis"`
	DB    bool `json:"db"`
	Blobs bool `json:"blobs"`
}

// StatsResponse reports record counts.
type StatsResponse struct {
	Users int64 `json:"users"`
	Files int64 `json:"files"`
}

// Index handles GET /
func (ah *AppHandler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<h1>Welcome to the Files Manager API</h1>"))
}

// Status handles GET /status
func (ah *AppHandler) Status(w http.ResponseWriter, r *http.Request) {
	results := ah.health.Run(r.Context())
	writeJSON(w, http.StatusOK, StatusResponse{
		Redis: results["redis"],
		DB:    results["db"],
		Blobs: results["blobs"],
	})
}

// Stats handles GET /stats
func (ah *AppHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := ah.userCounter.Count(ctx)
	if err != nil {
		writeError(w, r, ah.log, err)
		return
	}
	files, err := ah.fileCounter.Count(ctx)
	if err != nil {
		writeError(w, r, ah.log, err)
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{Users: users, Files: files})
}
