package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/maneesh/filesmanager/internal/auth"
	"github.com/maneesh/filesmanager/internal/files"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// FilesHandler serves the file hierarchy endpoints.
type FilesHandler struct {
	files        FileService
	auth         Authenticator
	maxBodyBytes int64
	log          logrus.FieldLogger
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(files FileService, auth Authenticator, maxBodyBytes int64, log logrus.FieldLogger) *FilesHandler {
	return &FilesHandler{
		files:        files,
		auth:         auth,
		maxBodyBytes: maxBodyBytes,
		log:          log,
	}
}

// Create handles POST /files
func (fh *FilesHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "create_file")
	defer span.End()

	identity, err := fh.auth.Resolve(ctx, tokenFrom(r), auth.Required)
	if err != nil {
		writeError(w, r, fh.log, err)
		return
	}

	var in files.CreateInput
	if err := decodeJSON(w, r, fh.maxBodyBytes, &in); err != nil {
		writeError(w, r, fh.log, err)
		return
	}

	span.SetAttributes(
		attribute.String("user_id", identity.ID),
		attribute.String("file_type", string(in.Type)),
	)

	file, err := fh.files.Create(ctx, identity, in)
	if err != nil {
		span.RecordError(err)
		writeError(w, r, fh.log, err)
		return
	}

	span.SetAttributes(attribute.String("file_id", file.ID))
	writeJSON(w, http.StatusCreated, file)
}

// Publish handles PUT /files/{id}/publish
func (fh *FilesHandler) Publish(w http.ResponseWriter, r *http.Request) {
	fh.setVisibility(w, r, true)
}

// Unpublish handles PUT /files/{id}/unpublish
func (fh *FilesHandler) Unpublish(w http.ResponseWriter, r *http.Request) {
	fh.setVisibility(w, r, false)
}

func (fh *FilesHandler) setVisibility(w http.ResponseWriter, r *http.Request, isPublic bool) {
	fileID := mux.Vars(r)["id"]
	ctx, span := tracer.Start(r.Context(), "set_visibility",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
			attribute.Bool("is_public", isPublic),
		),
	)
	defer span.End()

	identity, err := fh.auth.Resolve(ctx, tokenFrom(r), auth.Required)
	if err != nil {
		writeError(w, r, fh.log, err)
		return
	}

	file, err := fh.files.SetVisibility(ctx, identity, fileID, isPublic)
	if err != nil {
		span.RecordError(err)
		writeError(w, r, fh.log, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}
