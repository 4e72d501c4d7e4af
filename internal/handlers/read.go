package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/maneesh/filesmanager/internal/apperr"
	"github.com/maneesh/filesmanager/internal/auth"
	"github.com/maneesh/filesmanager/internal/files"
	"github.com/maneesh/filesmanager/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// List handles GET /files?parentId=&page=&limit=
func (fh *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "list_files")
	defer span.End()

	identity, err := fh.auth.Resolve(ctx, tokenFrom(r), auth.Required)
	if err != nil {
		writeError(w, r, fh.log, err)
		return
	}

	in, err := parseListInput(r)
	if err != nil {
		writeError(w, r, fh.log, err)
		return
	}

	span.SetAttributes(
		attribute.String("parent_id", in.ParentID.String()),
		attribute.Int("page", in.Page),
		attribute.Int("limit", in.Limit),
	)

	list, err := fh.files.List(ctx, identity, in)
	if err != nil {
		span.RecordError(err)
		writeError(w, r, fh.log, err)
		return
	}

	span.SetAttributes(attribute.Int("file_count", len(list)))
	writeJSON(w, http.StatusOK, list)
}

// Show handles GET /files/{id}
func (fh *FilesHandler) Show(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]
	ctx, span := tracer.Start(r.Context(), "show_file",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	identity, err := fh.auth.Resolve(ctx, tokenFrom(r), auth.Required)
	if err != nil {
		writeError(w, r, fh.log, err)
		return
	}

	file, err := fh.files.Get(ctx, identity, fileID)
	if err != nil {
		writeError(w, r, fh.log, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// Data handles GET /files/{id}/data?size=
func (fh *FilesHandler) Data(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]
	ctx, span := tracer.Start(r.Context(), "read_file",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !models.ValidThumbnailWidth(n) {
			writeError(w, r, fh.log, apperr.BadRequest("Invalid size"))
			return
		}
		size = n
		span.SetAttributes(attribute.Int("size", size))
	}

	content, err := fh.files.Content(ctx, tokenFrom(r), fileID, size)
	if err != nil {
		writeError(w, r, fh.log, err)
		return
	}

	span.SetAttributes(
		attribute.String("content_type", content.ContentType),
		attribute.Int("size_bytes", len(content.Data)),
	)

	w.Header().Set("Content-Type", content.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content.Data)
}

func parseListInput(r *http.Request) (files.ListInput, error) {
	q := r.URL.Query()
	in := files.ListInput{
		ParentID: models.ParentID(q.Get("parentId")),
		Limit:    files.DefaultLimit,
	}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return in, apperr.BadRequest("Invalid page")
		}
		in.Page = page
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return in, apperr.BadRequest("Invalid limit")
		}
		in.Limit = limit
	}

	return in, nil
}
