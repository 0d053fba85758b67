package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/notes-bin/photoleader/internal/cache"
	"github.com/notes-bin/photoleader/internal/config"
	"github.com/notes-bin/photoleader/internal/model"
	"github.com/notes-bin/photoleader/internal/service"
	"github.com/notes-bin/photoleader/internal/store"
)

// PhotoService is what the handlers need from the photo service.
type PhotoService interface {
	Create(ctx context.Context, photo *model.Photo) (*model.Photo, error)
	CreateFromUpload(ctx context.Context, req service.UploadRequest) (*model.Photo, error)
	DeletePhoto(ctx context.Context, id string) error
	GetPhoto(ctx context.Context, id string) (*model.Photo, error)
	ListPhotos(ctx context.Context, filter store.Filter, skip, limit int64) ([]model.Photo, error)
	PhotosByUser(ctx context.Context, user string) ([]model.Photo, error)
	PhotosByTag(ctx context.Context, tag string) ([]model.Photo, error)
	Search(ctx context.Context, text string) ([]model.Photo, error)
	Stats(ctx context.Context) (*service.Stats, error)
	FetchBlob(ctx context.Context, id string) (*store.Blob, *model.Photo, error)
}

// ClusterSource is what the health and replica-status handlers need from
// the Topology Monitor.
type ClusterSource interface {
	Ping(ctx context.Context) error
	ClusterStatus(ctx context.Context) (*store.ClusterStatus, error)
	Members(ctx context.Context) (string, []store.Member, error)
}

type Handler struct {
	config   *config.Config
	photos   PhotoService
	cluster  ClusterSource
	snapshot *cache.Status
}

func NewHandler(cfg *config.Config, photos PhotoService, cluster ClusterSource, snapshot *cache.Status) *Handler {
	return &Handler{config: cfg, photos: photos, cluster: cluster, snapshot: snapshot}
}

func SetupRouter(cfg *config.Config, photos PhotoService, cluster ClusterSource, snapshot *cache.Status) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.RateLimit.Requests > 0 {
		r.Use(RateLimitMiddleware(cfg.RateLimit.Requests, cfg.RateLimit.Duration))
	}

	h := NewHandler(cfg, photos, cluster, snapshot)

	r.Get("/", h.Index)
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/replicaset/status", h.ReplicaSetStatus)
		r.Get("/stats", h.GetStats)
		r.Get("/search", h.SearchPhotos)

		r.Route("/photos", func(r chi.Router) {
			r.Get("/", h.ListPhotos)
			r.Post("/", h.CreatePhoto)
			r.Get("/{id}", h.GetPhoto)
			r.Delete("/{id}", h.DeletePhoto)
			r.Get("/{id}/file", h.GetPhotoFile)
			r.Get("/user/{username}", h.GetPhotosByUser)
			r.Get("/tag/{tag}", h.GetPhotosByTag)
		})
	})

	if cfg.FrontendDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.FrontendDir)))
		r.Handle("/static/*", fs)
	}

	return r
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	index := map[string]any{
		"api":     "PhotoLeader API",
		"version": "1.0",
		"endpoints": map[string]string{
			"health":         "/api/health",
			"replica_status": "/api/replicaset/status",
			"photos":         "/api/photos",
			"upload":         "POST /api/photos",
			"delete":         "DELETE /api/photos/{id}",
			"photo_file":     "/api/photos/{id}/file",
			"user_photos":    "/api/photos/user/{username}",
			"tag_photos":     "/api/photos/tag/{tag}",
			"search":         "/api/search?q={query}",
			"stats":          "/api/stats",
		},
	}
	if st := h.snapshot.Snapshot(); st != nil && st.Primary != nil {
		index["primary"] = *st.Primary
	}
	respondJSON(w, http.StatusOK, index)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.cluster.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	st, err := h.cluster.ClusterStatus(r.Context())
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"database":      h.config.Database,
		"replica_set":   st.SetName,
		"primary":       st.Primary,
		"secondaries":   st.Secondaries,
		"members_count": st.MemberCount,
	})
}

// memberView matches what the status page consumes: pingMs is the number
// when the server reported one, the literal "N/A" otherwise.
type memberView struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Health string `json:"health"`
	Uptime int64  `json:"uptime"`
	PingMs any    `json:"pingMs"`
}

func (h *Handler) ReplicaSetStatus(w http.ResponseWriter, r *http.Request) {
	setName, members, err := h.cluster.Members(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	views := make([]memberView, 0, len(members))
	for _, m := range members {
		v := memberView{
			Name:   m.Name,
			State:  m.State,
			Health: "Unhealthy",
			Uptime: m.UptimeSecs,
			PingMs: "N/A",
		}
		if m.Healthy {
			v.Health = "Healthy"
		}
		if m.PingMs != nil {
			v.PingMs = *m.PingMs
		}
		views = append(views, v)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"replica_set_name": setName,
		"members":          views,
	})
}

func (h *Handler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	skip, err := queryInt(q.Get("skip"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}
	filter := store.Filter{Tag: q.Get("tag"), User: q.Get("user")}

	photos, err := h.photos.ListPhotos(r.Context(), filter, skip, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(photos),
		"photos":  photos,
	})
}

func (h *Handler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	photo, err := h.photos.GetPhoto(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "photo": photo})
}

// CreatePhoto accepts either a multipart upload (field "file" plus "user",
// "description" and comma-separated "tags") or a JSON body with metadata
// only, matching the original API.
func (h *Handler) CreatePhoto(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		h.createFromUpload(w, r)
		return
	}
	h.createFromJSON(w, r)
}

func (h *Handler) createFromUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxUploadSize)
	if err := r.ParseMultipartForm(h.config.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Field 'file' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to read upload")
		return
	}

	photo, err := h.photos.CreateFromUpload(r.Context(), service.UploadRequest{
		Data:        data,
		Filename:    header.Filename,
		ContentType: uploadContentType(header, data),
		User:        r.FormValue("user"),
		Description: r.FormValue("description"),
		Tags:        splitTags(r.FormValue("tags")),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"photo_id": photo.ID.Hex(),
		"photo":    photo,
		"message":  "Photo created",
	})
}

func (h *Handler) createFromJSON(w http.ResponseWriter, r *http.Request) {
	photo, err := decodePhoto(r.Context(), r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	created, err := h.photos.Create(r.Context(), photo)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"success":  true,
		"photo_id": created.ID.Hex(),
		"message":  "Photo created",
	})
}

func (h *Handler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	if err := h.photos.DeletePhoto(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Photo deleted"})
}

func (h *Handler) GetPhotoFile(w http.ResponseWriter, r *http.Request) {
	blob, photo, err := h.photos.FetchBlob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	defer blob.Close()

	ct := blob.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(blob.Length, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", photo.Filename))
	if _, err := io.Copy(w, blob); err != nil {
		slog.Error("blob stream interrupted",
			"photo_id", photo.ID.Hex(), "request_id", requestID(r.Context()), "error", err)
	}
}

func (h *Handler) GetPhotosByUser(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "username")
	photos, err := h.photos.PhotosByUser(r.Context(), user)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
		"count":   len(photos),
		"photos":  photos,
	})
}

func (h *Handler) GetPhotosByTag(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	photos, err := h.photos.PhotosByTag(r.Context(), tag)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tag":     tag,
		"count":   len(photos),
		"photos":  photos,
	})
}

func (h *Handler) SearchPhotos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	photos, err := h.photos.Search(r.Context(), query)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"query":   query,
		"count":   len(photos),
		"photos":  photos,
	})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.photos.Stats(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"total_photos": stats.TotalPhotos,
		"top_users":    stats.TopUsers,
		"top_tags":     stats.TopTags,
	})
}

// photoFields is the closed set of JSON keys accepted on metadata create.
// Anything else is ignored and warned, never persisted.
var photoFields = map[string]bool{
	"filename": true, "user": true, "tags": true,
	"description": true, "status": true, "size_kb": true,
	"content_type": true,
}

func decodePhoto(ctx context.Context, body io.Reader) (*model.Photo, error) {
	raw := map[string]json.RawMessage{}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, err
	}
	for key := range raw {
		if !photoFields[key] {
			slog.Warn("ignoring unknown photo field",
				"field", key, "request_id", requestID(ctx))
			delete(raw, key)
		}
	}
	filtered, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var photo model.Photo
	if err := json.Unmarshal(filtered, &photo); err != nil {
		return nil, err
	}
	return &photo, nil
}

func uploadContentType(header *multipart.FileHeader, data []byte) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// queryInt parses an optional pagination parameter. Absent means zero;
// anything that is not a non-negative integer is rejected so bad input
// surfaces as a 400 instead of a driver fault.
func queryInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrValidation), errors.Is(err, store.ErrInvalidID):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}
	slog.Error("request failed", "status", status,
		"path", r.URL.Path, "request_id", requestID(r.Context()), "error", err)
	respondJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"success": false, "error": message})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
