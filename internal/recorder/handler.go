package recorder

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Media-server webhook reply, {"code":0,"msg":"success"}.
const (
	replySuccessCode = 0
	replySuccessMsg  = "success"
)

type webhookReply struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type publishHook struct {
	Stream  string `json:"stream"`
	Title   string `json:"title"`
	Comment string `json:"comment"`
	Action  string `json:"act"`
}

type unpublishHook struct {
	Stream string `json:"stream"`
}

type segmentEndHook struct {
	Stream        string `json:"stream"`
	SegmentNumber int    `json:"segment_number"`
	DurationMS    int64  `json:"duration_ms"`
	// EndTime is unix seconds; zero means the time the hook arrived.
	EndTime     int64  `json:"end_time"`
	StoragePath string `json:"storage_path"`
	FilePath    string `json:"file_path"`
}

// Handler exposes the media-server webhooks using go-chi.
type Handler struct {
	svc       *Service
	log       *slog.Logger
	startedAt time.Time
}

// NewHandler returns a Handler that uses the given Service and Logger.
// Request counts are recorded by metrics.RequestMiddleware.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log, startedAt: time.Now()}
}

// Routes mounts the webhook and health endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/hooks", func(r chi.Router) {
		r.Post("/on_publish", h.OnPublish)
		r.Post("/on_unpublish", h.OnUnpublish)
		r.Post("/on_segment_end", h.OnSegmentEnd)
	})
}

// OnPublish handles POST /hooks/on_publish.
// Body: { "stream": "cam1", "title": "...", "comment": "...", "act": "..." }.
// The policy is fetched in the background; the reply does not wait for it.
func (h *Handler) OnPublish(w http.ResponseWriter, r *http.Request) {
	var body publishHook
	if !h.decode(w, r, &body) || !h.requireStream(w, body.Stream) {
		return
	}

	opts := FetchOptions{Title: body.Title, Comment: body.Comment, TextAction: body.Action}
	h.svc.Publish(r.Context(), body.Stream, opts)

	h.log.Info("stream published",
		slog.String("stream", body.Stream),
		slog.String("request_id", middleware.GetReqID(r.Context())))
	h.reply(w)
}

// OnUnpublish handles POST /hooks/on_unpublish. Body: { "stream": "cam1" }.
func (h *Handler) OnUnpublish(w http.ResponseWriter, r *http.Request) {
	var body unpublishHook
	if !h.decode(w, r, &body) || !h.requireStream(w, body.Stream) {
		return
	}

	h.svc.Unpublish(r.Context(), body.Stream)

	h.log.Info("stream unpublished", slog.String("stream", body.Stream))
	h.reply(w)
}

// OnSegmentEnd handles POST /hooks/on_segment_end.
// Body: { "stream": "cam1", "segment_number": 3, "duration_ms": 600000,
// "end_time": 1502781936, "storage_path": "/content", "file_path": "/content/cam1_3.mp4" }.
func (h *Handler) OnSegmentEnd(w http.ResponseWriter, r *http.Request) {
	var body segmentEndHook
	if !h.decode(w, r, &body) || !h.requireStream(w, body.Stream) {
		return
	}
	if body.FilePath == "" || body.DurationMS < 0 {
		h.log.Debug("invalid segment hook", slog.String("stream", body.Stream))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	info := SegmentInfo{
		Duration:    time.Duration(body.DurationMS) * time.Millisecond,
		Number:      body.SegmentNumber,
		StoragePath: body.StoragePath,
		CurrentFile: body.FilePath,
	}
	if body.EndTime > 0 {
		info.End = time.Unix(body.EndTime, 0)
	}
	h.svc.OnSegmentEnd(body.Stream, info)
	h.reply(w)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"started_at":      h.startedAt.UTC().Format(time.RFC3339),
		"active_policies": h.svc.ActivePolicies(),
		"active_pushes":   h.svc.ActivePushes(),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.log.Debug("invalid webhook body", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) requireStream(w http.ResponseWriter, stream string) bool {
	if stream == "" {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) reply(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(webhookReply{Code: replySuccessCode, Msg: replySuccessMsg})
}
