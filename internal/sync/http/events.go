package http

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/service"
	"github.com/harborworks/fieldsync/pkg/httpx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

// maxMultipartMemory bounds how much of a multipart body is buffered in
// memory before spilling to temp files.
const maxMultipartMemory = 32 << 20 // 32 MiB

// EventsHandler handles the offline-event ingestion and listing endpoints.
type EventsHandler struct {
	IngestService *service.IngestService
}

// eventRequest is the JSON body shape; multipart requests carry the same
// fields as form values plus file parts under "files".
type eventRequest struct {
	EventType  string         `json:"eventType"`
	EntityRef  string         `json:"entityRef"`
	Payload    map[string]any `json:"payload"`
	ClientTime string         `json:"clientTime"`
}

type eventResponse struct {
	OK                 bool   `json:"ok"`
	ID                 string `json:"id"`
	UploadedFilesCount int    `json:"uploadedFilesCount"`
}

// eventView is the listing shape. The tenant id is implied by the
// caller's token and never echoed back.
type eventView struct {
	ID            string                `json:"id"`
	UserID        string                `json:"userId"`
	EventType     string                `json:"eventType"`
	EntityRef     string                `json:"entityRef,omitempty"`
	Payload       map[string]any        `json:"payload,omitempty"`
	UploadedFiles []domain.UploadedFile `json:"uploadedFiles"`
	ClientTime    *time.Time            `json:"clientTime,omitempty"`
	ReceivedAt    time.Time             `json:"receivedAt"`
}

func newEventView(ev domain.OfflineEvent) eventView {
	files := ev.UploadedFiles
	if files == nil {
		files = []domain.UploadedFile{}
	}
	return eventView{
		ID:            ev.ID,
		UserID:        ev.UserID,
		EventType:     string(ev.EventType),
		EntityRef:     ev.EntityRef,
		Payload:       ev.Payload,
		UploadedFiles: files,
		ClientTime:    ev.ClientTime,
		ReceivedAt:    ev.ReceivedAt,
	}
}

// HandlePost handles POST /v1/offline-events. Accepts application/json
// for file-less events and multipart/form-data when attachments ride
// along. The 200 acknowledgement means the event row is durable; side
// effects may still have been skipped.
func (h *EventsHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	in := service.IngestInput{
		TenantID: httpx.TenantIDFromContext(ctx),
		ActorID:  httpx.ActorIDFromContext(ctx),
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Malformed multipart body")
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		in.EventType = domain.EventType(r.FormValue("eventType"))
		in.EntityRef = r.FormValue("entityRef")

		// Clients send the payload object as a JSON string under
		// "payloadJson"; "payload" is accepted as an alias.
		raw := r.FormValue("payloadJson")
		if raw == "" {
			raw = r.FormValue("payload")
		}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &in.Payload); err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "payload must be a JSON object")
				return
			}
		}

		ct, ok := parseClientTime(r.FormValue("clientTime"))
		if !ok {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "clientTime must be RFC 3339")
			return
		}
		in.ClientTime = ct

		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Unreadable file part")
				return
			}
			defer f.Close()

			in.Files = append(in.Files, service.FileUpload{
				Reader:      f,
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
			})
		}

	default:
		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON in request body")
			return
		}

		in.EventType = domain.EventType(req.EventType)
		in.EntityRef = req.EntityRef
		in.Payload = req.Payload

		ct, ok := parseClientTime(req.ClientTime)
		if !ok {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "clientTime must be RFC 3339")
			return
		}
		in.ClientTime = ct
	}

	res, err := h.IngestService.Ingest(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingEventType):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "eventType is required")
		case errors.Is(err, service.ErrUnknownEventType):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Unknown eventType")
		default:
			log.Error("event ingestion failed", "error", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to record event")
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, eventResponse{
		OK:                 true,
		ID:                 res.EventID,
		UploadedFilesCount: res.UploadedFilesCount,
	})
}

// HandleList handles GET /v1/offline-events.
func (h *EventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	eventType := domain.EventType(r.URL.Query().Get("eventType"))

	events, err := h.IngestService.ListEvents(ctx, httpx.TenantIDFromContext(ctx), eventType, limit)
	if err != nil {
		if errors.Is(err, service.ErrUnknownEventType) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Unknown eventType filter")
			return
		}
		log.Error("event listing failed", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Failed to list events")
		return
	}

	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, newEventView(ev))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"events": views})
}

// parseClientTime accepts an empty string (no client clock) or RFC 3339.
func parseClientTime(raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, false
	}
	return &t, true
}
