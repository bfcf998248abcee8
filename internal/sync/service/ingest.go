package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/blob"
	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
	"github.com/harborworks/fieldsync/pkg/idx"
	"github.com/harborworks/fieldsync/pkg/metricsx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingEventType = errors.New("missing event type")
)

// IngestService is the entry point for the offline queue replay: it
// streams attachments into the blob store, appends the durable event row,
// and then dispatches side effects. The acknowledgement depends only on
// the first two steps; a failing handler never turns into a retry hint
// for the client, because replaying an already-applied event can
// duplicate notes and copied files.
type IngestService struct {
	Store      store.Store
	Blobs      blob.Store
	Dispatcher *Dispatcher
}

// FileUpload is one attachment streamed in with an event.
type FileUpload struct {
	Reader      io.Reader
	Filename    string
	ContentType string
}

// IngestInput is everything the endpoint hands over for one event.
type IngestInput struct {
	TenantID   string
	ActorID    string
	EventType  domain.EventType
	EntityRef  string
	Payload    map[string]any
	ClientTime *time.Time
	Files      []FileUpload
}

// IngestResult acknowledges durable recording.
type IngestResult struct {
	EventID            string
	UploadedFilesCount int
}

// Ingest records one offline event. Duplicates are expected and never
// rejected; replay safety is each handler's documented contract.
func (s *IngestService) Ingest(ctx context.Context, in IngestInput) (IngestResult, error) {
	log := slogx.FromContext(ctx)

	// 1. Validate the event type against the closed set.
	if in.EventType == "" {
		return IngestResult{}, ErrMissingEventType
	}
	if !knownEventType(in.EventType) {
		return IngestResult{}, fmt.Errorf("%w: %q", ErrUnknownEventType, in.EventType)
	}

	// 2. Stream each file into the tenant-tagged transient namespace.
	// A storage failure here surfaces to the caller: nothing durable has
	// been recorded yet, so a retry is safe.
	uploaded := make([]domain.UploadedFile, 0, len(in.Files))
	for _, f := range in.Files {
		blobID, err := s.Blobs.Put(ctx, blob.NamespaceUploads, f.Reader, blob.Metadata{
			TenantID:         in.TenantID,
			UploaderID:       in.ActorID,
			OriginalFilename: f.Filename,
			ContentType:      f.ContentType,
			Kind:             "offline-upload",
			CreatedAt:        time.Now().UTC(),
		})
		if err != nil {
			return IngestResult{}, fmt.Errorf("store upload %q: %w", f.Filename, err)
		}

		meta, err := s.Blobs.Stat(ctx, blob.NamespaceUploads, blobID)
		if err != nil {
			return IngestResult{}, fmt.Errorf("stat upload %q: %w", f.Filename, err)
		}

		uploaded = append(uploaded, domain.UploadedFile{
			BlobID:      blobID,
			Filename:    f.Filename,
			ContentType: f.ContentType,
			Size:        meta.Size,
		})
	}

	// 3. Append the immutable event row.
	ev := domain.OfflineEvent{
		ID:            idx.New().String(),
		TenantID:      in.TenantID,
		UserID:        in.ActorID,
		EventType:     in.EventType,
		EntityRef:     in.EntityRef,
		Payload:       in.Payload,
		UploadedFiles: uploaded,
		ClientTime:    in.ClientTime,
		ReceivedAt:    time.Now().UTC(),
	}
	if err := s.Store.Events().AppendEvent(ctx, ev); err != nil {
		return IngestResult{}, fmt.Errorf("append event: %w", err)
	}

	metricsx.ObserveEventIngested(string(ev.EventType))
	log.Info("offline event recorded",
		slog.String("event_id", ev.ID),
		slog.String("event_type", string(ev.EventType)),
		slog.Int("uploaded_files", len(uploaded)),
	)

	// 4. Side effects, synchronously but non-fatally: the event is
	// already durable, so the ack stands whatever happens in here.
	s.Dispatcher.Dispatch(ctx, ev)

	return IngestResult{EventID: ev.ID, UploadedFilesCount: len(uploaded)}, nil
}

// ListEvents exposes the tenant's event log for support tooling.
func (s *IngestService) ListEvents(ctx context.Context, tenantID string, eventType domain.EventType, limit int) ([]domain.OfflineEvent, error) {
	if eventType != "" && !knownEventType(eventType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	return s.Store.Events().ListEvents(ctx, tenantID, eventType, limit)
}

func knownEventType(t domain.EventType) bool {
	for _, known := range domain.KnownEventTypes() {
		if t == known {
			return true
		}
	}
	return false
}
