package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/blob"
	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
	"github.com/harborworks/fieldsync/pkg/idx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

// userDocumentHandler promotes the first uploaded file of a user-document
// event from the transient namespace into the durable documents namespace
// (server-side blob copy, no local buffering) and records one document
// row pointing at the new blob, linked to the project and optionally a
// target user.
type userDocumentHandler struct {
	deps HandlerDeps
}

func (h *userDocumentHandler) Handle(ctx context.Context, ev domain.OfflineEvent) error {
	log := slogx.FromContext(ctx)

	projectID := payloadString(ev.Payload, "projectId")
	if projectID == "" {
		return errors.New("user-document: missing projectId")
	}
	if len(ev.UploadedFiles) == 0 {
		return errors.New("user-document: no uploaded file")
	}

	// 1. The project must exist; an absent aggregate means we skip this
	// side effect, per the not-found taxonomy.
	if _, err := h.deps.Store.Projects().GetProjectByID(ctx, ev.TenantID, projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("user-document: project not found, skipping",
				slog.String("project_id", projectID),
			)
			return nil
		}
		return fmt.Errorf("user-document: project lookup: %w", err)
	}

	// 2. Promote the first file into the durable namespace.
	src := ev.UploadedFiles[0]
	newBlobID, err := h.deps.Blobs.Copy(ctx, blob.NamespaceUploads, src.BlobID, blob.NamespaceDocuments, blob.Metadata{
		TenantID:         ev.TenantID,
		UploaderID:       ev.UserID,
		OriginalFilename: src.Filename,
		ContentType:      src.ContentType,
		Kind:             "document",
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("user-document: blob copy: %w", err)
	}

	// 3. Record the document against the project.
	err = h.deps.Store.Documents().CreateDocument(ctx, domain.Document{
		ID:            idx.New().String(),
		TenantID:      ev.TenantID,
		ProjectID:     projectID,
		TargetUserID:  payloadString(ev.Payload, "targetUserId"),
		BlobID:        newBlobID,
		Filename:      src.Filename,
		ContentType:   src.ContentType,
		Size:          src.Size,
		SourceEventID: ev.ID,
	})
	if err != nil {
		return fmt.Errorf("user-document: record document: %w", err)
	}

	return nil
}
