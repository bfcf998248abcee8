package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/domain"
)

const defaultEventListLimit = 50

type eventsRepo struct {
	db dbtx
}

func (r *eventsRepo) AppendEvent(ctx context.Context, ev domain.OfflineEvent) error {
	payload, err := marshalPayload(ev.Payload)
	if err != nil {
		return err
	}
	files, err := marshalFiles(ev.UploadedFiles)
	if err != nil {
		return err
	}

	receivedAt := ev.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO offline_events (id, tenant_id, user_id, event_type, entity_ref, payload, uploaded_files, client_time, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TenantID, ev.UserID, string(ev.EventType), ev.EntityRef,
		payload, files, mapOptionalTime(ev.ClientTime), receivedAt,
	)
	return err
}

func (r *eventsRepo) GetEventByID(ctx context.Context, tenantID, id string) (domain.OfflineEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, event_type, entity_ref, payload, uploaded_files, client_time, received_at
		FROM offline_events
		WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	)
	return scanEvent(row)
}

func (r *eventsRepo) ListEvents(ctx context.Context, tenantID string, eventType domain.EventType, limit int) ([]domain.OfflineEvent, error) {
	if limit <= 0 {
		limit = defaultEventListLimit
	}

	query := `
		SELECT id, tenant_id, user_id, event_type, entity_ref, payload, uploaded_files, client_time, received_at
		FROM offline_events
		WHERE tenant_id = ?`
	args := []any{tenantID}

	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY received_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.OfflineEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.OfflineEvent, error) {
	var (
		ev         domain.OfflineEvent
		eventType  string
		payload    string
		files      string
		clientTime sql.NullTime
	)
	err := row.Scan(
		&ev.ID, &ev.TenantID, &ev.UserID, &eventType, &ev.EntityRef,
		&payload, &files, &clientTime, &ev.ReceivedAt,
	)
	if err != nil {
		return domain.OfflineEvent{}, mapNotFound(err)
	}

	ev.EventType = domain.EventType(eventType)
	ev.ClientTime = mapNullTimePtr(clientTime)

	if ev.Payload, err = unmarshalPayload(payload); err != nil {
		return domain.OfflineEvent{}, err
	}
	if ev.UploadedFiles, err = unmarshalFiles(files); err != nil {
		return domain.OfflineEvent{}, err
	}
	return ev, nil
}
