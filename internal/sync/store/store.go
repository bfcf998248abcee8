package store

import (
	"context"
	"errors"

	"github.com/harborworks/fieldsync/internal/sync/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today,
// postgres later) implement this. Sub-repositories keep concerns tidy and
// every method on them is tenant-scoped: there is no way to phrase a
// cross-tenant read or write through this interface.
type Store interface {
	Events() Events
	EnrollmentRequests() EnrollmentRequests
	EnrollmentRecords() EnrollmentRecords
	Tasks() Tasks
	Projects() Projects
	Documents() Documents
	Notes() Notes
	Users() Users
	Groups() Groups

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise. Prefer this over Tx directly.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Events interface {
	// AppendEvent writes one immutable offline event row. Events are never
	// updated or deleted by this service; duplicates are expected and
	// allowed (replay safety lives in the handlers, not here).
	AppendEvent(ctx context.Context, ev domain.OfflineEvent) error

	// GetEventByID returns an event within the tenant.
	GetEventByID(ctx context.Context, tenantID, id string) (domain.OfflineEvent, error)

	// ListEvents returns the newest events for a tenant, optionally
	// filtered by event type. limit <= 0 means the driver default.
	ListEvents(ctx context.Context, tenantID string, eventType domain.EventType, limit int) ([]domain.OfflineEvent, error)
}

type EnrollmentRequests interface {
	// UpsertBySourceEvent inserts the request or, when a row already
	// exists for (tenant_id, source_event_id), refreshes its capture
	// fields in place. Returns the id of the surviving row. Terminal
	// rows are left untouched apart from updated_at.
	UpsertBySourceEvent(ctx context.Context, req domain.EnrollmentRequest) (string, error)

	// GetRequestByID returns a request within the tenant.
	GetRequestByID(ctx context.Context, tenantID, id string) (domain.EnrollmentRequest, error)

	// ListRequests filters by status ("" or "all" means no filter) and
	// optional target user, newest first.
	ListRequests(ctx context.Context, tenantID string, status domain.RequestStatus, targetUserID string, limit int) ([]domain.EnrollmentRequest, error)

	// MarkRequestApproved transitions pending -> approved. Returns
	// ErrNotFound when no pending row matched (already terminal or absent).
	MarkRequestApproved(ctx context.Context, tenantID, id, approvedBy string) error

	// MarkRequestRejected transitions pending -> rejected with a reason.
	// Same conditional semantics as MarkRequestApproved.
	MarkRequestRejected(ctx context.Context, tenantID, id, rejectedBy, reason string) error
}

type EnrollmentRecords interface {
	// UpsertPendingForUser creates or resets the one record per
	// (tenant_id, user_id): status pending, template cleared, photo refs
	// and provenance replaced. Returns the id of the surviving row.
	UpsertPendingForUser(ctx context.Context, rec domain.EnrollmentRecord) (string, error)

	// GetRecordByUserID returns the record for a user within the tenant.
	GetRecordByUserID(ctx context.Context, tenantID, userID string) (domain.EnrollmentRecord, error)

	// ListPendingWithPhotos returns up to limit records, across all
	// tenants, that are pending and have at least one photo ref. This is
	// the template worker's work queue.
	ListPendingWithPhotos(ctx context.Context, limit int) ([]domain.EnrollmentRecord, error)

	// MarkEnrolled conditionally transitions pending -> enrolled, setting
	// the template and its version. Returns ErrNotFound when the record
	// is no longer pending; a concurrent tick losing this race is
	// harmless.
	MarkEnrolled(ctx context.Context, tenantID, id string, template []byte, version string) error

	// ListEnrolled returns every enrolled record for a tenant, templates
	// included. Identification is the only reader of templates.
	ListEnrolled(ctx context.Context, tenantID string) ([]domain.EnrollmentRecord, error)
}

type Tasks interface {
	GetTaskByID(ctx context.Context, tenantID, id string) (domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) error
	UpdateTaskStatus(ctx context.Context, tenantID, id string, status domain.TaskStatus) error
	UpdateMilestoneStatus(ctx context.Context, tenantID, id string, status domain.MilestoneStatus) error
	AddAttachment(ctx context.Context, a domain.TaskAttachment) error
	ListAttachments(ctx context.Context, tenantID, taskID string) ([]domain.TaskAttachment, error)
	AddDurationLog(ctx context.Context, d domain.DurationLog) error
	ListDurationLogs(ctx context.Context, tenantID, taskID string) ([]domain.DurationLog, error)
}

type Projects interface {
	GetProjectByID(ctx context.Context, tenantID, id string) (domain.Project, error)
	CreateProject(ctx context.Context, p domain.Project) error
	UpdateProjectStatus(ctx context.Context, tenantID, id string, status domain.ProjectStatus) error
}

type Documents interface {
	CreateDocument(ctx context.Context, d domain.Document) error
	ListDocumentsByProject(ctx context.Context, tenantID, projectID string) ([]domain.Document, error)
}

type Notes interface {
	// CreateNote always appends. Dedup on replay is deliberately not done
	// here; the source_event_id column exists so callers can reconcile.
	CreateNote(ctx context.Context, n domain.ManagerNote) error
	ListNotesByEntity(ctx context.Context, tenantID, entityRef string) ([]domain.ManagerNote, error)
}

type Users interface {
	GetUserByID(ctx context.Context, tenantID, id string) (domain.User, error)
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateBiometricSummary refreshes the denormalized cache on the user
	// row. The enrollment record stays authoritative.
	UpdateBiometricSummary(ctx context.Context, tenantID, userID string, s domain.BiometricSummary) error
}

type Groups interface {
	GetGroupByID(ctx context.Context, tenantID, id string) (domain.Group, error)
	CreateGroup(ctx context.Context, g domain.Group) error
}
