package domain

import "time"

// TaskStatus is the canonical task status set. Free-form strings arriving
// in offline events are normalized against this set and silently dropped
// when they don't map.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskBlocked    TaskStatus = "blocked"
	TaskCancelled  TaskStatus = "cancelled"
)

// MilestoneStatus is the canonical milestone status set, normalized
// independently of TaskStatus.
type MilestoneStatus string

const (
	MilestoneNotStarted MilestoneStatus = "not_started"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneCompleted  MilestoneStatus = "completed"
)

// ProjectStatus is the allowed project status set written by the
// project-update handler (last-write-wins on replay).
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectOnHold    ProjectStatus = "on_hold"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

// Task is the slice of the task aggregate this service mutates. The full
// aggregate belongs to the task subsystem; we only need find/update-by-id.
type Task struct {
	ID              string
	TenantID        string
	ProjectID       string
	Title           string
	Status          TaskStatus
	MilestoneStatus MilestoneStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Project is the slice of the project aggregate this service mutates.
type Project struct {
	ID        string
	TenantID  string
	Name      string
	Status    ProjectStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is a stored file record created from a user-document event,
// pointing at a blob in the durable documents namespace.
type Document struct {
	ID            string
	TenantID      string
	ProjectID     string
	TargetUserID  string // optional
	BlobID        string
	Filename      string
	ContentType   string
	Size          int64
	SourceEventID string
	CreatedAt     time.Time
}

// ManagerNote is an appended note. Notes are never deduplicated: a
// replayed event appends again, and SourceEventID is what lets operators
// reconcile the duplicates.
type ManagerNote struct {
	ID            string
	TenantID      string
	EntityRef     string // task or project id the note is attached to
	AuthorID      string
	Body          string
	SourceEventID string
	CreatedAt     time.Time
}

// TaskAttachment links an uploaded file to a task, carrying a pointer
// back to the offline event that delivered it.
type TaskAttachment struct {
	ID            string
	TenantID      string
	TaskID        string
	BlobID        string
	Filename      string
	ContentType   string
	Size          int64
	SourceEventID string
	CreatedAt     time.Time
}

// DurationLog is one logged work duration against a task.
type DurationLog struct {
	ID            string
	TenantID      string
	TaskID        string
	UserID        string
	Minutes       int64
	Note          string
	SourceEventID string
	CreatedAt     time.Time
}
