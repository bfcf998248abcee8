package domain

import "time"

// EventType is the closed set of offline event kinds the dispatcher knows
// how to route. Adding a new kind means adding a constant here and a
// handler registration in the service layer.
type EventType string

const (
	EventProjectUpdate   EventType = "project-update"
	EventUserDocument    EventType = "user-document"
	EventTaskUpdate      EventType = "task-update"
	EventActivityLog     EventType = "activity-log"
	EventBiometricEnroll EventType = "biometric-enroll"
)

// KnownEventTypes lists every event type the dispatcher routes.
func KnownEventTypes() []EventType {
	return []EventType{
		EventProjectUpdate,
		EventUserDocument,
		EventTaskUpdate,
		EventActivityLog,
		EventBiometricEnroll,
	}
}

// UploadedFile describes one binary attachment that was streamed into the
// blob store while its event was being ingested.
type UploadedFile struct {
	BlobID      string `json:"blobId"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// OfflineEvent is the durable record of what a disconnected client asked
// for. It is immutable once written: downstream handler failures never
// touch it, and replayed deliveries append a new row rather than mutate
// an old one.
type OfflineEvent struct {
	ID            string
	TenantID      string
	UserID        string
	EventType     EventType
	EntityRef     string // id of the aggregate the event targets, if any
	Payload       map[string]any
	UploadedFiles []UploadedFile
	ClientTime    *time.Time // when the client recorded the event, if supplied
	ReceivedAt    time.Time
}
