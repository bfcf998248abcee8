package domain

import "time"

// RequestStatus is the lifecycle of an enrollment request. Approved and
// rejected are terminal.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// EnrollmentRequest tracks one biometric capture from ingestion through
// review. It is upserted by (tenant_id, source_event_id) so replaying the
// originating offline event updates the existing row instead of creating
// a duplicate.
type EnrollmentRequest struct {
	ID                string
	TenantID          string
	SourceEventID     string // idempotency key, unique per tenant
	TargetUserID      string
	PerformedByUserID string
	GroupID           string // optional
	UploadedFiles     []UploadedFile
	Status            RequestStatus
	ApprovedBy        string
	ApprovedAt        *time.Time
	RejectedBy        string
	RejectedAt        *time.Time
	RejectReason      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Terminal reports whether the request has reached a final state.
func (r EnrollmentRequest) Terminal() bool {
	return r.Status == RequestApproved || r.Status == RequestRejected
}

// RecordStatus is the lifecycle of a durable enrollment record.
type RecordStatus string

const (
	RecordPending  RecordStatus = "pending"
	RecordEnrolled RecordStatus = "enrolled"
	RecordRejected RecordStatus = "rejected"
	RecordRevoked  RecordStatus = "revoked"
	RecordExpired  RecordStatus = "expired"
)

// EnrollmentRecord is the one durable biometric record per (tenant, user).
// Invariant: Template is non-empty exactly when Status == RecordEnrolled.
// The template is write-only from the API's point of view and is never
// included in bulk reads.
type EnrollmentRecord struct {
	ID              string
	TenantID        string
	UserID          string // unique per tenant
	Status          RecordStatus
	TemplateVersion string
	Template        []byte
	PhotoRefs       []string // blob ids in the durable biometrics namespace
	SourceRequestID string
	ApprovedBy      string
	ApprovedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
