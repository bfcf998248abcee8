package domain

import "time"

// User is the slice of the user aggregate this service touches: the
// denormalized biometric summary. The summary is a cache refreshed
// whenever the user's EnrollmentRecord changes; the record is
// authoritative, the summary is not.
type User struct {
	ID                string
	TenantID          string
	DisplayName       string
	BiometricStatus   RecordStatus // empty when never enrolled
	TemplateVersion   string
	BiometricUpdated  *time.Time
	BiometricPhotoRef string // representative photo blob id
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BiometricSummary is the cached view written back onto a user row.
type BiometricSummary struct {
	Status          RecordStatus
	TemplateVersion string
	UpdatedAt       time.Time
	PhotoRef        string
}

// Group is a read-only collaborator used to restrict identification to a
// member set.
type Group struct {
	ID        string
	TenantID  string
	Name      string
	MemberIDs []string
}
