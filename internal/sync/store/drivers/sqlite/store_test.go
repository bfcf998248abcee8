package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
	"github.com/harborworks/fieldsync/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func TestAppendAndListEvents(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	clientTime := time.Date(2026, 8, 20, 7, 30, 0, 0, time.UTC)
	ev := domain.OfflineEvent{
		ID:        idx.New().String(),
		TenantID:  "t1",
		UserID:    "u1",
		EventType: domain.EventTaskUpdate,
		EntityRef: "task-1",
		Payload:   map[string]any{"status": "completed", "durationMinutes": float64(30)},
		UploadedFiles: []domain.UploadedFile{
			{BlobID: "b1", Filename: "a.jpg", ContentType: "image/jpeg", Size: 10},
		},
		ClientTime: &clientTime,
		ReceivedAt: time.Now().UTC(),
	}
	require.NoError(t, st.Events().AppendEvent(ctx, ev))

	got, err := st.Events().GetEventByID(ctx, "t1", ev.ID)
	require.NoError(t, err)
	require.Equal(t, ev.EventType, got.EventType)
	require.Equal(t, ev.Payload, got.Payload)
	require.Equal(t, ev.UploadedFiles, got.UploadedFiles)
	require.NotNil(t, got.ClientTime)
	require.True(t, clientTime.Equal(*got.ClientTime))

	// Tenant isolation on reads.
	_, err = st.Events().GetEventByID(ctx, "t2", ev.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	// Type filter.
	events, err := st.Events().ListEvents(ctx, "t1", domain.EventTaskUpdate, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = st.Events().ListEvents(ctx, "t1", domain.EventProjectUpdate, 0)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestUpsertRequestBySourceEvent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := domain.EnrollmentRequest{
		ID:                idx.New().String(),
		TenantID:          "t1",
		SourceEventID:     "client-evt-1",
		TargetUserID:      "user-1",
		PerformedByUserID: "manager-1",
		Status:            domain.RequestPending,
	}
	firstID, err := st.EnrollmentRequests().UpsertBySourceEvent(ctx, base)
	require.NoError(t, err)
	require.Equal(t, base.ID, firstID)

	// Replay with fresh capture fields updates the pending row in place.
	replay := base
	replay.ID = idx.New().String()
	replay.TargetUserID = "user-2"
	secondID, err := st.EnrollmentRequests().UpsertBySourceEvent(ctx, replay)
	require.NoError(t, err)
	require.Equal(t, firstID, secondID, "surviving row keeps its original id")

	got, err := st.EnrollmentRequests().GetRequestByID(ctx, "t1", firstID)
	require.NoError(t, err)
	require.Equal(t, "user-2", got.TargetUserID)
	require.Equal(t, domain.RequestPending, got.Status)

	// Once terminal, replays no longer touch the capture fields.
	require.NoError(t, st.EnrollmentRequests().MarkRequestApproved(ctx, "t1", firstID, "reviewer-1"))

	late := base
	late.ID = idx.New().String()
	late.TargetUserID = "user-3"
	thirdID, err := st.EnrollmentRequests().UpsertBySourceEvent(ctx, late)
	require.NoError(t, err)
	require.Equal(t, firstID, thirdID)

	got, err = st.EnrollmentRequests().GetRequestByID(ctx, "t1", firstID)
	require.NoError(t, err)
	require.Equal(t, "user-2", got.TargetUserID)
	require.Equal(t, domain.RequestApproved, got.Status)

	// A different tenant with the same source event id is a separate row.
	other := base
	other.ID = idx.New().String()
	other.TenantID = "t2"
	otherID, err := st.EnrollmentRequests().UpsertBySourceEvent(ctx, other)
	require.NoError(t, err)
	require.NotEqual(t, firstID, otherID)
}

func TestRequestTransitionsAreConditional(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	req := domain.EnrollmentRequest{
		ID:            idx.New().String(),
		TenantID:      "t1",
		SourceEventID: "client-evt-1",
		TargetUserID:  "user-1",
		Status:        domain.RequestPending,
	}
	id, err := st.EnrollmentRequests().UpsertBySourceEvent(ctx, req)
	require.NoError(t, err)

	require.NoError(t, st.EnrollmentRequests().MarkRequestApproved(ctx, "t1", id, "reviewer-1"))

	// The row already left pending: both transitions now report ErrNotFound.
	require.ErrorIs(t, st.EnrollmentRequests().MarkRequestApproved(ctx, "t1", id, "reviewer-2"), store.ErrNotFound)
	require.ErrorIs(t, st.EnrollmentRequests().MarkRequestRejected(ctx, "t1", id, "reviewer-2", "late"), store.ErrNotFound)

	got, err := st.EnrollmentRequests().GetRequestByID(ctx, "t1", id)
	require.NoError(t, err)
	require.Equal(t, domain.RequestApproved, got.Status)
	require.Equal(t, "reviewer-1", got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)
}

func TestUpsertPendingForUserResetsRecord(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := domain.EnrollmentRecord{
		ID:              idx.New().String(),
		TenantID:        "t1",
		UserID:          "user-1",
		Status:          domain.RecordPending,
		PhotoRefs:       []string{"p1"},
		SourceRequestID: "req-1",
	}
	firstID, err := st.EnrollmentRecords().UpsertPendingForUser(ctx, rec)
	require.NoError(t, err)

	require.NoError(t, st.EnrollmentRecords().MarkEnrolled(ctx, "t1", firstID, []byte{1, 2, 3, 4}, "hashvec-v1"))

	enrolled, err := st.EnrollmentRecords().GetRecordByUserID(ctx, "t1", "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.RecordEnrolled, enrolled.Status)
	require.Equal(t, []byte{1, 2, 3, 4}, enrolled.Template)

	// Re-enrollment resets the same row back to pending with no template.
	again := rec
	again.ID = idx.New().String()
	again.PhotoRefs = []string{"p2", "p3"}
	again.SourceRequestID = "req-2"
	secondID, err := st.EnrollmentRecords().UpsertPendingForUser(ctx, again)
	require.NoError(t, err)
	require.Equal(t, firstID, secondID, "one record per (tenant, user)")

	reset, err := st.EnrollmentRecords().GetRecordByUserID(ctx, "t1", "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.RecordPending, reset.Status)
	require.Empty(t, reset.Template)
	require.Empty(t, reset.TemplateVersion)
	require.Equal(t, []string{"p2", "p3"}, reset.PhotoRefs)
	require.Equal(t, "req-2", reset.SourceRequestID)
}

func TestMarkEnrolledIsConditional(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.EnrollmentRecords().UpsertPendingForUser(ctx, domain.EnrollmentRecord{
		ID:        idx.New().String(),
		TenantID:  "t1",
		UserID:    "user-1",
		Status:    domain.RecordPending,
		PhotoRefs: []string{"p1"},
	})
	require.NoError(t, err)

	require.NoError(t, st.EnrollmentRecords().MarkEnrolled(ctx, "t1", id, []byte{9}, "hashvec-v1"))

	// A second tick losing the race gets ErrNotFound, not a double write.
	err = st.EnrollmentRecords().MarkEnrolled(ctx, "t1", id, []byte{8}, "hashvec-v1")
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := st.EnrollmentRecords().GetRecordByUserID(ctx, "t1", "user-1")
	require.NoError(t, err)
	require.Equal(t, []byte{9}, got.Template)
}

func TestListPendingWithPhotosFiltersQueue(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Pending with photos: queued.
	withPhotos, err := st.EnrollmentRecords().UpsertPendingForUser(ctx, domain.EnrollmentRecord{
		ID: idx.New().String(), TenantID: "t1", UserID: "user-1",
		Status: domain.RecordPending, PhotoRefs: []string{"p1"},
	})
	require.NoError(t, err)

	// Pending without photos: nothing to encode yet.
	_, err = st.EnrollmentRecords().UpsertPendingForUser(ctx, domain.EnrollmentRecord{
		ID: idx.New().String(), TenantID: "t1", UserID: "user-2",
		Status: domain.RecordPending,
	})
	require.NoError(t, err)

	// Enrolled: done.
	doneID, err := st.EnrollmentRecords().UpsertPendingForUser(ctx, domain.EnrollmentRecord{
		ID: idx.New().String(), TenantID: "t2", UserID: "user-3",
		Status: domain.RecordPending, PhotoRefs: []string{"p2"},
	})
	require.NoError(t, err)
	require.NoError(t, st.EnrollmentRecords().MarkEnrolled(ctx, "t2", doneID, []byte{1}, "hashvec-v1"))

	queue, err := st.EnrollmentRecords().ListPendingWithPhotos(ctx, 16)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, withPhotos, queue[0].ID)
}

func TestListEnrolledIncludesTemplates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.EnrollmentRecords().UpsertPendingForUser(ctx, domain.EnrollmentRecord{
		ID: idx.New().String(), TenantID: "t1", UserID: "user-1",
		Status: domain.RecordPending, PhotoRefs: []string{"p1"},
	})
	require.NoError(t, err)
	require.NoError(t, st.EnrollmentRecords().MarkEnrolled(ctx, "t1", id, []byte{7, 7}, "hashvec-v1"))

	enrolled, err := st.EnrollmentRecords().ListEnrolled(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, enrolled, 1)
	require.Equal(t, []byte{7, 7}, enrolled[0].Template)

	// Other tenants see nothing.
	enrolled, err = st.EnrollmentRecords().ListEnrolled(ctx, "t2")
	require.NoError(t, err)
	require.Empty(t, enrolled)
}

func TestUpdateBiometricSummary(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Users().CreateUser(ctx, domain.User{
		ID: "user-1", TenantID: "t1", DisplayName: "Field Tech",
	}))

	now := time.Now().UTC()
	require.NoError(t, st.Users().UpdateBiometricSummary(ctx, "t1", "user-1", domain.BiometricSummary{
		Status:          domain.RecordEnrolled,
		TemplateVersion: "hashvec-v1",
		UpdatedAt:       now,
		PhotoRef:        "p1",
	}))

	user, err := st.Users().GetUserByID(ctx, "t1", "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.RecordEnrolled, user.BiometricStatus)
	require.Equal(t, "hashvec-v1", user.TemplateVersion)
	require.Equal(t, "p1", user.BiometricPhotoRef)

	err = st.Users().UpdateBiometricSummary(ctx, "t1", "ghost", domain.BiometricSummary{Status: domain.RecordPending, UpdatedAt: now})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	boom := func(tx store.Tx) error {
		_, err := tx.EnrollmentRecords().UpsertPendingForUser(ctx, domain.EnrollmentRecord{
			ID: idx.New().String(), TenantID: "t1", UserID: "user-1",
			Status: domain.RecordPending,
		})
		require.NoError(t, err)
		return context.Canceled
	}
	require.ErrorIs(t, st.WithTx(ctx, boom), context.Canceled)

	_, err := st.EnrollmentRecords().GetRecordByUserID(ctx, "t1", "user-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}
