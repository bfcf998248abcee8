package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/harborworks/fieldsync/internal/sync/biometric"
	"github.com/harborworks/fieldsync/internal/sync/blob"
	"github.com/harborworks/fieldsync/internal/sync/blob/drivers/fsblob"
	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/internal/sync/store"
	"github.com/harborworks/fieldsync/internal/sync/store/drivers/sqlite"
	"github.com/harborworks/fieldsync/pkg/idx"
	"github.com/stretchr/testify/require"
)

const testTenant = "tenant-1"

type testEnv struct {
	store      store.Store
	blobs      blob.Store
	ingest     *IngestService
	enrollment *EnrollmentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	blobs, err := fsblob.NewStore(t.TempDir())
	require.NoError(t, err)

	deps := HandlerDeps{Store: st, Blobs: blobs}
	return &testEnv{
		store:      st,
		blobs:      blobs,
		ingest:     &IngestService{Store: st, Blobs: blobs, Dispatcher: NewDispatcher(deps)},
		enrollment: &EnrollmentService{Store: st, Blobs: blobs},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ingestEnroll replays one biometric-enroll event carrying a single photo.
func (e *testEnv) ingestEnroll(t *testing.T, ctx context.Context, clientEventID, targetUserID string, photo string) IngestResult {
	t.Helper()

	res, err := e.ingest.Ingest(ctx, IngestInput{
		TenantID:  testTenant,
		ActorID:   "manager-1",
		EventType: domain.EventBiometricEnroll,
		Payload: map[string]any{
			"sourceEventId": clientEventID,
			"targetUserId":  targetUserID,
		},
		Files: []FileUpload{{
			Reader:      strings.NewReader(photo),
			Filename:    "capture.jpg",
			ContentType: "image/jpeg",
		}},
	})
	require.NoError(t, err)
	return res
}

func TestIngestRejectsUnknownEventType(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.ingest.Ingest(ctx, IngestInput{
		TenantID:  testTenant,
		ActorID:   "user-1",
		EventType: "mystery-event",
	})
	require.ErrorIs(t, err, ErrUnknownEventType)

	_, err = env.ingest.Ingest(ctx, IngestInput{TenantID: testTenant, ActorID: "user-1"})
	require.ErrorIs(t, err, ErrMissingEventType)

	events, err := env.ingest.ListEvents(ctx, testTenant, "", 0)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestBiometricEnrollReplayUpsertsOneRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.ingestEnroll(t, ctx, "client-evt-1", "user-1", "photo-bytes")
	second := env.ingestEnroll(t, ctx, "client-evt-1", "user-1", "photo-bytes")
	require.NotEqual(t, first.EventID, second.EventID, "each delivery appends its own event row")

	// The event log keeps both deliveries...
	events, err := env.ingest.ListEvents(ctx, testTenant, domain.EventBiometricEnroll, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// ...but the request table collapsed them into one pending row.
	requests, err := env.enrollment.ListRequests(ctx, testTenant, domain.RequestPending, "", 0)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	require.Equal(t, "user-1", requests[0].TargetUserID)
	require.Equal(t, "client-evt-1", requests[0].SourceEventID)
	require.Len(t, requests[0].UploadedFiles, 1)
}

func TestApproveIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ingestEnroll(t, ctx, "client-evt-1", "user-1", "photo-bytes")

	requests, err := env.enrollment.ListRequests(ctx, testTenant, domain.RequestPending, "", 0)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	reqID := requests[0].ID

	first, err := env.enrollment.Approve(ctx, testTenant, reqID, "reviewer-1")
	require.NoError(t, err)
	require.Equal(t, domain.RequestApproved, first.Status)
	require.False(t, first.AlreadyFinal)

	rec, err := env.store.EnrollmentRecords().GetRecordByUserID(ctx, testTenant, "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.RecordPending, rec.Status)
	require.Empty(t, rec.Template)
	require.Len(t, rec.PhotoRefs, 1)
	require.Equal(t, reqID, rec.SourceRequestID)

	// Retrying reports the terminal state and leaves the record alone.
	second, err := env.enrollment.Approve(ctx, testTenant, reqID, "reviewer-2")
	require.NoError(t, err)
	require.Equal(t, domain.RequestApproved, second.Status)
	require.True(t, second.AlreadyFinal)

	after, err := env.store.EnrollmentRecords().GetRecordByUserID(ctx, testTenant, "user-1")
	require.NoError(t, err)
	require.Equal(t, rec.ID, after.ID)
	require.Equal(t, rec.PhotoRefs, after.PhotoRefs)
}

func TestRejectStoresReasonWithoutRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.ingestEnroll(t, ctx, "client-evt-1", "user-1", "photo-bytes")

	requests, err := env.enrollment.ListRequests(ctx, testTenant, domain.RequestPending, "", 0)
	require.NoError(t, err)
	require.Len(t, requests, 1)
	reqID := requests[0].ID

	_, err = env.enrollment.Reject(ctx, testTenant, reqID, "reviewer-1", "")
	require.ErrorIs(t, err, ErrMissingReason)

	res, err := env.enrollment.Reject(ctx, testTenant, reqID, "reviewer-1", "blurry capture")
	require.NoError(t, err)
	require.Equal(t, domain.RequestRejected, res.Status)

	req, err := env.enrollment.GetRequest(ctx, testTenant, reqID)
	require.NoError(t, err)
	require.Equal(t, domain.RequestRejected, req.Status)
	require.Equal(t, "blurry capture", req.RejectReason)
	require.Equal(t, "reviewer-1", req.RejectedBy)

	// No record side effect on rejection.
	_, err = env.store.EnrollmentRecords().GetRecordByUserID(ctx, testTenant, "user-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	retry, err := env.enrollment.Reject(ctx, testTenant, reqID, "reviewer-2", "again")
	require.NoError(t, err)
	require.True(t, retry.AlreadyFinal)
	require.Equal(t, domain.RequestRejected, retry.Status)
}

func TestTemplateWorkerEnrollsPendingRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.store.Users().CreateUser(ctx, domain.User{
		ID:          "user-1",
		TenantID:    testTenant,
		DisplayName: "Field Tech",
	}))

	env.ingestEnroll(t, ctx, "client-evt-1", "user-1", "photo-bytes")
	requests, err := env.enrollment.ListRequests(ctx, testTenant, domain.RequestPending, "", 0)
	require.NoError(t, err)
	_, err = env.enrollment.Approve(ctx, testTenant, requests[0].ID, "reviewer-1")
	require.NoError(t, err)

	// Template absent while pending.
	rec, err := env.store.EnrollmentRecords().GetRecordByUserID(ctx, testTenant, "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.RecordPending, rec.Status)
	require.Empty(t, rec.Template)

	worker := NewTemplateWorker(env.store, env.blobs, biometric.NewHashEncoder(), discardLogger(), time.Hour, 16)
	worker.Tick(ctx)

	// Template present exactly once the record is enrolled.
	rec, err = env.store.EnrollmentRecords().GetRecordByUserID(ctx, testTenant, "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.RecordEnrolled, rec.Status)
	require.NotEmpty(t, rec.Template)
	require.Equal(t, biometric.Version, rec.TemplateVersion)

	// The user summary cache caught up.
	user, err := env.store.Users().GetUserByID(ctx, testTenant, "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.RecordEnrolled, user.BiometricStatus)
	require.Equal(t, biometric.Version, user.TemplateVersion)

	// A second tick finds nothing to do.
	pending, err := env.store.EnrollmentRecords().ListPendingWithPhotos(ctx, 16)
	require.NoError(t, err)
	require.Empty(t, pending)
	worker.Tick(ctx)
}

func TestActivityLogCreatesAttachmentsAndOneDurationLog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	taskID := idx.New().String()
	require.NoError(t, env.store.Tasks().CreateTask(ctx, domain.Task{
		ID:       taskID,
		TenantID: testTenant,
		Title:    "Inspect pump house",
		Status:   domain.TaskPending,
	}))

	res, err := env.ingest.Ingest(ctx, IngestInput{
		TenantID:  testTenant,
		ActorID:   "tech-1",
		EventType: domain.EventActivityLog,
		EntityRef: taskID,
		Payload: map[string]any{
			"durationMinutes": 90,
			"note":            "replaced seals",
		},
		Files: []FileUpload{
			{Reader: strings.NewReader("before"), Filename: "before.jpg", ContentType: "image/jpeg"},
			{Reader: strings.NewReader("after"), Filename: "after.jpg", ContentType: "image/jpeg"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.UploadedFilesCount)

	attachments, err := env.store.Tasks().ListAttachments(ctx, testTenant, taskID)
	require.NoError(t, err)
	require.Len(t, attachments, 2)
	for _, a := range attachments {
		require.Equal(t, res.EventID, a.SourceEventID)
	}

	logs, err := env.store.Tasks().ListDurationLogs(ctx, testTenant, taskID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, int64(90), logs[0].Minutes)
	require.Equal(t, "replaced seals", logs[0].Note)
	require.Equal(t, res.EventID, logs[0].SourceEventID)
}

func TestActivityLogSkipsMissingTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// The event is still durably acknowledged when the task is gone.
	res, err := env.ingest.Ingest(ctx, IngestInput{
		TenantID:  testTenant,
		ActorID:   "tech-1",
		EventType: domain.EventActivityLog,
		EntityRef: "no-such-task",
		Payload:   map[string]any{"durationMinutes": 15},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.EventID)

	logs, err := env.store.Tasks().ListDurationLogs(ctx, testTenant, "no-such-task")
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestTaskUpdateNormalizesStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	taskID := idx.New().String()
	require.NoError(t, env.store.Tasks().CreateTask(ctx, domain.Task{
		ID:       taskID,
		TenantID: testTenant,
		Title:    "Survey east fence",
		Status:   domain.TaskPending,
	}))

	update := func(status string) {
		_, err := env.ingest.Ingest(ctx, IngestInput{
			TenantID:  testTenant,
			ActorID:   "tech-1",
			EventType: domain.EventTaskUpdate,
			EntityRef: taskID,
			Payload:   map[string]any{"status": status, "managerNote": "status " + status},
		})
		require.NoError(t, err)
	}

	// "Done" is not in the canonical set: dropped, task untouched.
	update("Done")
	task, err := env.store.Tasks().GetTaskByID(ctx, testTenant, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskPending, task.Status)

	// "Completed" normalizes case-insensitively and applies.
	update("Completed")
	task, err = env.store.Tasks().GetTaskByID(ctx, testTenant, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskCompleted, task.Status)
	require.Equal(t, domain.MilestoneCompleted, task.MilestoneStatus)

	// Both events appended their note, recognized status or not.
	notes, err := env.store.Notes().ListNotesByEntity(ctx, testTenant, taskID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
}

func TestProjectUpdateAppliesStatusAndNote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	projectID := idx.New().String()
	require.NoError(t, env.store.Projects().CreateProject(ctx, domain.Project{
		ID:       projectID,
		TenantID: testTenant,
		Name:     "Northern depot",
		Status:   domain.ProjectActive,
	}))

	_, err := env.ingest.Ingest(ctx, IngestInput{
		TenantID:  testTenant,
		ActorID:   "manager-1",
		EventType: domain.EventProjectUpdate,
		EntityRef: projectID,
		Payload:   map[string]any{"status": "on-hold", "managerNote": "awaiting permits"},
	})
	require.NoError(t, err)

	project, err := env.store.Projects().GetProjectByID(ctx, testTenant, projectID)
	require.NoError(t, err)
	require.Equal(t, domain.ProjectOnHold, project.Status)

	notes, err := env.store.Notes().ListNotesByEntity(ctx, testTenant, projectID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "awaiting permits", notes[0].Body)
}

func TestUserDocumentPromotesFileToDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	projectID := idx.New().String()
	require.NoError(t, env.store.Projects().CreateProject(ctx, domain.Project{
		ID:       projectID,
		TenantID: testTenant,
		Name:     "Northern depot",
		Status:   domain.ProjectActive,
	}))

	res, err := env.ingest.Ingest(ctx, IngestInput{
		TenantID:  testTenant,
		ActorID:   "tech-1",
		EventType: domain.EventUserDocument,
		Payload:   map[string]any{"projectId": projectID},
		Files: []FileUpload{{
			Reader:      strings.NewReader("pdf-bytes"),
			Filename:    "permit.pdf",
			ContentType: "application/pdf",
		}},
	})
	require.NoError(t, err)

	docs, err := env.store.Documents().ListDocumentsByProject(ctx, testTenant, projectID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "permit.pdf", docs[0].Filename)
	require.Equal(t, res.EventID, docs[0].SourceEventID)

	// The durable copy lives in the documents namespace with the bytes intact.
	rc, meta, err := env.blobs.Open(ctx, blob.NamespaceDocuments, docs[0].BlobID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "pdf-bytes", string(data))
	require.Equal(t, int64(len("pdf-bytes")), meta.Size)
}

func TestEnrollmentStatusView(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.enrollment.Status(ctx, testTenant, "user-1")
	require.ErrorIs(t, err, ErrRecordNotFound)

	env.ingestEnroll(t, ctx, "client-evt-1", "user-1", "photo-bytes")
	requests, err := env.enrollment.ListRequests(ctx, testTenant, domain.RequestPending, "", 0)
	require.NoError(t, err)
	_, err = env.enrollment.Approve(ctx, testTenant, requests[0].ID, "reviewer-1")
	require.NoError(t, err)

	status, err := env.enrollment.Status(ctx, testTenant, "user-1")
	require.NoError(t, err)
	require.Equal(t, domain.RecordPending, status.Status)
	require.Equal(t, 1, status.PhotoCount)
	require.Empty(t, status.TemplateVersion)
}

func TestApproveUnknownRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.enrollment.Approve(ctx, testTenant, "no-such-request", "reviewer-1")
	require.True(t, errors.Is(err, ErrRequestNotFound))
}
