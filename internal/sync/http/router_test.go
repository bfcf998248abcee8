package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/harborworks/fieldsync/internal/sync/biometric"
	"github.com/harborworks/fieldsync/internal/sync/blob/drivers/fsblob"
	"github.com/harborworks/fieldsync/internal/sync/service"
	"github.com/harborworks/fieldsync/internal/sync/store/drivers/sqlite"
	"github.com/harborworks/fieldsync/pkg/jwtx"
)

var testSecret = []byte("router-test-secret")

func newTestRouter(t *testing.T) *Router {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	blobs, err := fsblob.NewStore(t.TempDir())
	require.NoError(t, err)

	deps := service.HandlerDeps{Store: st, Blobs: blobs}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := NewRouter(jwtx.NewHS256Verifier(testSecret, ""), "test", st, logger)
	r.IngestService = &service.IngestService{Store: st, Blobs: blobs, Dispatcher: service.NewDispatcher(deps)}
	r.EnrollmentService = &service.EnrollmentService{Store: st, Blobs: blobs}
	r.IdentifyService = &service.IdentifyService{Store: st, Encoder: biometric.NewHashEncoder(), Threshold: 0.75}
	r.ApplyRoutes()
	return r
}

func mintToken(t *testing.T, tenant, subject string, scopes ...string) string {
	t.Helper()

	claims := jwtx.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: tenant,
		Scopes:   scopes,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, r *Router, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// enrollMultipart builds a biometric-enroll multipart body with one photo.
func enrollMultipart(t *testing.T, clientEventID, targetUserID, photo string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("eventType", "biometric-enroll"))
	payload, err := json.Marshal(map[string]string{
		"sourceEventId": clientEventID,
		"targetUserId":  targetUserID,
	})
	require.NoError(t, err)
	require.NoError(t, w.WriteField("payloadJson", string(payload)))

	part, err := w.CreateFormFile("files", "capture.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte(photo))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestIngestRequiresAuth(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/v1/offline-events", "", map[string]any{"eventType": "task-update"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIngestJSONEvent(t *testing.T) {
	r := newTestRouter(t)
	token := mintToken(t, "tenant-1", "tech-1")

	rec := doJSON(t, r, http.MethodPost, "/v1/offline-events", token, map[string]any{
		"eventType": "task-update",
		"entityRef": "task-1",
		"payload":   map[string]any{"status": "completed"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		OK                 bool   `json:"ok"`
		ID                 string `json:"id"`
		UploadedFilesCount int    `json:"uploadedFilesCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.NotEmpty(t, resp.ID)
	require.Zero(t, resp.UploadedFilesCount)
}

func TestIngestMultipartPayloadAlias(t *testing.T) {
	r := newTestRouter(t)
	reviewToken := mintToken(t, "tenant-1", "reviewer-1", "biometrics:manage")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("eventType", "biometric-enroll"))
	require.NoError(t, w.WriteField("payload", `{"sourceEventId":"client-evt-9","targetUserId":"user-9"}`))
	part, err := w.CreateFormFile("files", "capture.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("photo-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/offline-events", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "tenant-1", "manager-1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/v1/biometric-requests", reviewToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Requests []struct {
			TargetUserID string `json:"targetUserId"`
		} `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Requests, 1)
	require.Equal(t, "user-9", list.Requests[0].TargetUserID)
}

func TestIngestRejectsUnknownType(t *testing.T) {
	r := newTestRouter(t)
	token := mintToken(t, "tenant-1", "tech-1")

	rec := doJSON(t, r, http.MethodPost, "/v1/offline-events", token, map[string]any{
		"eventType": "mystery",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventListingRequiresScope(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/v1/offline-events", mintToken(t, "tenant-1", "tech-1"), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/v1/offline-events", mintToken(t, "tenant-1", "ops-1", "sync:read"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEnrollReviewFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	techToken := mintToken(t, "tenant-1", "manager-1")
	reviewToken := mintToken(t, "tenant-1", "reviewer-1", "biometrics:manage")

	// 1. Field device replays the enroll event.
	body, contentType := enrollMultipart(t, "client-evt-1", "user-1", "photo-bytes")
	req := httptest.NewRequest(http.MethodPost, "/v1/offline-events", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+techToken)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// 2. The reviewer sees one pending request; the plain token does not.
	rec = doJSON(t, r, http.MethodGet, "/v1/biometric-requests", techToken, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/v1/biometric-requests", reviewToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Requests []struct {
			ID           string `json:"id"`
			TargetUserID string `json:"targetUserId"`
			Status       string `json:"status"`
		} `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Requests, 1)
	require.Equal(t, "user-1", list.Requests[0].TargetUserID)
	require.Equal(t, "pending", list.Requests[0].Status)
	reqID := list.Requests[0].ID

	rec = doJSON(t, r, http.MethodGet, "/v1/biometric-requests/"+reqID, reviewToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var single struct {
		ID            string `json:"id"`
		SourceEventID string `json:"sourceEventId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &single))
	require.Equal(t, reqID, single.ID)
	require.Equal(t, "client-evt-1", single.SourceEventID)

	// 3. Approve twice: second call reports the terminal state.
	rec = doJSON(t, r, http.MethodPost, "/v1/biometric-requests/"+reqID+"/approve", reviewToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var review struct {
		Status       string `json:"status"`
		AlreadyFinal bool   `json:"alreadyFinal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &review))
	require.Equal(t, "approved", review.Status)
	require.False(t, review.AlreadyFinal)

	rec = doJSON(t, r, http.MethodPost, "/v1/biometric-requests/"+reqID+"/approve", reviewToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &review))
	require.Equal(t, "approved", review.Status)
	require.True(t, review.AlreadyFinal)

	// 4. The target user's device can poll the status.
	rec = doJSON(t, r, http.MethodGet, "/v1/biometric-enrollment-status/user-1", techToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Status     string `json:"status"`
		PhotoCount int    `json:"photoCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "pending", status.Status)
	require.Equal(t, 1, status.PhotoCount)
}

func TestRejectRequiresReason(t *testing.T) {
	r := newTestRouter(t)
	reviewToken := mintToken(t, "tenant-1", "reviewer-1", "biometrics:manage")

	body, contentType := enrollMultipart(t, "client-evt-1", "user-1", "photo-bytes")
	req := httptest.NewRequest(http.MethodPost, "/v1/offline-events", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "tenant-1", "manager-1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/v1/biometric-requests", reviewToken, nil)
	var list struct {
		Requests []struct {
			ID string `json:"id"`
		} `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Requests, 1)

	rec = doJSON(t, r, http.MethodPost, "/v1/biometric-requests/"+list.Requests[0].ID+"/reject", reviewToken, map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/v1/biometric-requests/"+list.Requests[0].ID+"/reject", reviewToken, map[string]string{"reason": "blurry"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFileFetchIsTenantScoped(t *testing.T) {
	r := newTestRouter(t)

	body, contentType := enrollMultipart(t, "client-evt-1", "user-1", "photo-bytes")
	req := httptest.NewRequest(http.MethodPost, "/v1/offline-events", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "tenant-1", "manager-1"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	reviewToken := mintToken(t, "tenant-1", "reviewer-1", "biometrics:manage")
	rec = doJSON(t, r, http.MethodGet, "/v1/biometric-requests", reviewToken, nil)
	var list struct {
		Requests []struct {
			UploadedFiles []struct {
				BlobID string `json:"blobId"`
			} `json:"uploadedFiles"`
		} `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Requests, 1)
	blobID := list.Requests[0].UploadedFiles[0].BlobID

	// Same tenant streams the bytes back.
	rec = doJSON(t, r, http.MethodGet, "/v1/offline-files/"+blobID, reviewToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "photo-bytes", rec.Body.String())

	// Another tenant gets a 404, not a 403, to avoid existence leaks.
	rec = doJSON(t, r, http.MethodGet, "/v1/offline-files/"+blobID, mintToken(t, "tenant-2", "spy-1"), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIdentifyRequiresScopeAndMultipart(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/v1/biometric-identify", mintToken(t, "tenant-1", "tech-1"), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	manageToken := mintToken(t, "tenant-1", "reviewer-1", "biometrics:manage")
	rec = doJSON(t, r, http.MethodPost, "/v1/biometric-identify", manageToken, map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Empty tenant: a well-formed probe yields no_enrolled_users.
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("photo", "probe.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("probe-bytes"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/biometric-identify", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+manageToken)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, "no_enrolled_users", res.Reason)
}

func TestSystemEndpoints(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `"status":"ok"`))

	rec = doJSON(t, r, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
