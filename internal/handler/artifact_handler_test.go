package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/examsync/exam-bridge-api/internal/dto"
	"github.com/examsync/exam-bridge-api/internal/middleware"
	"github.com/examsync/exam-bridge-api/internal/models"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
)

type artifactServiceMock struct {
	artifact   *models.Artifact
	getErr     error
	replaceErr error
	submitErr  error
	lastActor  models.Actor
	lastReq    dto.ReplaceArtifactRequest
}

func (m *artifactServiceMock) Get(context.Context, string) (*models.Artifact, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.artifact, nil
}

func (m *artifactServiceMock) Content(context.Context, string) ([]byte, *models.Artifact, error) {
	return []byte("scan"), m.artifact, nil
}

func (m *artifactServiceMock) List(context.Context, models.ArtifactFilter) ([]models.Artifact, int, error) {
	return []models.Artifact{*m.artifact}, 1, nil
}

func (m *artifactServiceMock) Stats(context.Context) (*models.ArtifactStats, error) {
	return &models.ArtifactStats{Total: 1}, nil
}

func (m *artifactServiceMock) Replace(_ context.Context, _ string, req dto.ReplaceArtifactRequest, actor models.Actor) (*models.Artifact, error) {
	m.lastReq = req
	m.lastActor = actor
	if m.replaceErr != nil {
		return nil, m.replaceErr
	}
	return m.artifact, nil
}

func (m *artifactServiceMock) Delete(context.Context, string, string, models.Actor) error {
	return nil
}

func (m *artifactServiceMock) Reset(context.Context, string, models.Actor) (*models.Artifact, error) {
	return m.artifact, nil
}

func (m *artifactServiceMock) ClearTransactionID(context.Context, string, models.Actor) (*models.Artifact, error) {
	return m.artifact, nil
}

func (m *artifactServiceMock) UnlockSecondAttempt(context.Context, string, models.Actor) (*models.Artifact, error) {
	return m.artifact, nil
}

func (m *artifactServiceMock) RecordStudentSubmit(_ context.Context, _ string, actor models.Actor) (*models.Artifact, error) {
	m.lastActor = actor
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	return m.artifact, nil
}

func testArtifact() *models.Artifact {
	register, subject := "21BCA042", "CS301"
	return &models.Artifact{
		ID:             "a-1",
		RegisterNumber: &register,
		SubjectCode:    &subject,
		ExamRound:      models.RoundCIA1,
		Status:         models.StatusPendingReview,
	}
}

func testContext(t *testing.T, method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	c.Request = req
	return c, w
}

func TestArtifactHandlerReplacePassesActorClaims(t *testing.T) {
	mock := &artifactServiceMock{artifact: testArtifact()}
	h := NewArtifactHandler(mock)

	register := "21BCA099"
	body, _ := json.Marshal(dto.ReplaceArtifactRequest{RegisterNumber: &register, ResolveReports: true})
	c, w := testContext(t, http.MethodPost, "/artifacts/a-1/replace", body)
	c.Params = gin.Params{{Key: "id", Value: "a-1"}}
	c.Set(middleware.ContextActorKey, &models.ActorClaims{ActorType: models.ActorStaff, Username: "clerk"})

	h.Replace(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "clerk", mock.lastActor.Username)
	require.True(t, mock.lastReq.ResolveReports)
}

func TestArtifactHandlerReplaceInvalidBody(t *testing.T) {
	h := NewArtifactHandler(&artifactServiceMock{artifact: testArtifact()})

	c, w := testContext(t, http.MethodPost, "/artifacts/a-1/replace", []byte(`not json`))
	c.Params = gin.Params{{Key: "id", Value: "a-1"}}

	h.Replace(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestArtifactHandlerGetNotFound(t *testing.T) {
	h := NewArtifactHandler(&artifactServiceMock{getErr: appErrors.ErrNotFound})

	c, w := testContext(t, http.MethodGet, "/artifacts/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	h.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestArtifactHandlerStudentSubmitTakesNoBody(t *testing.T) {
	mock := &artifactServiceMock{artifact: testArtifact()}
	h := NewArtifactHandler(mock)

	// The transaction id is derived server-side; the endpoint ignores any body.
	c, w := testContext(t, http.MethodPost, "/artifacts/a-1/transaction", []byte(`{"transactionId":"spoofed"}`))
	c.Params = gin.Params{{Key: "id", Value: "a-1"}}
	c.Set(middleware.ContextActorKey, &models.ActorClaims{ActorType: models.ActorStudent, Username: "student42"})

	h.StudentSubmit(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "student42", mock.lastActor.Username)
}

func TestArtifactHandlerStudentSubmitConflict(t *testing.T) {
	h := NewArtifactHandler(&artifactServiceMock{submitErr: appErrors.ErrConflict})

	c, w := testContext(t, http.MethodPost, "/artifacts/a-1/transaction", nil)
	c.Params = gin.Params{{Key: "id", Value: "a-1"}}

	h.StudentSubmit(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestArtifactFilterFromQuery(t *testing.T) {
	c, _ := testContext(t, http.MethodGet,
		"/artifacts?status=pending_review,failed&registerNumber=21bca042&includeDeleted=true&limit=5&offset=10", nil)

	filter := artifactFilterFromQuery(c)
	require.Equal(t, []models.WorkflowStatus{models.StatusPendingReview, models.StatusFailed}, filter.Status)
	require.Equal(t, "21BCA042", filter.RegisterNumber)
	require.True(t, filter.IncludeDeleted)
	require.Equal(t, 5, filter.Limit)
	require.Equal(t, 10, filter.Offset)
}
