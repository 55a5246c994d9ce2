package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/examsync/exam-bridge-api/internal/dto"
	"github.com/examsync/exam-bridge-api/internal/models"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
)

type stubMappingStore struct {
	subjects map[string]*models.SubjectMapping
	students map[string]*models.StudentMapping
	verified map[string]time.Time
}

func newStubMappingStore() *stubMappingStore {
	return &stubMappingStore{
		subjects: make(map[string]*models.SubjectMapping),
		students: make(map[string]*models.StudentMapping),
		verified: make(map[string]time.Time),
	}
}

func (s *stubMappingStore) UpsertSubject(_ context.Context, mapping *models.SubjectMapping) error {
	if mapping.ID == "" {
		mapping.ID = "sm-" + mapping.SubjectCode
	}
	s.subjects[mapping.SubjectCode+"/"+mapping.ExamRound] = mapping
	return nil
}

func (s *stubMappingStore) GetSubject(_ context.Context, subjectCode, examRound string) (*models.SubjectMapping, error) {
	mapping := s.subjects[subjectCode+"/"+examRound]
	if mapping == nil || !mapping.IsActive {
		return nil, nil
	}
	return mapping, nil
}

func (s *stubMappingStore) ListSubjects(_ context.Context, activeOnly bool) ([]models.SubjectMapping, error) {
	var out []models.SubjectMapping
	for _, mapping := range s.subjects {
		if activeOnly && !mapping.IsActive {
			continue
		}
		out = append(out, *mapping)
	}
	return out, nil
}

func (s *stubMappingStore) DeactivateSubject(_ context.Context, id string) error {
	for _, mapping := range s.subjects {
		if mapping.ID == id && mapping.IsActive {
			mapping.IsActive = false
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *stubMappingStore) TouchSubjectVerified(_ context.Context, id string, at time.Time) error {
	s.verified[id] = at
	return nil
}

func (s *stubMappingStore) UpsertStudent(_ context.Context, mapping *models.StudentMapping) error {
	if mapping.ID == "" {
		mapping.ID = "stm-" + mapping.Username
	}
	s.students[mapping.Username] = mapping
	return nil
}

func (s *stubMappingStore) GetStudentByRegister(_ context.Context, registerNumber string) (*models.StudentMapping, error) {
	for _, mapping := range s.students {
		if mapping.RegisterNumber == registerNumber {
			return mapping, nil
		}
	}
	return nil, nil
}

func (s *stubMappingStore) GetStudentByUsername(_ context.Context, username string) (*models.StudentMapping, error) {
	if mapping, ok := s.students[username]; ok {
		return mapping, nil
	}
	return nil, nil
}

func (s *stubMappingStore) ListStudents(_ context.Context, _, _ int) ([]models.StudentMapping, error) {
	var out []models.StudentMapping
	for _, mapping := range s.students {
		out = append(out, *mapping)
	}
	return out, nil
}

func (s *stubMappingStore) DeleteStudent(_ context.Context, id string) error {
	for username, mapping := range s.students {
		if mapping.ID == id {
			delete(s.students, username)
			return nil
		}
	}
	return sql.ErrNoRows
}

func newMappingServiceForTest() (*MappingService, *stubMappingStore, *stubLedgerStore) {
	store := newStubMappingStore()
	ledger := newStubLedgerStore()
	return NewMappingService(store, ledger, nil), store, ledger
}

func TestMappingServiceUpsertSubjectNormalizes(t *testing.T) {
	svc, _, ledger := newMappingServiceForTest()

	mapping, err := svc.UpsertSubject(context.Background(), dto.UpsertSubjectMappingRequest{
		SubjectCode:  " cs301 ",
		ExamRound:    "cia1",
		CourseID:     12,
		AssignmentID: 340,
	}, staffActor())
	require.NoError(t, err)
	require.Equal(t, "CS301", mapping.SubjectCode)
	require.Equal(t, "CIA1", mapping.ExamRound)
	require.True(t, mapping.IsActive)
	require.Len(t, ledger.inserted, 1)

	_, err = svc.UpsertSubject(context.Background(), dto.UpsertSubjectMappingRequest{
		ExamRound: "CIA1", CourseID: 1, AssignmentID: 1,
	}, staffActor())
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestMappingServiceDeactivateSubject(t *testing.T) {
	svc, store, _ := newMappingServiceForTest()

	mapping, err := svc.UpsertSubject(context.Background(), dto.UpsertSubjectMappingRequest{
		SubjectCode: "CS301", ExamRound: "CIA1", CourseID: 12, AssignmentID: 340,
	}, staffActor())
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateSubject(context.Background(), mapping.ID, staffActor()))
	require.False(t, store.subjects["CS301/CIA1"].IsActive)

	err = svc.DeactivateSubject(context.Background(), mapping.ID, staffActor())
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestMappingServiceMarkSubjectVerified(t *testing.T) {
	svc, store, _ := newMappingServiceForTest()

	mapping, err := svc.UpsertSubject(context.Background(), dto.UpsertSubjectMappingRequest{
		SubjectCode: "CS301", ExamRound: "CIA1", CourseID: 12, AssignmentID: 340,
	}, staffActor())
	require.NoError(t, err)

	require.NoError(t, svc.MarkSubjectVerified(context.Background(), mapping.ID, staffActor()))
	require.False(t, store.verified[mapping.ID].IsZero())
}

func TestMappingServiceStudentLifecycle(t *testing.T) {
	svc, _, _ := newMappingServiceForTest()

	mapping, err := svc.UpsertStudent(context.Background(), dto.UpsertStudentMappingRequest{
		Username:       " JDoe ",
		RegisterNumber: "21bca042",
	}, staffActor())
	require.NoError(t, err)
	require.Equal(t, "jdoe", mapping.Username)
	require.Equal(t, "21BCA042", mapping.RegisterNumber)

	students, err := svc.ListStudents(context.Background(), 50, 0)
	require.NoError(t, err)
	require.Len(t, students, 1)

	require.NoError(t, svc.DeleteStudent(context.Background(), mapping.ID, staffActor()))
	err = svc.DeleteStudent(context.Background(), mapping.ID, staffActor())
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestMappingServiceCoverage(t *testing.T) {
	svc, _, _ := newMappingServiceForTest()

	_, err := svc.UpsertSubject(context.Background(), dto.UpsertSubjectMappingRequest{
		SubjectCode: "CS301", ExamRound: "CIA1", CourseID: 12, AssignmentID: 340,
	}, staffActor())
	require.NoError(t, err)
	_, err = svc.UpsertStudent(context.Background(), dto.UpsertStudentMappingRequest{
		Username: "jdoe", RegisterNumber: "21BCA042",
	}, staffActor())
	require.NoError(t, err)

	coverage, err := svc.Coverage(context.Background(), []dto.ProbeItem{
		{RegisterNumber: "21bca042", SubjectCode: "cs301", ExamRound: "cia1"},
		{RegisterNumber: "21BCA999", SubjectCode: "MA205", ExamRound: "CIA1"},
	})
	require.NoError(t, err)
	require.Len(t, coverage, 2)
	require.True(t, coverage[0].SubjectMapped)
	require.True(t, coverage[0].StudentMapped)
	require.False(t, coverage[1].SubjectMapped)
	require.False(t, coverage[1].StudentMapped)
}
