package models

import "time"

// SubjectMapping resolves (subject code, exam round) to the external course
// and assignment receiving submissions. Independent of artifact lifecycle;
// consulted by the submission executor for the delivery destination.
type SubjectMapping struct {
	ID             string     `db:"id" json:"id"`
	SubjectCode    string     `db:"subject_code" json:"subjectCode"`
	ExamRound      string     `db:"exam_round" json:"examRound"`
	SubjectName    string     `db:"subject_name" json:"subjectName"`
	CourseID       int64      `db:"course_id" json:"courseId"`
	AssignmentID   int64      `db:"assignment_id" json:"assignmentId"`
	AssignmentName string     `db:"assignment_name" json:"assignmentName"`
	IsActive       bool       `db:"is_active" json:"isActive"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	LastVerifiedAt *time.Time `db:"last_verified_at" json:"lastVerifiedAt,omitempty"`
}

// StudentMapping links an LMS username to a register number so notifications
// and submissions can find the student behind a scanned paper.
type StudentMapping struct {
	ID             string    `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	RegisterNumber string    `db:"register_number" json:"registerNumber"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// MappingCoverage answers whether one intake row has both the subject and the
// student mapped, ahead of an actual upload.
type MappingCoverage struct {
	RegisterNumber string `json:"registerNumber"`
	SubjectCode    string `json:"subjectCode"`
	ExamRound      string `json:"examRound"`
	SubjectMapped  bool   `json:"subjectMapped"`
	StudentMapped  bool   `json:"studentMapped"`
}
