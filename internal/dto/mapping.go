package dto

// UpsertSubjectMappingRequest binds a (subject, round) pair to an LMS
// course/assignment destination.
type UpsertSubjectMappingRequest struct {
	SubjectCode  string `json:"subjectCode" binding:"required"`
	ExamRound    string `json:"examRound" binding:"required"`
	CourseID     int64  `json:"courseId" binding:"required,min=1"`
	AssignmentID int64  `json:"assignmentId" binding:"required,min=1"`
}

// UpsertStudentMappingRequest binds an LMS username to a register number.
type UpsertStudentMappingRequest struct {
	Username       string `json:"username" binding:"required"`
	RegisterNumber string `json:"registerNumber" binding:"required"`
}
