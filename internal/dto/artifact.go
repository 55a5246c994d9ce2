package dto

// ReplaceArtifactRequest edits identifying metadata via copy-on-write: a new
// artifact is created and the old one superseded, never mutated in place.
type ReplaceArtifactRequest struct {
	RegisterNumber   *string `json:"registerNumber"`
	SubjectCode      *string `json:"subjectCode"`
	OriginalFilename *string `json:"originalFilename"`
	ResolveReports   bool    `json:"resolveReports"`
}

// DeleteArtifactRequest carries the operator's reason for the soft delete.
type DeleteArtifactRequest struct {
	Reason string `json:"reason"`
}

// ProbeItem names one (register, subject, round) slot to inspect.
type ProbeItem struct {
	RegisterNumber string `json:"registerNumber" binding:"required"`
	SubjectCode    string `json:"subjectCode" binding:"required"`
	ExamRound      string `json:"examRound"`
}

// ProbeRequest batches duplicate or mapping-coverage probes ahead of an
// actual upload.
type ProbeRequest struct {
	Items []ProbeItem `json:"items" binding:"required,dive"`
}

// IntakeResult reports the outcome of one file in a (bulk) intake.
type IntakeResult struct {
	Success        bool     `json:"success"`
	Filename       string   `json:"filename"`
	Message        string   `json:"message"`
	ArtifactID     string   `json:"artifactId,omitempty"`
	RegisterNumber string   `json:"registerNumber,omitempty"`
	SubjectCode    string   `json:"subjectCode,omitempty"`
	ExamRound      string   `json:"examRound,omitempty"`
	AttemptNumber  int      `json:"attemptNumber,omitempty"`
	Status         string   `json:"status,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}

// BulkIntakeResult summarises a whole bulk upload.
type BulkIntakeResult struct {
	TotalFiles int            `json:"totalFiles"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Results    []IntakeResult `json:"results"`
}
