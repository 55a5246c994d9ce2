package dto

// IssueReportRequest opens a report against an artifact.
type IssueReportRequest struct {
	Description string `json:"description" binding:"required,min=3,max=2000"`
}

// ResolveReportRequest closes an open report with an operator note.
type ResolveReportRequest struct {
	Note string `json:"note" binding:"omitempty,max=2000"`
}

// WithdrawReportRequest withdraws a report the reporter no longer stands by.
type WithdrawReportRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=2000"`
}
