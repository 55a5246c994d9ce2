package models

import "time"

// ReportState is the derived lifecycle of a student report. Reports have no
// table of their own: a report is the ledger entry that issued it, and its
// state is a fold over later entries targeting that entry's id.
type ReportState string

const (
	ReportOpen      ReportState = "OPEN"
	ReportResolved  ReportState = "RESOLVED"
	ReportWithdrawn ReportState = "WITHDRAWN"
)

// Report is the projection of one report_issue ledger entry plus whatever
// resolution or withdrawal entries target it.
type Report struct {
	ID          string      `json:"id"`
	ArtifactID  string      `json:"artifactId"`
	Description string      `json:"description"`
	State       ReportState `json:"state"`
	IssuedBy    string      `json:"issuedBy"`
	IssuedAt    time.Time   `json:"issuedAt"`
	ClosedAt    *time.Time  `json:"closedAt,omitempty"`
	ClosedBy    *string     `json:"closedBy,omitempty"`
}

// ProjectReports folds an artifact's ledger slice into report projections,
// ordered as issued. Withdrawal wins over resolution when both exist, since a
// withdrawn report can never be resolved.
func ProjectReports(entries []LedgerEntry) []Report {
	reports := make([]Report, 0)
	index := make(map[string]int)

	for _, entry := range entries {
		if entry.Action != ActionReportIssue {
			continue
		}
		report := Report{
			ID:          entry.ID,
			Description: entry.Description,
			State:       ReportOpen,
			IssuedBy:    entry.ActorUsername,
			IssuedAt:    entry.CreatedAt,
		}
		if entry.ArtifactID != nil {
			report.ArtifactID = *entry.ArtifactID
		}
		index[entry.ID] = len(reports)
		reports = append(reports, report)
	}

	for _, entry := range entries {
		if entry.TargetID == nil {
			continue
		}
		i, ok := index[*entry.TargetID]
		if !ok {
			continue
		}
		switch entry.Action {
		case ActionReportDeleted:
			reports[i].State = ReportWithdrawn
			closedAt := entry.CreatedAt
			closedBy := entry.ActorUsername
			reports[i].ClosedAt = &closedAt
			reports[i].ClosedBy = &closedBy
		case ActionReportResolved:
			if reports[i].State == ReportWithdrawn {
				continue
			}
			reports[i].State = ReportResolved
			closedAt := entry.CreatedAt
			closedBy := entry.ActorUsername
			reports[i].ClosedAt = &closedAt
			reports[i].ClosedBy = &closedBy
		}
	}

	return reports
}

// CountActiveReports returns how many reports on the artifact are still open:
// the set of report_issue entry ids minus every id targeted by a resolution
// or withdrawal. Recomputed on demand; there is no cached counter.
func CountActiveReports(entries []LedgerEntry) int {
	count := 0
	for _, report := range ProjectReports(entries) {
		if report.State == ReportOpen {
			count++
		}
	}
	return count
}
