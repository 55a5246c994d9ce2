package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ledgerEntry(id, action string, artifactID string, targetID *string) LedgerEntry {
	aid := artifactID
	return LedgerEntry{
		ID:            id,
		Action:        action,
		Category:      CategoryReport,
		ActorType:     ActorStudent,
		ActorUsername: "22007928",
		ArtifactID:    &aid,
		TargetID:      targetID,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestProjectReportsOpenThenResolved(t *testing.T) {
	issue := ledgerEntry("rep-1", ActionReportIssue, "art-1", nil)
	resolve := ledgerEntry("led-2", ActionReportResolved, "art-1", &issue.ID)

	reports := ProjectReports([]LedgerEntry{issue, resolve})
	require.Len(t, reports, 1)
	require.Equal(t, ReportResolved, reports[0].State)
	require.NotNil(t, reports[0].ClosedAt)
	require.Equal(t, 0, CountActiveReports([]LedgerEntry{issue, resolve}))
}

func TestProjectReportsWithdrawalBeatsResolution(t *testing.T) {
	issue := ledgerEntry("rep-1", ActionReportIssue, "art-1", nil)
	withdraw := ledgerEntry("led-2", ActionReportDeleted, "art-1", &issue.ID)
	resolve := ledgerEntry("led-3", ActionReportResolved, "art-1", &issue.ID)

	reports := ProjectReports([]LedgerEntry{issue, withdraw, resolve})
	require.Len(t, reports, 1)
	require.Equal(t, ReportWithdrawn, reports[0].State)
	require.Equal(t, 0, CountActiveReports([]LedgerEntry{issue, withdraw, resolve}))
}

func TestCountActiveReportsMixed(t *testing.T) {
	first := ledgerEntry("rep-1", ActionReportIssue, "art-1", nil)
	second := ledgerEntry("rep-2", ActionReportIssue, "art-1", nil)
	resolve := ledgerEntry("led-3", ActionReportResolved, "art-1", &first.ID)

	require.Equal(t, 1, CountActiveReports([]LedgerEntry{first, second, resolve}))
}

func TestWorkflowStatusGraph(t *testing.T) {
	require.True(t, StatusPendingReview.CanTransitionTo(StatusQueued))
	require.True(t, StatusQueued.CanTransitionTo(StatusSubmitted))
	require.True(t, StatusFailed.CanTransitionTo(StatusQueued))
	require.False(t, StatusSubmitted.CanTransitionTo(StatusQueued))
	require.False(t, StatusDeleted.CanTransitionTo(StatusPendingReview))
	require.True(t, StatusSubmitted.Terminal())
	require.True(t, StatusDeleted.Terminal())
	require.False(t, StatusFailed.Terminal())
	require.False(t, StatusSuperseded.Live())
	require.True(t, StatusFailed.Live())
}
