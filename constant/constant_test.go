package constant

import "testing"

func TestStatusOrdering(t *testing.T) {
	order := []JobStatus{
		JobStatusPending,
		JobStatusUploading,
		JobStatusGenerating,
		JobStatusDownloading,
		JobStatusProcessing,
		JobStatusCompleted,
	}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("expected %s to rank above %s", order[i], order[i-1])
		}
	}
}

func TestFailedRanksAboveActiveStates(t *testing.T) {
	for _, s := range []JobStatus{JobStatusPending, JobStatusUploading, JobStatusGenerating, JobStatusDownloading, JobStatusProcessing} {
		if JobStatusFailed.Rank() <= s.Rank() {
			t.Errorf("FAILED must rank above %s", s)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !JobStatusCompleted.IsTerminal() || !JobStatusFailed.IsTerminal() {
		t.Error("COMPLETED and FAILED are terminal")
	}
	for _, s := range []JobStatus{JobStatusPending, JobStatusUploading, JobStatusGenerating, JobStatusDownloading, JobStatusProcessing} {
		if s.IsTerminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}
