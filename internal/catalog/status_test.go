package catalog

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to VideoStatus
		want     bool
	}{
		{StatusUploaded, StatusProcessing, true},
		{StatusProcessing, StatusTranscribing, true},
		{StatusTranscribing, StatusAnalyzing, true},
		{StatusAnalyzing, StatusEmbedding, true},
		{StatusEmbedding, StatusCompleted, true},
		{StatusUploaded, StatusFailed, true},
		{StatusAnalyzing, StatusFailed, true},
		{StatusUploaded, StatusTranscribing, false},
		{StatusEmbedding, StatusAnalyzing, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusFailed, false},
		{VideoStatus("bogus"), StatusFailed, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestVideoStatus_Predicates(t *testing.T) {
	if !StatusCompleted.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("completed and failed must be terminal")
	}
	if StatusUploaded.InFlight() || StatusCompleted.InFlight() {
		t.Error("uploaded and completed are not in flight")
	}
	if !StatusEmbedding.InFlight() {
		t.Error("embedding should be in flight")
	}
	if StatusAnalyzing.Next() != StatusEmbedding {
		t.Errorf("analyzing.Next() = %s, want embedding", StatusAnalyzing.Next())
	}
	if StatusCompleted.Next() != "" {
		t.Errorf("completed.Next() = %s, want empty", StatusCompleted.Next())
	}
}
