package quality

import "testing"

func TestAggregateSnapshotAveragesAcrossSources(t *testing.T) {
	a := NewAggregate()
	a.Record(Sample{Source: "quick", Score: 80, Words: 10, Sentiment: 0.5, QuestionDensity: 0, Engagement: 0.6})
	a.Record(Sample{Source: "llm", Score: 60, Words: 20, Sentiment: 0.2, QuestionDensity: 0.5, Engagement: 0.9})

	snap := a.Snapshot()
	if snap.TotalResponses != 2 {
		t.Fatalf("expected 2 total responses, got %d", snap.TotalResponses)
	}
	if snap.ResponseDistribution["quick"] != 1 || snap.ResponseDistribution["llm"] != 1 {
		t.Fatalf("unexpected distribution: %+v", snap.ResponseDistribution)
	}
	if snap.AvgOverallScore != 70 {
		t.Fatalf("expected avg score 70, got %v", snap.AvgOverallScore)
	}
	if snap.AvgLengthWords != 15 {
		t.Fatalf("expected avg words 15, got %v", snap.AvgLengthWords)
	}
}

func TestAggregateSnapshotEmpty(t *testing.T) {
	a := NewAggregate()
	snap := a.Snapshot()
	if snap.TotalResponses != 0 {
		t.Fatalf("expected 0 responses, got %d", snap.TotalResponses)
	}
	if snap.AvgOverallScore != 0 {
		t.Fatalf("expected 0 avg score on empty aggregate, got %v", snap.AvgOverallScore)
	}
}
