package quality

import "testing"

func TestCombineWeightedSum(t *testing.T) {
	got := Combine(SubScores{
		Length:          100,
		Sentiment:       100,
		QuestionDensity: 100,
		Engagement:      100,
		Coherence:       100,
	})
	if got != 100 {
		t.Fatalf("Combine(all 100) = %v, want 100", got)
	}
	got = Combine(SubScores{})
	if got != 0 {
		t.Fatalf("Combine(all 0) = %v, want 0", got)
	}
}

func TestScorerAlertsOnBaselineDrift(t *testing.T) {
	s := NewScorer(10, 80, 10)
	for i := 0; i < 5; i++ {
		s.Record("llm", 85)
	}
	if _, alert := s.Record("llm", 85); alert {
		t.Fatalf("alert = true at baseline, want false")
	}
	var lastAlert bool
	for i := 0; i < 10; i++ {
		_, lastAlert = s.Record("llm", 60)
	}
	if !lastAlert {
		t.Fatalf("alert = false after sustained drop, want true")
	}
}

func TestScorerSnapshotPerSource(t *testing.T) {
	s := NewScorer(5, 75, 10)
	s.Record("quick", 90)
	s.Record("cached", 50)
	qSnap := s.Snapshot("quick")
	cSnap := s.Snapshot("cached")
	if qSnap.Mean != 90 {
		t.Fatalf("quick mean = %v, want 90", qSnap.Mean)
	}
	if cSnap.Mean != 50 {
		t.Fatalf("cached mean = %v, want 50", cSnap.Mean)
	}
	empty := s.Snapshot("llm")
	if empty.Samples != 0 {
		t.Fatalf("llm samples = %d, want 0", empty.Samples)
	}
}
