package quality

import "sync"

// Sample is one response's detail, recorded alongside the weighted score so
// the operator quality-metrics endpoint can report length/tone/engagement
// trends without re-deriving them from raw transcript text.
type Sample struct {
	Source          string
	Score           float64
	Words           float64
	Sentiment       float64
	QuestionDensity float64
	Engagement      float64
}

// Aggregate accumulates running sums across the process lifetime, plus a
// count of samples per response source, for the `/calls/quality/metrics`
// operator endpoint. It is
// deliberately separate from Scorer: Scorer drives baseline-drift alerting
// over a bounded sliding window, Aggregate reports all-time distribution.
type Aggregate struct {
	mu              sync.Mutex
	total           int
	bySource        map[string]int
	sumScore        float64
	sumWords        float64
	sumSentiment    float64
	sumQuestionDens float64
	sumEngagement   float64
}

func NewAggregate() *Aggregate {
	return &Aggregate{bySource: make(map[string]int)}
}

func (a *Aggregate) Record(s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	a.bySource[s.Source]++
	a.sumScore += s.Score
	a.sumWords += s.Words
	a.sumSentiment += s.Sentiment
	a.sumQuestionDens += s.QuestionDensity
	a.sumEngagement += s.Engagement
}

// AggregateSnapshot is the JSON-friendly view served by the operator endpoint.
type AggregateSnapshot struct {
	TotalResponses       int            `json:"total_responses"`
	ResponseDistribution map[string]int `json:"response_distribution"`
	AvgOverallScore      float64        `json:"avg_overall_score"`
	AvgLengthWords       float64        `json:"avg_length_words"`
	AvgSentimentScore    float64        `json:"avg_sentiment_score"`
	AvgQuestionDensity   float64        `json:"avg_question_density"`
	AvgEngagementLevel   float64        `json:"avg_engagement_level"`
}

func (a *Aggregate) Snapshot() AggregateSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	dist := make(map[string]int, len(a.bySource))
	for k, v := range a.bySource {
		dist[k] = v
	}
	snap := AggregateSnapshot{TotalResponses: a.total, ResponseDistribution: dist}
	if a.total == 0 {
		return snap
	}
	n := float64(a.total)
	snap.AvgOverallScore = a.sumScore / n
	snap.AvgLengthWords = a.sumWords / n
	snap.AvgSentimentScore = a.sumSentiment / n
	snap.AvgQuestionDensity = a.sumQuestionDens / n
	snap.AvgEngagementLevel = a.sumEngagement / n
	return snap
}
