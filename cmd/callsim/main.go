// Command callsim replays a fixed sequence of synthetic turns against a
// running salesagent process's carrier webhooks and reports per-turn
// latency percentiles, grounded on the teacher's cmd/perfvoice/main.go
// flag/turn-pacing structure, switched from a websocket audio-session
// driver to an HTTP webhook turn driver since this domain's carrier
// interface is webhook request/response, not a duplex audio stream.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"
)

type options struct {
	baseURL      string
	callID       string
	leadID       string
	tone         string
	turns        int
	interTurnMS  int
	turnTimeout  time.Duration
	texts        []string
	verbose      bool
}

var defaultUtterances = []string{
	"sure, go ahead",
	"we're looking to cut our support response time",
	"we already use Competitor X for this",
	"can we set up a demo next Tuesday?",
	"stop calling me, I'm not interested",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "callsim: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "callsim: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "salesagent base URL")
	flag.StringVar(&cfg.callID, "call-id", "callsim-1", "call_id used for the synthetic call")
	flag.StringVar(&cfg.leadID, "lead-id", "lead-callsim", "lead_id passed on the inbound webhook")
	flag.StringVar(&cfg.tone, "tone", "cold_call", "channel tone: cold_call|warm_referral|inbound")
	flag.IntVar(&cfg.turns, "turns", 10, "number of turns to replay after the opener")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 150, "delay between turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 10000, "per-turn HTTP timeout in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 100 {
		turnTimeoutMS = 100
	}
	cfg.interTurnMS = interTurnMS
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			t := strings.TrimSpace(part)
			if t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty utterances")
		}
	}
	return cfg, nil
}

// turnLatency is one measured round-trip: how long the webhook took to
// return markup for a single utterance.
type turnLatency struct {
	turn int
	text string
	dur  time.Duration
	err  error
}

func run(cfg options) error {
	client := &http.Client{Timeout: cfg.turnTimeout}

	if cfg.verbose {
		fmt.Printf("callsim: call_id=%s lead_id=%s tone=%s turns=%d\n", cfg.callID, cfg.leadID, cfg.tone, cfg.turns)
	}

	var results []turnLatency

	openerURL := fmt.Sprintf("%s/webhook/%s?lead_id=%s&tone=%s",
		cfg.baseURL, url.PathEscape(cfg.callID), url.QueryEscape(cfg.leadID), url.QueryEscape(cfg.tone))
	start := time.Now()
	_, err := postForm(client, openerURL, nil)
	results = append(results, turnLatency{turn: 0, text: "<opener>", dur: time.Since(start), err: err})
	if cfg.verbose {
		reportTurn(results[len(results)-1])
	}
	if err != nil {
		return fmt.Errorf("opener webhook: %w", err)
	}

	turnURL := fmt.Sprintf("%s/webhook/%s/turn", cfg.baseURL, url.PathEscape(cfg.callID))
	for i := 0; i < cfg.turns; i++ {
		text := cfg.texts[i%len(cfg.texts)]
		start := time.Now()
		_, err := postForm(client, turnURL, map[string]string{"SpeechResult": text})
		lat := turnLatency{turn: i + 1, text: text, dur: time.Since(start), err: err}
		results = append(results, lat)
		if cfg.verbose {
			reportTurn(lat)
		}
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		if cfg.interTurnMS > 0 && i < cfg.turns-1 {
			time.Sleep(time.Duration(cfg.interTurnMS) * time.Millisecond)
		}
	}

	summarize(results)
	return nil
}

func postForm(client *http.Client, target string, form map[string]string) (string, error) {
	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

func reportTurn(lat turnLatency) {
	if lat.err != nil {
		fmt.Printf("callsim: turn %d text=%q FAILED err=%v (%s)\n", lat.turn, lat.text, lat.err, lat.dur)
		return
	}
	fmt.Printf("callsim: turn %d text=%q latency=%s\n", lat.turn, lat.text, lat.dur)
}

// summarize prints average and p95 turn latency, matching spec §1's target
// budget (average <= 1.5s, p95 <= 2.5s) so callsim doubles as a budget
// compliance check against a live process.
func summarize(results []turnLatency) {
	durs := make([]time.Duration, 0, len(results))
	for _, r := range results {
		if r.err == nil {
			durs = append(durs, r.dur)
		}
	}
	if len(durs) == 0 {
		fmt.Println("callsim: no successful turns to summarize")
		return
	}
	sort.Slice(durs, func(i, j int) bool { return durs[i] < durs[j] })

	var total time.Duration
	for _, d := range durs {
		total += d
	}
	avg := total / time.Duration(len(durs))
	p95 := durs[p95Index(len(durs))]

	fmt.Printf("callsim: n=%d avg=%s p95=%s budget_avg<=1.5s budget_p95<=2.5s\n", len(durs), avg, p95)
	if avg > 1500*time.Millisecond {
		fmt.Println("callsim: WARNING average latency exceeds budget")
	}
	if p95 > 2500*time.Millisecond {
		fmt.Println("callsim: WARNING p95 latency exceeds budget")
	}
}

func p95Index(n int) int {
	idx := int(float64(n) * 0.95)
	if idx >= n {
		idx = n - 1
	}
	return idx
}
