package observability

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Latency budgets for the stages of a spoken turn, in milliseconds.
var stageBudgetsMS = map[string]float64{
	"request_to_first_delta":  700,
	"request_to_first_phrase": 1100,
	"phrase_to_audio":         900,
	"request_to_first_audio":  2000,
	"turn_total":              8000,
}

// Turn states that end a turn. Other states are transitions and are only counted
// by the Prometheus counter.
var terminalTurnStates = []string{"complete", "failed", "canceled"}

type StageLatency struct {
	Stage      string  `json:"stage"`
	Samples    int     `json:"samples"`
	LastMS     float64 `json:"last_ms"`
	AvgMS      float64 `json:"avg_ms"`
	P50MS      float64 `json:"p50_ms"`
	P95MS      float64 `json:"p95_ms"`
	MaxMS      float64 `json:"max_ms"`
	BudgetMS   float64 `json:"budget_ms,omitempty"`
	OverBudget int     `json:"over_budget,omitempty"`
}

// LatencyReport is what /v1/perf/latency serves: recent stage latencies plus how
// recent turns ended.
type LatencyReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Window      int            `json:"window"`
	Stages      []StageLatency `json:"stages"`
	Outcomes    map[string]int `json:"outcomes"`
	Indicators  map[string]int `json:"indicators,omitempty"`
}

// turnLatency keeps the last window samples of each stage.
type turnLatency struct {
	mu         sync.Mutex
	window     int
	stages     map[string]*sampleRing
	outcomes   map[string]int
	indicators map[string]int
}

type sampleRing struct {
	samples []float64
	next    int
	last    float64
}

func (r *sampleRing) add(ms float64, window int) {
	if len(r.samples) < window {
		r.samples = append(r.samples, ms)
	} else {
		r.samples[r.next] = ms
		r.next = (r.next + 1) % window
	}
	r.last = ms
}

func newTurnLatency(window int) *turnLatency {
	if window <= 0 {
		window = 256
	}
	t := &turnLatency{window: window}
	t.reset()
	return t
}

func (t *turnLatency) reset() {
	t.stages = make(map[string]*sampleRing)
	t.outcomes = make(map[string]int, len(terminalTurnStates))
	t.indicators = make(map[string]int)
}

func (t *turnLatency) observeStage(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ring, ok := t.stages[stage]
	if !ok {
		ring = &sampleRing{}
		t.stages[stage] = ring
	}
	ring.add(ms, t.window)
}

func (t *turnLatency) observeState(state string) {
	if !slices.Contains(terminalTurnStates, state) {
		return
	}
	t.mu.Lock()
	t.outcomes[state]++
	t.mu.Unlock()
}

func (t *turnLatency) observeIndicator(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	t.mu.Lock()
	t.indicators[name]++
	t.mu.Unlock()
}

func (t *turnLatency) report() LatencyReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	rep := LatencyReport{
		GeneratedAt: time.Now().UTC(),
		Window:      t.window,
		Stages:      make([]StageLatency, 0, len(t.stages)),
		Outcomes:    make(map[string]int, len(terminalTurnStates)),
	}
	for _, state := range terminalTurnStates {
		rep.Outcomes[state] = t.outcomes[state]
	}
	if len(t.indicators) > 0 {
		rep.Indicators = make(map[string]int, len(t.indicators))
		for name, n := range t.indicators {
			rep.Indicators[name] = n
		}
	}
	for stage, ring := range t.stages {
		rep.Stages = append(rep.Stages, summarize(stage, ring))
	}
	slices.SortFunc(rep.Stages, func(a, b StageLatency) int { return strings.Compare(a.Stage, b.Stage) })
	return rep
}

func summarize(stage string, ring *sampleRing) StageLatency {
	sorted := slices.Clone(ring.samples)
	slices.Sort(sorted)
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	s := StageLatency{
		Stage:    stage,
		Samples:  len(sorted),
		LastMS:   roundMS(ring.last),
		AvgMS:    roundMS(sum / float64(len(sorted))),
		P50MS:    roundMS(nearestRank(sorted, 50)),
		P95MS:    roundMS(nearestRank(sorted, 95)),
		MaxMS:    roundMS(sorted[len(sorted)-1]),
		BudgetMS: stageBudgetsMS[stage],
	}
	if s.BudgetMS > 0 {
		for _, v := range sorted {
			if v > s.BudgetMS {
				s.OverBudget++
			}
		}
	}
	return s
}

// nearestRank returns the smallest sample with at least pct percent of the samples at or below it.
func nearestRank(sorted []float64, pct int) float64 {
	rank := (pct*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func roundMS(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
