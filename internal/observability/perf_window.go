package observability

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Latency stages reported by the desktop core.
const (
	StageFirstFragment   = "generation_first_fragment"
	StageGenerationTotal = "generation_total"
	StageCacheServe      = "cache_serve"
)

const (
	defaultPerfHorizon = 5 * time.Minute
	defaultPerfSamples = 512
)

// stageBudgetMS is the latency a screen transition should stay under.
var stageBudgetMS = map[string]float64{
	StageFirstFragment:   1500,
	StageGenerationTotal: 12000,
	StageCacheServe:      5,
}

type StageStats struct {
	Stage      string  `json:"stage"`
	Samples    int     `json:"samples"`
	LastMS     float64 `json:"last_ms"`
	P50MS      float64 `json:"p50_ms"`
	P95MS      float64 `json:"p95_ms"`
	MaxMS      float64 `json:"max_ms"`
	BudgetMS   float64 `json:"budget_ms,omitempty"`
	OverBudget int     `json:"over_budget,omitempty"`
}

// CacheStats is how often a navigation was served without generating.
type CacheStats struct {
	Hits     int     `json:"hits"`
	Misses   int     `json:"misses"`
	HitRatio float64 `json:"hit_ratio"`
}

// PerfSnapshot covers the events of the last Horizon.
type PerfSnapshot struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Horizon     string         `json:"horizon"`
	Stages      []StageStats   `json:"stages"`
	Cache       CacheStats     `json:"cache"`
	Generations map[string]int `json:"generations"`
}

type timed[T any] struct {
	at time.Time
	v  T
}

// perfWindow keeps recent desktop events, bounded by age and by count.
type perfWindow struct {
	mu         sync.Mutex
	horizon    time.Duration
	maxSamples int
	now        func() time.Time

	stages   map[string][]timed[float64]
	lookups  []timed[bool]
	outcomes []timed[string]
}

func newPerfWindow(horizon time.Duration, maxSamples int) *perfWindow {
	if horizon <= 0 {
		horizon = defaultPerfHorizon
	}
	if maxSamples <= 0 {
		maxSamples = defaultPerfSamples
	}
	return &perfWindow{
		horizon:    horizon,
		maxSamples: maxSamples,
		now:        time.Now,
		stages:     make(map[string][]timed[float64]),
	}
}

func (w *perfWindow) observeStage(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.stages[stage] = trim(append(w.stages[stage], timed[float64]{at: now, v: ms}), now.Add(-w.horizon), w.maxSamples)
}

func (w *perfWindow) observeLookup(hit bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.lookups = trim(append(w.lookups, timed[bool]{at: now, v: hit}), now.Add(-w.horizon), w.maxSamples)
}

func (w *perfWindow) observeOutcome(outcome string) {
	if outcome == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.outcomes = trim(append(w.outcomes, timed[string]{at: now, v: outcome}), now.Add(-w.horizon), w.maxSamples)
}

func (w *perfWindow) snapshot() PerfSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	cutoff := now.Add(-w.horizon)

	snap := PerfSnapshot{
		GeneratedAt: now.UTC(),
		Horizon:     w.horizon.String(),
		Stages:      make([]StageStats, 0, len(w.stages)),
		Generations: make(map[string]int),
	}

	names := make([]string, 0, len(w.stages))
	for stage, samples := range w.stages {
		if samples = trim(samples, cutoff, w.maxSamples); len(samples) == 0 {
			delete(w.stages, stage)
			continue
		}
		w.stages[stage] = samples
		names = append(names, stage)
	}
	sort.Strings(names)
	for _, stage := range names {
		snap.Stages = append(snap.Stages, stageStats(stage, w.stages[stage]))
	}

	w.lookups = trim(w.lookups, cutoff, w.maxSamples)
	for _, l := range w.lookups {
		if l.v {
			snap.Cache.Hits++
		} else {
			snap.Cache.Misses++
		}
	}
	if total := snap.Cache.Hits + snap.Cache.Misses; total > 0 {
		snap.Cache.HitRatio = round2(float64(snap.Cache.Hits) / float64(total))
	}

	w.outcomes = trim(w.outcomes, cutoff, w.maxSamples)
	for _, o := range w.outcomes {
		snap.Generations[o.v]++
	}
	return snap
}

func stageStats(stage string, samples []timed[float64]) StageStats {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.v
	}
	budget := stageBudgetMS[stage]
	over := 0
	if budget > 0 {
		for _, v := range values {
			if v > budget {
				over++
			}
		}
	}
	sort.Float64s(values)
	return StageStats{
		Stage:      stage,
		Samples:    len(values),
		LastMS:     round2(samples[len(samples)-1].v),
		P50MS:      round2(nearestRank(values, 0.50)),
		P95MS:      round2(nearestRank(values, 0.95)),
		MaxMS:      round2(values[len(values)-1]),
		BudgetMS:   budget,
		OverBudget: over,
	}
}

// trim drops entries older than cutoff and keeps at most max of the newest.
// Entries are appended in time order, so the old ones are a prefix.
func trim[T any](s []timed[T], cutoff time.Time, max int) []timed[T] {
	i := sort.Search(len(s), func(i int) bool { return !s[i].at.Before(cutoff) })
	if n := len(s) - i; n > max {
		i = len(s) - max
	}
	if i == 0 {
		return s
	}
	return append(s[:0], s[i:]...)
}

func nearestRank(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(q * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
