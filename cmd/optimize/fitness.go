package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pthm-cable/hideout/config"
	"github.com/pthm-cable/hideout/sim"
	"github.com/pthm-cable/hideout/telemetry"
)

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	maxTicks   int32
	seeds      []int64
	baseConfig *config.Config

	// queryCost weighs oracle queries per evader tick against cover
	queryCost float64

	mu          sync.Mutex
	lastSummary runSummary
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxTicks int32, seeds []int64, baseCfg *config.Config, queryCost float64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		maxTicks:   maxTicks,
		seeds:      seeds,
		baseConfig: baseCfg,
		queryCost:  queryCost,
	}
}

// runSummary aggregates the stats windows of one or more runs.
type runSummary struct {
	HiddenFrac     float64 // share of evader samples out of sight at window ends
	QueriesPerTick float64 // candidates classified per evader tick
	FoundRate      float64
}

// LastSummary returns the summary of the most recent evaluation.
func (fe *FitnessEvaluator) LastSummary() runSummary {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastSummary
}

// Evaluate computes fitness for a parameter vector (lower = better).
// Fitness rewards cover and charges for oracle queries.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]runSummary, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			results[idx] = fe.runSimulation(x, s)
		}(i, seed)
	}
	wg.Wait()

	var avg runSummary
	for _, r := range results {
		avg.HiddenFrac += r.HiddenFrac
		avg.QueriesPerTick += r.QueriesPerTick
		avg.FoundRate += r.FoundRate
	}
	n := float64(len(results))
	avg.HiddenFrac /= n
	avg.QueriesPerTick /= n
	avg.FoundRate /= n

	fe.mu.Lock()
	fe.lastSummary = avg
	fe.mu.Unlock()

	return fe.computeFitness(avg)
}

func (fe *FitnessEvaluator) computeFitness(s runSummary) float64 {
	return -s.HiddenFrac + fe.queryCost*s.QueriesPerTick
}

// runSimulation executes a single headless simulation run.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) runSummary {
	cfg := fe.copyConfig()
	cfg.Scene.Seed = seed
	if err := fe.params.ApplyToConfig(cfg, x); err != nil {
		slog.Warn("parameters rejected", "error", err)
		return runSummary{}
	}

	var windows []telemetry.WindowStats
	s, err := sim.New(cfg, sim.Options{
		StatsCallback: func(ws telemetry.WindowStats) {
			windows = append(windows, ws)
		},
	})
	if err != nil {
		slog.Warn("simulation setup failed", "seed", seed, "error", err)
		return runSummary{}
	}
	if err := s.Run(context.Background(), fe.maxTicks); err != nil {
		slog.Warn("simulation run failed", "seed", seed, "error", err)
	}

	return summarize(windows, cfg.Avoider.AgentCount)
}

// summarize reduces stats windows to a run summary.
func summarize(windows []telemetry.WindowStats, evaders int) runSummary {
	var hidden, total, searches, found int
	var queries float64
	var ticks int32
	for _, w := range windows {
		hidden += w.HiddenEvaders
		total += w.HiddenEvaders + w.ExposedEvaders
		searches += w.Searches
		found += w.Found
		queries += w.MeanCandidates * float64(w.Searches)
		ticks += w.WindowEndTick - w.WindowStartTick
	}

	var s runSummary
	if total > 0 {
		s.HiddenFrac = float64(hidden) / float64(total)
	}
	if evaderTicks := float64(ticks) * float64(evaders); evaderTicks > 0 {
		s.QueriesPerTick = queries / evaderTicks
	}
	if searches > 0 {
		s.FoundRate = float64(found) / float64(searches)
	}
	return s
}

// copyConfig returns an independent copy of the base config.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}
