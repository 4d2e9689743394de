package engine

import (
	"log/slog"
	"math/rand"

	"github.com/alejandrodnm/bnplbot/internal/application/scenario"
	"github.com/alejandrodnm/bnplbot/internal/domain"
)

// candidates expands a recommendation into the scenario types to try first.
// An activity cycle prefers paying pending bills, then repay or create in random order.
func candidates(recommended domain.ScenarioType) []domain.ScenarioType {
	if recommended != domain.ScenarioActivityCycle {
		return []domain.ScenarioType{recommended}
	}
	rest := []domain.ScenarioType{domain.ScenarioBnplRepay, domain.ScenarioBnplCreateBill}
	rand.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	return append([]domain.ScenarioType{domain.ScenarioBnplPay}, rest...)
}

// fallbackPool returns every scenario type except the ones already tried and
// Bootstrap, shuffled.
func fallbackPool(tried []domain.ScenarioType) []domain.ScenarioType {
	excluded := map[domain.ScenarioType]bool{domain.ScenarioBootstrap: true}
	for _, t := range tried {
		excluded[t] = true
	}
	var pool []domain.ScenarioType
	for _, t := range domain.AllScenarioTypes {
		if !excluded[t] {
			pool = append(pool, t)
		}
	}
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool
}

// resolve returns the first runnable scenario for a recommendation, falling
// back to a random alternative. nil means nothing can run this tick.
func (e *Engine) resolve(recommended domain.ScenarioType) scenario.Scenario {
	tried := candidates(recommended)
	for _, t := range tried {
		if s := e.runnable(t); s != nil {
			return s
		}
	}

	slog.Debug("engine: recommended scenario not runnable, trying alternatives", "recommended", recommended)
	for _, t := range fallbackPool(tried) {
		if s := e.runnable(t); s != nil {
			return s
		}
	}
	return nil
}

func (e *Engine) runnable(t domain.ScenarioType) scenario.Scenario {
	s, err := scenario.New(t, e.scenarios)
	if err != nil {
		slog.Error("engine: cannot build scenario", "scenario", t, "err", err)
		return nil
	}
	if !s.CanRun() {
		return nil
	}
	return s
}
