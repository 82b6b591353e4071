// Package guard screens user prompts for injection attempts before they
// reach an agent.
package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/mdombrov-33/go-promptguard/detector"
	"github.com/rs/zerolog/log"

	"github.com/agentshub/internal/config"
)

// ErrPromptRejected is returned when a prompt scores at or above the threshold.
var ErrPromptRejected = errors.New("prompt rejected by injection screening")

// Verdict is the outcome of screening one prompt.
type Verdict struct {
	Safe      bool    `json:"safe"`
	RiskScore float64 `json:"risk_score"`
}

// Screener checks a prompt and returns ErrPromptRejected (wrapped) when it is unsafe.
type Screener interface {
	Screen(ctx context.Context, prompt string) (Verdict, error)
}

// Scorer is the detection backend.
type Scorer interface {
	Score(ctx context.Context, prompt string) Verdict
}

// PromptGuard screens prompts with a scorer and a rejection threshold.
type PromptGuard struct {
	scorer    Scorer
	threshold float64
}

// New builds a screener from config. A disabled guard returns Allow.
func New(cfg config.GuardConfig) Screener {
	if !cfg.Enabled {
		return Allow{}
	}
	d := detector.New()
	return NewWithScorer(ScorerFunc(func(ctx context.Context, prompt string) Verdict {
		res := d.Detect(ctx, prompt)
		return Verdict{Safe: res.Safe, RiskScore: res.RiskScore}
	}), cfg.Threshold)
}

// NewWithScorer builds a PromptGuard around any scorer.
func NewWithScorer(s Scorer, threshold float64) *PromptGuard {
	return &PromptGuard{scorer: s, threshold: threshold}
}

func (g *PromptGuard) Screen(ctx context.Context, prompt string) (Verdict, error) {
	v := g.scorer.Score(ctx, prompt)
	// the detector's own verdict is advisory; only the threshold rejects
	if v.RiskScore >= g.threshold {
		v.Safe = false
		log.Warn().Float64("risk_score", v.RiskScore).Float64("threshold", g.threshold).Msg("Prompt rejected by injection screening")
		return v, fmt.Errorf("%w (risk %.2f)", ErrPromptRejected, v.RiskScore)
	}
	return v, nil
}

// Allow accepts every prompt.
type Allow struct{}

func (Allow) Screen(context.Context, string) (Verdict, error) {
	return Verdict{Safe: true}, nil
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, prompt string) Verdict

func (f ScorerFunc) Score(ctx context.Context, prompt string) Verdict {
	return f(ctx, prompt)
}
