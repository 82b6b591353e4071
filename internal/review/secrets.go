package review

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// SecretFinding is a secret detected in submitted code. The secret itself
// is never kept.
type SecretFinding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line"`
}

// Redactor removes secrets from code before it leaves the process.
type Redactor interface {
	Redact(code string) (string, []SecretFinding)
}

// GitleaksRedactor scans with the default gitleaks rule set.
type GitleaksRedactor struct {
	detector *detect.Detector
}

func NewGitleaksRedactor() (*GitleaksRedactor, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("load gitleaks rules: %w", err)
	}
	return &GitleaksRedactor{detector: d}, nil
}

// Redact replaces every detected secret with a rule-tagged placeholder.
func (g *GitleaksRedactor) Redact(code string) (string, []SecretFinding) {
	found := g.detector.DetectString(code)
	if len(found) == 0 {
		return code, nil
	}

	// longest secrets first so overlapping matches are fully covered
	sort.SliceStable(found, func(i, j int) bool { return len(found[i].Secret) > len(found[j].Secret) })

	findings := make([]SecretFinding, 0, len(found))
	redacted := code
	for _, f := range found {
		if f.Secret != "" {
			redacted = strings.ReplaceAll(redacted, f.Secret, "[REDACTED:"+f.RuleID+"]")
		}
		findings = append(findings, SecretFinding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine + 1,
		})
	}
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Line < findings[j].Line })
	return redacted, findings
}

// RedactorFunc adapts a function to Redactor.
type RedactorFunc func(code string) (string, []SecretFinding)

func (f RedactorFunc) Redact(code string) (string, []SecretFinding) {
	return f(code)
}
