package review

import "strings"

// CodeIssue is one problem found during review.
type CodeIssue struct {
	Type         string  `json:"type"`
	Severity     string  `json:"severity"`
	File         string  `json:"file"`
	LineNumber   *int    `json:"line_number,omitempty"`
	Description  string  `json:"description"`
	SuggestedFix *string `json:"suggested_fix,omitempty"`
}

// CodeReviewReport is the structured form of a review answer.
type CodeReviewReport struct {
	Issues                []CodeIssue    `json:"issues"`
	Summary               string         `json:"summary"`
	TotalIssues           int            `json:"total_issues"`
	SeverityCounts        map[string]int `json:"severity_counts"`
	AutomatedFixesApplied int            `json:"automated_fixes_applied"`
	ManualReviewNeeded    []string       `json:"manual_review_needed"`
}

// CodeMetrics scores one quality category.
type CodeMetrics struct {
	Category string   `json:"category"`
	Score    int      `json:"score"`
	Findings []string `json:"findings"`
}

// CodeAnalysisReport is the structured form of an analysis answer. Scores
// are on a 0-100 scale.
type CodeAnalysisReport struct {
	OverallQuality       int                 `json:"overall_quality"`
	CodeMetrics          []CodeMetrics       `json:"code_metrics"`
	ArchitectureScore    int                 `json:"architecture_score"`
	MaintainabilityScore int                 `json:"maintainability_score"`
	PerformanceScore     int                 `json:"performance_score"`
	SecurityScore        int                 `json:"security_score"`
	TestCoverage         int                 `json:"test_coverage"`
	KeyStrengths         []string            `json:"key_strengths"`
	ImprovementAreas     []string            `json:"improvement_areas"`
	TechStack            []string            `json:"tech_stack"`
	Recommendations      []string            `json:"recommendations"`
	ComplexityMetrics    map[string]int      `json:"complexity_metrics"`
	BestPractices        []map[string]string `json:"best_practices"`
	PotentialRisks       []string            `json:"potential_risks"`
	DocumentationQuality int                 `json:"documentation_quality"`
}

// Summarize fills in the totals a model left out: total_issues and
// severity_counts are derived from the issue list when missing.
func Summarize(report *CodeReviewReport) {
	if report == nil {
		return
	}
	if report.TotalIssues == 0 {
		report.TotalIssues = len(report.Issues)
	}
	if len(report.SeverityCounts) > 0 {
		return
	}
	counts := map[string]int{}
	for _, issue := range report.Issues {
		sev := strings.ToLower(strings.TrimSpace(issue.Severity))
		if sev == "" {
			sev = "unknown"
		}
		counts[sev]++
	}
	report.SeverityCounts = counts
}
