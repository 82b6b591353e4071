package learning

import "time"

// PerformanceMetric is one scored attempt on a topic.
type PerformanceMetric struct {
	Score          float64   `json:"score"`
	Topic          string    `json:"topic"`
	Timestamp      time.Time `json:"timestamp"`
	Difficulty     string    `json:"difficulty"`
	CompletionTime *int      `json:"completion_time,omitempty"`
	Feedback       *string   `json:"feedback,omitempty"`
}

// StudentProfile tracks a student's progress and preferences.
type StudentProfile struct {
	StudentID           string              `json:"student_id"`
	CurrentLevel        string              `json:"current_level"`
	LearningStyle       string              `json:"learning_style"`
	PerformanceHistory  []PerformanceMetric `json:"performance_history"`
	Strengths           []string            `json:"strengths"`
	AreasForImprovement []string            `json:"areas_for_improvement"`
	LastAssessment      time.Time           `json:"last_assessment"`
}

// AverageScore is the mean score over the history, 0 when empty.
func (p StudentProfile) AverageScore() float64 {
	if len(p.PerformanceHistory) == 0 {
		return 0
	}
	var sum float64
	for _, m := range p.PerformanceHistory {
		sum += m.Score
	}
	return sum / float64(len(p.PerformanceHistory))
}

type Exercise struct {
	Question   string   `json:"question"`
	Answer     *string  `json:"answer,omitempty"`
	Difficulty string   `json:"difficulty"`
	Type       string   `json:"type"`
	Hints      []string `json:"hints"`
}

// LearningContent is a structured lesson.
type LearningContent struct {
	Topic             string     `json:"topic"`
	Difficulty        string     `json:"difficulty"`
	ContentType       string     `json:"content_type"`
	Materials         []string   `json:"materials"`
	Exercises         []Exercise `json:"exercises"`
	EstimatedDuration int        `json:"estimated_duration"`
}
