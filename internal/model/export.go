package model

import "time"

// ResultsExport is the top-level JSON structure for result export.
type ResultsExport struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Bundles     []BundleResults `json:"bundles"`
}

// BundleResults holds every finished attempt for one bundle.
type BundleResults struct {
	BundleID     int64           `json:"bundle_id"`
	Name         string          `json:"name"`
	NumQuestions int             `json:"num_questions"`
	Results      []StudentResult `json:"results"`
}

// StudentResult holds one student's graded attempt for export.
type StudentResult struct {
	Username      string           `json:"username"`
	DisplayName   string           `json:"display_name"`
	AttemptNumber int              `json:"attempt_number"`
	Status        AttemptStatus    `json:"status"`
	StartedAt     time.Time        `json:"started_at"`
	SubmittedAt   *time.Time       `json:"submitted_at,omitempty"`
	Score         float64          `json:"score"`
	Questions     []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	QuestionID    int64   `json:"question_id"`
	Text          string  `json:"question_text"`
	Selected      string  `json:"selected_answer"`
	CorrectAnswer string  `json:"correct_answer"`
	Correct       bool    `json:"is_correct"`
	Marks         float64 `json:"marks_awarded"`
}
