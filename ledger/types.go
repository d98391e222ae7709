package ledger

import (
	"time"

	"github.com/Veblen3358/secure-reveal-lab/oracle"
)

// Principal identifies a caller: a survey creator, a respondent, or the
// ledger itself. Principals are opaque strings (hex-encoded public keys in
// practice); the ledger only compares them for equality.
type Principal string

// SurveyID is a monotonically assigned survey identifier, starting at 0.
type SurveyID uint64

// Validation bounds for survey definitions.
const (
	MaxTitleLength = 256
	MinQuestions   = 1
	MaxQuestions   = 10
	MinBatchSize   = 1
	MaxBatchSize   = 5
)

// SurveyDefinition is the caller-supplied part of a survey.
type SurveyDefinition struct {
	Title     string    `json:"title"`
	Questions []string  `json:"questions"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Survey is a published survey record. Accessors return value copies; the
// registry arena owns the canonical record.
type Survey struct {
	ID            SurveyID  `json:"id"`
	Title         string    `json:"title"`
	Questions     []string  `json:"questions"`
	Creator       Principal `json:"creator"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Paused        bool      `json:"paused"`
	ResponseCount int       `json:"response_count"`
}

// QuestionCount returns the number of questions.
func (s *Survey) QuestionCount() int { return len(s.Questions) }

// clone returns a deep copy safe to hand to callers.
func (s *Survey) clone() Survey {
	out := *s
	out.Questions = append([]string(nil), s.Questions...)
	return out
}

// SurveyStats is the derived view returned by SurveyStats.
type SurveyStats struct {
	SurveyID      SurveyID      `json:"survey_id"`
	Title         string        `json:"title"`
	QuestionCount int           `json:"question_count"`
	ResponseCount int           `json:"response_count"`
	IsActive      bool          `json:"is_active"`
	TimeRemaining time.Duration `json:"time_remaining"`
}

// Response is one respondent's encrypted submission: one ciphertext handle
// per question, in question order. Immutable after creation.
type Response struct {
	SurveyID    SurveyID        `json:"survey_id"`
	Respondent  Principal       `json:"respondent"`
	Answers     []oracle.Handle `json:"answers"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// RevealedResponse holds the one-time plaintext reveal of a response.
// Its presence is the authoritative "already revealed" marker.
type RevealedResponse struct {
	SurveyID   SurveyID  `json:"survey_id"`
	Respondent Principal `json:"respondent"`
	Answers    []int64   `json:"answers"`
}

// pairKey addresses per-(survey, respondent) state.
type pairKey struct {
	survey     SurveyID
	respondent Principal
}
