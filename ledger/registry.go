package ledger

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Veblen3358/secure-reveal-lab/metrics"
)

// Registry owns survey definitions and lifecycle. Surveys live in an arena
// indexed by SurveyID; ids are assigned monotonically starting at 0 and
// surveys are never deleted.
type Registry struct {
	mu      sync.RWMutex
	surveys []*Survey

	notifier *Notifier
	store    Store
	now      func() time.Time
	log      *slog.Logger
}

// NewRegistry creates an empty survey registry.
func NewRegistry(notifier *Notifier, store Store, now func() time.Time, log *slog.Logger) *Registry {
	return &Registry{
		notifier: notifier,
		store:    store,
		now:      now,
		log:      log,
	}
}

func (r *Registry) validateDefinition(def *SurveyDefinition, now time.Time) error {
	title := strings.TrimSpace(def.Title)
	if title == "" {
		return validationf("title must not be empty")
	}
	if len(def.Title) > MaxTitleLength {
		return validationf("title exceeds %d characters", MaxTitleLength)
	}
	if len(def.Questions) < MinQuestions || len(def.Questions) > MaxQuestions {
		return validationf("question count %d outside [%d, %d]", len(def.Questions), MinQuestions, MaxQuestions)
	}
	if !def.EndTime.After(def.StartTime) {
		return validationf("end time must be after start time")
	}
	if !def.EndTime.After(now) {
		return validationf("end time must be in the future")
	}
	return nil
}

// CreateSurvey validates def, allocates the next survey id, stores the
// record and emits a survey-created event. No partial state is retained on
// failure.
func (r *Registry) CreateSurvey(creator Principal, def SurveyDefinition) (SurveyID, error) {
	ids, err := r.CreateSurveys(creator, []SurveyDefinition{def})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// CreateSurveys applies CreateSurvey atomically to a batch of 1 to 5
// definitions: either all validate and commit, or none do.
func (r *Registry) CreateSurveys(creator Principal, defs []SurveyDefinition) ([]SurveyID, error) {
	if creator == "" {
		return nil, authorizationf("creator principal required")
	}
	if len(defs) < MinBatchSize || len(defs) > MaxBatchSize {
		return nil, validationf("batch size %d outside [%d, %d]", len(defs), MinBatchSize, MaxBatchSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for i := range defs {
		if err := r.validateDefinition(&defs[i], now); err != nil {
			return nil, err
		}
	}

	created := make([]*Survey, 0, len(defs))
	ids := make([]SurveyID, 0, len(defs))
	for i := range defs {
		s := &Survey{
			ID:        SurveyID(len(r.surveys)),
			Title:     defs[i].Title,
			Questions: append([]string(nil), defs[i].Questions...),
			Creator:   creator,
			StartTime: defs[i].StartTime,
			EndTime:   defs[i].EndTime,
		}
		r.surveys = append(r.surveys, s)
		created = append(created, s)
		ids = append(ids, s.ID)
	}

	if err := r.store.SaveSurveys(created); err != nil {
		r.log.Error("persisting surveys failed", "err", err)
	}

	for _, s := range created {
		metrics.IncSurveysCreated()
		r.notifier.Publish(Event{
			Type:          EventSurveyCreated,
			SurveyID:      s.ID,
			Title:         s.Title,
			Creator:       s.Creator,
			QuestionCount: s.QuestionCount(),
			At:            now,
		})
	}

	return ids, nil
}

// Survey returns a copy of the survey record.
func (r *Registry) Survey(id SurveyID) (Survey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.lookupLocked(id)
	if err != nil {
		return Survey{}, err
	}
	return s.clone(), nil
}

// SurveyCount returns the number of surveys ever created.
func (r *Registry) SurveyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.surveys)
}

// SurveyCreator returns the survey's creator principal.
func (r *Registry) SurveyCreator(id SurveyID) (Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.lookupLocked(id)
	if err != nil {
		return "", err
	}
	return s.Creator, nil
}

// SurveyStats derives the activity view of a survey at the current time.
func (r *Registry) SurveyStats(id SurveyID) (SurveyStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.lookupLocked(id)
	if err != nil {
		return SurveyStats{}, err
	}

	now := r.now()
	remaining := s.EndTime.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	return SurveyStats{
		SurveyID:      s.ID,
		Title:         s.Title,
		QuestionCount: s.QuestionCount(),
		ResponseCount: s.ResponseCount,
		IsActive:      !s.Paused && !now.Before(s.StartTime) && !now.After(s.EndTime),
		TimeRemaining: remaining,
	}, nil
}

// EmergencyPause is the creator-only emergency stop: it advances the
// survey's end time to now and marks it paused, blocking any further
// submissions without touching already-accepted data.
func (r *Registry) EmergencyPause(id SurveyID, caller Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookupLocked(id)
	if err != nil {
		return err
	}
	if !IsCreator(s, caller) {
		return authorizationf("only the creator may pause survey %d", id)
	}

	now := r.now()
	s.EndTime = now
	s.Paused = true

	if err := r.store.SaveSurvey(s); err != nil {
		r.log.Error("persisting paused survey failed", "surveyID", id, "err", err)
	}

	r.notifier.Publish(Event{
		Type:     EventSurveyPaused,
		SurveyID: s.ID,
		Creator:  s.Creator,
		At:       now,
	})
	return nil
}

func (r *Registry) lookupLocked(id SurveyID) (*Survey, error) {
	if int(id) >= len(r.surveys) {
		return nil, notFoundf("survey %d", id)
	}
	return r.surveys[id], nil
}

// incrementResponses bumps the survey's response counter. Called by the
// ledger with its own mutex held, so counter updates are serialized with
// response acceptance.
func (r *Registry) incrementResponses(id SurveyID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookupLocked(id)
	if err != nil {
		return err
	}
	s.ResponseCount++

	if err := r.store.SaveSurvey(s); err != nil {
		r.log.Error("persisting response counter failed", "surveyID", id, "err", err)
	}
	return nil
}

// restore re-seats a survey loaded from the store. Surveys must be restored
// in id order.
func (r *Registry) restore(s *Survey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if SurveyID(len(r.surveys)) != s.ID {
		return validationf("restore out of order: expected survey %d, got %d", len(r.surveys), s.ID)
	}
	r.surveys = append(r.surveys, s)
	return nil
}
