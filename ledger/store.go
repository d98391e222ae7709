package ledger

import (
	"sync"

	"github.com/Veblen3358/secure-reveal-lab/oracle"
)

// Store is the write-through persistence journal behind the ledger. The
// in-memory arenas remain authoritative; the store exists so surveys,
// responses and reveals survive restarts, keeping reveals one-time across
// process lifetimes. Pending decryption requests are deliberately not
// persisted: an in-flight request does not survive a restart and its late
// callback is rejected as unknown.
type Store interface {
	SaveSurvey(s *Survey) error
	SaveSurveys(surveys []*Survey) error
	SaveResponse(resp *Response) error
	SaveReveal(rev *RevealedResponse) error

	// Load returns everything persisted so far. Surveys are ordered by id,
	// responses by submission order.
	Load() (*Snapshot, error)

	Close() error
}

// Snapshot is the full persisted state used to rebuild a ledger at startup.
type Snapshot struct {
	Surveys   []*Survey
	Responses []*Response
	Reveals   []*RevealedResponse
}

// InMemoryStore implements Store without a database, for tests and
// ephemeral deployments. Oracle callbacks journal reveals from arbitrary
// execution contexts, so all access is serialized behind a mutex.
type InMemoryStore struct {
	mu        sync.Mutex
	surveys   map[SurveyID]*Survey
	order     []SurveyID
	responses []*Response
	reveals   []*RevealedResponse
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{surveys: make(map[SurveyID]*Survey)}
}

// SaveSurvey stores or updates a survey record.
func (s *InMemoryStore) SaveSurvey(survey *Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveSurveyLocked(survey)
	return nil
}

// SaveSurveys stores a batch of surveys.
func (s *InMemoryStore) SaveSurveys(surveys []*Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, survey := range surveys {
		s.saveSurveyLocked(survey)
	}
	return nil
}

func (s *InMemoryStore) saveSurveyLocked(survey *Survey) {
	if _, seen := s.surveys[survey.ID]; !seen {
		s.order = append(s.order, survey.ID)
	}
	cloned := survey.clone()
	s.surveys[survey.ID] = &cloned
}

// SaveResponse appends a response in submission order.
func (s *InMemoryStore) SaveResponse(resp *Response) error {
	cloned := *resp
	cloned.Answers = append([]oracle.Handle(nil), resp.Answers...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, &cloned)
	return nil
}

// SaveReveal appends a revealed response.
func (s *InMemoryStore) SaveReveal(rev *RevealedResponse) error {
	cloned := *rev
	cloned.Answers = append([]int64(nil), rev.Answers...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reveals = append(s.reveals, &cloned)
	return nil
}

// Load returns the persisted snapshot.
func (s *InMemoryStore) Load() (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{}
	for _, id := range s.order {
		cloned := s.surveys[id].clone()
		snap.Surveys = append(snap.Surveys, &cloned)
	}
	snap.Responses = append(snap.Responses, s.responses...)
	snap.Reveals = append(snap.Reveals, s.reveals...)
	return snap, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
