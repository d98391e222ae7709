package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veblen3358/secure-reveal-lab/metrics"
	"github.com/Veblen3358/secure-reveal-lab/oracle"
)

// SelfPrincipal is the default principal the ledger uses when granting
// itself decryption permission on imported ciphertexts.
const SelfPrincipal Principal = "ledger"

// Config wires a Ledger to its collaborators.
type Config struct {
	// Coprocessor performs ciphertext import, grants and homomorphic adds.
	Coprocessor oracle.Coprocessor

	// Oracle accepts asynchronous decryption requests.
	Oracle oracle.DecryptionOracle

	// Verifier authenticates oracle callbacks before any state change.
	Verifier oracle.CallbackVerifier

	// Store persists state across restarts. Defaults to an in-memory store.
	Store Store

	// Self is the principal the ledger grants itself. Defaults to SelfPrincipal.
	Self Principal

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	// Log is the structured logger. Defaults to slog.Default.
	Log *slog.Logger
}

// Ledger is the confidential survey ledger. All public operations are
// serialized; see the package documentation for the concurrency model.
type Ledger struct {
	// mu serializes mutating operations and guards responses/respondents.
	mu sync.RWMutex

	registry *Registry
	agg      *Aggregator
	coord    *Coordinator
	notifier *Notifier

	copro oracle.Coprocessor
	store Store
	self  Principal
	now   func() time.Time
	log   *slog.Logger

	responses   map[pairKey]*Response
	respondents map[SurveyID][]Principal
}

// New creates a ledger and rebuilds its state from the configured store.
func New(cfg Config) (*Ledger, error) {
	if cfg.Coprocessor == nil {
		return nil, errors.New("coprocessor is required")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("decryption oracle is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("callback verifier is required")
	}
	if cfg.Store == nil {
		cfg.Store = NewInMemoryStore()
	}
	if cfg.Self == "" {
		cfg.Self = SelfPrincipal
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	notifier := NewNotifier(cfg.Log)
	l := &Ledger{
		registry:    NewRegistry(notifier, cfg.Store, cfg.Clock, cfg.Log),
		agg:         NewAggregator(cfg.Coprocessor),
		notifier:    notifier,
		copro:       cfg.Coprocessor,
		store:       cfg.Store,
		self:        cfg.Self,
		now:         cfg.Clock,
		log:         cfg.Log,
		responses:   make(map[pairKey]*Response),
		respondents: make(map[SurveyID][]Principal),
	}
	l.coord = newCoordinator(l, cfg.Oracle, cfg.Verifier, notifier, cfg.Store, cfg.Log)

	if err := l.restore(); err != nil {
		return nil, fmt.Errorf("restoring ledger state: %w", err)
	}
	return l, nil
}

// Notifier returns the ledger's event notifier.
func (l *Ledger) Notifier() *Notifier { return l.notifier }

// Registry returns the survey registry component.
func (l *Ledger) Registry() *Registry { return l.registry }

// restore replays the persisted snapshot into the in-memory arenas. Sums
// are re-derived by replaying homomorphic adds over the stored handles, so
// they reflect exactly the restored responses.
func (l *Ledger) restore() error {
	snap, err := l.store.Load()
	if err != nil {
		return err
	}

	for _, s := range snap.Surveys {
		restored := s.clone()
		if err := l.registry.restore(&restored); err != nil {
			return err
		}
	}

	ctx := context.Background()
	for _, resp := range snap.Responses {
		key := pairKey{resp.SurveyID, resp.Respondent}
		if _, dup := l.responses[key]; dup {
			return fmt.Errorf("duplicate persisted response for survey %d respondent %s", resp.SurveyID, resp.Respondent)
		}

		staged, err := l.agg.stage(ctx, resp.SurveyID, resp.Answers)
		if err != nil {
			return err
		}
		l.agg.commit(resp.SurveyID, staged)

		stored := *resp
		stored.Answers = append([]oracle.Handle(nil), resp.Answers...)
		l.responses[key] = &stored
		l.respondents[resp.SurveyID] = append(l.respondents[resp.SurveyID], resp.Respondent)
	}

	for _, rev := range snap.Reveals {
		l.coord.restoreReveal(rev)
	}
	return nil
}

// --- SurveyRegistry operations, delegated ---

// CreateSurvey publishes a new survey and returns its id.
func (l *Ledger) CreateSurvey(creator Principal, def SurveyDefinition) (SurveyID, error) {
	return l.registry.CreateSurvey(creator, def)
}

// CreateSurveys atomically publishes a batch of surveys.
func (l *Ledger) CreateSurveys(creator Principal, defs []SurveyDefinition) ([]SurveyID, error) {
	return l.registry.CreateSurveys(creator, defs)
}

// Survey returns a copy of the survey record.
func (l *Ledger) Survey(id SurveyID) (Survey, error) { return l.registry.Survey(id) }

// SurveyCount returns the number of surveys ever created.
func (l *Ledger) SurveyCount() int { return l.registry.SurveyCount() }

// SurveyStats returns the derived activity view of a survey.
func (l *Ledger) SurveyStats(id SurveyID) (SurveyStats, error) { return l.registry.SurveyStats(id) }

// SurveyCreator returns the survey's creator.
func (l *Ledger) SurveyCreator(id SurveyID) (Principal, error) { return l.registry.SurveyCreator(id) }

// EmergencyPause ends the survey immediately. Creator only.
func (l *Ledger) EmergencyPause(id SurveyID, caller Principal) error {
	return l.registry.EmergencyPause(id, caller)
}

// --- ResponseLedger operations ---

// SubmitResponse accepts one encrypted response per (survey, respondent).
// Preconditions are checked in order: survey exists, submission window is
// open, respondent has not responded, answer and proof counts match the
// question count. On success the external ciphertexts are imported through
// the coprocessor's proof-verified import, decryption permission is granted
// to the ledger, the respondent and the creator, the respondent joins the
// index, the counter increments and the running sums fold in the stored
// handles. The operation is all-or-nothing.
func (l *Ledger) SubmitResponse(ctx context.Context, id SurveyID, respondent Principal, answers []oracle.ExternalCiphertext, proofs []oracle.InputProof) error {
	if respondent == "" {
		return authorizationf("respondent principal required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	s, err := l.registry.Survey(id)
	if err != nil {
		return err
	}

	now := l.now()
	if now.Before(s.StartTime) {
		return statef("survey %d not open yet", id)
	}
	if s.Paused || now.After(s.EndTime) {
		return statef("survey %d ended", id)
	}

	key := pairKey{id, respondent}
	if _, dup := l.responses[key]; dup {
		return statef("already responded to survey %d", id)
	}

	if len(answers) != s.QuestionCount() || len(proofs) != s.QuestionCount() {
		return validationf("survey %d expects %d answers with proofs, got %d answers and %d proofs",
			id, s.QuestionCount(), len(answers), len(proofs))
	}

	handles := make([]oracle.Handle, len(answers))
	for q := range answers {
		h, err := l.copro.ImportCiphertext(ctx, answers[q], proofs[q])
		if err != nil {
			return validationf("answer %d rejected: %v", q, err)
		}
		handles[q] = h
	}

	for _, h := range handles {
		for _, principal := range []Principal{l.self, respondent, s.Creator} {
			if err := l.copro.Grant(ctx, h, string(principal)); err != nil {
				return fmt.Errorf("granting %s on %s: %w", principal, h, err)
			}
		}
	}

	staged, err := l.agg.stage(ctx, id, handles)
	if err != nil {
		return err
	}

	// Point of no return: everything below is pure in-memory bookkeeping.
	resp := &Response{
		SurveyID:    id,
		Respondent:  respondent,
		Answers:     handles,
		SubmittedAt: now,
	}
	l.responses[key] = resp
	l.respondents[id] = append(l.respondents[id], respondent)
	l.agg.commit(id, staged)
	if err := l.registry.incrementResponses(id); err != nil {
		l.log.Error("incrementing response counter failed", "surveyID", id, "err", err)
	}

	if err := l.store.SaveResponse(resp); err != nil {
		l.log.Error("persisting response failed", "surveyID", id, "err", err)
	}

	metrics.IncResponsesAccepted()
	l.notifier.Publish(Event{
		Type:        EventResponseSubmitted,
		SurveyID:    id,
		Respondent:  respondent,
		AnswerCount: len(handles),
		At:          now,
	})
	return nil
}

// HasResponded reports whether respondent has submitted to the survey.
func (l *Ledger) HasResponded(id SurveyID, respondent Principal) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.responses[pairKey{id, respondent}]
	return ok
}

// EncryptedResponse returns the stored ciphertext handles for one response,
// in question order. It never returns plaintext.
func (l *Ledger) EncryptedResponse(id SurveyID, respondent Principal) ([]oracle.Handle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	resp, ok := l.responses[pairKey{id, respondent}]
	if !ok {
		if _, err := l.registry.Survey(id); err != nil {
			return nil, err
		}
		return nil, notFoundf("no response from %s to survey %d", respondent, id)
	}
	return append([]oracle.Handle(nil), resp.Answers...), nil
}

// Respondents returns the survey's respondents in submission order.
func (l *Ledger) Respondents(id SurveyID) ([]Principal, error) {
	if _, err := l.registry.Survey(id); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Principal(nil), l.respondents[id]...), nil
}

// --- AggregationEngine operations ---

// EncryptedSum returns the homomorphic running sum handle for one question.
func (l *Ledger) EncryptedSum(id SurveyID, question int) (oracle.Handle, error) {
	if _, err := l.registry.Survey(id); err != nil {
		return "", err
	}
	return l.agg.EncryptedSum(id, question)
}

// --- DecryptionCoordinator operations, delegated ---

// RequestDecryption opens a one-time decryption request for a response.
func (l *Ledger) RequestDecryption(ctx context.Context, id SurveyID, respondent, caller Principal) (oracle.CorrelationID, error) {
	return l.coord.RequestDecryption(ctx, id, respondent, caller)
}

// OnDecryptionCallback resolves a pending request with the oracle's result.
func (l *Ledger) OnDecryptionCallback(id oracle.CorrelationID, plaintexts []int64, proof oracle.AuthenticityProof) error {
	return l.coord.OnDecryptionCallback(id, plaintexts, proof)
}

// IsResponseRevealed reports whether the pair has a stored reveal.
func (l *Ledger) IsResponseRevealed(id SurveyID, respondent Principal) bool {
	return l.coord.IsResponseRevealed(id, respondent)
}

// RevealedResponse returns the stored one-time reveal for a pair.
func (l *Ledger) RevealedResponse(id SurveyID, respondent Principal) (RevealedResponse, error) {
	return l.coord.RevealedResponse(id, respondent)
}

// IsDecryptionPending reports whether a request is outstanding for the pair.
func (l *Ledger) IsDecryptionPending(id SurveyID, respondent Principal) bool {
	return l.coord.IsDecryptionPending(id, respondent)
}
