package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/Veblen3358/secure-reveal-lab/oracle"
)

// Aggregator maintains one homomorphic running sum per (survey, question).
// It never inspects values; every combination is forwarded to the
// coprocessor's homomorphic add. The first accepted response for a survey
// seeds the sums with that response's stored handles; later responses are
// folded in. Sums always reflect exactly the survey's accepted responses.
type Aggregator struct {
	mu    sync.RWMutex
	copro oracle.Coprocessor
	sums  map[SurveyID][]oracle.Handle
}

// NewAggregator creates an aggregator backed by copro.
func NewAggregator(copro oracle.Coprocessor) *Aggregator {
	return &Aggregator{
		copro: copro,
		sums:  make(map[SurveyID][]oracle.Handle),
	}
}

// stage computes the sums as they would be after folding in answers,
// without mutating state. answers holds the stored response handles in
// question order; the ledger commits the result only after every other
// precondition of the submission has passed.
func (a *Aggregator) stage(ctx context.Context, id SurveyID, answers []oracle.Handle) ([]oracle.Handle, error) {
	a.mu.RLock()
	current := a.sums[id]
	a.mu.RUnlock()

	if current == nil {
		return append([]oracle.Handle(nil), answers...), nil
	}
	if len(current) != len(answers) {
		return nil, fmt.Errorf("aggregate arity mismatch: have %d sums, got %d answers", len(current), len(answers))
	}

	staged := make([]oracle.Handle, len(answers))
	for q := range answers {
		combined, err := a.copro.Add(ctx, current[q], answers[q])
		if err != nil {
			return nil, fmt.Errorf("homomorphic add for question %d: %w", q, err)
		}
		staged[q] = combined
	}
	return staged, nil
}

// commit installs previously staged sums.
func (a *Aggregator) commit(id SurveyID, staged []oracle.Handle) {
	a.mu.Lock()
	a.sums[id] = staged
	a.mu.Unlock()
}

// EncryptedSum returns the current aggregate handle for one question.
// Decrypting it (out of band, via the oracle) yields the arithmetic sum of
// all accepted answers; callers derive averages as sum / responseCount.
func (a *Aggregator) EncryptedSum(id SurveyID, question int) (oracle.Handle, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	sums, ok := a.sums[id]
	if !ok {
		return "", statef("survey %d has no responses yet", id)
	}
	if question < 0 || question >= len(sums) {
		return "", statef("question index %d out of range for survey %d", question, id)
	}
	return sums[question], nil
}
