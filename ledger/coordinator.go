package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veblen3358/secure-reveal-lab/metrics"
	"github.com/Veblen3358/secure-reveal-lab/oracle"
)

// reservedCorrelation marks a pair whose oracle request is in flight but
// has not yet been assigned a correlation id. The pair counts as pending so
// a second request cannot slip in during the oracle round trip.
const reservedCorrelation oracle.CorrelationID = "\x00reserved"

// Coordinator drives the decryption protocol. Per (survey, respondent) pair
// the state machine is NoRequest -> Pending -> Revealed, with Revealed
// terminal: there is no way back, and a second reveal of the same response
// is never permitted. The correlation table is the only link between a
// request and its callback; it has its own lock so callbacks arriving from
// arbitrary execution contexts can be matched without taking the ledger
// mutex.
type Coordinator struct {
	ledger   *Ledger
	oracle   oracle.DecryptionOracle
	verifier oracle.CallbackVerifier
	notifier *Notifier
	store    Store
	log      *slog.Logger

	// mu guards pending and reveals.
	mu      sync.RWMutex
	pending map[pairKey]oracle.CorrelationID
	reveals map[pairKey]*RevealedResponse

	// cmu guards the correlation table.
	cmu          sync.Mutex
	correlations map[oracle.CorrelationID]pairKey
}

func newCoordinator(l *Ledger, dec oracle.DecryptionOracle, verifier oracle.CallbackVerifier,
	notifier *Notifier, store Store, log *slog.Logger) *Coordinator {
	return &Coordinator{
		ledger:       l,
		oracle:       dec,
		verifier:     verifier,
		notifier:     notifier,
		store:        store,
		log:          log,
		pending:      make(map[pairKey]oracle.CorrelationID),
		reveals:      make(map[pairKey]*RevealedResponse),
		correlations: make(map[oracle.CorrelationID]pairKey),
	}
}

// RequestDecryption opens a decryption request for the pair's stored
// response. Callable by the survey creator or the respondent. The pair must
// have a response, no pending request and no reveal. On success the
// response's handles are handed to the oracle as a batch, the returned
// correlation id is recorded and the pair flips to Pending. The only way
// out of Pending is a matching callback.
func (c *Coordinator) RequestDecryption(ctx context.Context, id SurveyID, respondent, caller Principal) (oracle.CorrelationID, error) {
	s, err := c.ledger.Survey(id)
	if err != nil {
		return "", err
	}
	if !IsRespondentOrCreator(&s, respondent, caller) {
		return "", authorizationf("caller %s is neither the respondent nor the creator of survey %d", caller, id)
	}

	handles, err := c.ledger.EncryptedResponse(id, respondent)
	if err != nil {
		return "", err
	}

	key := pairKey{id, respondent}

	// Reserve the pair before the oracle round trip so concurrent requests
	// for the same pair cannot both proceed.
	c.mu.Lock()
	if _, revealed := c.reveals[key]; revealed {
		c.mu.Unlock()
		return "", statef("response of %s to survey %d already revealed", respondent, id)
	}
	if _, outstanding := c.pending[key]; outstanding {
		c.mu.Unlock()
		return "", statef("decryption already pending for %s on survey %d", respondent, id)
	}
	c.pending[key] = reservedCorrelation
	c.mu.Unlock()

	cid, err := c.oracle.RequestDecryption(ctx, handles)
	if err != nil {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		return "", fmt.Errorf("oracle rejected decryption request: %w", err)
	}

	c.mu.Lock()
	c.pending[key] = cid
	c.mu.Unlock()

	c.cmu.Lock()
	c.correlations[cid] = key
	c.cmu.Unlock()

	c.notifier.Publish(Event{
		Type:          EventDecryptionRequested,
		SurveyID:      id,
		Respondent:    respondent,
		CorrelationID: cid,
		At:            c.ledger.now(),
	})
	return cid, nil
}

// OnDecryptionCallback is invoked by the oracle, not by end users. It
// matches the correlation id, validates the plaintext count against the
// survey's question count, has the verifier check the authenticity proof,
// and only then stores the reveal and retires the correlation id. A
// duplicate or replayed callback finds no live correlation and fails with
// CorrelationError without mutating anything.
func (c *Coordinator) OnDecryptionCallback(cid oracle.CorrelationID, plaintexts []int64, proof oracle.AuthenticityProof) error {
	c.cmu.Lock()
	key, live := c.correlations[cid]
	c.cmu.Unlock()
	if !live {
		metrics.IncCallbacksRejected()
		return correlationf("unknown or already-resolved request %s", cid)
	}

	s, err := c.ledger.Survey(key.survey)
	if err != nil {
		metrics.IncCallbacksRejected()
		return fmt.Errorf("correlated survey vanished: %w", err)
	}
	if len(plaintexts) != s.QuestionCount() {
		metrics.IncCallbacksRejected()
		return validationf("callback for %s carries %d plaintexts, survey %d has %d questions",
			cid, len(plaintexts), key.survey, s.QuestionCount())
	}

	res := &oracle.DecryptionResult{CorrelationID: cid, Plaintexts: plaintexts}
	if err := c.verifier.VerifyCallback(res, proof); err != nil {
		metrics.IncCallbacksRejected()
		return authorizationf("callback authenticity rejected: %v", err)
	}

	rev := &RevealedResponse{
		SurveyID:   key.survey,
		Respondent: key.respondent,
		Answers:    append([]int64(nil), plaintexts...),
	}

	// Commit. Re-check the correlation under both locks: a concurrent
	// duplicate callback may have resolved it while we verified.
	c.mu.Lock()
	c.cmu.Lock()
	if _, still := c.correlations[cid]; !still {
		c.cmu.Unlock()
		c.mu.Unlock()
		metrics.IncCallbacksRejected()
		return correlationf("unknown or already-resolved request %s", cid)
	}
	delete(c.correlations, cid)
	delete(c.pending, key)
	c.reveals[key] = rev
	c.cmu.Unlock()
	c.mu.Unlock()

	if err := c.store.SaveReveal(rev); err != nil {
		c.log.Error("persisting reveal failed", "surveyID", key.survey, "respondent", key.respondent, "err", err)
	}

	metrics.IncReveals()
	c.notifier.Publish(Event{
		Type:          EventResponseRevealed,
		SurveyID:      key.survey,
		Respondent:    key.respondent,
		CorrelationID: cid,
		Plaintexts:    append([]int64(nil), rev.Answers...),
		At:            c.ledger.now(),
	})
	return nil
}

// IsResponseRevealed reports whether the pair's response has been revealed.
func (c *Coordinator) IsResponseRevealed(id SurveyID, respondent Principal) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.reveals[pairKey{id, respondent}]
	return ok
}

// RevealedResponse returns the stored reveal for the pair.
func (c *Coordinator) RevealedResponse(id SurveyID, respondent Principal) (RevealedResponse, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rev, ok := c.reveals[pairKey{id, respondent}]
	if !ok {
		return RevealedResponse{}, notFoundf("no revealed response for %s on survey %d", respondent, id)
	}
	out := *rev
	out.Answers = append([]int64(nil), rev.Answers...)
	return out, nil
}

// IsDecryptionPending reports whether exactly one outstanding request maps
// to the pair. Always available, regardless of in-flight requests.
func (c *Coordinator) IsDecryptionPending(id SurveyID, respondent Principal) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.pending[pairKey{id, respondent}]
	return ok
}

// restoreReveal re-seats a persisted reveal during startup.
func (c *Coordinator) restoreReveal(rev *RevealedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cloned := *rev
	cloned.Answers = append([]int64(nil), rev.Answers...)
	c.reveals[pairKey{rev.SurveyID, rev.Respondent}] = &cloned
}
