package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/Veblen3358/secure-reveal-lab/ledger"
	"github.com/Veblen3358/secure-reveal-lab/oracle"
	"github.com/Veblen3358/secure-reveal-lab/testutil"
	"github.com/stretchr/testify/require"
)

// submitAlice creates the canonical two-question survey and submits Alice's
// answers [1, 0].
func submitAlice(t *testing.T, h *testutil.Harness) ledger.SurveyID {
	t.Helper()
	id := h.CreateSurvey(t, "T", "Q1", "Q2")
	answers, proofs := testutil.EncryptAnswers(1, 0)
	require.NoError(t, h.Ledger.SubmitResponse(context.Background(), id, testutil.Alice, answers, proofs))
	return id
}

func TestRevealLifecycle(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	id := submitAlice(t, h)

	events := h.Ledger.Notifier().Subscribe(8)

	require.False(t, h.Ledger.IsDecryptionPending(id, testutil.Alice))
	require.False(t, h.Ledger.IsResponseRevealed(id, testutil.Alice))

	cid, err := h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Alice)
	require.NoError(t, err)
	require.NotEmpty(t, cid)
	require.True(t, h.Ledger.IsDecryptionPending(id, testutil.Alice))

	ev := <-events
	require.Equal(t, ledger.EventDecryptionRequested, ev.Type)
	require.Equal(t, cid, ev.CorrelationID)

	require.NoError(t, h.Oracle.Deliver(cid, h.Ledger))

	require.False(t, h.Ledger.IsDecryptionPending(id, testutil.Alice))
	require.True(t, h.Ledger.IsResponseRevealed(id, testutil.Alice))

	rev, err := h.Ledger.RevealedResponse(id, testutil.Alice)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 0}, rev.Answers)
	require.Equal(t, testutil.Alice, rev.Respondent)
	require.Equal(t, id, rev.SurveyID)

	ev = <-events
	require.Equal(t, ledger.EventResponseRevealed, ev.Type)
	require.Equal(t, []int64{1, 0}, ev.Plaintexts)
}

func TestDuplicateCallbackIsRejected(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	id := submitAlice(t, h)

	cid, err := h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Alice)
	require.NoError(t, err)

	require.NoError(t, h.Oracle.Deliver(cid, h.Ledger))
	before, err := h.Ledger.RevealedResponse(id, testutil.Alice)
	require.NoError(t, err)

	// Replaying the exact same signed callback must fail without touching
	// the stored reveal.
	err = h.Oracle.Deliver(cid, h.Ledger)
	require.True(t, ledger.IsCorrelation(err))
	require.ErrorContains(t, err, "unknown or already-resolved")

	after, err := h.Ledger.RevealedResponse(id, testutil.Alice)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestCallbackWithUnknownCorrelationID(t *testing.T) {
	h := testutil.NewHarness(t)
	id := submitAlice(t, h)

	err := h.Ledger.OnDecryptionCallback("no-such-id", []int64{1, 0}, oracle.AuthenticityProof{})
	require.True(t, ledger.IsCorrelation(err))
	require.False(t, h.Ledger.IsResponseRevealed(id, testutil.Alice))
}

func TestRequestDecryptionStateMachine(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	id := submitAlice(t, h)

	cid, err := h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Alice)
	require.NoError(t, err)

	// Already pending.
	_, err = h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Alice)
	require.True(t, ledger.IsState(err))
	require.ErrorContains(t, err, "pending")

	require.NoError(t, h.Oracle.Deliver(cid, h.Ledger))

	// Revealed is terminal: no way back to Pending.
	_, err = h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Creator)
	require.True(t, ledger.IsState(err))
	require.ErrorContains(t, err, "already revealed")
	require.False(t, h.Ledger.IsDecryptionPending(id, testutil.Alice))
}

func TestRequestDecryptionAuthorization(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	id := submitAlice(t, h)

	// A stranger may not request a reveal.
	_, err := h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Mallory)
	require.True(t, ledger.IsAuthorization(err))

	// Another respondent may not request someone else's reveal either.
	answers, proofs := testutil.EncryptAnswers(0, 1)
	require.NoError(t, h.Ledger.SubmitResponse(ctx, id, testutil.Bob, answers, proofs))
	_, err = h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Bob)
	require.True(t, ledger.IsAuthorization(err))

	// The creator may.
	_, err = h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Creator)
	require.NoError(t, err)
}

func TestRequestDecryptionWithoutResponse(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	id := h.CreateSurvey(t, "T", "Q1")

	_, err := h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Alice)
	require.True(t, ledger.IsNotFound(err))

	_, err = h.Ledger.RequestDecryption(ctx, 42, testutil.Alice, testutil.Alice)
	require.True(t, ledger.IsNotFound(err))
}

func TestOracleFailureClearsPending(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	id := submitAlice(t, h)

	h.Oracle.RequestErr = context.DeadlineExceeded
	_, err := h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Alice)
	require.Error(t, err)
	require.False(t, h.Ledger.IsDecryptionPending(id, testutil.Alice))

	// The pair is free to try again once the oracle recovers.
	h.Oracle.RequestErr = nil
	_, err = h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Alice)
	require.NoError(t, err)
}

func TestCallbackPlaintextCountMismatchKeepsPending(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	id := submitAlice(t, h)

	cid, err := h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Alice)
	require.NoError(t, err)

	res, _, err := h.Oracle.Result(cid)
	require.NoError(t, err)
	truncated := &oracle.DecryptionResult{CorrelationID: cid, Plaintexts: res.Plaintexts[:1]}
	err = h.Ledger.OnDecryptionCallback(truncated.CorrelationID, truncated.Plaintexts, oracle.AuthenticityProof{})
	require.True(t, ledger.IsValidation(err))

	// The request is still live; the genuine callback resolves it.
	require.True(t, h.Ledger.IsDecryptionPending(id, testutil.Alice))
	require.NoError(t, h.Oracle.Deliver(cid, h.Ledger))
	require.True(t, h.Ledger.IsResponseRevealed(id, testutil.Alice))
}

func TestCallbackWithForgedProof(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	id := submitAlice(t, h)

	cid, err := h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Alice)
	require.NoError(t, err)

	// Correct shape, wrong signature.
	err = h.Ledger.OnDecryptionCallback(cid, []int64{9, 9}, oracle.AuthenticityProof{})
	require.True(t, ledger.IsAuthorization(err))
	require.True(t, h.Ledger.IsDecryptionPending(id, testutil.Alice))
	require.False(t, h.Ledger.IsResponseRevealed(id, testutil.Alice))
}

func TestIndependentPairsDoNotInterfere(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	id := h.CreateSurvey(t, "T", "Q1")

	for _, p := range []ledger.Principal{testutil.Alice, testutil.Bob} {
		answers, proofs := testutil.EncryptAnswers(1)
		require.NoError(t, h.Ledger.SubmitResponse(ctx, id, p, answers, proofs))
	}

	aliceCID, err := h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Alice)
	require.NoError(t, err)
	bobCID, err := h.Ledger.RequestDecryption(ctx, id, testutil.Bob, testutil.Bob)
	require.NoError(t, err)
	require.NotEqual(t, aliceCID, bobCID)

	// Callbacks arrive in reverse order of requests; each resolves only its
	// own pair.
	require.NoError(t, h.Oracle.Deliver(bobCID, h.Ledger))
	require.True(t, h.Ledger.IsResponseRevealed(id, testutil.Bob))
	require.False(t, h.Ledger.IsResponseRevealed(id, testutil.Alice))
	require.True(t, h.Ledger.IsDecryptionPending(id, testutil.Alice))

	require.NoError(t, h.Oracle.Deliver(aliceCID, h.Ledger))
	require.True(t, h.Ledger.IsResponseRevealed(id, testutil.Alice))
}

func TestMissingCallbackStaysPendingForever(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	id := submitAlice(t, h)

	_, err := h.Ledger.RequestDecryption(ctx, id, testutil.Alice, testutil.Alice)
	require.NoError(t, err)

	// No timeout: even long after the survey ends the pair is still pending
	// and every other read stays available.
	h.Clock.Advance(1000 * 24 * time.Hour)
	require.True(t, h.Ledger.IsDecryptionPending(id, testutil.Alice))
	require.False(t, h.Ledger.IsResponseRevealed(id, testutil.Alice))
	require.True(t, h.Ledger.HasResponded(id, testutil.Alice))
}
