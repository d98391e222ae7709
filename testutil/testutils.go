// Package testutil provides test fixtures for the survey ledger: a fully
// wired harness (dev coprocessor, parked mock oracle, manual clock,
// in-memory store) plus helpers for encrypting answers and building survey
// definitions. Intended for tests only.
package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/Veblen3358/secure-reveal-lab/ledger"
	"github.com/Veblen3358/secure-reveal-lab/oracle"
	"github.com/stretchr/testify/require"
)

// Well-known principals used across tests.
const (
	Creator ledger.Principal = "creator"
	Alice   ledger.Principal = "alice"
	Bob     ledger.Principal = "bob"
	Mallory ledger.Principal = "mallory"
)

// Clock is a manually advanced clock for deterministic time-window tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock fixed at a stable reference instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Harness bundles a ledger with all its mocked collaborators.
type Harness struct {
	Ledger *ledger.Ledger
	Copro  *oracle.DevCoprocessor
	Oracle *oracle.MockOracle
	Store  ledger.Store
	Clock  *Clock
}

// Option customizes a harness before the ledger is constructed.
type Option func(*ledger.Config)

// WithStore substitutes the persistence store.
func WithStore(store ledger.Store) Option {
	return func(cfg *ledger.Config) { cfg.Store = store }
}

// WithVerifier substitutes the callback verifier.
func WithVerifier(v oracle.CallbackVerifier) Option {
	return func(cfg *ledger.Config) { cfg.Verifier = v }
}

// NewHarness creates a ledger wired to a dev coprocessor, a parked mock
// oracle, a manual clock and an in-memory store.
func NewHarness(t *testing.T, opts ...Option) *Harness {
	t.Helper()

	copro := oracle.NewDevCoprocessor()
	mock, err := oracle.NewMockOracle()
	require.NoError(t, err)
	clock := NewClock()
	store := ledger.NewInMemoryStore()

	cfg := ledger.Config{
		Coprocessor: copro,
		Oracle:      mock,
		Verifier:    oracle.AcceptAllVerifier{},
		Store:       store,
		Clock:       clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	l, err := ledger.New(cfg)
	require.NoError(t, err)

	h := &Harness{
		Ledger: l,
		Copro:  copro,
		Oracle: mock,
		Store:  cfg.Store,
		Clock:  clock,
	}
	return h
}

// Definition returns a survey definition opening now and closing in 24h.
func (h *Harness) Definition(title string, questions ...string) ledger.SurveyDefinition {
	now := h.Clock.Now()
	return ledger.SurveyDefinition{
		Title:     title,
		Questions: questions,
		StartTime: now,
		EndTime:   now.Add(24 * time.Hour),
	}
}

// CreateSurvey creates a survey owned by Creator with the given questions.
func (h *Harness) CreateSurvey(t *testing.T, title string, questions ...string) ledger.SurveyID {
	t.Helper()
	id, err := h.Ledger.CreateSurvey(Creator, h.Definition(title, questions...))
	require.NoError(t, err)
	return id
}

// EncryptAnswers produces dev-scheme external ciphertexts with proofs.
func EncryptAnswers(values ...int64) ([]oracle.ExternalCiphertext, []oracle.InputProof) {
	externals := make([]oracle.ExternalCiphertext, len(values))
	proofs := make([]oracle.InputProof, len(values))
	for i, v := range values {
		externals[i] = oracle.EncodeExternal(v)
		proofs[i] = oracle.ProveExternal(externals[i])
	}
	return externals, proofs
}
