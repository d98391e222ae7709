package ledger_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Veblen3358/secure-reveal-lab/ledger"
	"github.com/Veblen3358/secure-reveal-lab/testutil"
	"github.com/stretchr/testify/require"
)

func TestCreateSurveyAssignsMonotonicIDs(t *testing.T) {
	h := testutil.NewHarness(t)

	first := h.CreateSurvey(t, "first", "Q1")
	second := h.CreateSurvey(t, "second", "Q1", "Q2")

	require.Equal(t, ledger.SurveyID(0), first)
	require.Equal(t, ledger.SurveyID(1), second)
	require.Equal(t, 2, h.Ledger.SurveyCount())

	s, err := h.Ledger.Survey(second)
	require.NoError(t, err)
	require.Equal(t, "second", s.Title)
	require.Equal(t, 2, s.QuestionCount())
	require.Equal(t, testutil.Creator, s.Creator)
	require.True(t, s.EndTime.After(s.StartTime))
	require.Zero(t, s.ResponseCount)
}

func TestCreateSurveyValidation(t *testing.T) {
	h := testutil.NewHarness(t)
	now := h.Clock.Now()

	tooMany := make([]string, 11)
	for i := range tooMany {
		tooMany[i] = "Q"
	}

	cases := []struct {
		name string
		def  ledger.SurveyDefinition
	}{
		{"empty title", ledger.SurveyDefinition{Title: "  ", Questions: []string{"Q"}, StartTime: now, EndTime: now.Add(time.Hour)}},
		{"title too long", ledger.SurveyDefinition{Title: strings.Repeat("x", ledger.MaxTitleLength+1), Questions: []string{"Q"}, StartTime: now, EndTime: now.Add(time.Hour)}},
		{"no questions", ledger.SurveyDefinition{Title: "T", Questions: nil, StartTime: now, EndTime: now.Add(time.Hour)}},
		{"too many questions", ledger.SurveyDefinition{Title: "T", Questions: tooMany, StartTime: now, EndTime: now.Add(time.Hour)}},
		{"end before start", ledger.SurveyDefinition{Title: "T", Questions: []string{"Q"}, StartTime: now.Add(time.Hour), EndTime: now}},
		{"end in the past", ledger.SurveyDefinition{Title: "T", Questions: []string{"Q"}, StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Hour)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.Ledger.CreateSurvey(testutil.Creator, tc.def)
			require.Error(t, err)
			require.True(t, ledger.IsValidation(err), "want ValidationError, got %v", err)
		})
	}

	// No partial state retained.
	require.Zero(t, h.Ledger.SurveyCount())
}

func TestCreateSurveysBatchIsAtomic(t *testing.T) {
	h := testutil.NewHarness(t)

	good := h.Definition("good", "Q1")
	bad := h.Definition("", "Q1")

	_, err := h.Ledger.CreateSurveys(testutil.Creator, []ledger.SurveyDefinition{good, bad})
	require.True(t, ledger.IsValidation(err))
	require.Zero(t, h.Ledger.SurveyCount())

	ids, err := h.Ledger.CreateSurveys(testutil.Creator, []ledger.SurveyDefinition{
		h.Definition("a", "Q1"),
		h.Definition("b", "Q1"),
		h.Definition("c", "Q1"),
	})
	require.NoError(t, err)
	require.Equal(t, []ledger.SurveyID{0, 1, 2}, ids)
}

func TestCreateSurveysBatchSizeBounds(t *testing.T) {
	h := testutil.NewHarness(t)

	_, err := h.Ledger.CreateSurveys(testutil.Creator, nil)
	require.True(t, ledger.IsValidation(err))

	six := make([]ledger.SurveyDefinition, 6)
	for i := range six {
		six[i] = h.Definition("s", "Q1")
	}
	_, err = h.Ledger.CreateSurveys(testutil.Creator, six)
	require.True(t, ledger.IsValidation(err))
}

func TestSurveyStats(t *testing.T) {
	h := testutil.NewHarness(t)
	id := h.CreateSurvey(t, "T", "Q1", "Q2")

	stats, err := h.Ledger.SurveyStats(id)
	require.NoError(t, err)
	require.True(t, stats.IsActive)
	require.Equal(t, 24*time.Hour, stats.TimeRemaining)
	require.Equal(t, 2, stats.QuestionCount)
	require.Zero(t, stats.ResponseCount)

	h.Clock.Advance(25 * time.Hour)
	stats, err = h.Ledger.SurveyStats(id)
	require.NoError(t, err)
	require.False(t, stats.IsActive)
	require.Zero(t, stats.TimeRemaining)
}

func TestSurveyLookupUnknown(t *testing.T) {
	h := testutil.NewHarness(t)

	_, err := h.Ledger.Survey(99)
	require.True(t, ledger.IsNotFound(err))

	_, err = h.Ledger.SurveyStats(99)
	require.True(t, ledger.IsNotFound(err))

	_, err = h.Ledger.SurveyCreator(99)
	require.True(t, ledger.IsNotFound(err))

	require.True(t, ledger.IsNotFound(h.Ledger.EmergencyPause(99, testutil.Creator)))
}

func TestEmergencyPauseCreatorOnly(t *testing.T) {
	h := testutil.NewHarness(t)
	id := h.CreateSurvey(t, "T", "Q1")

	err := h.Ledger.EmergencyPause(id, testutil.Mallory)
	require.True(t, ledger.IsAuthorization(err))

	require.NoError(t, h.Ledger.EmergencyPause(id, testutil.Creator))

	s, err := h.Ledger.Survey(id)
	require.NoError(t, err)
	require.True(t, s.Paused)
	require.False(t, s.EndTime.After(h.Clock.Now()))

	stats, err := h.Ledger.SurveyStats(id)
	require.NoError(t, err)
	require.False(t, stats.IsActive)
}

func TestSurveyCreatedEvents(t *testing.T) {
	h := testutil.NewHarness(t)
	events := h.Ledger.Notifier().Subscribe(8)

	id := h.CreateSurvey(t, "T", "Q1", "Q2")

	ev := <-events
	require.Equal(t, ledger.EventSurveyCreated, ev.Type)
	require.Equal(t, id, ev.SurveyID)
	require.Equal(t, "T", ev.Title)
	require.Equal(t, testutil.Creator, ev.Creator)
	require.Equal(t, 2, ev.QuestionCount)
}
