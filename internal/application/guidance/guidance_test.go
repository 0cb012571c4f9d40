package guidance

import (
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

func TestDefault_LoadsEmbeddedCatalogs(t *testing.T) {
	g := Default()
	tags := g.Tags()
	require.Len(t, tags, 2)
	assert.Equal(t, language.English, tags[0])
}

func TestMatch(t *testing.T) {
	g := Default()
	assert.Equal(t, language.Russian, g.Match("ru-RU,ru;q=0.9,en;q=0.5"))
	assert.Equal(t, language.Russian, g.Match("ru"))
	assert.Equal(t, language.English, g.Match("de-DE"))
	assert.Equal(t, language.English, g.Match(""))
}

func TestForDecision(t *testing.T) {
	g := Default()
	due := time.Date(2026, 6, 30, 23, 59, 0, 0, time.UTC)
	event := &schedule.SchedulingEvent{ID: "sub-1", Title: "Spring submission", DueDate: due}
	window := shared.TimeRange{From: due.AddDate(0, 0, -14), To: due}

	msg := g.ForDecision(language.English, schedule.CategorySubmission,
		eligibility.Decision{Allowed: true, Window: window}, event)
	assert.Equal(t, "You can submit for Spring submission until 2026-06-30 23:59.", msg)

	msg = g.ForDecision(language.English, schedule.CategorySubmission,
		eligibility.Decision{Reason: eligibility.ReasonWindowNotOpenYet, Window: window}, event)
	assert.Equal(t, "The window for Spring submission opens on 2026-06-16 23:59.", msg)

	msg = g.ForDecision(language.English, schedule.CategoryResubmission,
		eligibility.Decision{Reason: eligibility.ReasonNoActiveEvent}, nil)
	assert.Equal(t, "There is no open resubmission deadline right now.", msg)

	msg = g.ForDecision(language.Russian, schedule.CategorySubmission,
		eligibility.Decision{Reason: eligibility.ReasonWindowClosed, Window: window}, event)
	assert.Contains(t, msg, "закрылось")
}

func TestForError(t *testing.T) {
	g := Default()

	assert.Equal(t, "We could not find that thesis or version.", g.ForError(language.English, shared.ErrThesisNotFound))
	assert.Equal(t, "This action is not available in the thesis's current state.",
		g.ForError(language.English, &thesis.TransitionError{From: thesis.StatusApproved, Op: thesis.OpSubmit}))
	assert.Contains(t, g.ForError(language.English, &eligibility.DeniedError{Reason: eligibility.ReasonStorageNotReady}), "not ready")
	assert.Equal(t, "Something went wrong. The problem has been logged.", g.ForError(language.English, errors.New("boom")))
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{shared.ErrThesisNotFound, "not_found"},
		{shared.ErrVersionNotFound, "not_found"},
		{&thesis.TransitionError{From: thesis.StatusApproved, Op: thesis.OpApprove}, "invalid_transition"},
		{&eligibility.DeniedError{Reason: eligibility.ReasonWindowClosed}, "eligibility_denied"},
		{shared.ErrInvalidVersionSequence, "internal"},
		{shared.ErrStaleRevision, "conflict"},
		{shared.ErrLineageLocked, "conflict"},
		{shared.ErrMissingActor, "invalid_input"},
		{shared.ErrEventUnavailable, "unavailable"},
		{shared.NewDomainError("thesis", "Approve", shared.ErrForbidden, "no"), "forbidden"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KeyFor(tt.err), tt.err.Error())
	}
}

func TestLoad_RejectsIncompleteLocale(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/en/guidance.yaml": {Data: []byte("locale: en\nmessages:\n  a: A\n  b: B\n")},
		"locales/ru/guidance.yaml": {Data: []byte("locale: ru\nmessages:\n  a: А\n")},
	}
	_, err := Load(fsys)
	assert.ErrorContains(t, err, `missing key "b"`)

	fsys["locales/kk/guidance.yaml"] = &fstest.MapFile{Data: []byte("locale: ru\nmessages:\n  a: A\n")}
	_, err = Load(fsys)
	assert.Error(t, err)
}
