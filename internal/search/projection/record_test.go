package projection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overflow/pkg/events"
	"overflow/pkg/testutil"
)

var created = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type step struct {
	env     events.Envelope
	payload events.Payload
}

func mkStep(t *testing.T, seq int64, p events.Payload) step {
	t.Helper()
	env, err := events.New("q-1", p, created)
	require.NoError(t, err)
	env.Sequence = seq
	return step{env: env, payload: p}
}

func lifecycle(t *testing.T) []step {
	return []step{
		mkStep(t, 1, events.QuestionCreated{Title: "T", Content: "Hi", CreatedAt: created, Tags: []string{"go"}}),
		mkStep(t, 2, events.QuestionUpdated{Title: "T2", Content: "Hello", Tags: []string{"go", "rust"}}),
		mkStep(t, 3, events.AnswerCountChanged{NewCount: 1}),
		mkStep(t, 4, events.AnswerAccepted{}),
		mkStep(t, 5, events.AnswerCountChanged{NewCount: 2}),
	}
}

func fold(steps []step) Record {
	rec := Record{ID: "q-1"}
	for _, s := range steps {
		rec.Apply(s.env, s.payload)
	}
	return rec
}

func permutations(steps []step) [][]step {
	if len(steps) <= 1 {
		return [][]step{append([]step(nil), steps...)}
	}
	var out [][]step
	for i := range steps {
		rest := make([]step, 0, len(steps)-1)
		rest = append(rest, steps[:i]...)
		rest = append(rest, steps[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]step{steps[i]}, p...))
		}
	}
	return out
}

func TestApply_OrderIndependence(t *testing.T) {
	steps := lifecycle(t)
	want := fold(steps)

	require.True(t, want.Searchable())
	assert.Equal(t, "T2", want.Title)
	assert.Equal(t, []string{"go", "rust"}, want.Tags)
	assert.Equal(t, created, want.CreatedAt)
	assert.Equal(t, 2, want.AnswerCount)
	assert.True(t, want.HasAcceptedAnswer)

	for _, perm := range permutations(steps) {
		assert.Equal(t, want, fold(perm))
	}
}

func TestApply_DuplicatesAreNoOps(t *testing.T) {
	steps := lifecycle(t)
	want := fold(steps)

	doubled := append(append([]step(nil), steps...), steps...)
	assert.Equal(t, want, fold(doubled))

	rec := fold(steps)
	for _, s := range steps {
		assert.False(t, rec.Apply(s.env, s.payload), "redelivered %s changed the record", s.env.Kind)
	}
}

func TestApply_DeleteWins(t *testing.T) {
	steps := append(lifecycle(t), mkStep(t, 6, events.QuestionDeleted{}))
	want := Record{ID: "q-1", Deleted: true, DeletedVersion: 6}

	for _, perm := range permutations(steps) {
		got := fold(perm)
		assert.Equal(t, want, got)
		assert.False(t, got.Searchable())
	}
}

func TestApply_PartialEventsBeforeCreate(t *testing.T) {
	testutil.Given(t, "a count change arrives before the question", func(t *testing.T) {
		steps := lifecycle(t)
		rec := Record{ID: "q-1"}
		assert.True(t, rec.Apply(steps[2].env, steps[2].payload))

		testutil.Then(t, "the record is not yet searchable", func(t *testing.T) {
			assert.False(t, rec.Searchable())
			assert.Equal(t, 1, rec.AnswerCount)
		})

		testutil.When(t, "the create arrives", func(t *testing.T) {
			rec.Apply(steps[0].env, steps[0].payload)

			testutil.Then(t, "content and the earlier count are both kept", func(t *testing.T) {
				assert.True(t, rec.Searchable())
				assert.Equal(t, "T", rec.Title)
				assert.Equal(t, 1, rec.AnswerCount)
			})
		})
	})
}

func TestApply_UpdateBeforeCreateKeepsNewerContent(t *testing.T) {
	steps := lifecycle(t)
	rec := Record{ID: "q-1"}
	rec.Apply(steps[1].env, steps[1].payload)
	rec.Apply(steps[0].env, steps[0].payload)

	assert.Equal(t, "T2", rec.Title)
	assert.Equal(t, created, rec.CreatedAt)
	assert.Equal(t, int64(2), rec.ContentVersion)
}

func TestApply_DispatchesOnEnvelopeKind(t *testing.T) {
	steps := lifecycle(t)

	t.Run("payload not matching its kind is ignored", func(t *testing.T) {
		rec := Record{ID: "q-1"}
		env := steps[0].env
		env.Kind = events.KindQuestionDeleted
		assert.False(t, rec.Apply(env, steps[0].payload))
		assert.False(t, rec.Deleted)
		assert.Zero(t, rec.ContentVersion)
	})

	t.Run("unknown kind is ignored", func(t *testing.T) {
		rec := fold(steps)
		before := rec
		env := steps[2].env
		env.Kind = "question.renamed"
		env.Sequence = 99
		assert.False(t, rec.Apply(env, events.AnswerCountChanged{NewCount: 7}))
		assert.Equal(t, before, rec)
	})
}
