package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StampsKindAndID(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	env, err := New("q-1", AnswerCountChanged{NewCount: 3}, now)
	require.NoError(t, err)

	assert.Equal(t, KindAnswerCountChanged, env.Kind)
	assert.Equal(t, "q-1", env.QuestionID)
	assert.NotEqual(t, [16]byte{}, [16]byte(env.ID))
	assert.Equal(t, now, env.OccurredAt)
	assert.JSONEq(t, `{"new_count":3}`, string(env.Payload))
}

func TestNew_RequiresQuestionID(t *testing.T) {
	_, err := New("", QuestionDeleted{}, time.Now())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_DispatchesOnKind(t *testing.T) {
	created := QuestionCreated{
		Title:     "T",
		Content:   "<p>Hi</p>",
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Tags:      []string{"go"},
	}
	env, err := New("q-1", created, time.Now())
	require.NoError(t, err)
	env.Sequence = 42

	data, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, int64(42), decoded.Sequence)

	payload, err := decoded.DecodePayload()
	require.NoError(t, err)
	got, ok := payload.(QuestionCreated)
	require.True(t, ok, "expected QuestionCreated, got %T", payload)
	assert.Equal(t, created, got)
}

func TestDecode_RejectsUnknownKind(t *testing.T) {
	data, _ := json.Marshal(map[string]any{
		"kind":        "question.exploded",
		"question_id": "q-1",
	})
	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_RequiresQuestionID(t *testing.T) {
	data, _ := json.Marshal(map[string]any{"kind": KindQuestionDeleted})
	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodePayload_MalformedVariant(t *testing.T) {
	env := Envelope{Kind: KindQuestionUpdated, QuestionID: "q-1", Payload: json.RawMessage(`{"tags":"nope"}`)}
	_, err := env.DecodePayload()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestKind_Valid(t *testing.T) {
	for _, k := range AllKinds() {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, Kind("").Valid())
}
