package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultWithQuery(alias string, rows []map[string]any) *Result {
	r := NewResult()
	r.AddStep(alias, StepOutcome{Value: map[string]any{"chat.Message": rows}})
	return r
}

func TestEvalAssertionQueryResultCount(t *testing.T) {
	rows := []map[string]any{{"id": "1"}, {"id": "2"}}
	result := resultWithQuery("q", rows)

	err := evalAssertion(result, Assertion{Type: AssertQueryResultCount, Step: "q", Entity: "chat.Message", Count: 2})
	require.NoError(t, err)

	err = evalAssertion(result, Assertion{Type: AssertQueryResultCount, Step: "q", Entity: "chat.Message", Count: 3})
	require.Error(t, err)
}

func TestEvalAssertionQueryResultEmpty(t *testing.T) {
	result := resultWithQuery("q", nil)
	require.NoError(t, evalAssertion(result, Assertion{Type: AssertQueryResultEmpty, Step: "q", Entity: "chat.Message"}))

	nonEmpty := resultWithQuery("q", []map[string]any{{"id": "1"}})
	require.Error(t, evalAssertion(nonEmpty, Assertion{Type: AssertQueryResultEmpty, Step: "q", Entity: "chat.Message"}))
}

func TestEvalAssertionQueryFieldEquals(t *testing.T) {
	rows := []map[string]any{{"content": "hi"}, {"content": "there"}}
	result := resultWithQuery("q", rows)

	require.NoError(t, evalAssertion(result, Assertion{
		Type: AssertQueryFieldEquals, Step: "q", Entity: "chat.Message", Index: 1, Field: "content", Equals: "there",
	}))

	err := evalAssertion(result, Assertion{
		Type: AssertQueryFieldEquals, Step: "q", Entity: "chat.Message", Index: 0, Field: "content", Equals: "nope",
	})
	require.Error(t, err)
}

func TestEvalAssertionQueryFieldEqualsIndexOutOfRange(t *testing.T) {
	result := resultWithQuery("q", []map[string]any{{"content": "hi"}})
	err := evalAssertion(result, Assertion{
		Type: AssertQueryFieldEquals, Step: "q", Entity: "chat.Message", Index: 5, Field: "content", Equals: "hi",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestEvalAssertionStepSucceededAndFailed(t *testing.T) {
	result := NewResult()
	result.AddStep("ok", StepOutcome{})
	result.AddStep("bad", StepOutcome{Err: errors.New("boom")})

	require.NoError(t, evalAssertion(result, Assertion{Type: AssertStepSucceeded, Step: "ok"}))
	require.Error(t, evalAssertion(result, Assertion{Type: AssertStepSucceeded, Step: "bad"}))

	require.NoError(t, evalAssertion(result, Assertion{Type: AssertStepFailed, Step: "bad"}))
	require.Error(t, evalAssertion(result, Assertion{Type: AssertStepFailed, Step: "ok"}))
}

func TestEvalAssertionUnknownStepLabel(t *testing.T) {
	result := NewResult()
	err := evalAssertion(result, Assertion{Type: AssertStepSucceeded, Step: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no step labeled")
}

func TestEvalAssertionUnknownType(t *testing.T) {
	result := NewResult()
	result.AddStep("x", StepOutcome{})
	err := evalAssertion(result, Assertion{Type: "not_a_real_assertion", Step: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown assertion type")
}

func TestQueryRowsRejectsNonQueryStep(t *testing.T) {
	result := NewResult()
	result.AddStep("mutate_step", StepOutcome{Value: map[string]string{"msg": "row-id"}})

	_, err := queryRows(result, "mutate_step", "chat.Message")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not produce a query result")
}
