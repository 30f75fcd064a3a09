package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tribunal/internal/schema"
)

// mockProvider returns canned responses in order and records prompts.
type mockProvider struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
}

func (m *mockProvider) Complete(_ context.Context, _, userPrompt string, _ int, _ float64) (string, error) {
	i := m.calls
	m.calls++
	m.prompts = append(m.prompts, userPrompt)
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	return "", fmt.Errorf("mock: no response for call %d", i)
}

func validOpinionJSON() string {
	return `{"judge":"ARBITER","criterion_id":"graph_architecture","score":4,"argument":"Fan-out verified.","cited_evidence":["graph_architecture"]}`
}

func TestNewProvider_Mockable(t *testing.T) {
	orig := NewProvider
	t.Cleanup(func() { NewProvider = orig })

	mock := &mockProvider{responses: []string{validOpinionJSON()}}
	NewProvider = func(providerName, model string) (Provider, error) {
		return mock, nil
	}

	p, err := NewProvider("anthropic", "test-model")
	require.NoError(t, err)

	out, err := p.Complete(context.Background(), "sys", "user", 100, 0.2)
	require.NoError(t, err)
	assert.Equal(t, validOpinionJSON(), out)
}

func TestRequestOpinion_ValidFirstTry(t *testing.T) {
	mock := &mockProvider{responses: []string{validOpinionJSON()}}

	opinion, err := RequestOpinion(context.Background(), mock, "sys", "user", Options{MaxTokens: 1024})
	require.NoError(t, err)

	want := schema.Opinion{
		Judge:         schema.RoleArbiter,
		CriterionID:   "graph_architecture",
		Score:         4,
		Argument:      "Fan-out verified.",
		CitedEvidence: []string{"graph_architecture"},
	}
	if diff := cmp.Diff(want, opinion); diff != "" {
		t.Errorf("opinion mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, mock.calls, "no repair attempt for a valid response")
}

func TestRequestOpinion_RepairSucceeds(t *testing.T) {
	mock := &mockProvider{responses: []string{"this is not json", validOpinionJSON()}}

	opinion, err := RequestOpinion(context.Background(), mock, "sys", "user", Options{MaxTokens: 1024})
	require.NoError(t, err)
	assert.Equal(t, schema.RoleArbiter, opinion.Judge)
	assert.Equal(t, 2, mock.calls)
	assert.Contains(t, mock.prompts[1], "this is not json", "repair prompt includes the invalid response")
}

func TestRequestOpinion_RepairFails(t *testing.T) {
	mock := &mockProvider{responses: []string{"garbage", "more garbage"}}

	_, err := RequestOpinion(context.Background(), mock, "sys", "user", Options{MaxTokens: 1024})
	require.ErrorIs(t, err, ErrInvalidModelOutput)
	assert.Equal(t, 2, mock.calls, "exactly one repair attempt")
}

func TestRequestOpinion_ProviderError(t *testing.T) {
	boom := errors.New("boom")
	mock := &mockProvider{errs: []error{boom}}

	_, err := RequestOpinion(context.Background(), mock, "sys", "user", Options{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, mock.calls, "no repair after a transport error")
}

func TestValidateOpinion_StripsFences(t *testing.T) {
	fenced := "```json\n" + validOpinionJSON() + "\n```"

	opinion, errs := ValidateOpinion(fenced)
	require.Empty(t, errs)
	assert.Equal(t, "graph_architecture", opinion.CriterionID)
}

func TestValidateOpinion_FixesInvalidEscapes(t *testing.T) {
	raw := `{"judge":"ADVOCATE","criterion_id":"tool_safety","score":5,"argument":"matches \d+ pattern"}`

	opinion, errs := ValidateOpinion(raw)
	require.Empty(t, errs)
	assert.Equal(t, `matches \d+ pattern`, opinion.Argument)
}

func TestValidateOpinion_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		field   string
		message string
	}{
		{"not json", "hello", "json_parse", "invalid character"},
		{"bad role", `{"judge":"JUROR","criterion_id":"a","score":3}`, "opinion", "judge role"},
		{"missing criterion", `{"judge":"ARBITER","score":3}`, "opinion", "criterion_id"},
		{"score too low", `{"judge":"ARBITER","criterion_id":"a","score":0}`, "opinion", "score 0"},
		{"score too high", `{"judge":"ARBITER","criterion_id":"a","score":6}`, "opinion", "score 6"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, errs := ValidateOpinion(tc.raw)
			require.NotEmpty(t, errs)
			assert.Equal(t, tc.field, errs[0].Field)
			assert.Contains(t, errs[0].Message, tc.message)
		})
	}
}

func TestStripMarkdownFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced with tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no tag", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"tildes", "~~~\n{\"a\":1}\n~~~", `{"a":1}`},
		{"orphan open fence", "```json\n{\"a\":1}", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stripMarkdownFences(tc.in))
		})
	}
}
