package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
	"github.com/spec-kit/mail-helpdesk/pkg/util"
)

func TestParseClassification(t *testing.T) {
	cls, err := parseClassification(`{
		"intent": "bank_statement",
		"confidence": 0.93,
		"entities": {"months": "3"},
		"reasoning": "asks for statements"
	}`)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentBankStatement, cls.Intent)
	assert.InDelta(t, 0.93, cls.Confidence, 1e-9)
	assert.Equal(t, "3", cls.Entities["months"])
}

func TestParseClassificationStripsCodeFence(t *testing.T) {
	cls, err := parseClassification("```json\n{\"intent\":\"general_query\",\"confidence\":0.8}\n```")
	require.NoError(t, err)
	assert.Equal(t, domain.IntentGeneralQuery, cls.Intent)
}

func TestParseClassificationRejectsGarbage(t *testing.T) {
	_, err := parseClassification("I think this is about statements")
	require.Error(t, err)
	assert.Equal(t, util.KindPermanent, util.KindOf(err), "bad model output must not be retried")
}

func TestParseClassificationRequiresIntent(t *testing.T) {
	_, err := parseClassification(`{"confidence": 0.5}`)
	require.Error(t, err)
	assert.Equal(t, util.KindPermanent, util.KindOf(err))
}

func TestClassificationPromptIncludesHistory(t *testing.T) {
	prompt := classificationPrompt(domain.ParsedMessage{
		Sender:  "alice@example.com",
		Subject: "statements",
		Body:    "please send them",
	}, []domain.Turn{
		{Direction: domain.TurnIncoming, Body: "first ask"},
		{Direction: domain.TurnOutgoing, Body: "our reply"},
	})

	assert.True(t, strings.Contains(prompt, "alice@example.com"))
	assert.True(t, strings.Contains(prompt, "customer: first ask"))
	assert.True(t, strings.Contains(prompt, "helpdesk: our reply"))
	assert.True(t, strings.Contains(prompt, "bank_statement"))
}
