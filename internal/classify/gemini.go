package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/spec-kit/mail-helpdesk/internal/domain"
	"github.com/spec-kit/mail-helpdesk/internal/knowledge"
	"github.com/spec-kit/mail-helpdesk/pkg/util"
)

const defaultModel = "gemini-2.0-flash"

// GeminiClassifier implements Classifier and Responder on the Gemini API.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier builds the adapter.
func NewGeminiClassifier(ctx context.Context, apiKey, model string) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("classifier API key is required")
	}
	if model == "" {
		model = defaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClassifier{client: client, model: model}, nil
}

func (c *GeminiClassifier) Classify(ctx context.Context, msg domain.ParsedMessage, recent []domain.Turn) (domain.Classification, error) {
	prompt := classificationPrompt(msg, recent)

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0.1),
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		// The SDK surfaces transport and quota problems here; both are
		// worth a retry.
		return domain.Classification{}, util.NewTransient("CLASSIFIER_UNAVAILABLE", "classification call failed", err)
	}

	return parseClassification(resp.Text())
}

func (c *GeminiClassifier) Respond(ctx context.Context, question string, docs []knowledge.Document, recent []domain.Turn) (string, error) {
	prompt := responsePrompt(question, docs, recent)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", util.NewTransient("CLASSIFIER_UNAVAILABLE", "response generation failed", err)
	}
	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", util.NewPermanent("EMPTY_RESPONSE", "model returned no answer", nil)
	}
	return answer, nil
}

// classificationVerdict is the JSON shape the model is instructed to emit.
type classificationVerdict struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
	Reasoning  string            `json:"reasoning"`
}

// parseClassification decodes the model's verdict. Unparseable output is
// permanent: the router will take the fallback path instead of burning
// retries on a confused model.
func parseClassification(text string) (domain.Classification, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var verdict classificationVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &verdict); err != nil {
		return domain.Classification{}, util.NewPermanent("CLASSIFIER_BAD_OUTPUT", "unparseable classification", err)
	}
	if verdict.Intent == "" {
		return domain.Classification{}, util.NewPermanent("CLASSIFIER_BAD_OUTPUT", "classification missing intent", nil)
	}
	return domain.Classification{
		Intent:     domain.Intent(verdict.Intent),
		Confidence: verdict.Confidence,
		Entities:   verdict.Entities,
		Reasoning:  verdict.Reasoning,
	}, nil
}

func classificationPrompt(msg domain.ParsedMessage, recent []domain.Turn) string {
	var b strings.Builder
	b.WriteString("You classify customer support emails into exactly one intent.\n\n")
	fmt.Fprintf(&b, "Email from: %s\nSubject: %s\nEmail content:\n%s\n\n", msg.Sender, msg.Subject, msg.Body)

	if len(recent) > 0 {
		b.WriteString("Previous conversation:\n")
		b.WriteString(renderTurns(recent))
		b.WriteString("\n")
	}

	b.WriteString(`Intents:
1. bank_statement - customer requests bank statements (entity: months)
2. password_update - customer wants a password change (never extract credentials)
3. general_query - questions about products or services (entities: topic, specific_question)
4. urgent_human - urgent issue needing immediate human attention (entities: urgency_level, issue_type)
5. fallback_human - complex issue needing human review (entity: complexity_reason)

Respond with JSON only:
{"intent": "...", "confidence": 0.0, "entities": {"key": "value"}, "reasoning": "..."}
`)
	return b.String()
}

func responsePrompt(question string, docs []knowledge.Document, recent []domain.Turn) string {
	var b strings.Builder
	b.WriteString("You are a helpful customer support assistant. Answer based only on the context below; if the context is insufficient, say so and suggest contacting support.\n\n")
	fmt.Fprintf(&b, "Customer question: %s\n\n", question)

	b.WriteString("Knowledge base context:\n")
	for i, doc := range docs {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, doc.Title, doc.Content)
	}

	if len(recent) > 0 {
		b.WriteString("Previous conversation:\n")
		b.WriteString(renderTurns(recent))
		b.WriteString("\n")
	}

	b.WriteString("Cite context entries by their [n] marker. Response:\n")
	return b.String()
}

func renderTurns(turns []domain.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		role := "customer"
		if turn.Direction == domain.TurnOutgoing {
			role = "helpdesk"
		}
		fmt.Fprintf(&b, "- %s: %s\n", role, turn.Body)
	}
	return b.String()
}
