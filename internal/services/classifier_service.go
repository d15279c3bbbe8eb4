package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"paranotes/internal/models"
	"paranotes/internal/utils"
)

const (
	// NoRelevantNotesMessage is returned when there is nothing to answer from
	NoRelevantNotesMessage = "I couldn't find any relevant open notes for that."

	// AnswerErrorMessage is returned when the model could not produce an answer
	AnswerErrorMessage = "Sorry, I couldn't put an answer together right now. Please try again in a bit."
)

// Classifier decides what an inbound message is and answers questions from notes.
// Neither method fails: errors resolve to a fallback classification or a canned reply.
type Classifier interface {
	Classify(ctx context.Context, text string) models.Classification
	Answer(ctx context.Context, question string, notes []models.NoteSummary) string
}

// ClassifierService classifies messages with an LLM
type ClassifierService struct {
	llm       *LLMClient
	threshold float64
	timeout   time.Duration
	metrics   *Metrics
}

// NewClassifierService creates a classifier. Notes below threshold confidence are filed in Inbox.
func NewClassifierService(llm *LLMClient, threshold float64, timeout time.Duration, metrics *Metrics) *ClassifierService {
	return &ClassifierService{
		llm:       llm,
		threshold: threshold,
		timeout:   timeout,
		metrics:   metrics,
	}
}

// ClassifierSystemPrompt instructs the model on intents and the PARA taxonomy
const ClassifierSystemPrompt = `You sort messages a person posts into their personal notes channel.

Decide the intent:
- "note": something worth keeping (a task, idea, reference, reminder, link, fact about their life)
- "question": the person is asking about things they saved earlier
- "noise": greetings, thanks, acknowledgements, chatter with nothing to keep

For notes pick one PARA category:
- Projects: short-term efforts with a goal or deadline
- Areas: ongoing responsibilities. Also pick a subcategory: Relationships, Health, Finances, Career or Home
- Resources: reference material, links, topics of interest
- Archive: finished or inactive things worth keeping
- Inbox: unclear where it belongs

Report confidence between 0 and 1. If the note implies a concrete next step, put it in next_action as a short imperative sentence, otherwise use an empty string.
Set is_meaningful to false for noise. Use an empty string for fields that do not apply.`

var classificationSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"intent": map[string]interface{}{
			"type": "string",
			"enum": []string{"note", "question", "noise"},
		},
		"is_meaningful": map[string]interface{}{"type": "boolean"},
		"category": map[string]interface{}{
			"type": "string",
			"enum": []string{"Projects", "Areas", "Resources", "Archive", "Inbox", ""},
		},
		"subcategory": map[string]interface{}{
			"type": "string",
			"enum": []string{"Relationships", "Health", "Finances", "Career", "Home", ""},
		},
		"confidence":  map[string]interface{}{"type": "number"},
		"next_action": map[string]interface{}{"type": "string"},
		"reasoning":   map[string]interface{}{"type": "string"},
	},
	"required":             []string{"intent", "is_meaningful", "category", "subcategory", "confidence", "next_action", "reasoning"},
	"additionalProperties": false,
}

// rawClassification is the untyped model output, validated once by toClassification
type rawClassification struct {
	Intent       string   `json:"intent"`
	IsMeaningful *bool    `json:"is_meaningful"`
	Category     string   `json:"category"`
	Subcategory  string   `json:"subcategory"`
	Confidence   *float64 `json:"confidence"`
	NextAction   string   `json:"next_action"`
	Reasoning    string   `json:"reasoning"`
}

var errMalformedClassification = errors.New("malformed classification")

// Classify returns the message's classification, or the Uncategorized fallback on any failure
func (s *ClassifierService) Classify(ctx context.Context, text string) models.Classification {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.llm.Complete(ctx, []ChatMessage{
		{Role: "system", Content: ClassifierSystemPrompt},
		{Role: "user", Content: text},
	}, 0.1, "message_classification", classificationSchema)
	if err != nil {
		reason := "request"
		if ctx.Err() == context.DeadlineExceeded {
			reason = "timeout"
		}
		log.Printf("⚠️  [CLASSIFIER] Model call failed (%s): %v", reason, err)
		s.metrics.RecordClassifierError(reason)
		return models.FallbackClassification()
	}

	var raw rawClassification
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &raw); err != nil {
		log.Printf("⚠️  [CLASSIFIER] Unparseable model output (%d bytes): %v", len(content), err)
		s.metrics.RecordClassifierError("parse")
		return models.FallbackClassification()
	}

	c, err := toClassification(&raw, s.threshold)
	if err != nil {
		log.Printf("⚠️  [CLASSIFIER] Rejected model output: %v", err)
		s.metrics.RecordClassifierError("invalid")
		return models.FallbackClassification()
	}

	category := ""
	if note, ok := c.(models.NoteClassification); ok {
		category = string(note.Category)
		log.Printf("🏷️  [CLASSIFIER] note -> %s (confidence %.2f)", note.Category, note.Confidence)
	} else {
		log.Printf("🏷️  [CLASSIFIER] %s", c.Intent())
	}
	s.metrics.RecordClassification(string(c.Intent()), category, time.Since(start).Seconds())
	return c
}

// toClassification validates raw model output into the typed union.
// Low-confidence notes are moved to Inbox and lose their subcategory.
func toClassification(raw *rawClassification, threshold float64) (models.Classification, error) {
	intent := models.Intent(strings.ToLower(strings.TrimSpace(raw.Intent)))
	reasoning := strings.TrimSpace(raw.Reasoning)

	switch intent {
	case models.IntentNoise:
		return models.NoiseClassification{Reasoning: reasoning}, nil
	case models.IntentQuestion:
		return models.QuestionClassification{Reasoning: reasoning}, nil
	case models.IntentNote:
	default:
		return nil, fmt.Errorf("%w: unknown intent %q", errMalformedClassification, raw.Intent)
	}

	if raw.IsMeaningful != nil && !*raw.IsMeaningful {
		return models.NoiseClassification{Reasoning: reasoning}, nil
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("%w: missing confidence", errMalformedClassification)
	}

	category, ok := models.ParseCategory(raw.Category)
	if !ok {
		return nil, fmt.Errorf("%w: unknown category %q", errMalformedClassification, raw.Category)
	}

	note := models.NoteClassification{
		Category:   category,
		Confidence: models.ClampConfidence(*raw.Confidence),
		NextAction: strings.TrimSpace(raw.NextAction),
		Reasoning:  reasoning,
	}

	if note.Confidence < threshold {
		note.Category = models.CategoryInbox
		return note, nil
	}

	if category == models.CategoryAreas {
		sub, ok := models.ParseSubcategory(raw.Subcategory)
		if !ok {
			return nil, fmt.Errorf("%w: Areas without a valid subcategory %q", errMalformedClassification, raw.Subcategory)
		}
		note.Subcategory = sub
	}
	return note, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON output
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// AnswerSystemPrompt keeps answers grounded in the supplied notes
const AnswerSystemPrompt = `You answer questions using only the notes provided. If the notes do not contain the answer, say so plainly. Be brief. Mention links from the notes when they help. Do not invent notes or details.`

// Answer synthesizes a reply from notes. It never calls the model for an empty note list.
func (s *ClassifierService) Answer(ctx context.Context, question string, notes []models.NoteSummary) string {
	if len(notes) == 0 {
		return NoRelevantNotesMessage
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	answer, err := s.llm.Complete(ctx, []ChatMessage{
		{Role: "system", Content: AnswerSystemPrompt},
		{Role: "user", Content: buildAnswerPrompt(question, notes)},
	}, 0.3, "", nil)
	if err != nil {
		log.Printf("⚠️  [QA] Answer generation failed: %v", err)
		s.metrics.RecordClassifierError("answer")
		return AnswerErrorMessage
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return AnswerErrorMessage
	}
	return answer
}

func buildAnswerPrompt(question string, notes []models.NoteSummary) string {
	var b strings.Builder
	b.WriteString("NOTES:\n")
	for i, n := range notes {
		fmt.Fprintf(&b, "%d. [%s", i+1, n.Category)
		if n.Subcategory != models.SubcategoryNone {
			fmt.Fprintf(&b, "/%s", n.Subcategory)
		}
		fmt.Fprintf(&b, "] %s\n", n.Content)
		if n.NextAction != "" {
			fmt.Fprintf(&b, "   Next action: %s\n", n.NextAction)
		}
		if len(n.URLs) > 0 {
			fmt.Fprintf(&b, "   Links: %s\n", strings.Join(n.URLs, " "))
		}
		fmt.Fprintf(&b, "   Saved: %s\n", n.CreatedAt.Format("2006-01-02"))
	}
	b.WriteString("\nQUESTION:\n")
	b.WriteString(utils.TruncateText(question, 2000))
	return b.String()
}
