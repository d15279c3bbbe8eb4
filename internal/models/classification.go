package models

// Intent is the classifier's top-level decision for an inbound message
type Intent string

const (
	IntentNote     Intent = "note"
	IntentQuestion Intent = "question"
	IntentNoise    Intent = "noise"
)

// FallbackReasoning is attached to the classification returned when the model call fails
const FallbackReasoning = "classification unavailable, stored as Uncategorized"

// Classification is the validated classifier result. Exactly one of
// NoteClassification, QuestionClassification or NoiseClassification.
type Classification interface {
	Intent() Intent
	IsMeaningful() bool
	Reason() string
}

// NoteClassification describes a message worth storing
type NoteClassification struct {
	Category    Category
	Subcategory Subcategory
	Confidence  float64
	NextAction  string
	Reasoning   string

	// Fallback is set when the model could not be reached or returned garbage
	Fallback bool
}

func (NoteClassification) Intent() Intent     { return IntentNote }
func (NoteClassification) IsMeaningful() bool { return true }
func (c NoteClassification) Reason() string   { return c.Reasoning }

// QuestionClassification describes a message asking about stored notes
type QuestionClassification struct {
	Reasoning string
}

func (QuestionClassification) Intent() Intent     { return IntentQuestion }
func (QuestionClassification) IsMeaningful() bool { return true }
func (c QuestionClassification) Reason() string   { return c.Reasoning }

// Confidence is always 1 for questions
func (QuestionClassification) Confidence() float64 { return 1.0 }

// NoiseClassification describes chatter that should be dropped
type NoiseClassification struct {
	Reasoning string
}

func (NoiseClassification) Intent() Intent     { return IntentNoise }
func (NoiseClassification) IsMeaningful() bool { return false }
func (c NoiseClassification) Reason() string   { return c.Reasoning }

// FallbackClassification is returned whenever the upstream model fails
func FallbackClassification() NoteClassification {
	return NoteClassification{
		Category:   CategoryUncategorized,
		Confidence: 0,
		Reasoning:  FallbackReasoning,
		Fallback:   true,
	}
}

// ToNoteFields turns a note classification into creation input for a message
func (c NoteClassification) ToNoteFields(externalID, channelID, content string, urls []string) *NoteFields {
	return &NoteFields{
		ExternalMessageID: externalID,
		ChannelID:         channelID,
		Content:           content,
		Category:          c.Category,
		Subcategory:       c.Subcategory,
		Confidence:        c.Confidence,
		NextAction:        c.NextAction,
		URLs:              urls,
	}
}
