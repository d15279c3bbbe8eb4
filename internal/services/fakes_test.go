package services

import (
	"context"
	"errors"
	"sync"

	"paranotes/internal/models"
)

var errChatDown = errors.New("chat unavailable")

// stubClassifier returns canned classifications keyed by message text
type stubClassifier struct {
	mu       sync.Mutex
	byText   map[string]models.Classification
	classify int
	answers  []stubAnswer
}

type stubAnswer struct {
	question string
	notes    []models.NoteSummary
}

func newStubClassifier() *stubClassifier {
	return &stubClassifier{byText: map[string]models.Classification{}}
}

func (c *stubClassifier) on(text string, cl models.Classification) *stubClassifier {
	c.byText[text] = cl
	return c
}

func (c *stubClassifier) Classify(ctx context.Context, text string) models.Classification {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.classify++
	if cl, ok := c.byText[text]; ok {
		return cl
	}
	return models.FallbackClassification()
}

func (c *stubClassifier) Answer(ctx context.Context, question string, notes []models.NoteSummary) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(notes) == 0 {
		return NoRelevantNotesMessage
	}
	c.answers = append(c.answers, stubAnswer{question: question, notes: notes})
	return "**From your notes:** " + notes[0].Title
}

type chatReaction struct {
	channel, ts, name string
}

type chatReply struct {
	channel, threadTS, text string
}

// recordingChat captures outbound chat calls and can fail on demand
type recordingChat struct {
	mu        sync.Mutex
	added     []chatReaction
	removed   []chatReaction
	replies   []chatReply
	messages  map[string]string
	failPosts map[string]bool
	fetchErr  error
}

func newRecordingChat() *recordingChat {
	return &recordingChat{messages: map[string]string{}, failPosts: map[string]bool{}}
}

func (c *recordingChat) AddReaction(ctx context.Context, channel, ts, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.added = append(c.added, chatReaction{channel, ts, name})
	return nil
}

func (c *recordingChat) RemoveReaction(ctx context.Context, channel, ts, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, chatReaction{channel, ts, name})
	return nil
}

func (c *recordingChat) PostThreadReply(ctx context.Context, channel, threadTS, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failPosts[threadTS] {
		return errChatDown
	}
	c.replies = append(c.replies, chatReply{channel, threadTS, text})
	return nil
}

func (c *recordingChat) FetchMessageText(ctx context.Context, channel, ts string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return "", c.fetchErr
	}
	return c.messages[ts], nil
}

func (c *recordingChat) repliesTo(threadTS string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, r := range c.replies {
		if r.threadTS == threadTS {
			out = append(out, r.text)
		}
	}
	return out
}

var testReactions = Reactions{Done: "white_check_mark", Delete: "x", Ack: "brain"}

func projectNote(confidence float64, action string) models.NoteClassification {
	return models.NoteClassification{
		Category:   models.CategoryProjects,
		Confidence: confidence,
		NextAction: action,
		Reasoning:  "task",
	}
}
