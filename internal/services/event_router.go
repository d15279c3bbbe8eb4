package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"paranotes/internal/logging"
	"paranotes/internal/models"
	"paranotes/internal/utils"
)

// Outcome is the terminal branch an event took through the router
type Outcome string

const (
	OutcomeEmpty         Outcome = "empty"
	OutcomeRateLimited   Outcome = "rate_limited"
	OutcomeNoise         Outcome = "noise"
	OutcomeAnswered      Outcome = "answered"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeCreated       Outcome = "created"
	OutcomeAppended      Outcome = "appended"
	OutcomeUntracked     Outcome = "untracked"
	OutcomeStatusChanged Outcome = "status_changed"
	OutcomeUnchanged     Outcome = "unchanged"
	OutcomeArchived      Outcome = "archived"
	OutcomeRestored      Outcome = "restored"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeFailed        Outcome = "failed"
)

// Reactions names the emoji the router treats as control symbols
type Reactions struct {
	Done   string
	Delete string
	Ack    string
}

// EventRouter drives one inbound chat event through classification, storage and replies.
// Dependency failures are logged and end the event; nothing is returned to the caller.
type EventRouter struct {
	store      NoteStore
	classifier Classifier
	guard      *DuplicateGuard
	qa         *QAService
	chat       ChatClient
	limiter    *EventRateLimiter
	reactions  Reactions
	metrics    *Metrics
}

// NewEventRouter creates a router
func NewEventRouter(store NoteStore, classifier Classifier, guard *DuplicateGuard, qa *QAService, chat ChatClient, reactions Reactions, metrics *Metrics) *EventRouter {
	return &EventRouter{
		store:      store,
		classifier: classifier,
		guard:      guard,
		qa:         qa,
		chat:       chat,
		reactions:  reactions,
		metrics:    metrics,
	}
}

// SetRateLimiter enables the per-source event throttle
func (r *EventRouter) SetRateLimiter(limiter *EventRateLimiter) {
	r.limiter = limiter
}

// Route handles one event to completion and reports which branch it took
func (r *EventRouter) Route(ctx context.Context, event models.Event) Outcome {
	start := time.Now()
	logger := logging.WithEvent(string(event.Kind()), event.ExternalID(), event.Channel())

	outcome := r.route(ctx, event)

	r.metrics.RecordEvent(string(event.Kind()), string(outcome))
	logger.Info("event routed", "outcome", string(outcome), "duration_ms", time.Since(start).Milliseconds())
	return outcome
}

func (r *EventRouter) route(ctx context.Context, event models.Event) Outcome {
	if r.limiter != nil {
		source := event.Actor()
		if source == "" {
			source = "channel:" + event.Channel()
		}
		if !r.limiter.Allow(ctx, source) {
			log.Printf("🚫 [ROUTER] Rate limit exceeded for %s, dropping %s", source, event.Kind())
			r.metrics.RecordRateLimited()
			return OutcomeRateLimited
		}
	}

	switch ev := event.(type) {
	case models.NewMessage:
		return r.handleNewMessage(ctx, ev)
	case models.ThreadReply:
		return r.handleThreadReply(ctx, ev)
	case models.ReactionAdded:
		return r.handleReactionAdded(ctx, ev)
	case models.ReactionRemoved:
		return r.handleReactionRemoved(ctx, ev)
	default:
		log.Printf("⚠️  [ROUTER] Unknown event type %T", event)
		return OutcomeIgnored
	}
}

func (r *EventRouter) handleNewMessage(ctx context.Context, ev models.NewMessage) Outcome {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return OutcomeEmpty
	}

	log.Printf("📨 [ROUTER] New message %s: %s", ev.MessageID, utils.TruncateText(text, 50))

	switch c := r.classifier.Classify(ctx, text).(type) {
	case models.QuestionClassification:
		answer := r.qa.AnswerChannel(ctx, text)
		r.reply(ctx, ev.ChannelID, ev.MessageID, utils.MarkdownToMrkdwn(answer))
		return OutcomeAnswered

	case models.NoiseClassification:
		log.Printf("🔇 [ROUTER] Dropping noise %s", ev.MessageID)
		return OutcomeNoise

	case models.NoteClassification:
		duplicate, err := r.guard.IsDuplicate(ctx, ev.MessageID)
		if err != nil {
			log.Printf("❌ [ROUTER] Duplicate check failed for %s: %v", ev.MessageID, err)
			return OutcomeFailed
		}
		if duplicate {
			log.Printf("♻️  [ROUTER] Note for %s already exists, skipping", ev.MessageID)
			return OutcomeDuplicate
		}

		fields := c.ToNoteFields(ev.MessageID, ev.ChannelID, text, utils.ExtractURLs(text))
		if _, outcome := r.createNote(ctx, fields); outcome != OutcomeCreated {
			return outcome
		}

		r.react(ctx, ev.ChannelID, ev.MessageID, r.reactions.Ack)
		r.reply(ctx, ev.ChannelID, ev.MessageID, formatSavedReply(c))
		return OutcomeCreated

	default:
		log.Printf("⚠️  [ROUTER] Unhandled classification %T", c)
		return OutcomeIgnored
	}
}

func (r *EventRouter) handleThreadReply(ctx context.Context, ev models.ThreadReply) Outcome {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return OutcomeEmpty
	}

	log.Printf("🧵 [ROUTER] Thread reply %s under %s", ev.MessageID, ev.ParentMessageID)

	switch r.classifier.Classify(ctx, text).(type) {
	case models.QuestionClassification:
		answer := r.qa.AnswerThread(ctx, text, ev.ParentMessageID)
		r.reply(ctx, ev.ChannelID, ev.ParentMessageID, utils.MarkdownToMrkdwn(answer))
		return OutcomeAnswered

	case models.NoiseClassification:
		return OutcomeNoise
	}

	parent, err := r.store.FindByExternalID(ctx, ev.ParentMessageID)
	if err != nil {
		log.Printf("❌ [ROUTER] Parent lookup failed for %s: %v", ev.ParentMessageID, err)
		return OutcomeFailed
	}
	if parent == nil {
		log.Printf("ℹ️  [ROUTER] Reply %s is in an untracked thread %s", ev.MessageID, ev.ParentMessageID)
		return OutcomeUntracked
	}

	if err := r.store.AppendContent(ctx, parent.ID, text); err != nil {
		log.Printf("❌ [ROUTER] Append to note %s failed: %v", parent.ID, err)
		return OutcomeFailed
	}

	log.Printf("✅ [ROUTER] Appended reply %s to note %s", ev.MessageID, parent.ID)
	r.react(ctx, ev.ChannelID, ev.MessageID, r.reactions.Ack)
	return OutcomeAppended
}

func (r *EventRouter) handleReactionAdded(ctx context.Context, ev models.ReactionAdded) Outcome {
	switch ev.Symbol {
	case r.reactions.Done:
		return r.transition(ctx, ev.ChannelID, ev.TargetMessageID, models.NoteStatusDone)

	case r.reactions.Delete:
		note, outcome := r.findTarget(ctx, ev.TargetMessageID)
		if note == nil {
			return outcome
		}
		if err := r.store.Archive(ctx, note.ID); err != nil {
			log.Printf("❌ [ROUTER] Archive of note %s failed: %v", note.ID, err)
			return OutcomeFailed
		}
		r.guard.Forget(ev.TargetMessageID)

		log.Printf("🗑️  [ROUTER] Archived note %s", note.ID)
		r.reply(ctx, ev.ChannelID, ev.TargetMessageID,
			fmt.Sprintf("🗑️ Note deleted. Remove the :%s: reaction to restore it.", r.reactions.Delete))
		return OutcomeArchived
	}
	return OutcomeIgnored
}

func (r *EventRouter) handleReactionRemoved(ctx context.Context, ev models.ReactionRemoved) Outcome {
	switch ev.Symbol {
	case r.reactions.Done:
		return r.transition(ctx, ev.ChannelID, ev.TargetMessageID, models.NoteStatusOpen)
	case r.reactions.Delete:
		return r.restore(ctx, ev)
	}
	return OutcomeIgnored
}

// transition sets a tracked note's status from the done-marker. A note already in
// the target status is left alone, so redelivered reactions and the reconciler's own
// reactions are no-ops. Parked notes can be marked done or reopened.
func (r *EventRouter) transition(ctx context.Context, channelID, externalID string, to models.NoteStatus) Outcome {
	note, outcome := r.findTarget(ctx, externalID)
	if note == nil {
		return outcome
	}

	if note.Status == to {
		log.Printf("ℹ️  [ROUTER] Note %s is already %s", note.ID, to)
		return OutcomeUnchanged
	}

	if err := r.store.SetStatus(ctx, note.ID, to); err != nil {
		log.Printf("❌ [ROUTER] Status update of note %s failed: %v", note.ID, err)
		return OutcomeFailed
	}

	log.Printf("✅ [ROUTER] Note %s is now %s", note.ID, to)
	if to == models.NoteStatusDone {
		r.reply(ctx, channelID, externalID, "✅ Marked as done.")
	} else {
		r.reply(ctx, channelID, externalID, "↩️ Reopened.")
	}
	return OutcomeStatusChanged
}

// restore recreates a note from the message's current text. It re-classifies,
// so the restored category can differ from the archived one, and a message that
// no longer reads as a note is not restored.
func (r *EventRouter) restore(ctx context.Context, ev models.ReactionRemoved) Outcome {
	live, err := r.guard.IsDuplicate(ctx, ev.TargetMessageID)
	if err != nil {
		log.Printf("❌ [ROUTER] Live note check failed for %s: %v", ev.TargetMessageID, err)
		return OutcomeFailed
	}
	if live {
		return OutcomeUnchanged
	}

	text, err := r.chat.FetchMessageText(ctx, ev.ChannelID, ev.TargetMessageID)
	if err != nil {
		log.Printf("❌ [ROUTER] Could not fetch message %s for restore: %v", ev.TargetMessageID, err)
		return OutcomeFailed
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Printf("ℹ️  [ROUTER] Message %s is gone, nothing to restore", ev.TargetMessageID)
		return OutcomeIgnored
	}

	c, ok := r.classifier.Classify(ctx, text).(models.NoteClassification)
	if !ok {
		log.Printf("ℹ️  [ROUTER] Message %s no longer classifies as a note, not restoring", ev.TargetMessageID)
		return OutcomeIgnored
	}

	previous, err := r.store.FindArchivedByExternalID(ctx, ev.TargetMessageID)
	if err != nil {
		log.Printf("⚠️  [ROUTER] Archived lookup for %s failed: %v", ev.TargetMessageID, err)
	}
	if previous != nil && previous.Category != c.Category {
		log.Printf("⚠️  [ROUTER] Restored %s as %s, it was archived as %s", ev.TargetMessageID, c.Category, previous.Category)
	}

	fields := c.ToNoteFields(ev.TargetMessageID, ev.ChannelID, text, utils.ExtractURLs(text))
	id, outcome := r.createNote(ctx, fields)
	if outcome != OutcomeCreated {
		return outcome
	}

	log.Printf("♻️  [ROUTER] Restored %s as note %s", ev.TargetMessageID, id)
	r.reply(ctx, ev.ChannelID, ev.TargetMessageID, "♻️ Note restored. "+formatSavedReply(c))
	return OutcomeRestored
}

func (r *EventRouter) createNote(ctx context.Context, fields *models.NoteFields) (string, Outcome) {
	id, err := r.store.Create(ctx, fields)
	switch {
	case errors.Is(err, models.ErrDuplicateNote):
		r.guard.Remember(fields.ExternalMessageID)
		log.Printf("♻️  [ROUTER] Lost create race for %s, note already exists", fields.ExternalMessageID)
		return "", OutcomeDuplicate
	case err != nil:
		log.Printf("❌ [ROUTER] Create for %s failed: %v", fields.ExternalMessageID, err)
		return "", OutcomeFailed
	}

	r.guard.Remember(fields.ExternalMessageID)
	r.metrics.RecordNoteCreated()
	log.Printf("✅ [ROUTER] Created note %s (%s) for %s", id, fields.Category, fields.ExternalMessageID)
	return id, OutcomeCreated
}

// findTarget returns the live note a reaction points at, or nil with the outcome to report
func (r *EventRouter) findTarget(ctx context.Context, externalID string) (*models.Note, Outcome) {
	note, err := r.store.FindByExternalID(ctx, externalID)
	if err != nil {
		log.Printf("❌ [ROUTER] Lookup of %s failed: %v", externalID, err)
		return nil, OutcomeFailed
	}
	if note == nil {
		return nil, OutcomeUntracked
	}
	return note, ""
}

func (r *EventRouter) react(ctx context.Context, channelID, ts, symbol string) {
	if symbol == "" {
		return
	}
	if err := r.chat.AddReaction(ctx, channelID, ts, symbol); err != nil {
		log.Printf("⚠️  [ROUTER] Reaction :%s: on %s failed: %v", symbol, ts, err)
	}
}

func (r *EventRouter) reply(ctx context.Context, channelID, threadTS, text string) {
	if err := r.chat.PostThreadReply(ctx, channelID, threadTS, text); err != nil {
		log.Printf("⚠️  [ROUTER] Reply in thread %s failed: %v", threadTS, err)
	}
}

// formatSavedReply summarizes where a note was filed
func formatSavedReply(c models.NoteClassification) string {
	var b strings.Builder
	b.WriteString("Saved to *")
	b.WriteString(string(c.Category))
	if c.Subcategory != models.SubcategoryNone {
		b.WriteString(" / ")
		b.WriteString(string(c.Subcategory))
	}
	fmt.Fprintf(&b, "* (confidence %.2f)", c.Confidence)
	if c.NextAction != "" {
		fmt.Fprintf(&b, "\nNext action: %s", c.NextAction)
	}
	if c.Fallback {
		b.WriteString("\nI couldn't classify this one, so it is filed as Uncategorized.")
	}
	return b.String()
}
