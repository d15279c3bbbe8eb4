package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"paranotes/internal/models"
	"paranotes/internal/services"
	"paranotes/internal/utils"
)

// EventRouter is the core the webhook hands normalized events to
type EventRouter interface {
	Route(ctx context.Context, event models.Event) services.Outcome
}

// SlackEventsHandler receives Slack Events API deliveries
type SlackEventsHandler struct {
	router         EventRouter
	signingSecret  string
	channelID      string
	seen           *cache.Cache
	processTimeout time.Duration
}

// NewSlackEventsHandler creates the handler. An empty signingSecret disables
// signature checks (development only); an empty channelID accepts every channel.
func NewSlackEventsHandler(router EventRouter, signingSecret, channelID string, processTimeout time.Duration) *SlackEventsHandler {
	return &SlackEventsHandler{
		router:         router,
		signingSecret:  signingSecret,
		channelID:      channelID,
		seen:           cache.New(10*time.Minute, 20*time.Minute),
		processTimeout: processTimeout,
	}
}

// HandleEvents acknowledges a delivery immediately and routes the event in the background.
// POST /api/slack/events
func (h *SlackEventsHandler) HandleEvents(c *fiber.Ctx) error {
	body := c.Body()

	if h.signingSecret != "" {
		if err := h.verifySignature(c, body); err != nil {
			log.Printf("🚫 [SLACK-EVENTS] Rejected request from %s: %v", c.IP(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
		}
	}

	if !json.Valid(body) {
		log.Printf("⚠️  [SLACK-EVENTS] Rejected malformed payload (%d bytes)", len(body))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	// The signing secret authenticates requests, so the legacy verification token is not checked
	envelope, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		// Event types the library does not know are acknowledged and dropped
		log.Printf("⚠️  [SLACK-EVENTS] Skipping event: %v", err)
		return c.SendStatus(fiber.StatusOK)
	}

	switch envelope.Type {
	case slackevents.URLVerification:
		verification, ok := envelope.Data.(*slackevents.EventsAPIURLVerificationEvent)
		if !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
		}
		return c.JSON(fiber.Map{"challenge": verification.Challenge})
	case slackevents.CallbackEvent:
	default:
		return c.SendStatus(fiber.StatusOK)
	}

	// Slack retries deliveries it thinks were slow; the event id is stable across retries
	if callback, ok := envelope.Data.(*slackevents.EventsAPICallbackEvent); ok && callback.EventID != "" {
		if err := h.seen.Add(callback.EventID, struct{}{}, cache.DefaultExpiration); err != nil {
			log.Printf("♻️  [SLACK-EVENTS] Ignoring redelivery of %s (retry %s)", callback.EventID, c.Get("X-Slack-Retry-Num"))
			return c.SendStatus(fiber.StatusOK)
		}
	}

	event := toEvent(envelope.InnerEvent.Data)
	if event == nil {
		return c.SendStatus(fiber.StatusOK)
	}
	if h.channelID != "" && event.Channel() != h.channelID {
		return c.SendStatus(fiber.StatusOK)
	}

	go h.process(event)

	// Return 200 immediately to acknowledge receipt
	return c.SendStatus(fiber.StatusOK)
}

// process runs one event to completion. Panics are logged, never propagated.
func (h *SlackEventsHandler) process(event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [SLACK-EVENTS] Panic while routing %s %s: %v\n%s", event.Kind(), event.ExternalID(), r, debug.Stack())
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
	defer cancel()

	h.router.Route(ctx, event)
}

// verifySignature checks Slack's v0 request signature and its 5 minute replay window
func (h *SlackEventsHandler) verifySignature(c *fiber.Ctx, body []byte) error {
	header := http.Header{}
	header.Set("X-Slack-Signature", c.Get("X-Slack-Signature"))
	header.Set("X-Slack-Request-Timestamp", c.Get("X-Slack-Request-Timestamp"))

	verifier, err := slack.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return err
	}
	if _, err := verifier.Write(body); err != nil {
		return err
	}
	return verifier.Ensure()
}

// toEvent normalizes an inner Slack event. Bot posts, edits, deletions and other
// subtypes return nil.
func toEvent(inner interface{}) models.Event {
	switch ev := inner.(type) {
	case *slackevents.MessageEvent:
		if ev.BotID != "" {
			return nil
		}
		switch ev.SubType {
		case "", "thread_broadcast", "file_share":
		default:
			return nil
		}

		if ev.ThreadTimeStamp != "" && ev.ThreadTimeStamp != ev.TimeStamp {
			log.Printf("🧵 [SLACK-EVENTS] Reply %s in thread %s: %s", ev.TimeStamp, ev.ThreadTimeStamp, utils.TruncateText(ev.Text, 50))
			return models.ThreadReply{
				Text:            ev.Text,
				ChannelID:       ev.Channel,
				MessageID:       ev.TimeStamp,
				ParentMessageID: ev.ThreadTimeStamp,
				UserID:          ev.User,
			}
		}
		return models.NewMessage{
			Text:      ev.Text,
			ChannelID: ev.Channel,
			MessageID: ev.TimeStamp,
			UserID:    ev.User,
		}

	case *slackevents.ReactionAddedEvent:
		if ev.Item.Type != "message" || ev.Item.Timestamp == "" {
			return nil
		}
		return models.ReactionAdded{
			Symbol:          ev.Reaction,
			TargetMessageID: ev.Item.Timestamp,
			ChannelID:       ev.Item.Channel,
			UserID:          ev.User,
		}

	case *slackevents.ReactionRemovedEvent:
		if ev.Item.Type != "message" || ev.Item.Timestamp == "" {
			return nil
		}
		return models.ReactionRemoved{
			Symbol:          ev.Reaction,
			TargetMessageID: ev.Item.Timestamp,
			ChannelID:       ev.Item.Channel,
			UserID:          ev.User,
		}
	}
	return nil
}
