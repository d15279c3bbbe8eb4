package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"
)

// ChatClient is the outbound side of the chat platform
type ChatClient interface {
	AddReaction(ctx context.Context, channel, ts, name string) error
	RemoveReaction(ctx context.Context, channel, ts, name string) error
	PostThreadReply(ctx context.Context, channel, threadTS, text string) error
	// FetchMessageText returns the text of one message, or "" when it no longer exists
	FetchMessageText(ctx context.Context, channel, ts string) (string, error)
}

// DefaultSlackAPIURL is the Slack Web API base URL
const DefaultSlackAPIURL = "https://slack.com/api"

// SlackClient calls the Slack Web API with a bot token
type SlackClient struct {
	api     *slack.Client
	timeout time.Duration
	limiter *rate.Limiter
	logger  *logrus.Logger
	metrics *Metrics
}

// NewSlackClient creates a client. Every call is bounded by timeout and
// throttled to 1 request/second with a burst of 3.
func NewSlackClient(baseURL, token string, timeout time.Duration, metrics *Metrics) *SlackClient {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if baseURL == "" {
		baseURL = DefaultSlackAPIURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/") + "/"

	client := &SlackClient{
		api: slack.New(token,
			slack.OptionAPIURL(baseURL),
			slack.OptionHTTPClient(&http.Client{Timeout: timeout + 5*time.Second}),
		),
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(1), 3),
		logger:  logger,
		metrics: metrics,
	}

	client.logger.WithField("baseURL", baseURL).Info("Slack client initialized")
	return client
}

// SetRateLimit replaces the outbound throttle
func (c *SlackClient) SetRateLimit(perSecond float64, burst int) {
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// AddReaction adds an emoji reaction. Reacting twice is not an error.
func (c *SlackClient) AddReaction(ctx context.Context, channel, ts, name string) error {
	return c.call(ctx, "reactions.add", func(ctx context.Context) error {
		return c.api.AddReactionContext(ctx, name, slack.NewRefToMessage(channel, ts))
	}, "already_reacted")
}

// RemoveReaction removes an emoji reaction. Removing a missing reaction is not an error.
func (c *SlackClient) RemoveReaction(ctx context.Context, channel, ts, name string) error {
	return c.call(ctx, "reactions.remove", func(ctx context.Context) error {
		return c.api.RemoveReactionContext(ctx, name, slack.NewRefToMessage(channel, ts))
	}, "no_reaction")
}

// PostThreadReply posts text in the thread under threadTS
func (c *SlackClient) PostThreadReply(ctx context.Context, channel, threadTS, text string) error {
	return c.call(ctx, "chat.postMessage", func(ctx context.Context) error {
		_, _, err := c.api.PostMessageContext(ctx, channel,
			slack.MsgOptionText(text, false),
			slack.MsgOptionTS(threadTS),
		)
		return err
	})
}

// FetchMessageText looks the message up in channel history, then in thread replies
func (c *SlackClient) FetchMessageText(ctx context.Context, channel, ts string) (string, error) {
	var history []slack.Message
	err := c.call(ctx, "conversations.history", func(ctx context.Context) error {
		resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: channel,
			Latest:    ts,
			Oldest:    ts,
			Inclusive: true,
			Limit:     1,
		})
		if err != nil {
			return err
		}
		history = resp.Messages
		return nil
	})
	if err != nil {
		return "", err
	}
	if text, ok := findMessage(history, ts); ok {
		return text, nil
	}

	// Thread replies do not show up in channel history
	var replies []slack.Message
	err = c.call(ctx, "conversations.replies", func(ctx context.Context) error {
		msgs, _, _, err := c.api.GetConversationRepliesContext(ctx, &slack.GetConversationRepliesParameters{
			ChannelID: channel,
			Timestamp: ts,
			Latest:    ts,
			Inclusive: true,
			Limit:     1,
		})
		replies = msgs
		return err
	}, "thread_not_found", "message_not_found")
	if err != nil {
		return "", err
	}
	if text, ok := findMessage(replies, ts); ok {
		return text, nil
	}
	return "", nil
}

func findMessage(messages []slack.Message, ts string) (string, bool) {
	for _, m := range messages {
		if m.Timestamp == ts {
			return m.Text, true
		}
	}
	return "", false
}

// call runs one Web API call under the client timeout and throttle.
// Slack error codes listed in tolerated count as success.
func (c *SlackClient) call(ctx context.Context, method string, fn func(ctx context.Context) error, tolerated ...string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.RecordChatAPIError(method)
		return fmt.Errorf("%s: throttled: %w", method, err)
	}

	start := time.Now()
	err := fn(ctx)
	if err == nil {
		c.logger.WithFields(logrus.Fields{
			"method":      method,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("Slack API call completed")
		return nil
	}

	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) {
		for _, code := range tolerated {
			if apiErr.Err == code {
				c.logger.WithFields(logrus.Fields{"method": method, "code": code}).Debug("Slack API tolerated error")
				return nil
			}
		}
		c.metrics.RecordChatAPIError(method)
		c.logger.WithFields(logrus.Fields{"method": method, "code": apiErr.Err}).Warn("Slack API call rejected")
		return fmt.Errorf("%s failed: %s", method, apiErr.Err)
	}

	c.metrics.RecordChatAPIError(method)
	c.logger.WithFields(logrus.Fields{"method": method, "error": err.Error()}).Warn("Slack API request failed")
	return fmt.Errorf("%s request failed: %w", method, err)
}
