package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/sitechat/chatsync/internal/logging"
	"github.com/sitechat/chatsync/internal/resilience"
	"go.uber.org/zap"
)

// HTTPConfig configures the HTTP gateway client.
type HTTPConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RetryMax          int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64 // 0 disables rate limiting
}

// HTTP implements Gateway over the conversation service's JSON API.
type HTTP struct {
	client  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	log     *logging.Logger
}

// NewHTTP creates a production-ready gateway client with retries, a
// circuit breaker, and optional rate limiting.
func NewHTTP(cfg HTTPConfig, log *logging.Logger) *HTTP {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil // Disable logging

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryMax).
		SetRetryWaitTime(cfg.RetryWaitMin).
		SetRetryMaxWaitTime(cfg.RetryWaitMax).
		SetHeader("User-Agent", "chatsync/1.0").
		SetHeader("Content-Type", "application/json").
		SetTransport(retryClient.HTTPClient.Transport).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	breaker := resilience.New("gateway", resilience.Settings{
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("gateway breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &HTTP{
		client:  client,
		limiter: limiter,
		breaker: breaker,
		log:     log,
	}
}

type sendRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type sendResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
	ChunksUsed     int    `json:"chunks_used"`
}

type conversationIDRequest struct {
	ConversationID string `json:"conversation_id"`
}

type historyResponse struct {
	History []historyEntry `json:"conversation_history"`
}

type historyEntry struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	Sender         string `json:"sender"`
	Timestamp      string `json:"timestamp"`
}

type listResponse struct {
	Conversations []conversationEntry `json:"conversations"`
}

type conversationEntry struct {
	ConversationID string `json:"conversation_id"`
	Timestamp      string `json:"timestamp"`
	FirstMessage   string `json:"first_message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// SendMessage implements Gateway.
func (h *HTTP) SendMessage(ctx context.Context, text, conversationID string) (SendResult, error) {
	var out sendResponse
	err := h.do(ctx, "send", func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetBody(sendRequest{Message: text, ConversationID: conversationID}).
			SetResult(&out).
			Post("/api/chat/message")
	})
	if err != nil {
		return SendResult{}, err
	}

	return SendResult{
		Response:       out.Response,
		ConversationID: out.ConversationID,
		ChunksUsed:     out.ChunksUsed,
	}, nil
}

// FetchHistory implements Gateway.
func (h *HTTP) FetchHistory(ctx context.Context, conversationID string) ([]HistoryEntry, error) {
	var out historyResponse
	err := h.do(ctx, "history", func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetBody(conversationIDRequest{ConversationID: conversationID}).
			SetResult(&out).
			Post("/api/chat/conversation_history")
	})
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(out.History))
	for _, e := range out.History {
		entries = append(entries, HistoryEntry{
			ID:        strconv.FormatInt(e.ID, 10),
			Text:      e.Message,
			Sender:    Sender(e.Sender),
			Timestamp: parseTimestamp(e.Timestamp),
		})
	}
	return entries, nil
}

// ListConversations implements Gateway.
func (h *HTTP) ListConversations(ctx context.Context) ([]ConversationInfo, error) {
	var out listResponse
	err := h.do(ctx, "list", func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetResult(&out).
			Get("/api/chat/all_conversations")
	})
	if err != nil {
		return nil, err
	}

	infos := make([]ConversationInfo, 0, len(out.Conversations))
	for _, c := range out.Conversations {
		infos = append(infos, ConversationInfo{
			ID:           c.ConversationID,
			Preview:      c.FirstMessage,
			LastActivity: parseTimestamp(c.Timestamp),
		})
	}
	return infos, nil
}

// DeleteConversation implements Gateway.
func (h *HTTP) DeleteConversation(ctx context.Context, conversationID string) error {
	return h.do(ctx, "delete", func(r *resty.Request) (*resty.Response, error) {
		return r.
			SetBody(conversationIDRequest{ConversationID: conversationID}).
			Delete("/api/chat/conversation")
	})
}

// do runs one gateway call through the rate limiter and circuit breaker
// and maps the HTTP outcome onto the engine's error taxonomy. A 404 is a
// valid remote answer and does not count against the breaker.
func (h *HTTP) do(ctx context.Context, op string, call func(r *resty.Request) (*resty.Response, error)) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	var opErr error
	err := h.breaker.Execute(func() error {
		resp, err := call(h.client.R().SetContext(ctx))
		if err != nil {
			h.log.Warn("gateway call failed", zap.String("op", op), zap.Error(err))
			opErr = &NetworkError{Op: op, Err: err}
			return opErr
		}
		if resp.IsError() {
			if resp.StatusCode() == http.StatusNotFound {
				opErr = ErrNotFound
				return nil
			}
			h.log.Warn("gateway call rejected",
				zap.String("op", op),
				zap.Int("status", resp.StatusCode()))
			opErr = &NetworkError{Op: op, Err: fmt.Errorf("%s: %s", resp.Status(), remoteError(resp.Body()))}
			return opErr
		}
		opErr = nil
		return nil
	})
	if err != nil && opErr == nil {
		// Rejected by the breaker before the call was attempted
		return &NetworkError{Op: op, Err: err}
	}
	return opErr
}

// remoteError extracts the service's error field from a failure body,
// falling back to the raw body.
func remoteError(body []byte) string {
	var out errorResponse
	if err := sonic.Unmarshal(body, &out); err == nil && out.Error != "" {
		return out.Error
	}
	return string(body)
}

// parseTimestamp accepts both RFC 3339 and the service's zone-less
// ISO 8601 timestamps. Unparseable values map to the zero time.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
