package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/garyjia/office-ledger/internal/application/port"
)

// messageCreator is the subset of the Lark IM message service the gateway uses
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// providerError is an API-level rejection. The channel itself is healthy,
// so it does not count against the breaker.
type providerError struct {
	code int
	msg  string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("provider error: code=%d, msg=%s", e.code, e.msg)
}

// LarkGateway sends reminders as Lark text messages. Every send is bounded
// by a timeout, paced by a rate limiter and guarded by a circuit breaker.
type LarkGateway struct {
	messages      messageCreator
	receiveIDType string
	timeout       time.Duration
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker
	logger        *zap.Logger
}

// NewLarkGateway creates a live gateway over the Lark message service
func NewLarkGateway(messages messageCreator, cfg Config, logger *zap.Logger) *LarkGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ReceiveIDType == "" {
		cfg.ReceiveIDType = "open_id"
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "lark-im",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			var pe *providerError
			return err == nil || errors.As(err, &pe)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Messaging circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &LarkGateway{
		messages:      messages,
		receiveIDType: cfg.ReceiveIDType,
		timeout:       cfg.Timeout,
		limiter:       rate.NewLimiter(limit, burst),
		breaker:       breaker,
		logger:        logger,
	}
}

// Send delivers body to destination. It never returns an error: every
// failure is normalized into a failed result.
func (g *LarkGateway) Send(ctx context.Context, destination, body string) port.SendResult {
	if strings.TrimSpace(destination) == "" {
		return port.Failed("invalid destination")
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		// rate reports a wait that would outlast the deadline without
		// wrapping context.DeadlineExceeded
		reason := "timeout"
		if ctx.Err() != nil {
			reason = classify(ctx, err)
		}
		g.logger.Warn("Reminder send not attempted",
			zap.String("destination", destination),
			zap.String("reason", reason),
			zap.Error(err))
		return port.Failed(reason)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.create(ctx, destination, body)
	})
	if err != nil {
		reason := classify(ctx, err)
		g.logger.Warn("Reminder send failed",
			zap.String("destination", destination),
			zap.String("reason", reason),
			zap.Error(err))
		return port.Failed(reason)
	}

	return port.Sent(out.(string))
}

// Mode returns the gateway mode
func (g *LarkGateway) Mode() string {
	return ModeLive
}

func (g *LarkGateway) create(ctx context.Context, destination, body string) (string, error) {
	content, err := json.Marshal(map[string]string{"text": body})
	if err != nil {
		return "", err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(g.receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(destination).
			MsgType("text").
			Content(string(content)).
			Build()).
		Build()

	resp, err := g.messages.Create(ctx, req)
	if err != nil {
		return "", err
	}
	if !resp.Success() {
		return "", &providerError{code: resp.Code, msg: resp.Msg}
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	return messageID, nil
}

func classify(ctx context.Context, err error) string {
	var pe *providerError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "channel unavailable"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return "cancelled"
	case errors.As(err, &pe):
		return pe.Error()
	default:
		return "network error: " + err.Error()
	}
}

var _ port.MessagingGateway = (*LarkGateway)(nil)
