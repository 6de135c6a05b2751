package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMessages struct {
	createFunc func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error)
	calls      int
}

func (f *fakeMessages) Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	f.calls++
	return f.createFunc(ctx, req)
}

func okResponse(id string) *larkim.CreateMessageResp {
	return &larkim.CreateMessageResp{Data: &larkim.CreateMessageRespData{MessageId: &id}}
}

func TestNew_SelectsByMode(t *testing.T) {
	gw, err := New(Config{Mode: ModeSimulation}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, ModeSimulation, gw.Mode())

	gw, err = New(Config{Mode: ModeLive, AppID: "cli_x", AppSecret: "secret"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, ModeLive, gw.Mode())

	_, err = New(Config{Mode: ModeLive}, zap.NewNop())
	assert.Error(t, err)

	_, err = New(Config{Mode: "carrier-pigeon"}, zap.NewNop())
	assert.ErrorContains(t, err, "unknown messaging mode")
}

func TestSimulationGateway_AlwaysSucceeds(t *testing.T) {
	gw := NewSimulationGateway(zap.NewNop())

	first := gw.Send(context.Background(), "ou_a", "hello")
	second := gw.Send(context.Background(), "ou_b", "again")

	assert.True(t, first.Sent)
	assert.True(t, strings.HasPrefix(first.ProviderReference, "sim-"))
	assert.NotEqual(t, first.ProviderReference, second.ProviderReference)

	intents := gw.Intents()
	require.Len(t, intents, 2)
	assert.Equal(t, "ou_a", intents[0].Destination)
	assert.Equal(t, "again", intents[1].Body)
}

func TestLarkGateway_Sent(t *testing.T) {
	fake := &fakeMessages{createFunc: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
		assert.Equal(t, "ou_client", *req.Body.ReceiveId)
		assert.Equal(t, "text", *req.Body.MsgType)
		assert.JSONEq(t, `{"text":"Payment due"}`, *req.Body.Content)
		return okResponse("om_123"), nil
	}}
	gw := NewLarkGateway(fake, Config{}, zap.NewNop())

	res := gw.Send(context.Background(), "ou_client", "Payment due")

	assert.True(t, res.Sent)
	assert.Equal(t, "om_123", res.ProviderReference)
}

func TestLarkGateway_FailuresAreValues(t *testing.T) {
	tests := []struct {
		name        string
		destination string
		create      func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error)
		reason      string
	}{
		{
			name:        "empty destination",
			destination: " ",
			reason:      "invalid destination",
		},
		{
			name:        "provider rejection",
			destination: "ou_x",
			create: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
				return &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230001, Msg: "invalid receive_id"}}, nil
			},
			reason: "provider error: code=230001, msg=invalid receive_id",
		},
		{
			name:        "network error",
			destination: "ou_x",
			create: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
				return nil, errors.New("connection refused")
			},
			reason: "network error: connection refused",
		},
		{
			name:        "timeout",
			destination: "ou_x",
			create: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			reason: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMessages{createFunc: tt.create}
			gw := NewLarkGateway(fake, Config{Timeout: 20 * time.Millisecond}, zap.NewNop())

			res := gw.Send(context.Background(), tt.destination, "body")

			assert.False(t, res.Sent)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestLarkGateway_CancelledParentIsNotATimeout(t *testing.T) {
	t.Run("while rate limited", func(t *testing.T) {
		fake := &fakeMessages{createFunc: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
			return okResponse("om_1"), nil
		}}
		gw := NewLarkGateway(fake, Config{RatePerSecond: 0.001, Burst: 1, Timeout: time.Hour}, zap.NewNop())
		require.True(t, gw.Send(context.Background(), "ou_x", "first").Sent)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		res := gw.Send(ctx, "ou_x", "second")

		assert.False(t, res.Sent)
		assert.Equal(t, "cancelled", res.Reason)
		assert.Equal(t, 1, fake.calls)
	})

	t.Run("during the request", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		fake := &fakeMessages{createFunc: func(reqCtx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
			cancel()
			return nil, reqCtx.Err()
		}}
		gw := NewLarkGateway(fake, Config{}, zap.NewNop())

		res := gw.Send(ctx, "ou_x", "body")

		assert.False(t, res.Sent)
		assert.Equal(t, "cancelled", res.Reason)
	})
}

func TestLarkGateway_RateWaitBeyondDeadlineIsTimeout(t *testing.T) {
	fake := &fakeMessages{createFunc: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
		return okResponse("om_1"), nil
	}}
	gw := NewLarkGateway(fake, Config{RatePerSecond: 0.001, Burst: 1, Timeout: 50 * time.Millisecond}, zap.NewNop())
	require.True(t, gw.Send(context.Background(), "ou_x", "first").Sent)

	res := gw.Send(context.Background(), "ou_x", "second")

	assert.False(t, res.Sent)
	assert.Equal(t, "timeout", res.Reason)
}

func TestLarkGateway_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	fake := &fakeMessages{createFunc: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
		return nil, errors.New("connection reset")
	}}
	gw := NewLarkGateway(fake, Config{BreakerFailures: 2, BreakerCooldown: time.Minute}, zap.NewNop())

	gw.Send(context.Background(), "ou_a", "x")
	gw.Send(context.Background(), "ou_b", "x")
	res := gw.Send(context.Background(), "ou_c", "x")

	assert.Equal(t, "channel unavailable", res.Reason)
	assert.Equal(t, 2, fake.calls, "an open breaker must not reach the channel")
}

func TestLarkGateway_ProviderRejectionsDoNotTripBreaker(t *testing.T) {
	fake := &fakeMessages{createFunc: func(ctx context.Context, req *larkim.CreateMessageReq) (*larkim.CreateMessageResp, error) {
		return &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 99992402, Msg: "field validation failed"}}, nil
	}}
	gw := NewLarkGateway(fake, Config{BreakerFailures: 1}, zap.NewNop())

	for i := 0; i < 3; i++ {
		res := gw.Send(context.Background(), "ou_a", "x")
		assert.Contains(t, res.Reason, "provider error")
	}
	assert.Equal(t, 3, fake.calls)
}
