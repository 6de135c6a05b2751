// Package messaging implements port.MessagingGateway. The implementation is
// chosen once from configuration; callers only see the port.
package messaging

import (
	"fmt"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"

	"github.com/garyjia/office-ledger/internal/application/port"
)

const (
	ModeSimulation = "simulation"
	ModeLive       = "live"
)

// Config holds messaging configuration
type Config struct {
	Mode            string
	Timeout         time.Duration
	RatePerSecond   float64
	Burst           int
	BreakerFailures uint32
	BreakerCooldown time.Duration

	// Lark credentials, used in live mode only
	AppID         string
	AppSecret     string
	ReceiveIDType string
}

// New builds the gateway for the configured mode
func New(cfg Config, logger *zap.Logger) (port.MessagingGateway, error) {
	switch cfg.Mode {
	case ModeSimulation:
		logger.Info("Messaging gateway in simulation mode")
		return NewSimulationGateway(logger), nil
	case ModeLive:
		if cfg.AppID == "" || cfg.AppSecret == "" {
			return nil, fmt.Errorf("live messaging requires lark app_id and app_secret")
		}
		client := lark.NewClient(cfg.AppID, cfg.AppSecret,
			lark.WithLogLevel(larkcore.LogLevelInfo),
			lark.WithEnableTokenCache(true),
		)
		logger.Info("Messaging gateway in live mode",
			zap.String("receive_id_type", cfg.ReceiveIDType),
			zap.Duration("timeout", cfg.Timeout))
		return NewLarkGateway(client.Im.Message, cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown messaging mode %q", cfg.Mode)
	}
}
