package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/office-ledger/internal/config"
	"github.com/garyjia/office-ledger/internal/infrastructure/external/messaging"
)

// Sends one message through the configured messaging gateway, without the
// ledger or the scheduler. Useful to check Lark credentials and a chat id
// before switching messaging.mode to live.
//
//	test-notification <destination> [message...]

func main() {
	fmt.Println("=== Messaging Gateway Test ===")

	if len(os.Args) < 2 {
		fmt.Println("Usage: test-notification <destination> [message...]")
		os.Exit(2)
	}
	destination := os.Args[1]
	body := "Office ledger test message sent at " + time.Now().Format(time.RFC3339)
	if len(os.Args) > 2 {
		body = strings.Join(os.Args[2:], " ")
	}

	_ = gotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if _, err := os.Stat("configs/config.yaml"); err == nil {
			path = "configs/config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	gateway, err := messaging.New(messaging.Config{
		Mode:            cfg.Messaging.Mode,
		Timeout:         cfg.Messaging.Timeout,
		RatePerSecond:   cfg.Messaging.RatePerSecond,
		Burst:           cfg.Messaging.Burst,
		BreakerFailures: cfg.Messaging.BreakerFailures,
		BreakerCooldown: cfg.Messaging.BreakerCooldown,
		AppID:           cfg.Lark.AppID,
		AppSecret:       cfg.Lark.AppSecret,
		ReceiveIDType:   cfg.Lark.ReceiveIDType,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	fmt.Printf("Mode:        %s\n", gateway.Mode())
	fmt.Printf("Destination: %s\n", destination)
	fmt.Printf("Message:     %s\n\n", body)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Messaging.Timeout+5*time.Second)
	defer cancel()

	result := gateway.Send(ctx, destination, body)
	if !result.Sent {
		fmt.Printf("✗ Send failed: %s\n", result.Reason)
		os.Exit(1)
	}
	fmt.Printf("✓ Sent, provider reference: %s\n", result.ProviderReference)
}
