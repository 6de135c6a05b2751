package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/office-ledger/internal/application/port"
)

// Intent is a message the simulation gateway pretended to send
type Intent struct {
	Destination string
	Body        string
	Reference   string
	At          time.Time
}

// SimulationGateway records intents and always succeeds. It is used where no
// live credentials exist.
type SimulationGateway struct {
	mu      sync.Mutex
	intents []Intent
	logger  *zap.Logger
}

// NewSimulationGateway creates a simulation gateway
func NewSimulationGateway(logger *zap.Logger) *SimulationGateway {
	return &SimulationGateway{logger: logger}
}

// Send records the intent and returns a fabricated reference
func (g *SimulationGateway) Send(ctx context.Context, destination, body string) port.SendResult {
	ref := "sim-" + uuid.NewString()

	g.mu.Lock()
	g.intents = append(g.intents, Intent{
		Destination: destination,
		Body:        body,
		Reference:   ref,
		At:          time.Now(),
	})
	g.mu.Unlock()

	g.logger.Info("Simulated reminder",
		zap.String("destination", destination),
		zap.String("reference", ref))

	return port.Sent(ref)
}

// Mode returns the gateway mode
func (g *SimulationGateway) Mode() string {
	return ModeSimulation
}

// Intents returns a copy of everything sent so far
func (g *SimulationGateway) Intents() []Intent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Intent(nil), g.intents...)
}

var _ port.MessagingGateway = (*SimulationGateway)(nil)
