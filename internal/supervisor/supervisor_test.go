package supervisor

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/SpideXD/mcp-swarm/internal/swarmconfig"
)

// newTestSupervisor builds a Supervisor with no persisted state and no
// background loops running (Start is never called) — enough to exercise
// reapIdle, scheduleReconnectOrStop and invoke directly.
func newTestSupervisor(t *testing.T, cfg *swarmconfig.Config) *Supervisor {
	t.Helper()
	s := New(nil, nil, cfg, zap.NewNop().Sugar())
	t.Cleanup(s.Stop)
	return s
}

func testConfig() *swarmconfig.Config {
	return &swarmconfig.Config{
		QueueTTL:        time.Minute,
		ScaleUpWait:     time.Minute,
		MaxPool:         4,
		IdleKill:        time.Minute,
		HealthInterval:  0,
		HealthTimeout:   time.Second,
		ToolCallTimeout: 5 * time.Second,
	}
}
