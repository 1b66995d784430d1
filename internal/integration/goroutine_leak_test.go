package integration

import (
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/glr76/PlannyWeb/internal/app"
	"github.com/glr76/PlannyWeb/internal/testutil"
)

func TestGoroutineLeakAcrossRestarts(t *testing.T) {
	client := newClient()
	baseline := runtime.NumGoroutine()

	for i := 0; i < 10; i++ {
		cfg := baseConfig(t)
		cfg.Health.GRPCAddr = "127.0.0.1:0"
		a, err := app.Build(t.Context(), cfg, zerolog.Nop())
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if err := a.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
		send(t, client, "PUT", "http://"+a.Addr()+"/api/files/text/plan.txt", fmt.Sprintf("v%d", i), nil)
		if err := a.Shutdown(); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}

	testutil.Eventually(t, 3*time.Second, 50*time.Millisecond, func() error {
		current := runtime.NumGoroutine()
		if current <= baseline+5 {
			return nil
		}
		return fmt.Errorf("goroutines=%d baseline=%d", current, baseline)
	})
}
