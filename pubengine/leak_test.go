package pubengine

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEngineShutdownLeavesNoSchedulerGoroutineBehind(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := NewEngine(DefaultEngineOptions())
	e.StartScheduler(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	e.Shutdown()
}
