package tracing

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
)

func TestNewMetricsCollector(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}
	if mc == nil {
		t.Fatal("Expected non-nil MetricsCollector")
	}
	if mc.meter == nil {
		t.Error("Expected meter to be set")
	}
	if mc.activeRuns == nil {
		t.Error("Expected activeRuns map to be initialized")
	}
}

func TestMetricsCollector_RecordRunStart(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	ctx := context.Background()
	mc.RecordRunStart(ctx, "123", "test-workflow")

	mc.activeRunsMu.RLock()
	_, exists := mc.activeRuns["test-workflow/123"]
	mc.activeRunsMu.RUnlock()

	if !exists {
		t.Error("Expected run to be tracked as active")
	}
}

func TestMetricsCollector_RecordRunComplete(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	ctx := context.Background()
	runID := "456"
	workflow := "test-workflow"

	mc.RecordRunStart(ctx, runID, workflow)

	mc.activeRunsMu.RLock()
	_, exists := mc.activeRuns[workflow+"/"+runID]
	mc.activeRunsMu.RUnlock()
	if !exists {
		t.Fatal("Expected run to be tracked")
	}

	mc.RecordRunComplete(ctx, runID, workflow, "Completed", 5*time.Second)

	mc.activeRunsMu.RLock()
	_, stillExists := mc.activeRuns[workflow+"/"+runID]
	mc.activeRunsMu.RUnlock()
	if stillExists {
		t.Error("Expected run to be removed from active runs after completion")
	}
}

func TestMetricsCollector_RecordStepEnqueued(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	ctx := context.Background()
	// Should not panic with valid inputs.
	mc.RecordStepEnqueued(ctx, "workflow-1", "step-1", "task-a")
	mc.RecordStepEnqueued(ctx, "workflow-1", "step-2", "task-b")
}

func TestMetricsCollector_RecordRetry(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	ctx := context.Background()
	mc.RecordRetry(ctx, "workflow-1", "step-1", 0)
}

func TestMetricsCollector_RecordQueueSend(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	ctx := context.Background()
	mc.RecordQueueSend(ctx, "executor-queue", nil, time.Millisecond)
	mc.RecordQueueSend(ctx, "executor-queue", context.DeadlineExceeded, time.Millisecond)
}

func TestMetricsCollector_ConcurrentAccess(t *testing.T) {
	provider := metric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	mc, err := NewMetricsCollector(provider)
	if err != nil {
		t.Fatalf("Failed to create metrics collector: %v", err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)

		go func(id int) {
			defer wg.Done()
			runID := "run-" + string(rune(id+'0'))
			mc.RecordRunStart(ctx, runID, "workflow")
			mc.RecordRunComplete(ctx, runID, "workflow", "Completed", time.Millisecond)
		}(i)

		go func(id int) {
			defer wg.Done()
			mc.RecordStepEnqueued(ctx, "workflow", "step", "task")
		}(i)
	}

	wg.Wait()
}
