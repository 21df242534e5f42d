package cli

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rcliao/agent-mind/internal/model"
)

type countingDecayer struct {
	calls atomic.Int32
	fail  bool
}

func (d *countingDecayer) DecayEdges(ctx context.Context, rate, floor float64) (*model.DecayStats, error) {
	d.calls.Add(1)
	if d.fail {
		return nil, errors.New("database is locked")
	}
	return &model.DecayStats{DecayRate: rate, Floor: floor}, nil
}

func TestDecayLoopTicksUntilCancelled(t *testing.T) {
	for _, fail := range []bool{false, true} {
		d := &countingDecayer{fail: fail}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- decayLoop(ctx, d, 5*time.Millisecond, 0.05, 0.1) }()

		deadline := time.After(2 * time.Second)
		for d.calls.Load() < 2 {
			select {
			case <-deadline:
				t.Fatalf("decay ran %d times, want at least 2", d.calls.Load())
			case <-time.After(time.Millisecond):
			}
		}
		cancel()

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("decayLoop returned %v (fail=%v)", err, fail)
			}
		case <-time.After(time.Second):
			t.Fatal("decayLoop did not stop after cancel")
		}
	}
}

func TestSplitTags(t *testing.T) {
	got := splitTags(" tea, ,travel,  ")
	if want := []string{"tea", "travel"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("splitTags = %v, want %v", got, want)
	}
	if got := splitTags(""); got != nil {
		t.Fatalf("splitTags(\"\") = %v, want nil", got)
	}
}

func TestPreview(t *testing.T) {
	if got := preview("héllo world", 5); got != "héllo..." {
		t.Fatalf("preview = %q", got)
	}
	if got := preview("short", 10); got != "short" {
		t.Fatalf("preview = %q", got)
	}
}
