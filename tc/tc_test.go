package tc

import (
	"math"
	"testing"

	"github.com/rtstepper/rtstepperd/pose"
)

func TestRunCycleMonotoneAndBounded(t *testing.T) {
	cfg := Config{CycleTime: 1.0 / 23437.5, VMax: 1.0, AMax: 10.0}
	line := pose.NewLine(pose.Pose{}, pose.Pose{X: 1.0})
	tr := NewLine(1, cfg, TermStop, line)

	prevPos := 0.0
	for i := 0; i < 200000 && !tr.IsDone(); i++ {
		tr.RunCycle()
		if tr.CurrentPos < prevPos-1e-12 {
			t.Fatalf("currentPos decreased: %v -> %v at cycle %d", prevPos, tr.CurrentPos, i)
		}
		if tr.CurrentPos > tr.TargetPos+1e-9 {
			t.Fatalf("currentPos exceeded targetPos: %v > %v", tr.CurrentPos, tr.TargetPos)
		}
		if tr.CurrentVel < 0 {
			t.Fatalf("currentVel went negative: %v", tr.CurrentVel)
		}
		prevPos = tr.CurrentPos
	}
	if !tr.IsDone() {
		t.Fatal("TC did not reach DONE within cycle budget")
	}
	if math.Abs(tr.CurrentPos-tr.TargetPos) > 1e-9 {
		t.Fatalf("final currentPos %v != targetPos %v", tr.CurrentPos, tr.TargetPos)
	}
	if tr.CurrentVel != 0 || tr.CurrentAccel != 0 {
		t.Fatalf("DONE state must have zero vel/accel, got vel=%v accel=%v", tr.CurrentVel, tr.CurrentAccel)
	}
}

func TestZeroTargetIsImmediatelyDone(t *testing.T) {
	cfg := Config{CycleTime: 1.0 / 1000, VMax: 1, AMax: 1}
	line := pose.NewLine(pose.Pose{}, pose.Pose{})
	tr := NewLine(1, cfg, TermStop, line)
	tr.RunCycle()
	if tr.State != StateDone {
		t.Fatalf("expected DONE, got %v", tr.State)
	}
}

func TestCircularCentripetalLimitHeldConstant(t *testing.T) {
	radius := 2.0
	aMax := 8.0
	cfg := Config{CycleTime: 1.0 / 10000, VMax: 100, AMax: aMax}
	start := pose.Pose{X: radius}
	end := pose.Pose{X: radius}
	circle := pose.NewCircle(start, end, pose.Vec3{}, pose.Vec3{Z: 1}, 1)
	tr := NewCircle(1, cfg, TermStop, circle)

	limit := math.Sqrt(aMax * radius)
	sawLimit := false
	for i := 0; i < 200000 && !tr.IsDone(); i++ {
		tr.RunCycle()
		if tr.CurrentVel > limit+1e-6 {
			t.Fatalf("centripetal limit violated: vel=%v > limit=%v", tr.CurrentVel, limit)
		}
		if math.Abs(tr.CurrentVel-limit) < 1e-6 {
			sawLimit = true
		}
	}
	if !sawLimit {
		t.Fatal("expected the circular segment to reach its centripetal velocity limit")
	}
}

func TestStartPoseIsGeometryStartRegardlessOfProgress(t *testing.T) {
	cfg := Config{CycleTime: 1.0 / 1000, VMax: 1, AMax: 10}
	start := pose.Pose{X: 3, Y: -1}
	end := pose.Pose{X: 5, Y: 2}
	line := pose.NewLine(start, end)
	tr := NewLine(1, cfg, TermStop, line)

	if got := tr.StartPose(); got != start {
		t.Fatalf("StartPose before any cycle = %+v, want %+v", got, start)
	}
	for i := 0; i < 1000 && !tr.IsDone(); i++ {
		tr.RunCycle()
	}
	if got := tr.StartPose(); got != start {
		t.Fatalf("StartPose after progress = %+v, want unchanged %+v", got, start)
	}
}

func TestScaleDecelDoesNotForceStateToDecelUnlessAlreadyDecelerating(t *testing.T) {
	cfg := Config{CycleTime: 1.0 / 1000, VMax: 10.0, AMax: 1.0}
	line := pose.NewLine(pose.Pose{}, pose.Pose{X: 100})
	tr := NewLine(1, cfg, TermStop, line)

	// Accelerate for a handful of cycles, then clamp VScale hard so the
	// scaled ceiling sits below the current velocity; this must not
	// spuriously report DECEL while the segment is still accelerating
	// toward its (now lower) ceiling from a standing start.
	tr.VScale = 0.01
	tr.RunCycle()
	if tr.State == StateDecel {
		t.Fatalf("scale-clamped first cycle from rest must not report DECEL, got %v", tr.State)
	}
}

func TestQueueFullMarginAndFIFO(t *testing.T) {
	q := NewQueue(20)
	cfg := Config{CycleTime: 1, VMax: 1, AMax: 1}
	for i := 0; i < 10; i++ {
		line := pose.NewLine(pose.Pose{}, pose.Pose{X: float64(i + 1)})
		if err := q.Put(NewLine(i, cfg, TermStop, line)); err != nil {
			t.Fatalf("unexpected error at put %d: %v", i, err)
		}
	}
	if !q.Full() {
		t.Fatalf("expected full at len=10 size=20 margin=10 (threshold 10)")
	}
	first := q.Get()
	if first.ID != 0 {
		t.Fatalf("expected FIFO order, got id %d", first.ID)
	}
	if q.Full() {
		t.Fatal("expected not full after removing one element below the margin threshold")
	}
}

func TestQueueToleratesMarginBeforeOverflow(t *testing.T) {
	q := NewQueue(5)
	cfg := Config{CycleTime: 1, VMax: 1, AMax: 1}
	line := pose.NewLine(pose.Pose{}, pose.Pose{X: 1})
	for i := 0; i < 5; i++ {
		if err := q.Put(NewLine(i, cfg, TermStop, line)); err != nil {
			t.Fatalf("put %d should have succeeded (true capacity not reached): %v", i, err)
		}
	}
	if err := q.Put(NewLine(5, cfg, TermStop, line)); err == nil {
		t.Fatal("expected ErrQueueFull once true capacity is reached")
	}
}
