package estimate

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fleetjobs/internal/clock"
	"fleetjobs/internal/logging"
	"fleetjobs/internal/model"
)

type State string

const (
	StateIdle       State = "idle"
	StateEstimating State = "estimating"
	StateReady      State = "ready"
)

const DefaultDelay = 900 * time.Millisecond

type Snapshot struct {
	State      State
	Condition  string
	Result     Result
	Generation uint64
}

// Ready reports whether the snapshot carries a usable result for
// condition.
func (s Snapshot) Ready(condition string) bool {
	return s.State == StateReady && s.Condition == condition
}

type TaskOptions struct {
	Clock  clock.Clock
	Delay  time.Duration
	Hubs   func() []model.Hub
	Logger logrus.FieldLogger
}

// Task runs at most one outstanding estimate. Starting a new estimate
// or clearing the task supersedes the previous one; a superseded result
// is dropped when its timer fires.
type Task struct {
	mu        sync.Mutex
	gen       uint64
	timer     *clock.Timer
	state     State
	condition string
	result    Result

	clock clock.Clock
	delay time.Duration
	hubs  func() []model.Hub
	log   logrus.FieldLogger
}

func NewTask(opts TaskOptions) *Task {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Hubs == nil {
		opts.Hubs = func() []model.Hub { return nil }
	}
	return &Task{
		state: StateIdle,
		clock: opts.Clock,
		delay: opts.Delay,
		hubs:  opts.Hubs,
		log:   logging.OrDiscard(opts.Logger),
	}
}

func (t *Task) Delay() time.Duration {
	return t.delay
}

// Start supersedes any outstanding estimate and schedules a new one. A
// blank condition leaves the task idle. Returns the new generation.
func (t *Task) Start(condition string) uint64 {
	t.mu.Lock()
	t.supersedeLocked("restart")
	g := t.gen
	if strings.TrimSpace(condition) == "" {
		t.mu.Unlock()
		return g
	}
	t.state = StateEstimating
	t.condition = condition
	t.mu.Unlock()

	timer := t.clock.AfterFunc(t.delay, func() { t.finish(g, condition) })

	t.mu.Lock()
	if t.gen == g && t.state == StateEstimating {
		t.timer = timer
	}
	t.mu.Unlock()
	return g
}

// Clear drops any outstanding or finished estimate.
func (t *Task) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.supersedeLocked("clear")
}

func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		State:      t.state,
		Condition:  t.condition,
		Result:     t.result,
		Generation: t.gen,
	}
}

func (t *Task) supersedeLocked(reason string) {
	if t.state == StateEstimating {
		t.log.WithFields(logrus.Fields{"generation": t.gen, "reason": reason}).Debug("estimate superseded")
	}
	t.timer.Stop()
	t.timer = nil
	t.gen++
	t.state = StateIdle
	t.condition = ""
	t.result = Result{}
}

func (t *Task) finish(g uint64, condition string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if g != t.gen || t.state != StateEstimating || condition != t.condition {
		return
	}
	t.result = ForHubs(condition, t.hubs())
	t.state = StateReady
	t.timer = nil
	t.log.WithFields(logrus.Fields{
		"generation": g,
		"devices":    t.result.DeviceCount,
		"assets":     t.result.AssetCount,
	}).Debug("estimate ready")
}
