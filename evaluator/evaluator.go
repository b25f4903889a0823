package evaluator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/eddielth/air-monitor/airquality"
	"github.com/eddielth/air-monitor/events"
	"github.com/eddielth/air-monitor/logger"
	"github.com/eddielth/air-monitor/metrics"
	"github.com/eddielth/air-monitor/storage"
)

// maxAttempts bounds re-reads after a lost compare-and-append
const maxAttempts = 3

// ruleSkipped labels evaluations suppressed by manual mode
const ruleSkipped = "skipped"

// Bounds for a single actuator call or event write.
const (
	defaultActuateTimeout = 5 * time.Second
	defaultPublishTimeout = 5 * time.Second
	eventQueueSize        = 64
)

// Store is the subset of storage.Store the evaluator reads and appends to
type Store interface {
	LatestReading(ctx context.Context) (*airquality.SensorSample, error)
	LatestSettings(ctx context.Context) (*airquality.ThresholdConfig, error)
	LatestFanState(ctx context.Context) (*airquality.ActuatorState, error)
	AppendFanState(ctx context.Context, next airquality.ActuatorState) error
}

// Actuator applies an accepted fan state to the physical world
type Actuator interface {
	Name() string
	Apply(ctx context.Context, st airquality.ActuatorState) error
}

// Publisher forwards events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// Report is the classification of the latest sample
type Report struct {
	Sample        *airquality.SensorSample   `json:"sample"`
	Thresholds    airquality.ThresholdConfig `json:"thresholds"`
	Notifications []airquality.Notification  `json:"notifications"`
	Summary       airquality.Summary         `json:"summary"`
}

// Evaluation is the outcome of one evaluation cycle
type Evaluation struct {
	Report
	Mode        airquality.Mode           `json:"mode"`
	Skipped     bool                      `json:"skipped"`
	Decision    *airquality.Decision      `json:"decision,omitempty"`
	State       *airquality.ActuatorState `json:"state,omitempty"`
	Persisted   bool                      `json:"persisted"`
	EvaluatedAt time.Time                 `json:"evaluated_at"`
}

// Evaluator runs the classify/decide/append cycle against a store
type Evaluator struct {
	store     Store
	actuators []Actuator
	publisher Publisher

	mu      sync.Mutex
	window  atomic.Int64
	trigger chan struct{}

	// Accepted states and events are handed to one worker so a slow broker
	// or relay never holds mu. pending keeps only the newest state.
	pending        chan airquality.ActuatorState
	events         chan events.Event
	done           chan struct{}
	stopped        chan struct{}
	closeOnce      sync.Once
	actuateTimeout time.Duration
	publishTimeout time.Duration

	now   func() time.Time
	newID func() string
}

// New creates an evaluator with the given OFF hysteresis window
func New(store Store, window time.Duration) *Evaluator {
	e := &Evaluator{
		store:   store,
		trigger: make(chan struct{}, 1),

		pending:        make(chan airquality.ActuatorState, 1),
		events:         make(chan events.Event, eventQueueSize),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
		actuateTimeout: defaultActuateTimeout,
		publishTimeout: defaultPublishTimeout,

		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	e.SetWindow(window)
	go e.dispatch()
	return e
}

// Close applies whatever is still queued and stops the dispatch worker.
func (e *Evaluator) Close() {
	e.closeOnce.Do(func() { close(e.done) })
	<-e.stopped
}

// AddActuator registers an actuator. Call it before the first evaluation.
func (e *Evaluator) AddActuator(a Actuator) {
	e.actuators = append(e.actuators, a)
}

// SetPublisher sets the event publisher. Call it before the first evaluation.
func (e *Evaluator) SetPublisher(p Publisher) {
	e.publisher = p
}

// SetWindow changes the hysteresis window; used on config reload
func (e *Evaluator) SetWindow(window time.Duration) {
	if window < 0 {
		window = 0
	}
	e.window.Store(int64(window))
}

// Window returns the current hysteresis window
func (e *Evaluator) Window() time.Duration {
	return time.Duration(e.window.Load())
}

// Notifications classifies the latest sample without deciding anything
func (e *Evaluator) Notifications(ctx context.Context) (*Report, error) {
	return e.report(ctx)
}

func (e *Evaluator) report(ctx context.Context) (*Report, error) {
	sample, err := e.store.LatestReading(ctx)
	if err != nil {
		return nil, fmt.Errorf("read latest sample: %w", err)
	}

	th, err := e.thresholds(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		Sample:        sample,
		Thresholds:    th,
		Notifications: airquality.Classify(sample, th),
		Summary:       airquality.Summarize(sample, th),
	}, nil
}

func (e *Evaluator) thresholds(ctx context.Context) (airquality.ThresholdConfig, error) {
	th, err := e.store.LatestSettings(ctx)
	if err != nil {
		return airquality.ThresholdConfig{}, fmt.Errorf("read thresholds: %w", err)
	}
	if th == nil {
		return airquality.DefaultThresholds(), nil
	}
	return *th, nil
}

// Evaluate runs one cycle. In manual mode the cycle stops after
// classification. A lost compare-and-append is retried from a fresh read.
func (e *Evaluator) Evaluate(ctx context.Context) (*Evaluation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for attempt := 1; ; attempt++ {
		ev, err := e.evaluateOnce(ctx)
		if err == nil {
			e.finish(ev)
			return ev, nil
		}

		if !errors.Is(err, storage.ErrStaleState) {
			metrics.Evaluations.WithLabelValues("error").Inc()
			return nil, err
		}

		metrics.StaleStateConflicts.Inc()
		if attempt >= maxAttempts {
			metrics.Evaluations.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("evaluate: gave up after %d attempts: %w", attempt, err)
		}
		logger.Warn("fan state changed during evaluation, retrying (attempt %d)", attempt)
	}
}

func (e *Evaluator) evaluateOnce(ctx context.Context) (*Evaluation, error) {
	rep, err := e.report(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	ev := &Evaluation{
		Report:      *rep,
		Mode:        rep.Thresholds.Mode,
		EvaluatedAt: now,
	}

	if rep.Thresholds.Mode == airquality.ModeManual {
		ev.Skipped = true
		return ev, nil
	}

	last, err := e.store.LatestFanState(ctx)
	if err != nil {
		return nil, fmt.Errorf("read fan state: %w", err)
	}

	decision := airquality.Decide(rep.Notifications, last, now, e.Window())
	ev.Decision = &decision
	ev.State = last

	if !decision.ShouldPersist {
		return ev, nil
	}

	next := airquality.ActuatorState{
		ID:        e.newID(),
		PrevID:    idOf(last),
		Desired:   decision.Desired,
		Source:    airquality.SourceAuto,
		UpdatedAt: now,
	}
	if err := e.store.AppendFanState(ctx, next); err != nil {
		return nil, fmt.Errorf("append fan state: %w", err)
	}

	ev.State = &next
	ev.Persisted = true
	return ev, nil
}

func (e *Evaluator) finish(ev *Evaluation) {
	rule := ruleSkipped
	if ev.Decision != nil {
		rule = string(ev.Decision.Rule)
	}
	metrics.Evaluations.WithLabelValues(rule).Inc()

	for _, n := range ev.Notifications {
		metrics.Notifications.WithLabelValues(string(n.Severity), string(n.Pollutant)).Inc()
	}

	if ev.Persisted {
		logger.Info("fan %s by rule %s", onOff(ev.State.Desired), rule)
		e.actuate(*ev.State)
	}

	e.publish(events.Event{
		Type:          events.TypeEvaluation,
		Time:          ev.EvaluatedAt,
		Mode:          ev.Mode,
		Sample:        ev.Sample,
		Notifications: ev.Notifications,
		Summary:       &ev.Summary,
		Decision:      ev.Decision,
		State:         ev.State,
	})
}

// Command appends an operator-issued fan state and actuates it. It is
// accepted in both modes.
func (e *Evaluator) Command(ctx context.Context, desired bool) (*airquality.ActuatorState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for attempt := 1; ; attempt++ {
		last, err := e.store.LatestFanState(ctx)
		if err != nil {
			return nil, fmt.Errorf("read fan state: %w", err)
		}

		next := airquality.ActuatorState{
			ID:        e.newID(),
			PrevID:    idOf(last),
			Desired:   desired,
			Source:    airquality.SourceManual,
			UpdatedAt: e.now(),
		}

		err = e.store.AppendFanState(ctx, next)
		if err == nil {
			logger.Info("fan %s by operator command", onOff(desired))
			e.actuate(next)
			e.publish(events.Event{Type: events.TypeFanState, Time: next.UpdatedAt, State: &next})
			return &next, nil
		}

		if !errors.Is(err, storage.ErrStaleState) {
			return nil, fmt.Errorf("append fan state: %w", err)
		}
		metrics.StaleStateConflicts.Inc()
		if attempt >= maxAttempts {
			return nil, fmt.Errorf("command: gave up after %d attempts: %w", attempt, err)
		}
	}
}

// Sync pushes the latest persisted state to the actuators
func (e *Evaluator) Sync(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	last, err := e.store.LatestFanState(ctx)
	if err != nil {
		return fmt.Errorf("read fan state: %w", err)
	}
	if last == nil {
		logger.Info("no fan state recorded yet, nothing to sync")
		return nil
	}

	e.actuate(*last)
	return nil
}

// actuate queues st for the actuators, replacing any state not yet applied.
// Callers hold mu so states are queued in commit order.
func (e *Evaluator) actuate(st airquality.ActuatorState) {
	if st.Desired {
		metrics.FanDesired.Set(1)
	} else {
		metrics.FanDesired.Set(0)
	}

	for {
		select {
		case e.pending <- st:
			return
		default:
		}
		select {
		case <-e.pending:
		default:
		}
	}
}

func (e *Evaluator) publish(ev events.Event) {
	if e.publisher == nil {
		return
	}
	select {
	case e.events <- ev:
	default:
		logger.Warn("event queue full, dropping %s event", ev.Type)
	}
}

func (e *Evaluator) dispatch() {
	defer close(e.stopped)

	for {
		select {
		case st := <-e.pending:
			e.apply(st)
		case ev := <-e.events:
			e.send(ev)
		case <-e.done:
			for {
				select {
				case st := <-e.pending:
					e.apply(st)
				case ev := <-e.events:
					e.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (e *Evaluator) apply(st airquality.ActuatorState) {
	for _, a := range e.actuators {
		ctx, cancel := context.WithTimeout(context.Background(), e.actuateTimeout)
		err := a.Apply(ctx, st)
		cancel()
		if err != nil {
			metrics.ActuatorFailures.WithLabelValues(a.Name()).Inc()
			logger.Error("actuator %s failed to apply fan state %s: %v", a.Name(), st.ID, err)
		}
	}
}

func (e *Evaluator) send(ev events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), e.publishTimeout)
	defer cancel()
	if err := e.publisher.Publish(ctx, ev); err != nil {
		logger.Warn("failed to publish %s event: %v", ev.Type, err)
	}
}

// Trigger requests an evaluation from Run. Requests made while one is
// pending are coalesced.
func (e *Evaluator) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Run evaluates on every tick of interval and on Trigger until ctx is done.
// A non-positive interval disables the ticker.
func (e *Evaluator) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-e.trigger:
		}

		if _, err := e.Evaluate(ctx); err != nil && ctx.Err() == nil {
			logger.Error("evaluation failed: %v", err)
		}
	}
}

func idOf(st *airquality.ActuatorState) string {
	if st == nil {
		return ""
	}
	return st.ID
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
