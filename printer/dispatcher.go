package printer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fornellas/slogxt/log"

	"github.com/fornellas/fdm/broker"
	"github.com/fornellas/fdm/gcode"
)

// Status of a print job.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusPrinting Status = "printing"
	StatusPaused   Status = "paused"
	StatusStopped  Status = "stopped"
	StatusFinished Status = "finished"
)

// Active returns true for printing or paused.
func (s Status) Active() bool {
	return s == StatusPrinting || s == StatusPaused
}

// Job is a snapshot of the current (or last) print job.
type Job struct {
	Status  Status
	Current int
	Total   int
	// Err is why the job was stopped, when not stopped by Dispatcher.Stop.
	Err error
}

// Progress returns floor(100 * Current / Total), or 0 when Total is 0.
func (j Job) Progress() int {
	if j.Total == 0 {
		return 0
	}
	return 100 * j.Current / j.Total
}

// DispatcherOptions tune the print loop.
type DispatcherOptions struct {
	// AckTimeout is how long to wait for each command's acknowledgement. Commands not acknowledged
	// in time are considered sent.
	AckTimeout time.Duration
	// CommandDelay is the pause between commands.
	CommandDelay time.Duration
	// PausePoll is how often a paused loop re-checks its state.
	PausePoll time.Duration
	// StopTimeout is how long Stop waits for the loop to exit.
	StopTimeout time.Duration
}

var DefaultDispatcherOptions = DispatcherOptions{
	AckTimeout:   10 * time.Second,
	CommandDelay: 10 * time.Millisecond,
	PausePoll:    100 * time.Millisecond,
	StopTimeout:  2 * time.Second,
}

// Dispatcher streams commands one at a time, waiting for each acknowledgement.
type Dispatcher struct {
	correlator *Correlator
	state      *State
	events     *broker.Broker[Event]
	options    DispatcherOptions

	mu       sync.Mutex
	status   Status
	commands []*gcode.Command
	current  int
	err      error
	// generation identifies the loop owning the job: loops from previous jobs must not touch it.
	generation uint64
	cancel     context.CancelFunc
	stopCh     chan struct{}
	wakeCh     chan struct{}
	doneCh     chan struct{}
}

func NewDispatcher(
	correlator *Correlator,
	state *State,
	events *broker.Broker[Event],
	options DispatcherOptions,
) *Dispatcher {
	return &Dispatcher{
		correlator: correlator,
		state:      state,
		events:     events,
		options:    options,
		status:     StatusIdle,
	}
}

// Job returns a snapshot of the current job.
func (d *Dispatcher) Job() Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Job{
		Status:  d.status,
		Current: d.current,
		Total:   len(d.commands),
		Err:     d.err,
	}
}

// Active returns true while printing or paused.
func (d *Dispatcher) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status.Active()
}

func (d *Dispatcher) setStatus(status Status) {
	d.status = status
	d.events.Publish(StatusEvent{Status: status})
}

func (d *Dispatcher) wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

// Start begins printing commands on a new goroutine. It returns false, doing nothing, when a job
// is already active. ctx is only used for its logger.
func (d *Dispatcher) Start(ctx context.Context, commands []*gcode.Command) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status.Active() {
		return false
	}

	d.commands = commands
	d.current = 0
	d.err = nil
	d.generation++
	d.stopCh = make(chan struct{})
	d.wakeCh = make(chan struct{}, 1)
	d.doneCh = make(chan struct{})
	var loopCtx context.Context
	loopCtx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))

	d.correlator.Drain()
	d.setStatus(StatusPrinting)

	go d.loop(loopCtx, d.generation, commands, d.stopCh, d.wakeCh, d.doneCh)

	return true
}

// Pause is only effective while printing. The command in flight, if any, completes.
func (d *Dispatcher) Pause() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusPrinting {
		return false
	}
	d.setStatus(StatusPaused)
	return true
}

// Resume is only effective while paused.
func (d *Dispatcher) Resume() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusPaused {
		return false
	}
	d.setStatus(StatusPrinting)
	d.wake()
	return true
}

// Stop stops an active job, then waits for the print loop to exit, bounded by
// DispatcherOptions.StopTimeout. Waiting for the acknowledgement of the command in flight, if any,
// is abandoned, and the command is not accounted as printed. It returns false when no job is
// active.
func (d *Dispatcher) Stop() bool {
	d.mu.Lock()
	if !d.status.Active() {
		d.mu.Unlock()
		return false
	}
	d.setStatus(StatusStopped)
	close(d.stopCh)
	d.cancel()
	doneCh := d.doneCh
	d.mu.Unlock()

	select {
	case <-doneCh:
	case <-time.After(d.options.StopTimeout):
	}
	return true
}

// Wait blocks until the print loop of the current job exits, or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) (Job, error) {
	d.mu.Lock()
	doneCh := d.doneCh
	d.mu.Unlock()
	if doneCh != nil {
		select {
		case <-doneCh:
		case <-ctx.Done():
			return d.Job(), ctx.Err()
		}
	}
	return d.Job(), nil
}

// lockOwned locks d.mu and returns true if the loop of generation still owns an active job.
// Otherwise, it unlocks and returns false.
func (d *Dispatcher) lockOwned(generation uint64) bool {
	d.mu.Lock()
	if d.generation != generation || !d.status.Active() {
		d.mu.Unlock()
		return false
	}
	return true
}

//gocyclo:ignore
func (d *Dispatcher) loop(
	ctx context.Context,
	generation uint64,
	commands []*gcode.Command,
	stopCh chan struct{},
	wakeCh chan struct{},
	doneCh chan struct{},
) {
	ctx, logger := log.MustWithGroup(ctx, "Dispatcher")
	defer close(doneCh)
	defer func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.generation == generation {
			d.cancel()
		}
	}()

	logger.Info("Started", "commands", len(commands))

	for {
		if !d.lockOwned(generation) {
			logger.Info("Stopped")
			return
		}
		if d.current >= len(commands) {
			d.setStatus(StatusFinished)
			d.mu.Unlock()
			logger.Info("Finished")
			return
		}
		if d.status == StatusPaused {
			d.mu.Unlock()
			select {
			case <-wakeCh:
			case <-stopCh:
			case <-time.After(d.options.PausePoll):
			}
			continue
		}
		command := commands[d.current]
		d.mu.Unlock()

		response, err := d.correlator.Send(ctx, command.Code(), d.options.AckTimeout)

		if !d.lockOwned(generation) {
			logger.Info("Stopped")
			return
		}
		if err == nil {
			err = ResponseErr(response)
		}
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				logger.Warn("Command not acknowledged", "line", command.LineNumber, "command", command.Code())
			} else {
				d.err = fmt.Errorf("printer: line %d: %w", command.LineNumber, err)
				d.setStatus(StatusStopped)
				d.mu.Unlock()
				logger.Error("Aborted", "line", command.LineNumber, "err", err)
				return
			}
		}
		d.current++
		d.events.Publish(ProgressEvent{
			Progress: 100 * d.current / len(commands),
			Current:  d.current,
			Total:    len(commands),
		})
		if position, ok := d.state.ApplyCommand(command); ok {
			d.events.Publish(PositionEvent{Position: position})
		}
		d.mu.Unlock()

		select {
		case <-stopCh:
		case <-time.After(d.options.CommandDelay):
		}
	}
}
