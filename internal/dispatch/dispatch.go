// Package dispatch runs blocking work off the update loop and delivers its
// results back through the program's message queue.
//
// Tasks started with Go are single-flight per key: starting a task cancels the
// previous task under the same key and bumps the key's generation. Every
// message such a task emits is wrapped in an Envelope, and Open discards
// envelopes whose generation is no longer current.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/comigor/chatgpt-local/internal/logger"
)

// Notifier is a FIFO queue drained by the update loop. *tea.Program
// satisfies it.
type Notifier interface {
	Send(msg tea.Msg)
}

// Envelope tags a message with the task that produced it.
type Envelope struct {
	Key string
	Gen uint64
	Msg tea.Msg
}

// Task is a unit of blocking work. Messages passed to emit reach the update
// loop in call order; after ctx is cancelled they are dropped.
type Task func(ctx context.Context, emit func(tea.Msg)) error

type flight struct {
	gen    uint64
	cancel context.CancelFunc
}

type Dispatcher struct {
	mu       sync.Mutex
	notifier Notifier
	gens     map[string]uint64
	inflight map[string]flight

	ctx  context.Context
	stop context.CancelFunc
	wg   conc.WaitGroup
}

func New() *Dispatcher {
	ctx, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		gens:     make(map[string]uint64),
		inflight: make(map[string]flight),
		ctx:      ctx,
		stop:     stop,
	}
}

// Bind sets the queue messages are delivered to. The program is created after
// the model that owns the dispatcher, so binding happens late.
func (d *Dispatcher) Bind(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifier = n
}

// Go starts task as the current flight of key and returns its generation.
func (d *Dispatcher) Go(key string, task Task) uint64 {
	d.mu.Lock()
	if prev, ok := d.inflight[key]; ok {
		prev.cancel()
	}
	d.gens[key]++
	gen := d.gens[key]
	ctx, cancel := context.WithCancel(d.ctx)
	d.inflight[key] = flight{gen: gen, cancel: cancel}
	d.mu.Unlock()

	logger.L.Debug("task started", "key", key, "gen", gen)
	d.wg.Go(func() {
		defer d.finish(key, gen, cancel)
		emit := func(msg tea.Msg) {
			if ctx.Err() != nil {
				return
			}
			d.send(Envelope{Key: key, Gen: gen, Msg: msg})
		}
		d.run(ctx, key, task, emit)
	})
	return gen
}

// Spawn runs task without single-flight tracking. Its messages are delivered
// unwrapped. Used for writes that must never supersede each other.
func (d *Dispatcher) Spawn(name string, task Task) {
	ctx := d.ctx
	d.wg.Go(func() {
		emit := func(msg tea.Msg) {
			if ctx.Err() != nil {
				return
			}
			d.send(msg)
		}
		d.run(ctx, name, task, emit)
	})
}

// Cancel stops the current flight of key. Messages it already queued become
// stale.
func (d *Dispatcher) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.inflight[key]; ok {
		f.cancel()
		delete(d.inflight, key)
	}
	d.gens[key]++
}

// Current returns the generation of the latest task started under key.
func (d *Dispatcher) Current(key string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gens[key]
}

// Open unwraps an Envelope. It returns false for envelopes from a superseded
// or cancelled task. Other messages pass through unchanged.
func (d *Dispatcher) Open(msg tea.Msg) (tea.Msg, bool) {
	env, ok := msg.(Envelope)
	if !ok {
		return msg, true
	}
	if env.Gen != d.Current(env.Key) {
		logger.L.Debug("dropping stale message", "key", env.Key, "gen", env.Gen)
		return nil, false
	}
	return env.Msg, true
}

// Wait blocks until every task has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Close cancels every keyed task and waits for all tasks. Spawned tasks are
// left to complete so pending writes are not lost.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	for key, f := range d.inflight {
		f.cancel()
		delete(d.inflight, key)
		d.gens[key]++
	}
	d.mu.Unlock()
	d.wg.Wait()
	d.stop()
}

func (d *Dispatcher) run(ctx context.Context, key string, task Task, emit func(tea.Msg)) {
	var err error
	var pc panics.Catcher
	pc.Try(func() { err = task(ctx, emit) })

	if r := pc.Recovered(); r != nil {
		logger.L.Error("task panicked", "key", key, "panic", r.Value, "stack", string(r.Stack))
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.L.Error("task failed", "key", key, "error", err)
	}
}

func (d *Dispatcher) finish(key string, gen uint64, cancel context.CancelFunc) {
	cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.inflight[key]; ok && f.gen == gen {
		delete(d.inflight, key)
	}
}

func (d *Dispatcher) send(msg tea.Msg) {
	d.mu.Lock()
	n := d.notifier
	d.mu.Unlock()
	if n == nil {
		logger.L.Warn("dispatch: no notifier bound, dropping message", "type", fmt.Sprintf("%T", msg))
		return
	}
	n.Send(msg)
}
