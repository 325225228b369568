package pipeline

import (
	"context"
	"sync"

	"tolk/language"
)

// Runner is a serial event loop around a Pipeline for callers without
// their own (headless mode, tests). Transitions and completions are
// applied one at a time; tasks run on their own goroutines.
type Runner struct {
	p      *Pipeline
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	observers []func(State)
	inflight  sync.WaitGroup
}

func NewRunner(p *Pipeline, initial State) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{p: p, ctx: ctx, cancel: cancel, state: initial}
}

// Observe registers fn to be called with every new state, on the
// goroutine that produced it, while the runner's lock is held.
func (r *Runner) Observe(fn func(State)) {
	r.mu.Lock()
	r.observers = append(r.observers, fn)
	r.mu.Unlock()
}

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Do applies t and starts its task, if any.
func (r *Runner) Do(t Transition) State {
	r.mu.Lock()
	next, task := t(r.state)
	r.setLocked(next)
	r.startLocked(task)
	r.mu.Unlock()
	return next
}

func (r *Runner) setLocked(s State) {
	r.state = s
	for _, fn := range r.observers {
		fn(s)
	}
}

// startLocked must be called with r.mu held so Wait cannot observe a
// zero counter between a transition and its task.
func (r *Runner) startLocked(task Task) {
	if task == nil {
		return
	}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		ev := task(r.ctx)
		if ev == nil {
			return
		}
		r.mu.Lock()
		next, follow := r.p.Apply(r.state, ev)
		r.setLocked(next)
		r.startLocked(follow)
		r.mu.Unlock()
	}()
}

// Wait blocks until every started task has completed and been applied.
func (r *Runner) Wait() {
	r.inflight.Wait()
}

// Close abandons tasks that are still waiting, such as playback watchers.
func (r *Runner) Close() {
	r.cancel()
}

func (r *Runner) StartRecording() State  { return r.Do(r.p.StartRecording) }
func (r *Runner) StopRecording() State   { return r.Do(r.p.StopRecording) }
func (r *Runner) ToggleRecording() State { return r.Do(r.p.ToggleRecording) }
func (r *Runner) Play() State            { return r.Do(r.p.Play) }
func (r *Runner) StopPlayback() State    { return r.Do(r.p.StopPlayback) }
func (r *Runner) Reset() State           { return r.Do(r.p.Reset) }
func (r *Runner) Save() State            { return r.Do(r.p.Save) }
func (r *Runner) FocusLost() State       { return r.Do(r.p.FocusLost) }
func (r *Runner) FocusGained() State     { return r.Do(r.p.FocusGained) }

func (r *Runner) Translate(lang language.Target) State {
	return r.Do(func(s State) (State, Task) { return r.p.Translate(s, lang) })
}

func (r *Runner) EditTranscript(text string) State {
	return r.Do(func(s State) (State, Task) { return r.p.EditTranscript(s, text) })
}

func (r *Runner) SetCredential(cred string) State {
	return r.Do(func(s State) (State, Task) { return r.p.SetCredential(s, cred) })
}
