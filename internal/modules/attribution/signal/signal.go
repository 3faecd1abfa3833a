// Package signal is the side-channel the attribution engine reports lifecycle
// and modifier events through. Emitters must never fail or panic.
package signal

import (
	"context"
	"sync"
)

const (
	WorkflowLifecycle = "workflow.lifecycle"
	ReviewPenalty     = "skill.review_penalty"
	ReviewBonus       = "skill.review_bonus"
	Finalized         = "skill.finalized"
	Triage            = "attribution.triage"
	Delivery          = "attribution.delivery"
)

type Emitter interface {
	// Emit counts one occurrence of name:tag; kv carries identifiers for logs.
	Emit(name, tag string, kv ...any)
	ObserveDelta(tenant string, delta float64)
	ObserveTimeToMerge(tenant string, seconds float64)
}

type Nop struct{}

func (Nop) Emit(string, string, ...any)        {}
func (Nop) ObserveDelta(string, float64)       {}
func (Nop) ObserveTimeToMerge(string, float64) {}

// OrNop returns e, or a no-op emitter when e is nil.
func OrNop(e Emitter) Emitter {
	if e == nil {
		return Nop{}
	}
	return e
}

// Recorder keeps every emission in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	counts map[string]int
	deltas []float64
}

func (r *Recorder) Emit(name, tag string, _ ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[name+":"+tag]++
}

func (r *Recorder) ObserveDelta(_ string, delta float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = append(r.deltas, delta)
}

func (r *Recorder) ObserveTimeToMerge(string, float64) {}

// Count returns how often name:tag was emitted.
func (r *Recorder) Count(name, tag string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name+":"+tag]
}

func (r *Recorder) Deltas() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.deltas...)
}

// Buffer holds emissions made inside a transaction until Flush. The zero value
// is ready to use.
type Buffer struct {
	mu    sync.Mutex
	calls []func(Emitter)
}

func (b *Buffer) add(fn func(Emitter)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, fn)
}

func (b *Buffer) Emit(name, tag string, kv ...any) {
	b.add(func(e Emitter) { e.Emit(name, tag, kv...) })
}

func (b *Buffer) ObserveDelta(tenant string, delta float64) {
	b.add(func(e Emitter) { e.ObserveDelta(tenant, delta) })
}

func (b *Buffer) ObserveTimeToMerge(tenant string, seconds float64) {
	b.add(func(e Emitter) { e.ObserveTimeToMerge(tenant, seconds) })
}

// Flush replays the held emissions into to, in order, and empties the buffer.
func (b *Buffer) Flush(to Emitter) {
	if b == nil {
		return
	}
	b.mu.Lock()
	calls := b.calls
	b.calls = nil
	b.mu.Unlock()
	to = OrNop(to)
	for _, fn := range calls {
		fn(to)
	}
}

func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

type bufferKey struct{}

// WithBuffer routes emissions made under ctx into b.
func WithBuffer(ctx context.Context, b *Buffer) context.Context {
	return context.WithValue(ctx, bufferKey{}, b)
}

// For returns the buffer carried by ctx, or fallback when there is none.
func For(ctx context.Context, fallback Emitter) Emitter {
	if ctx != nil {
		if b, ok := ctx.Value(bufferKey{}).(*Buffer); ok && b != nil {
			return b
		}
	}
	return OrNop(fallback)
}
