package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Faultbox/flexsync/internal/scene"
	"github.com/Faultbox/flexsync/internal/solver"
)

var errBoom = errors.New("boom")

// recorder is a solver.Backend that counts calls and keeps the last value of
// every push.
type recorder struct {
	mu sync.Mutex

	next      solver.Handle
	live      map[solver.Handle]bool
	calls     map[string]int
	created   int
	destroyed int

	// failStep makes every Step fail; blockStep makes Step wait for its ctx.
	failStep  error
	blockStep bool
	notReady  bool

	inflight    atomic.Int32
	maxInflight atomic.Int32

	params   solver.Params
	geometry solver.CollisionGeometry
	fields   []solver.ForceField
	scene    scene.FlatScene
}

func newRecorder() *recorder {
	return &recorder{live: make(map[solver.Handle]bool), calls: make(map[string]int)}
}

func (r *recorder) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *recorder) record(h solver.Handle, op string, apply func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.live[h] {
		return errors.New("dead handle")
	}
	r.calls[op]++
	if apply != nil {
		apply()
	}
	return nil
}

func (r *recorder) Create(ctx context.Context, opts solver.SolverOptions) (solver.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.live[r.next] = true
	r.created++
	return r.next, nil
}

func (r *recorder) Destroy(h solver.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, h)
	r.destroyed++
	return nil
}

func (r *recorder) SetSolverOptions(h solver.Handle, opts solver.SolverOptions) error {
	return r.record(h, "options", nil)
}

func (r *recorder) SetParams(h solver.Handle, p solver.Params) error {
	return r.record(h, "params", func() { r.params = p })
}

func (r *recorder) SetCollisionGeometry(h solver.Handle, g solver.CollisionGeometry) error {
	return r.record(h, "geometry", func() { r.geometry = g })
}

func (r *recorder) SetForceFields(h solver.Handle, fields []solver.ForceField) error {
	return r.record(h, "fields", func() { r.fields = append([]solver.ForceField(nil), fields...) })
}

func (r *recorder) SetScene(h solver.Handle, s scene.FlatScene) error {
	return r.record(h, "scene", func() { r.scene = s })
}

func (r *recorder) Step(ctx context.Context, h solver.Handle) (time.Duration, error) {
	n := r.inflight.Add(1)
	defer r.inflight.Add(-1)
	if n > r.maxInflight.Load() {
		r.maxInflight.Store(n)
	}
	if err := r.record(h, "step", nil); err != nil {
		return 0, err
	}
	if r.blockStep {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if r.failStep != nil {
		return 0, r.failStep
	}
	return time.Millisecond, nil
}

func (r *recorder) IsReady(h solver.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[h] && !r.notReady
}

func (r *recorder) setReady(ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notReady = !ready
}
