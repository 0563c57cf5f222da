package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/flexsync/internal/scene"
	"github.com/Faultbox/flexsync/internal/solver"
	"github.com/Faultbox/flexsync/internal/solver/memory"
	"github.com/Faultbox/flexsync/internal/tracker"
)

func line(n int) []float32 {
	out := make([]float32, 0, 3*n)
	for i := 0; i < n; i++ {
		out = append(out, float32(i), 0, 0)
	}
	return out
}

func fluid(tok tracker.Token) *scene.Fluid {
	return &scene.Fluid{Header: scene.Header{Token: tok}, Positions: line(10), InvMasses: []float32{1}}
}

func cloth(tok tracker.Token, stretch float32) *scene.Cloth {
	return &scene.Cloth{
		Header:           scene.Header{Token: tok},
		Positions:        []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0},
		InvMasses:        []float32{1},
		Triangles:        []int{0, 1, 3, 1, 2, 3},
		StretchStiffness: stretch,
	}
}

// scenario is the fluid-then-cloth input; every call builds fresh objects the
// way an upstream producer would.
func scenario(clothTok tracker.Token, stretch float32) Input {
	params := solver.DefaultParams()
	params.Token = 100
	return Input{
		Params:  &params,
		Objects: []scene.Object{fluid(1), cloth(clothTok, stretch)},
	}
}

func reset(in Input) Input {
	in.Reset = true
	return in
}

func step(in Input) Input {
	in.Go = true
	return in
}

func started(t *testing.T, b solver.Backend, in Input, opts ...Option) *Controller {
	t.Helper()
	c := New(b, opts...)
	rep, err := c.Cycle(context.Background(), reset(in))
	require.NoError(t, err)
	require.NoError(t, rep.Diagnostics)
	require.Equal(t, Idle, rep.State)
	return c
}

func TestNoInputIsNoop(t *testing.T) {
	c := New(newRecorder())
	rep, err := c.Cycle(context.Background(), Input{})
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, rep.State)
	assert.Zero(t, rep.Pushes.Total())
}

func TestGoBeforeReset(t *testing.T) {
	c := New(newRecorder())
	_, err := c.Cycle(context.Background(), step(scenario(2, 0.8)))
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, Uninitialized, c.State())
}

func TestResetRegistersEverything(t *testing.T) {
	rec := newRecorder()
	c := New(rec)
	rep, err := c.Cycle(context.Background(), reset(scenario(2, 0.8)))
	require.NoError(t, err)

	assert.True(t, rep.Reset)
	assert.Equal(t, Idle, rep.State)
	assert.Equal(t, 2, rep.Pushes.Registers)
	assert.Equal(t, 1, rep.Pushes.Params)
	assert.Equal(t, 1, rep.Pushes.Scene)
	assert.Zero(t, rep.Steps)
	assert.Equal(t, 14, c.Len())

	off, ok := c.Offset(1)
	require.True(t, ok)
	assert.Equal(t, 10, off)
	assert.Equal(t, 14, rec.scene.NumParticles())
	assert.Equal(t, 5, rec.scene.NumSprings())
}

func TestResetWinsOverGo(t *testing.T) {
	rec := newRecorder()
	c := New(rec)
	in := reset(step(scenario(2, 0.8)))
	rep, err := c.Cycle(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, rep.Reset)
	assert.Zero(t, rep.Steps)
	assert.Zero(t, rec.count("step"))
}

func TestUnchangedTokensPushNothing(t *testing.T) {
	rec := newRecorder()
	c := started(t, rec, scenario(2, 0.8))

	for i := 0; i < 3; i++ {
		rep, err := c.Cycle(context.Background(), step(scenario(2, 0.8)))
		require.NoError(t, err)
		assert.Zero(t, rep.Pushes.Total(), "cycle %d", i)
		assert.Equal(t, 1, rep.Steps)
	}
	assert.Equal(t, 1, rec.count("scene"))
	assert.Equal(t, 3, rec.count("step"))
	assert.Equal(t, 14, c.Len())
}

func TestUpdateAltersInPlace(t *testing.T) {
	rec := newRecorder()
	c := started(t, rec, scenario(2, 0.8))

	rep, err := c.Cycle(context.Background(), step(scenario(3, 0.25)))
	require.NoError(t, err)
	require.NoError(t, rep.Diagnostics)
	assert.Equal(t, solver.Update, rep.Mode)
	assert.Equal(t, 1, rep.Pushes.Alters)
	assert.Zero(t, rep.Pushes.Registers)
	assert.Equal(t, 1, rep.Pushes.Scene)
	assert.Equal(t, 14, c.Len())

	set, err := c.Constraints()
	require.NoError(t, err)
	require.Len(t, set.Springs, 5)
	for _, s := range set.Springs {
		assert.Equal(t, float32(0.25), s.Stiffness)
	}
	for _, k := range rec.scene.SpringStiffness {
		assert.Equal(t, float32(0.25), k)
	}
}

func TestUpdateCountMismatch(t *testing.T) {
	rec := newRecorder()
	c := started(t, rec, scenario(2, 0.8))
	before, err := c.Snapshot(10, 4)
	require.NoError(t, err)

	in := scenario(3, 0.25)
	grown := cloth(3, 0.25)
	grown.Positions = append(grown.Positions, 2, 2, 0)
	in.Objects[1] = grown

	rep, err := c.Cycle(context.Background(), step(in))
	require.NoError(t, err, "a count mismatch does not fault the session")
	assert.ErrorIs(t, rep.Diagnostics, scene.ErrCountMismatch)
	assert.Zero(t, rep.Pushes.Alters)
	assert.Zero(t, rep.Pushes.Scene)
	assert.Equal(t, 1, rep.Steps)
	assert.Equal(t, Idle, rep.State)
	assert.Equal(t, 14, c.Len())

	after, err := c.Snapshot(10, 4)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAppendGrowsBuffer(t *testing.T) {
	opts := solver.DefaultSolverOptions()
	opts.SceneMode = solver.Append
	in := scenario(2, 0.8)
	in.Options = &opts
	c := started(t, newRecorder(), in)

	next := scenario(3, 0.25)
	next.Options = &opts
	rep, err := c.Cycle(context.Background(), step(next))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pushes.Registers)
	assert.Zero(t, rep.Pushes.Alters)
	assert.Equal(t, 18, c.Len())

	off, ok := c.Offset(1)
	require.True(t, ok)
	assert.Equal(t, 14, off, "the newest slice supersedes the old one")

	regs, err := c.Registrations()
	require.NoError(t, err)
	assert.Len(t, regs, 3, "the superseded slice stays in the buffer")
}

func TestNewSlotRegisteredInAnyMode(t *testing.T) {
	c := started(t, newRecorder(), scenario(2, 0.8))

	in := scenario(2, 0.8)
	in.Objects = append(in.Objects, fluid(9))
	rep, err := c.Cycle(context.Background(), step(in))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pushes.Registers)
	assert.Equal(t, 24, c.Len())

	off, ok := c.Offset(2)
	require.True(t, ok)
	assert.Equal(t, 14, off)
}

func TestShrinkIsReported(t *testing.T) {
	c := started(t, newRecorder(), scenario(2, 0.8))

	in := scenario(2, 0.8)
	in.Objects = in.Objects[:1]
	rep, err := c.Cycle(context.Background(), step(in))
	require.NoError(t, err)
	assert.ErrorIs(t, rep.Diagnostics, ErrListShrank)
	assert.Equal(t, 14, c.Len(), "nothing is removed")

	var shrink *ShrinkError
	require.ErrorAs(t, rep.Diagnostics, &shrink)
	assert.Equal(t, 2, shrink.Was)
	assert.Equal(t, 1, shrink.Now)
}

func TestLockFreezesInputs(t *testing.T) {
	rec := newRecorder()
	c := started(t, rec, scenario(2, 0.8))

	in := scenario(3, 0.25)
	in.Params.Token = 101
	in.Objects = append(in.Objects, fluid(9))
	in.Geometry = &solver.CollisionGeometry{Token: 5, Planes: []solver.Plane{{C: 1}}}
	in.Overlays = []Overlay{{Token: 6, Set: scene.ConstraintSet{Indexing: scene.GlobalIndexed, Anchors: []int{0}}}}
	in.Lock = true

	rep, err := c.Cycle(context.Background(), step(in))
	require.NoError(t, err)
	assert.Equal(t, solver.Lock, rep.Mode)
	assert.Zero(t, rep.Pushes.Total())
	assert.Equal(t, 1, rep.Steps)
	assert.Equal(t, 14, c.Len())
	assert.Equal(t, 1, rec.count("params"))
	assert.Zero(t, rec.count("geometry"))
}

func TestLockStillHonoursOptions(t *testing.T) {
	rec := newRecorder()
	c := started(t, rec, scenario(2, 0.8))

	opts := solver.DefaultSolverOptions()
	opts.Token = 42
	opts.FixedTotalIterations = 3
	in := scenario(2, 0.8)
	in.Options = &opts
	in.Lock = true

	rep, err := c.Cycle(context.Background(), step(in))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pushes.Options)
	assert.Equal(t, 3, rep.Steps)
	assert.Equal(t, 3, rec.count("step"))
	assert.Equal(t, int32(1), rec.maxInflight.Load(), "steps never overlap")
}

func TestGeometryRemovalPushesEmpty(t *testing.T) {
	rec := newRecorder()
	in := scenario(2, 0.8)
	in.Geometry = &solver.CollisionGeometry{Token: 5, Planes: []solver.Plane{{C: 1}}}
	c := started(t, rec, in)
	require.Len(t, rec.geometry.Planes, 1)

	rep, err := c.Cycle(context.Background(), step(scenario(2, 0.8)))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pushes.Geometry)
	assert.True(t, rec.geometry.Empty())

	rep, err = c.Cycle(context.Background(), step(scenario(2, 0.8)))
	require.NoError(t, err)
	assert.Zero(t, rep.Pushes.Geometry, "absent geometry is cleared once")
}

func TestForceFieldListResent(t *testing.T) {
	rec := newRecorder()
	fields := func(second tracker.Token) []solver.ForceField {
		return []solver.ForceField{
			{Token: 1, Radius: 1, Strength: 1},
			{Token: second, Radius: 2, Strength: -1, Mode: solver.FieldImpulse},
		}
	}
	in := scenario(2, 0.8)
	in.ForceFields = fields(2)
	c := started(t, rec, in)
	require.Len(t, rec.fields, 2)

	in = scenario(2, 0.8)
	in.ForceFields = fields(2)
	rep, err := c.Cycle(context.Background(), step(in))
	require.NoError(t, err)
	assert.Zero(t, rep.Pushes.ForceFields)

	in.ForceFields = fields(3)
	rep, err = c.Cycle(context.Background(), step(in))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pushes.ForceFields)
	assert.Len(t, rec.fields, 2, "the whole list is resent")

	in.ForceFields = nil
	rep, err = c.Cycle(context.Background(), step(in))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pushes.ForceFields)
	assert.Empty(t, rec.fields)
}

func TestInvalidForceFieldsReported(t *testing.T) {
	rec := newRecorder()
	in := scenario(2, 0.8)
	in.ForceFields = []solver.ForceField{{Token: 1, Radius: 0}}
	c := New(rec)
	rep, err := c.Cycle(context.Background(), reset(in))
	require.NoError(t, err)
	assert.ErrorIs(t, rep.Diagnostics, scene.ErrConfiguration)
	assert.Zero(t, rec.count("fields"))
	assert.Equal(t, Idle, c.State())
}

func TestOverlayTracking(t *testing.T) {
	rec := newRecorder()
	overlay := func(tok tracker.Token, a int) []Overlay {
		return []Overlay{{Token: tok, Set: scene.ConstraintSet{
			Indexing: scene.GlobalIndexed,
			Springs:  []scene.Spring{{A: 0, B: a, Length: 1, Stiffness: 1}},
		}}}
	}
	in := scenario(2, 0.8)
	in.Overlays = overlay(1, 13)
	c := started(t, rec, in)
	assert.Equal(t, 6, rec.scene.NumSprings())

	in.Overlays = overlay(1, 13)
	rep, err := c.Cycle(context.Background(), step(in))
	require.NoError(t, err)
	assert.Zero(t, rep.Pushes.Overlays)

	in.Overlays = overlay(2, 12)
	rep, err = c.Cycle(context.Background(), step(in))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pushes.Overlays)
	assert.Equal(t, 6, rec.scene.NumSprings(), "the slot is replaced, not duplicated")

	in.Overlays = overlay(3, 40)
	rep, err = c.Cycle(context.Background(), step(in))
	require.NoError(t, err)
	assert.ErrorIs(t, rep.Diagnostics, scene.ErrStaleReference)
}

func TestRejectedObjectIsDiagnostic(t *testing.T) {
	in := scenario(2, 0.8)
	in.Objects = append(in.Objects, &scene.Fluid{Header: scene.Header{Token: 7}, Positions: []float32{1, 2}, InvMasses: []float32{1}})
	c := New(newRecorder())
	rep, err := c.Cycle(context.Background(), reset(in))
	require.NoError(t, err)
	assert.ErrorIs(t, rep.Diagnostics, scene.ErrConfiguration)

	var slotErr *SlotError
	require.ErrorAs(t, rep.Diagnostics, &slotErr)
	assert.Equal(t, tracker.Key(tracker.SceneObject, 2), slotErr.Slot)
	_, ok := c.Offset(2)
	assert.False(t, ok)

	// a fixed object in the same slot is registered as new
	in = scenario(2, 0.8)
	in.Objects = append(in.Objects, fluid(8))
	rep, err = c.Cycle(context.Background(), step(in))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pushes.Registers)
	off, ok := c.Offset(2)
	require.True(t, ok)
	assert.Equal(t, 14, off)
}

func TestStepFailureFaults(t *testing.T) {
	rec := newRecorder()
	c := started(t, rec, scenario(2, 0.8))
	rec.failStep = errBoom

	rep, err := c.Cycle(context.Background(), step(scenario(2, 0.8)))
	assert.ErrorIs(t, err, ErrSolver)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, Faulted, rep.State)
	assert.ErrorIs(t, c.Err(), errBoom)

	rec.failStep = nil
	_, err = c.Cycle(context.Background(), step(scenario(2, 0.8)))
	assert.ErrorIs(t, err, ErrFaulted)
	assert.Equal(t, 1, rec.count("step"), "no automatic retry")

	rep, err = c.Cycle(context.Background(), reset(scenario(2, 0.8)))
	require.NoError(t, err)
	assert.Equal(t, Idle, rep.State)
	assert.NoError(t, c.Err())
	assert.Equal(t, 2, rec.created)
	assert.Equal(t, 1, rec.destroyed)
}

func TestResetClearsTracking(t *testing.T) {
	rec := newRecorder()
	c := started(t, rec, scenario(2, 0.8))
	_, err := c.Cycle(context.Background(), step(scenario(3, 0.25)))
	require.NoError(t, err)
	require.Equal(t, 1, c.Stats().Cycles)
	old := c.sess

	rep, err := c.Cycle(context.Background(), reset(scenario(3, 0.25)))
	require.NoError(t, err)
	assert.Zero(t, old.tracker.Len(tracker.SceneObject), "teardown drops the old tokens")
	assert.Nil(t, old.offsets)
	assert.Equal(t, 2, rep.Pushes.Registers, "every input is new after a reset")
	assert.Zero(t, rep.Pushes.Alters)
	assert.Equal(t, 14, c.Len())
	assert.Zero(t, c.Stats().Cycles)
	assert.Equal(t, 1, rec.destroyed)
}

func TestInterruptedStepFaults(t *testing.T) {
	rec := newRecorder()
	c := started(t, rec, scenario(2, 0.8))
	rec.blockStep = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rep, err := c.Cycle(ctx, step(scenario(2, 0.8)))
	assert.ErrorIs(t, err, ErrSolver)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Faulted, rep.State, "the backend was interrupted mid-step")
	assert.Zero(t, rep.Steps)
	assert.Equal(t, int32(0), rec.inflight.Load(), "the step finished before Cycle returned")
}

func TestCancelledBeforeStep(t *testing.T) {
	rec := newRecorder()
	c := started(t, rec, scenario(2, 0.8))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := c.Cycle(ctx, step(scenario(2, 0.8)))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrSolver)
	assert.Equal(t, Idle, rep.State, "no step was dispatched")
	assert.Zero(t, rec.count("step"))

	rep, err = c.Cycle(context.Background(), step(scenario(2, 0.8)))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Steps)
}

func TestHandleNotReady(t *testing.T) {
	rec := newRecorder()
	c := started(t, rec, scenario(2, 0.8))
	rec.setReady(false)

	rep, err := c.Cycle(context.Background(), step(scenario(3, 0.25)))
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, Idle, rep.State)
	assert.Zero(t, rep.Pushes.Total(), "nothing is pushed to a handle that is not ready")
	assert.Zero(t, rep.Steps)
	assert.Zero(t, rec.count("step"))
	assert.Zero(t, c.Stats().Cycles)

	rec.setReady(true)
	rep, err = c.Cycle(context.Background(), step(scenario(3, 0.25)))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pushes.Alters, "the change is picked up once the handle is ready")
	assert.Equal(t, 1, rep.Steps)
}

func TestStepTimeoutFaults(t *testing.T) {
	rec := newRecorder()
	c := started(t, rec, scenario(2, 0.8), WithStepTimeout(10*time.Millisecond))
	rec.blockStep = true

	rep, err := c.Cycle(context.Background(), step(scenario(2, 0.8)))
	assert.ErrorIs(t, err, ErrSolver)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Faulted, rep.State)
}

func TestInstrumentation(t *testing.T) {
	c := started(t, newRecorder(), scenario(2, 0.8))
	for i := 0; i < 4; i++ {
		_, err := c.Cycle(context.Background(), step(scenario(2, 0.8)))
		require.NoError(t, err)
	}
	st := c.Stats()
	assert.Equal(t, 4, st.Cycles)
	assert.Equal(t, 4, st.Steps)
	assert.GreaterOrEqual(t, st.Total, st.StepTotal)
	assert.Equal(t, st.Total/4, st.Average())
	assert.Equal(t, st.Total-st.StepTotal, st.Bookkeeping())
	assert.GreaterOrEqual(t, st.StepShare(), 0.0)
	assert.LessOrEqual(t, st.StepShare(), 100.0)
}

func TestPresentationGetters(t *testing.T) {
	c := New(newRecorder())
	_, err := c.Snapshot(0, 1)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = c.Constraints()
	assert.ErrorIs(t, err, ErrNotReady)

	c = started(t, newRecorder(), scenario(2, 0.8))
	fluidIdx, err := c.Indices(scene.KindFluid)
	require.NoError(t, err)
	assert.Len(t, fluidIdx, 10)
	clothIdx, err := c.Indices(scene.KindCloth)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12, 13}, clothIdx)

	trans, rot, err := c.RigidTransforms()
	require.NoError(t, err)
	assert.Nil(t, trans, "the recorder has no rigid readback")
	assert.Nil(t, rot)

	require.NoError(t, c.Close())
	assert.Equal(t, Uninitialized, c.State())
}

func TestMemoryBackendReadBack(t *testing.T) {
	params := solver.DefaultParams()
	params.Token = 1
	in := Input{
		Params: &params,
		Objects: []scene.Object{
			&scene.RigidBody{Header: scene.Header{Token: 1}, Vertices: []float32{0, 0, 5, 1, 0, 5}, InvMasses: []float32{1}, Stiffness: 1},
		},
	}
	c := started(t, memory.New(), in)
	before, err := c.Snapshot(0, 2)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		rep, err := c.Cycle(context.Background(), step(in))
		require.NoError(t, err)
		require.NoError(t, rep.Diagnostics)
	}

	after, err := c.Snapshot(0, 2)
	require.NoError(t, err)
	assert.Less(t, after.Positions[2], before.Positions[2], "positions are read back after every step")
	assert.Equal(t, 2, c.Len())

	trans, rot, err := c.RigidTransforms()
	require.NoError(t, err)
	assert.Len(t, trans, 3)
	assert.Len(t, rot, 4)
}
