package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/flexsync/internal/scene"
	"github.com/Faultbox/flexsync/internal/solver"
	"github.com/Faultbox/flexsync/pkg/math"
)

func dropScene(t *testing.T) scene.FlatScene {
	t.Helper()
	c := scene.NewComposer(0)
	_, err := c.Register(&scene.SpringSystem{
		Positions:     []float32{0, 0, 1, 1, 0, 1},
		InvMasses:     []float32{1},
		SpringPairs:   []int{0, 1},
		Stiffnesses:   []float32{1},
		TargetLengths: []float32{1},
		Anchors:       []int{0},
	})
	require.NoError(t, err)
	_, err = c.Register(&scene.RigidBody{Vertices: []float32{5, 5, 1, 6, 5, 1}, InvMasses: []float32{1}, Stiffness: 1})
	require.NoError(t, err)
	return c.Flatten()
}

func TestStepIntegrates(t *testing.T) {
	ctx := context.Background()
	b := New()
	h, err := b.Create(ctx, solver.DefaultSolverOptions())
	require.NoError(t, err)
	require.True(t, b.IsReady(h))

	require.NoError(t, b.SetParams(h, solver.DefaultParams()))
	require.NoError(t, b.SetScene(h, dropScene(t)))

	for i := 0; i < 10; i++ {
		_, err := b.Step(ctx, h)
		require.NoError(t, err)
	}
	assert.Equal(t, 10, b.Steps(h))

	pos, vel, err := b.ReadBack(h)
	require.NoError(t, err)
	require.Len(t, pos, 12)
	require.Len(t, vel, 12)

	assert.Equal(t, math.Vec3{X: 0, Y: 0, Z: 1}, math.At(pos, 0), "anchored particle stays")
	assert.Less(t, math.At(pos, 2).Z, float32(1), "free particles fall")
	assert.InDelta(t, 1.0, math.At(pos, 0).Distance(math.At(pos, 1)), 0.05, "spring holds its length")

	translations, rotations, err := b.RigidTransforms(h)
	require.NoError(t, err)
	require.Len(t, translations, 3)
	assert.InDelta(t, 5.5, translations[0], 1e-4)
	assert.Equal(t, []float32{0, 0, 0, 1}, rotations)
}

func TestPlaneCollision(t *testing.T) {
	ctx := context.Background()
	b := New()
	h, err := b.Create(ctx, solver.DefaultSolverOptions())
	require.NoError(t, err)

	params := solver.DefaultParams()
	params.Radius = 0.1
	require.NoError(t, b.SetParams(h, params))
	require.NoError(t, b.SetCollisionGeometry(h, solver.CollisionGeometry{Planes: []solver.Plane{{C: 1}}}))
	require.NoError(t, b.SetScene(h, dropScene(t)))

	for i := 0; i < 120; i++ {
		_, err := b.Step(ctx, h)
		require.NoError(t, err)
	}
	pos, _, err := b.ReadBack(h)
	require.NoError(t, err)
	for i := 1; i < 4; i++ {
		assert.GreaterOrEqual(t, math.At(pos, i).Z, float32(0.1)-1e-4)
	}
}

func TestForceFieldPush(t *testing.T) {
	ctx := context.Background()
	b := New()
	h, err := b.Create(ctx, solver.DefaultSolverOptions())
	require.NoError(t, err)

	params := solver.DefaultParams()
	params.GravityZ = 0
	require.NoError(t, b.SetParams(h, params))
	require.NoError(t, b.SetForceFields(h, []solver.ForceField{{
		Position: math.Vec3{X: 5.5, Y: 4, Z: 1},
		Radius:   5,
		Strength: 2,
		Mode:     solver.FieldVelocityChange,
	}}))
	require.NoError(t, b.SetScene(h, dropScene(t)))

	_, err = b.Step(ctx, h)
	require.NoError(t, err)
	pos, _, err := b.ReadBack(h)
	require.NoError(t, err)
	assert.Greater(t, math.At(pos, 2).Y, float32(5), "rigid particles pushed away from the field")
}

func TestStepCancelled(t *testing.T) {
	b := New()
	b.StepDelay = time.Second
	h, err := b.Create(context.Background(), solver.DefaultSolverOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = b.Step(ctx, h)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, b.Steps(h))
}

func TestUnknownHandle(t *testing.T) {
	b := New()
	h, err := b.Create(context.Background(), solver.DefaultSolverOptions())
	require.NoError(t, err)
	require.NoError(t, b.Destroy(h))

	assert.False(t, b.IsReady(h))
	assert.ErrorIs(t, b.Destroy(h), ErrUnknownHandle)
	_, err = b.Step(context.Background(), h)
	assert.ErrorIs(t, err, ErrUnknownHandle)
	assert.ErrorIs(t, b.SetParams(h, solver.DefaultParams()), ErrUnknownHandle)
}

func TestSceneCapacity(t *testing.T) {
	opts := solver.DefaultSolverOptions()
	opts.MaxParticles = 3
	b := New()
	h, err := b.Create(context.Background(), opts)
	require.NoError(t, err)
	assert.ErrorIs(t, b.SetScene(h, dropScene(t)), scene.ErrCapacityExceeded)
}

func TestSphereAndBoxCollision(t *testing.T) {
	ctx := context.Background()
	b := New()
	h, err := b.Create(ctx, solver.DefaultSolverOptions())
	require.NoError(t, err)

	params := solver.DefaultParams()
	params.GravityZ = 0
	params.Radius = 0.1
	require.NoError(t, b.SetParams(h, params))

	turn := math.QuatFromAxisAngle(math.Vec3{Z: 1}, 0.3).Array()
	require.NoError(t, b.SetCollisionGeometry(h, solver.CollisionGeometry{
		Spheres: []solver.Sphere{{Center: math.Vec3{X: 0, Y: 0, Z: 0}, Radius: 1}},
		Boxes:   []solver.Box{{Center: math.Vec3{X: 10}, HalfExtents: math.Vec3{X: 1, Y: 1, Z: 1}, Rotation: turn}},
	}))

	c := scene.NewComposer(0)
	_, err = c.Register(&scene.ParticleGroup{
		Positions: []float32{0.5, 0, 0, 10.2, 0, 0.1},
		InvMasses: []float32{1},
	})
	require.NoError(t, err)
	require.NoError(t, b.SetScene(h, c.Flatten()))

	_, err = b.Step(ctx, h)
	require.NoError(t, err)
	pos, _, err := b.ReadBack(h)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, math.At(pos, 0).Length(), float32(1.1)-1e-4, "pushed to the sphere surface")

	rot := math.QuatFromArray(turn)
	local := rot.Conjugate().Rotate(math.At(pos, 1).Sub(math.Vec3{X: 10}))
	outside := local.X >= 1.1-1e-4 || local.X <= -1.1+1e-4 ||
		local.Y >= 1.1-1e-4 || local.Y <= -1.1+1e-4 ||
		local.Z >= 1.1-1e-4 || local.Z <= -1.1+1e-4
	assert.True(t, outside, "pushed out of the box, local %v", local)
}

func TestPushOut(t *testing.T) {
	ext := math.Vec3{X: 1, Y: 2, Z: 3}
	out, ok := pushOut(math.Vec3{X: 0.9, Y: 0, Z: 0}, ext)
	require.True(t, ok)
	assert.Equal(t, math.Vec3{X: 1, Y: 0, Z: 0}, out)

	out, ok = pushOut(math.Vec3{X: 0, Y: -1.5, Z: 0}, ext)
	require.True(t, ok)
	assert.Equal(t, math.Vec3{X: 0, Y: -2, Z: 0}, out)

	_, ok = pushOut(math.Vec3{X: 5}, ext)
	assert.False(t, ok)
}
