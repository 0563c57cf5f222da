package engine

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/flexsync/internal/scene"
	"github.com/Faultbox/flexsync/internal/solver"
	"github.com/Faultbox/flexsync/internal/tracker"
)

// unbound marks an object slot whose registration failed.
const unbound = -1

// session owns one backend handle together with the composer and tracker
// built against it. Nothing outside the controller holds the handle.
type session struct {
	backend solver.Backend
	handle  solver.Handle
	log     *zap.Logger

	opts     solver.SolverOptions
	composer *scene.Composer
	tracker  *tracker.Tracker

	offsets     []int // newest offset per object slot
	fields      int
	hasGeometry bool
	sceneDirty  bool
}

func newSession(b solver.Backend, h solver.Handle, opts solver.SolverOptions, log *zap.Logger) *session {
	return &session{
		backend:  b,
		handle:   h,
		log:      log,
		opts:     opts,
		composer: scene.NewComposer(opts.MaxParticles),
		tracker:  tracker.New(),
	}
}

// cycleState is the per-cycle accumulator handed through the sync steps.
type cycleState struct {
	pushes Pushes
	diag   error
}

func (cs *cycleState) report(err error) {
	cs.diag = multierr.Append(cs.diag, err)
}

func (s *session) pushOptions(opts solver.SolverOptions, cs *cycleState) error {
	if err := s.backend.SetSolverOptions(s.handle, opts); err != nil {
		return &SolverError{Op: "set_solver_options", Err: err}
	}
	s.opts = opts
	s.tracker.Commit(tracker.Key(tracker.SolverOptions, 0), opts.Token)
	cs.pushes.Options++
	s.log.Debug("solver options pushed", zap.Stringer("mode", opts.SceneMode))
	return nil
}

func (s *session) syncOptions(opts *solver.SolverOptions, cs *cycleState) error {
	if opts == nil || !s.tracker.IsDirty(tracker.Key(tracker.SolverOptions, 0), opts.Token) {
		return nil
	}
	if err := opts.Validate(); err != nil {
		s.tracker.Commit(tracker.Key(tracker.SolverOptions, 0), opts.Token)
		cs.report(err)
		return nil
	}
	return s.pushOptions(*opts, cs)
}

func (s *session) syncParams(p *solver.Params, cs *cycleState) error {
	key := tracker.Key(tracker.Params, 0)
	if p == nil || !s.tracker.IsDirty(key, p.Token) {
		return nil
	}
	prev, _ := s.tracker.Last(key)
	s.tracker.Commit(key, p.Token)
	if err := p.Validate(); err != nil {
		cs.report(err)
		return nil
	}
	if err := s.backend.SetParams(s.handle, *p); err != nil {
		return &SolverError{Op: "set_params", Err: err}
	}
	cs.pushes.Params++
	s.log.Debug("params pushed", zap.Uint64("was", uint64(prev)), zap.Uint64("token", uint64(p.Token)))
	return nil
}

func (s *session) syncGeometry(g *solver.CollisionGeometry, cs *cycleState) error {
	key := tracker.Key(tracker.Geometry, 0)
	if g == nil {
		if !s.hasGeometry {
			return nil
		}
		if err := s.backend.SetCollisionGeometry(s.handle, solver.CollisionGeometry{}); err != nil {
			return &SolverError{Op: "set_collision_geometry", Err: err}
		}
		s.hasGeometry = false
		s.tracker.Forget(key)
		cs.pushes.Geometry++
		s.log.Debug("collision geometry cleared")
		return nil
	}
	if !s.tracker.IsDirty(key, g.Token) {
		return nil
	}
	s.tracker.Commit(key, g.Token)
	clean, diag := g.Sanitize()
	cs.report(diag)
	if err := s.backend.SetCollisionGeometry(s.handle, clean); err != nil {
		return &SolverError{Op: "set_collision_geometry", Err: err}
	}
	s.hasGeometry = true
	cs.pushes.Geometry++
	s.log.Debug("collision geometry pushed",
		zap.Int("planes", len(clean.Planes)),
		zap.Int("meshes", len(clean.Meshes)))
	return nil
}

// syncForceFields resends the whole list when its length or any element
// token changed.
func (s *session) syncForceFields(fields []solver.ForceField, cs *cycleState) error {
	dirty := len(fields) != s.fields
	for i, f := range fields {
		if s.tracker.IsDirty(tracker.Key(tracker.ForceField, i), f.Token) {
			dirty = true
		}
	}
	if !dirty {
		return nil
	}
	for i, f := range fields {
		s.tracker.Commit(tracker.Key(tracker.ForceField, i), f.Token)
	}
	s.fields = len(fields)
	if err := solver.ValidateForceFields(fields); err != nil {
		cs.report(err)
		return nil
	}
	if err := s.backend.SetForceFields(s.handle, fields); err != nil {
		return &SolverError{Op: "set_force_fields", Err: err}
	}
	cs.pushes.ForceFields++
	s.log.Debug("force fields pushed", zap.Int("count", len(fields)))
	return nil
}

// register adds obj as a new slice and returns its offset, or unbound.
func (s *session) register(slot int, obj scene.Object, cs *cycleState) int {
	key := tracker.Key(tracker.SceneObject, slot)
	reg, err := s.composer.Register(obj)
	if err != nil {
		cs.report(&SlotError{Slot: key, Err: err})
		s.log.Warn("object rejected", zap.Int("slot", slot), zap.Stringer("kind", obj.Kind()), zap.Error(err))
		return unbound
	}
	if reg.Dropped != nil {
		cs.report(&SlotError{Slot: key, Err: reg.Dropped})
	}
	cs.pushes.Registers++
	s.sceneDirty = true
	s.log.Debug("object registered",
		zap.Int("slot", slot),
		zap.Stringer("kind", reg.Kind),
		zap.Int("offset", reg.Offset),
		zap.Int("count", reg.Count))
	return reg.Offset
}

// alter rewrites the slice at offset in place. A failure keeps the previous
// buffer state.
func (s *session) alter(slot, offset int, obj scene.Object, cs *cycleState) {
	key := tracker.Key(tracker.SceneObject, slot)
	reg, err := s.composer.Alter(obj, offset)
	if err != nil {
		cs.report(&SlotError{Slot: key, Err: err})
		s.log.Warn("object update rejected", zap.Int("slot", slot), zap.Int("offset", offset), zap.Error(err))
		return
	}
	if reg.Dropped != nil {
		cs.report(&SlotError{Slot: key, Err: reg.Dropped})
	}
	cs.pushes.Alters++
	s.sceneDirty = true
	s.log.Debug("object altered", zap.Int("slot", slot), zap.Int("offset", offset), zap.Int("count", reg.Count))
}

func (s *session) syncObjects(objects []scene.Object, mode solver.SceneMode, cs *cycleState) {
	known := len(s.offsets)
	if len(objects) < known {
		cs.report(&ShrinkError{Category: tracker.SceneObject, Was: known, Now: len(objects)})
	}
	for i, obj := range objects {
		key := tracker.Key(tracker.SceneObject, i)
		if i >= known {
			s.tracker.Commit(key, obj.Meta().Token)
			s.offsets = append(s.offsets, s.register(i, obj, cs))
			continue
		}
		if !s.tracker.IsDirty(key, obj.Meta().Token) {
			continue
		}
		s.tracker.Commit(key, obj.Meta().Token)
		switch offset := s.offsets[i]; {
		case offset == unbound:
			s.offsets[i] = s.register(i, obj, cs)
		case mode == solver.Append:
			if next := s.register(i, obj, cs); next != unbound {
				s.offsets[i] = next
			}
		default:
			s.alter(i, offset, obj, cs)
		}
	}
}

func (s *session) syncOverlays(overlays []Overlay, cs *cycleState) {
	if known := s.tracker.Len(tracker.Overlay); len(overlays) < known {
		cs.report(&ShrinkError{Category: tracker.Overlay, Was: known, Now: len(overlays)})
	}
	for i, o := range overlays {
		key := tracker.Key(tracker.Overlay, i)
		if !s.tracker.Observe(key, o.Token) {
			continue
		}
		res, err := s.composer.RegisterOverlay(i, o.Set)
		if err != nil {
			cs.report(&SlotError{Slot: key, Err: err})
			s.log.Warn("overlay rejected", zap.Int("slot", i), zap.Error(err))
			continue
		}
		if res.Skipped != nil {
			cs.report(&SlotError{Slot: key, Err: res.Skipped})
		}
		cs.pushes.Overlays++
		s.sceneDirty = true
		s.log.Debug("overlay registered",
			zap.Int("slot", i),
			zap.Int("anchors", res.Anchors),
			zap.Int("springs", res.Springs))
	}
}

// flush sends the flattened scene if anything was merged or altered.
func (s *session) flush(cs *cycleState) error {
	if !s.sceneDirty {
		return nil
	}
	flat := s.composer.Flatten()
	if err := s.backend.SetScene(s.handle, flat); err != nil {
		return &SolverError{Op: "set_scene", Err: err}
	}
	s.sceneDirty = false
	cs.pushes.Scene++
	s.log.Debug("scene pushed",
		zap.Int("particles", flat.NumParticles()),
		zap.Int("springs", flat.NumSprings()),
		zap.Int("shapes", flat.NumShapes()))
	return nil
}

// readBack copies backend particle state into the buffer when the backend
// exposes it.
func (s *session) readBack() error {
	rb, ok := s.backend.(solver.ReadBacker)
	if !ok {
		return nil
	}
	pos, vel, err := rb.ReadBack(s.handle)
	if err != nil {
		return &SolverError{Op: "read_back", Err: err}
	}
	if err := s.composer.ReadBack(pos, vel); err != nil {
		return &SolverError{Op: "read_back", Err: err}
	}
	return nil
}

// sync runs the change-driven pushes of one cycle. Lock skips everything but
// the solver options.
func (s *session) sync(in Input, mode solver.SceneMode, cs *cycleState) error {
	if mode == solver.Lock {
		return nil
	}
	if err := s.syncParams(in.Params, cs); err != nil {
		return err
	}
	if err := s.syncGeometry(in.Geometry, cs); err != nil {
		return err
	}
	if err := s.syncForceFields(in.ForceFields, cs); err != nil {
		return err
	}
	s.syncObjects(in.Objects, mode, cs)
	s.syncOverlays(in.Overlays, cs)
	return s.flush(cs)
}

// destroy releases the handle. The tracked tokens go with it even when the
// backend reports a failure.
func (s *session) destroy() error {
	s.tracker.Reset()
	s.offsets = nil
	if err := s.backend.Destroy(s.handle); err != nil {
		return &SolverError{Op: "destroy", Err: err}
	}
	return nil
}
