package scene

import (
	"fmt"
	"sort"

	"github.com/jinzhu/copier"

	"github.com/Faultbox/flexsync/pkg/math"
)

// Range is a run of entries in one of the merged constraint lists.
type Range struct {
	Start int
	Len   int
}

// Registration records where one registered object lives in the buffer and in
// the merged constraint lists.
type Registration struct {
	Kind      Kind
	Offset    int
	Count     int
	Springs   Range
	Shapes    Range
	Triangles Range
	Pressures Range

	// Dropped aggregates the constraints that were rejected because they
	// referenced particles outside the object. The registration itself
	// succeeded.
	Dropped error

	anchors []int // global
}

// Overlay summarises one registered global constraint overlay.
type Overlay struct {
	Slot      int
	Anchors   int
	Springs   int
	Shapes    int
	Triangles int

	// Skipped aggregates the entries that referenced particles beyond the
	// buffer. The overlay itself was applied.
	Skipped error
}

// Stats counts composer mutations.
type Stats struct {
	Registers int
	Alters    int
	Overlays  int
}

// Composer merges sub-scene objects and constraint overlays into one
// ParticleBuffer and one globally indexed constraint set. It never removes or
// shrinks anything it has merged.
type Composer struct {
	buf ParticleBuffer

	springs   []Spring
	shapes    []ShapeGroup
	triangles []Triangle
	pressures []Pressure

	regs     []*Registration
	byOffset map[int]*Registration
	overlays map[int]ConstraintSet

	maxParticles int
	stats        Stats
}

// NewComposer creates an empty composer. maxParticles caps the buffer; zero
// means unlimited.
func NewComposer(maxParticles int) *Composer {
	return &Composer{
		byOffset:     make(map[int]*Registration),
		overlays:     make(map[int]ConstraintSet),
		maxParticles: maxParticles,
	}
}

// Len returns the number of particles in the buffer.
func (c *Composer) Len() int {
	return c.buf.Len()
}

// Stats returns the mutation counters.
func (c *Composer) Stats() Stats {
	return c.stats
}

// Register appends the object's particles, assigns it offset = buffer length
// before the append, translates its local constraints by that offset and
// merges them. The offset is stored on the object and returned in the
// registration.
func (c *Composer) Register(obj Object) (Registration, error) {
	if obj.Meta().Registered() {
		return Registration{}, fmt.Errorf("%w: %s at offset %d", ErrAlreadyRegistered, obj.Kind(), obj.Meta().Offset())
	}
	slice, local, err := c.emit(obj)
	if err != nil {
		return Registration{}, err
	}
	if c.maxParticles > 0 && c.buf.Len()+slice.Len() > c.maxParticles {
		return Registration{}, fmt.Errorf("%w: %d + %d > %d", ErrCapacityExceeded, c.buf.Len(), slice.Len(), c.maxParticles)
	}

	kept, dropped := local.filter(slice.Len(), localRefError(obj.Kind(), slice.Len()))

	offset := c.buf.Append(slice)
	global := kept.translate(offset)

	reg := &Registration{
		Kind:      obj.Kind(),
		Offset:    offset,
		Count:     slice.Len(),
		Springs:   Range{len(c.springs), len(global.Springs)},
		Shapes:    Range{len(c.shapes), len(global.Shapes)},
		Triangles: Range{len(c.triangles), len(global.Triangles)},
		Pressures: Range{len(c.pressures), len(global.Pressures)},
		Dropped:   dropped,
		anchors:   global.Anchors,
	}
	for _, p := range global.Pressures {
		p.StartTriangle += reg.Triangles.Start
		c.pressures = append(c.pressures, p)
	}
	c.springs = append(c.springs, global.Springs...)
	c.shapes = append(c.shapes, global.Shapes...)
	c.triangles = append(c.triangles, global.Triangles...)

	c.regs = append(c.regs, reg)
	c.byOffset[offset] = reg
	if err := obj.Meta().bind(offset); err != nil {
		return Registration{}, err
	}
	c.stats.Registers++
	return *reg, nil
}

// Alter rewrites, in place, the per-particle attributes and constraint scalars
// of the slice registered at offset: inverse masses, phases, positions of
// pinned particles (inverse mass zero), spring lengths and stiffnesses,
// shape-matching data, triangle normals and pressures. Positions and
// velocities of free particles are left to the solver. The object's topology
// must match the registration; otherwise a *CountMismatchError is returned and
// nothing is changed.
func (c *Composer) Alter(obj Object, offset int) (Registration, error) {
	reg, ok := c.byOffset[offset]
	if !ok {
		return Registration{}, fmt.Errorf("%w %d", ErrUnknownOffset, offset)
	}
	if obj.Kind() != reg.Kind {
		return Registration{}, configErr(obj.Kind(), "kind", "cannot alter %s registered at offset %d", reg.Kind, offset)
	}
	if obj.Meta().Registered() && obj.Meta().Offset() != offset {
		return Registration{}, fmt.Errorf("%w: offset %d, alter requested at %d", ErrAlreadyRegistered, obj.Meta().Offset(), offset)
	}
	slice, local, err := c.emit(obj)
	if err != nil {
		return Registration{}, err
	}
	if slice.Len() != reg.Count {
		return Registration{}, &CountMismatchError{Offset: offset, Field: "particles", Want: reg.Count, Got: slice.Len()}
	}

	kept, dropped := local.filter(slice.Len(), localRefError(obj.Kind(), slice.Len()))
	global := kept.translate(offset)
	want := []int{reg.Springs.Len, reg.Shapes.Len, reg.Triangles.Len, reg.Pressures.Len}
	for i, got := range global.counts() {
		if got.n != want[i] {
			return Registration{}, &CountMismatchError{Offset: offset, Field: got.field, Want: want[i], Got: got.n}
		}
	}

	c.buf.overwriteAttributes(offset, slice.InvMasses, slice.Phases)
	for i, im := range slice.InvMasses {
		if im == 0 {
			c.buf.setPosition(offset+i, math.At(slice.Positions, i))
		}
	}
	copy(c.springs[reg.Springs.Start:], global.Springs)
	copy(c.shapes[reg.Shapes.Start:], global.Shapes)
	copy(c.triangles[reg.Triangles.Start:], global.Triangles)
	for i, p := range global.Pressures {
		p.StartTriangle += reg.Triangles.Start
		c.pressures[reg.Pressures.Start+i] = p
	}
	reg.anchors = global.Anchors
	reg.Dropped = dropped

	if err := obj.Meta().bind(offset); err != nil {
		return Registration{}, err
	}
	c.stats.Alters++
	return *reg, nil
}

// RegisterOverlay stores a globally indexed constraint set under slot,
// replacing whatever that slot held before. Indices are never translated.
// Entries that reference particles beyond the buffer are skipped and
// reported as *StaleReferenceError in the result. Springs with a negative
// length get the current distance scaled by the absolute length; shape groups
// without rest data get it from the current particle positions.
func (c *Composer) RegisterOverlay(slot int, set ConstraintSet) (Overlay, error) {
	if set.Indexing != GlobalIndexed {
		return Overlay{}, fmt.Errorf("%w: overlay %d is %s", ErrIndexingOrigin, slot, set.Indexing)
	}
	limit := c.buf.Len()
	kept, skipped := set.filter(limit, func(field string, entry, ref int) error {
		return &StaleReferenceError{Field: field, Entry: entry, Ref: ref, Limit: limit}
	})

	springs := make([]Spring, len(kept.Springs))
	for i, s := range kept.Springs {
		if s.Length < 0 {
			s.Length = -s.Length * c.buf.Position(s.A).Distance(c.buf.Position(s.B))
		}
		springs[i] = s
	}
	kept.Springs = springs

	shapes := make([]ShapeGroup, len(kept.Shapes))
	for i, g := range kept.Shapes {
		if len(g.RestPositions) != 3*len(g.Indices) || len(g.RestNormals) != 4*len(g.Indices) {
			g = shapeGroup(c.buf.positions, g.Indices, g.Stiffness, nil)
		}
		shapes[i] = g
	}
	kept.Shapes = shapes

	c.overlays[slot] = kept
	c.stats.Overlays++
	return Overlay{
		Slot:      slot,
		Anchors:   len(kept.Anchors),
		Springs:   len(kept.Springs),
		Shapes:    len(kept.Shapes),
		Triangles: len(kept.Triangles),
		Skipped:   skipped,
	}, nil
}

func (c *Composer) emit(obj Object) (Slice, ConstraintSet, error) {
	slice, local, err := obj.Emit()
	if err != nil {
		return Slice{}, ConstraintSet{}, err
	}
	if slice.Len() == 0 {
		return Slice{}, ConstraintSet{}, configErr(obj.Kind(), "positions", "object has no particles")
	}
	if local.Indexing != LocalIndexed {
		return Slice{}, ConstraintSet{}, fmt.Errorf("%w: %s emitted %s constraints", ErrIndexingOrigin, obj.Kind(), local.Indexing)
	}
	return slice, local, nil
}

func localRefError(kind Kind, count int) refError {
	return func(field string, entry, ref int) error {
		return configErr(kind, field, "entry %d references local index %d of %d particles", entry, ref, count)
	}
}

// Registration returns the registration starting at offset.
func (c *Composer) Registration(offset int) (Registration, bool) {
	reg, ok := c.byOffset[offset]
	if !ok {
		return Registration{}, false
	}
	return *reg, true
}

// Registrations returns every registration in registration order.
func (c *Composer) Registrations() []Registration {
	out := make([]Registration, len(c.regs))
	for i, r := range c.regs {
		out[i] = *r
	}
	return out
}

// Indices returns the global indices of every particle registered by objects
// of the given kind, in buffer order.
func (c *Composer) Indices(kind Kind) []int {
	var out []int
	for _, r := range c.regs {
		if r.Kind != kind {
			continue
		}
		for i := 0; i < r.Count; i++ {
			out = append(out, r.Offset+i)
		}
	}
	return out
}

func (c *Composer) overlaySlots() []int {
	slots := make([]int, 0, len(c.overlays))
	for s := range c.overlays {
		slots = append(slots, s)
	}
	sort.Ints(slots)
	return slots
}

// Constraints returns a deep copy of the merged global constraint set: every
// object's translated constraints in registration order followed by every
// overlay in slot order. Pressure start triangles address the merged triangle
// list.
func (c *Composer) Constraints() ConstraintSet {
	var out ConstraintSet
	merged := c.merged()
	if err := copier.CopyWithOption(&out, &merged, copier.Option{DeepCopy: true}); err != nil {
		return merged
	}
	return out
}

func (c *Composer) merged() ConstraintSet {
	out := Global()
	for _, r := range c.regs {
		out.Anchors = append(out.Anchors, r.anchors...)
	}
	out.Springs = append(out.Springs, c.springs...)
	out.Shapes = append(out.Shapes, c.shapes...)
	out.Triangles = append(out.Triangles, c.triangles...)
	out.Pressures = append(out.Pressures, c.pressures...)

	for _, slot := range c.overlaySlots() {
		o := c.overlays[slot]
		base := len(out.Triangles)
		out.Anchors = append(out.Anchors, o.Anchors...)
		out.Springs = append(out.Springs, o.Springs...)
		out.Shapes = append(out.Shapes, o.Shapes...)
		out.Triangles = append(out.Triangles, o.Triangles...)
		for _, p := range o.Pressures {
			p.StartTriangle += base
			out.Pressures = append(out.Pressures, p)
		}
	}
	return out
}

// pin zeroes the inverse mass of every overlay anchor inside
// [offset, offset+s.Len()).
func (c *Composer) pin(s Slice, offset int) {
	for _, o := range c.overlays {
		for _, a := range o.Anchors {
			if a >= offset && a < offset+s.Len() {
				s.InvMasses[a-offset] = 0
			}
		}
	}
}

// Snapshot returns a copy of the particles in [offset, offset+count) as the
// solver sees them, with overlay anchors applied.
func (c *Composer) Snapshot(offset, count int) (Slice, error) {
	s, err := c.buf.Slice(offset, count)
	if err != nil {
		return Slice{}, err
	}
	c.pin(s, offset)
	return s, nil
}

// ReadBack overwrites positions and velocities of the whole buffer in place.
func (c *Composer) ReadBack(positions, velocities []float32) error {
	return c.buf.Overwrite(positions, velocities)
}

// Flatten produces the backend view of the session.
func (c *Composer) Flatten() FlatScene {
	particles := c.buf.snapshot()
	c.pin(particles, 0)
	return flatten(particles, c.merged())
}
