// Package solver defines the boundary to the external particle solver:
// the values pushed to it and the Backend interface that receives them.
package solver

import (
	"github.com/chewxy/math32"

	"github.com/Faultbox/flexsync/internal/tracker"
)

// Relaxation modes.
const (
	RelaxationGlobal = 0
	RelaxationLocal  = 1
)

// Params are the environmental parameters of a solver session.
type Params struct {
	Token tracker.Token `yaml:"-" toml:"-" gcfg:"-"`

	Iterations int `yaml:"iterations" toml:"iterations" gcfg:"iterations"`

	GravityX float32 `yaml:"gravity_x" toml:"gravity_x" gcfg:"gravity-x"`
	GravityY float32 `yaml:"gravity_y" toml:"gravity_y" gcfg:"gravity-y"`
	GravityZ float32 `yaml:"gravity_z" toml:"gravity_z" gcfg:"gravity-z"`
	WindX    float32 `yaml:"wind_x" toml:"wind_x" gcfg:"wind-x"`
	WindY    float32 `yaml:"wind_y" toml:"wind_y" gcfg:"wind-y"`
	WindZ    float32 `yaml:"wind_z" toml:"wind_z" gcfg:"wind-z"`

	Radius            float32 `yaml:"radius" toml:"radius" gcfg:"radius"`
	Viscosity         float32 `yaml:"viscosity" toml:"viscosity" gcfg:"viscosity"`
	DynamicFriction   float32 `yaml:"dynamic_friction" toml:"dynamic_friction" gcfg:"dynamic-friction"`
	StaticFriction    float32 `yaml:"static_friction" toml:"static_friction" gcfg:"static-friction"`
	ParticleFriction  float32 `yaml:"particle_friction" toml:"particle_friction" gcfg:"particle-friction"`
	FreeSurfaceDrag   float32 `yaml:"free_surface_drag" toml:"free_surface_drag" gcfg:"free-surface-drag"`
	Drag              float32 `yaml:"drag" toml:"drag" gcfg:"drag"`
	Lift              float32 `yaml:"lift" toml:"lift" gcfg:"lift"`
	FluidRestDistance float32 `yaml:"fluid_rest_distance" toml:"fluid_rest_distance" gcfg:"fluid-rest-distance"`
	SolidRestDistance float32 `yaml:"solid_rest_distance" toml:"solid_rest_distance" gcfg:"solid-rest-distance"`

	AnisotropyScale float32 `yaml:"anisotropy_scale" toml:"anisotropy_scale" gcfg:"anisotropy-scale"`
	AnisotropyMin   float32 `yaml:"anisotropy_min" toml:"anisotropy_min" gcfg:"anisotropy-min"`
	AnisotropyMax   float32 `yaml:"anisotropy_max" toml:"anisotropy_max" gcfg:"anisotropy-max"`
	Smoothing       float32 `yaml:"smoothing" toml:"smoothing" gcfg:"smoothing"`

	Dissipation             float32 `yaml:"dissipation" toml:"dissipation" gcfg:"dissipation"`
	Damping                 float32 `yaml:"damping" toml:"damping" gcfg:"damping"`
	ParticleCollisionMargin float32 `yaml:"particle_collision_margin" toml:"particle_collision_margin" gcfg:"particle-collision-margin"`
	ShapeCollisionMargin    float32 `yaml:"shape_collision_margin" toml:"shape_collision_margin" gcfg:"shape-collision-margin"`
	CollisionDistance       float32 `yaml:"collision_distance" toml:"collision_distance" gcfg:"collision-distance"`
	PlasticThreshold        float32 `yaml:"plastic_threshold" toml:"plastic_threshold" gcfg:"plastic-threshold"`
	PlasticCreep            float32 `yaml:"plastic_creep" toml:"plastic_creep" gcfg:"plastic-creep"`
	Fluid                   bool    `yaml:"fluid" toml:"fluid" gcfg:"fluid"`
	SleepThreshold          float32 `yaml:"sleep_threshold" toml:"sleep_threshold" gcfg:"sleep-threshold"`
	ShockPropagation        float32 `yaml:"shock_propagation" toml:"shock_propagation" gcfg:"shock-propagation"`
	Restitution             float32 `yaml:"restitution" toml:"restitution" gcfg:"restitution"`
	MaxSpeed                float32 `yaml:"max_speed" toml:"max_speed" gcfg:"max-speed"`
	MaxAcceleration         float32 `yaml:"max_acceleration" toml:"max_acceleration" gcfg:"max-acceleration"`
	RelaxationMode          int     `yaml:"relaxation_mode" toml:"relaxation_mode" gcfg:"relaxation-mode"`
	RelaxationFactor        float32 `yaml:"relaxation_factor" toml:"relaxation_factor" gcfg:"relaxation-factor"`
	SolidPressure           float32 `yaml:"solid_pressure" toml:"solid_pressure" gcfg:"solid-pressure"`

	Adhesion             float32 `yaml:"adhesion" toml:"adhesion" gcfg:"adhesion"`
	Cohesion             float32 `yaml:"cohesion" toml:"cohesion" gcfg:"cohesion"`
	SurfaceTension       float32 `yaml:"surface_tension" toml:"surface_tension" gcfg:"surface-tension"`
	VorticityConfinement float32 `yaml:"vorticity_confinement" toml:"vorticity_confinement" gcfg:"vorticity-confinement"`
	Buoyancy             float32 `yaml:"buoyancy" toml:"buoyancy" gcfg:"buoyancy"`

	DiffuseThreshold float32 `yaml:"diffuse_threshold" toml:"diffuse_threshold" gcfg:"diffuse-threshold"`
	DiffuseBuoyancy  float32 `yaml:"diffuse_buoyancy" toml:"diffuse_buoyancy" gcfg:"diffuse-buoyancy"`
	DiffuseDrag      float32 `yaml:"diffuse_drag" toml:"diffuse_drag" gcfg:"diffuse-drag"`
	DiffuseBallistic int     `yaml:"diffuse_ballistic" toml:"diffuse_ballistic" gcfg:"diffuse-ballistic"`
	DiffuseSortAxisX float32 `yaml:"diffuse_sort_axis_x" toml:"diffuse_sort_axis_x" gcfg:"diffuse-sort-axis-x"`
	DiffuseSortAxisY float32 `yaml:"diffuse_sort_axis_y" toml:"diffuse_sort_axis_y" gcfg:"diffuse-sort-axis-y"`
	DiffuseSortAxisZ float32 `yaml:"diffuse_sort_axis_z" toml:"diffuse_sort_axis_z" gcfg:"diffuse-sort-axis-z"`
	DiffuseLifetime  float32 `yaml:"diffuse_lifetime" toml:"diffuse_lifetime" gcfg:"diffuse-lifetime"`
}

// DefaultParams returns the solver's stock parameters.
func DefaultParams() Params {
	return Params{
		Iterations:              3,
		GravityZ:                -9.81,
		Radius:                  0.15,
		FluidRestDistance:       0.1,
		SolidRestDistance:       0.15,
		AnisotropyMin:           0.1,
		AnisotropyMax:           0.2,
		ParticleCollisionMargin: 0.5,
		ShapeCollisionMargin:    0.5,
		CollisionDistance:       0.075,
		Fluid:                   true,
		MaxSpeed:                math32.MaxFloat32,
		MaxAcceleration:         100, // about ten times gravity
		RelaxationMode:          RelaxationLocal,
		RelaxationFactor:        1,
		SolidPressure:           1,
		Cohesion:                0.025,
		Buoyancy:                1,
		DiffuseThreshold:        math32.MaxFloat32,
		DiffuseBallistic:        1,
	}
}

// Validate reports whether the parameters can be pushed.
func (p Params) Validate() error {
	if p.Radius <= 0 {
		return invalid("params", "radius", "%v must be > 0", p.Radius)
	}
	if p.Iterations <= 0 {
		return invalid("params", "iterations", "%d must be > 0", p.Iterations)
	}
	if p.RelaxationMode != RelaxationGlobal && p.RelaxationMode != RelaxationLocal {
		return invalid("params", "relaxation_mode", "unknown mode %d", p.RelaxationMode)
	}
	return nil
}
