// Package sim drives evaders and a patrolling observer through a generated
// scene. Each evader runs its own hiding.Avoider; movement follows A* paths
// over the scene's walk grid.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/hideout/components"
	"github.com/pthm-cable/hideout/config"
	"github.com/pthm-cable/hideout/hiding"
	"github.com/pthm-cable/hideout/scene"
	"github.com/pthm-cable/hideout/telemetry"
)

// evaderRadius is the drawn body radius of an evader.
const evaderRadius = 0.4

// maxPlacementTries bounds the search for open spawn points.
const maxPlacementTries = 1000

// ErrNoOpenGround is returned when no walkable spawn point can be found.
var ErrNoOpenGround = errors.New("sim: no open ground to place entities")

// FrameSink receives a frame after every tick.
type FrameSink interface {
	Publish(frame *telemetry.Snapshot)
}

// Options configures a Simulation beyond the loaded config.
type Options struct {
	OutputDir string    // experiment output directory (empty = no files)
	Sink      FrameSink // optional live frame consumer
	LogStats  bool      // log window stats to the console

	// StatsCallback is called with every flushed stats window
	StatsCallback func(telemetry.WindowStats)
}

// Simulation holds the complete simulation state.
type Simulation struct {
	cfg   *config.Config
	world *ecs.World
	rng   *rand.Rand

	evaderMapper *ecs.Map6[
		components.Position,
		components.Velocity,
		components.Rotation,
		components.Body,
		components.Mover,
		components.Evader,
	]
	evaderFilter *ecs.Filter6[
		components.Position,
		components.Velocity,
		components.Rotation,
		components.Body,
		components.Mover,
		components.Evader,
	]
	observerMapper *ecs.Map5[
		components.Position,
		components.Velocity,
		components.Rotation,
		components.Mover,
		components.Observer,
	]
	observerFilter *ecs.Filter5[
		components.Position,
		components.Velocity,
		components.Rotation,
		components.Mover,
		components.Observer,
	]

	posMap   *ecs.Map1[components.Position]
	moverMap *ecs.Map1[components.Mover]

	// Avoider storage (per evader by ID)
	avoiders map[uint32]*hiding.Avoider
	exposed  map[uint32]bool

	layout   *scene.Layout
	planner  *scene.Planner
	selector *hiding.Selector
	observer ecs.Entity

	// Telemetry
	collector        *telemetry.Collector
	perfCollector    *telemetry.PerfCollector
	lifetimeTracker  *telemetry.LifetimeTracker
	bookmarkDetector *telemetry.BookmarkDetector
	outputManager    *telemetry.OutputManager
	sink             FrameSink
	logStats         bool
	statsCallback    func(telemetry.WindowStats)
	lastStats        telemetry.WindowStats

	tick   int32
	nextID uint32
}

// New generates the scene from cfg and spawns the observer and evaders.
func New(cfg *config.Config, opts Options) (*Simulation, error) {
	sc := cfg.Scene
	layout, err := scene.Generate(scene.GenParams{
		Width:        sc.Width,
		Depth:        sc.Depth,
		Seed:         sc.Seed,
		NoiseScale:   sc.NoiseScale,
		Threshold:    sc.OccluderThreshold,
		Size:         sc.OccluderSize,
		CellSize:     sc.CellSize,
		Inflation:    sc.Inflation,
		SnapDistance: sc.SnapDistance,
	})
	if err != nil {
		return nil, fmt.Errorf("generating scene: %w", err)
	}
	return newSimulation(cfg, layout, opts)
}

// newSimulation spawns entities into an existing layout.
func newSimulation(cfg *config.Config, layout *scene.Layout, opts Options) (*Simulation, error) {
	sc := cfg.Scene
	world := ecs.NewWorld()
	s := &Simulation{
		cfg:   cfg,
		world: world,
		rng:   rand.New(rand.NewSource(sc.Seed)),
		evaderMapper: ecs.NewMap6[
			components.Position,
			components.Velocity,
			components.Rotation,
			components.Body,
			components.Mover,
			components.Evader,
		](world),
		evaderFilter: ecs.NewFilter6[
			components.Position,
			components.Velocity,
			components.Rotation,
			components.Body,
			components.Mover,
			components.Evader,
		](world),
		observerMapper: ecs.NewMap5[
			components.Position,
			components.Velocity,
			components.Rotation,
			components.Mover,
			components.Observer,
		](world),
		observerFilter: ecs.NewFilter5[
			components.Position,
			components.Velocity,
			components.Rotation,
			components.Mover,
			components.Observer,
		](world),
		posMap:   ecs.NewMap1[components.Position](world),
		moverMap: ecs.NewMap1[components.Mover](world),
		avoiders: make(map[uint32]*hiding.Avoider),
		exposed:  make(map[uint32]bool),
		layout:   layout,
		planner:  scene.NewPlanner(layout.Walk),

		collector:        telemetry.NewCollector(cfg.Telemetry.WindowTicks, cfg.Sim.DT),
		perfCollector:    telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		lifetimeTracker:  telemetry.NewLifetimeTracker(),
		bookmarkDetector: telemetry.NewBookmarkDetector(10),
		sink:             opts.Sink,
		logStats:         opts.LogStats,
		statsCallback:    opts.StatsCallback,

		// ID 0 belongs to the observer
		nextID: 1,
	}

	// Selectors draw from their own stream so spawning does not shift samples
	s.selector = hiding.NewSelector(layout.Scene.Visibility(), layout.Walk, rand.New(rand.NewSource(sc.Seed+1)))
	s.selector.Attempts = cfg.Sampler.Attempts

	if opts.OutputDir != "" {
		om, err := telemetry.NewOutputManager(opts.OutputDir, cfg.Telemetry.Candidates)
		if err != nil {
			return nil, fmt.Errorf("creating output: %w", err)
		}
		if err := om.WriteConfig(cfg); err != nil {
			om.Close()
			return nil, fmt.Errorf("writing config: %w", err)
		}
		s.outputManager = om
	}

	if err := s.spawnObserver(); err != nil {
		s.Close()
		return nil, err
	}
	for i := 0; i < cfg.Avoider.AgentCount; i++ {
		if _, err := s.SpawnEvader(); err != nil {
			s.Close()
			return nil, err
		}
	}

	slog.Info("simulation ready",
		"seed", sc.Seed,
		"occluders", len(layout.Scene.Occluders()),
		"evaders", cfg.Avoider.AgentCount,
	)
	return s, nil
}

// spawnObserver places the observer on the first of its patrol waypoints.
func (s *Simulation) spawnObserver() error {
	waypoints := make([]r3.Vec, s.cfg.Sim.Waypoints)
	for i := range waypoints {
		p, err := s.randomOpenPoint()
		if err != nil {
			return err
		}
		waypoints[i] = p
	}

	pos := components.Position{}
	pos.Set(waypoints[0])
	obs := components.Observer{Waypoints: waypoints, Next: 1}
	mover := components.Mover{Speed: s.cfg.Sim.ObserverSpeed}

	s.observer = s.observerMapper.NewEntity(
		&pos,
		&components.Velocity{},
		&components.Rotation{},
		&mover,
		&obs,
	)
	return nil
}

// SpawnEvader places a new evader on open ground and returns its ID.
func (s *Simulation) SpawnEvader() (uint32, error) {
	p, err := s.randomOpenPoint()
	if err != nil {
		return 0, err
	}

	id := s.nextID
	s.nextID++

	pos := components.Position{}
	pos.Set(p)
	entity := s.evaderMapper.NewEntity(
		&pos,
		&components.Velocity{},
		&components.Rotation{Heading: s.rng.Float64() * 2 * math.Pi},
		&components.Body{Radius: evaderRadius},
		&components.Mover{Speed: s.cfg.Avoider.Speed},
		&components.Evader{ID: id},
	)

	s.avoiders[id] = hiding.NewAvoider(s.cfg.Derived.Settings, s.selector, &moverSink{sim: s, entity: entity})
	s.lifetimeTracker.Register(id, s.tick)
	return id, nil
}

// randomOpenPoint draws a point on walkable ground.
func (s *Simulation) randomOpenPoint() (r3.Vec, error) {
	w, d := s.layout.Scene.Width(), s.layout.Scene.Depth()
	for i := 0; i < maxPlacementTries; i++ {
		p := r3.Vec{X: s.rng.Float64() * w, Z: s.rng.Float64() * d}
		if s.layout.Walk.Open(p) {
			return p, nil
		}
	}
	return r3.Vec{}, ErrNoOpenGround
}

// moverSink routes an avoider's committed destination into the entity's
// Mover as a planned path. An unreachable destination leaves the mover idle.
type moverSink struct {
	sim    *Simulation
	entity ecs.Entity
}

func (m *moverSink) SetDestination(target r3.Vec) {
	mover := m.sim.moverMap.Get(m.entity)
	pos := m.sim.posMap.Get(m.entity)
	if mover == nil || pos == nil {
		return
	}
	mover.Follow(target, m.sim.planner.FindPath(pos.Vec(), target))
}

// SetSettings replaces the trigger policy settings of every evader.
func (s *Simulation) SetSettings(settings hiding.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.cfg.Derived.Settings = settings
	for _, a := range s.avoiders {
		a.SetSettings(settings)
	}
	return nil
}

// SetSink replaces the frame consumer. nil disables publishing.
func (s *Simulation) SetSink(sink FrameSink) {
	s.sink = sink
}

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() int32 {
	return s.tick
}

// Layout returns the generated scene.
func (s *Simulation) Layout() *scene.Layout {
	return s.layout
}

// Avoider returns the avoider of an evader.
func (s *Simulation) Avoider(id uint32) *hiding.Avoider {
	return s.avoiders[id]
}

// Lifetime returns the lifetime stats of an evader.
func (s *Simulation) Lifetime(id uint32) *telemetry.LifetimeStats {
	return s.lifetimeTracker.Get(id)
}

// LastStats returns the most recently flushed window.
func (s *Simulation) LastStats() telemetry.WindowStats {
	return s.lastStats
}

// ObserverPosition returns the observer's current position.
func (s *Simulation) ObserverPosition() r3.Vec {
	return s.posMap.Get(s.observer).Vec()
}

// Close flushes and closes experiment output.
func (s *Simulation) Close() error {
	if s.outputManager == nil {
		return nil
	}
	err := s.outputManager.Close()
	s.outputManager = nil
	return err
}
