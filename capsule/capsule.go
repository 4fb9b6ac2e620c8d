// Package capsule holds the runtime state of a hot-reloadable program.
//
// A Capsule carries a World of named resources, a replaceable Behavior (its systems) and a replaceable Driver
// (its tick policy). Capsules are built by the units loaded by the reload manager, run until they exit or
// until their change flag is raised, and are then reconciled with a capsule freshly built by the next
// generation of the unit: the accumulated world is kept, the behavior and the driver are replaced.
package capsule

import (
	"errors"

	"github.com/sirupsen/logrus"
)

const (
	// ChangeFlagResource - Name of the world resource holding the change flag of a capsule
	ChangeFlagResource = "reload.change_flag"
	// DetectReloadSystem - Name of the Last stage system turning a raised change flag into a reload request
	DetectReloadSystem = "detect_reload"
)

// ErrNilCapsule - A nil capsule was provided
var ErrNilCapsule = errors.New("nil capsule")

// Capsule - Exclusively owned runtime state of a program
type Capsule struct {
	world    *World
	behavior *Behavior
	driver   Driver
	events   exitEvents
	started  bool
	ticks    uint64
	logger   logrus.FieldLogger
}

// New - Returns a capsule with a lowered change flag, the reload detection system, the RunOnce driver and the
// logrus standard logger
func New() *Capsule {
	c := &Capsule{
		world:    NewWorld(),
		behavior: NewBehavior(),
		driver:   RunOnce(),
		logger:   logrus.StandardLogger(),
	}
	c.world.Insert(ChangeFlagResource, NewChangeFlag())
	c.behavior.Add(Last, DetectReloadSystem, detectReload)
	return c
}

// World - Returns the resources of the capsule
func (c *Capsule) World() *World {
	return c.world
}

// Behavior - Returns the behavior definition of the capsule
func (c *Capsule) Behavior() *Behavior {
	return c.behavior
}

// AddSystem - Appends a system to the behavior of the capsule
func (c *Capsule) AddSystem(stage Stage, name string, fn SystemFunc) *Capsule {
	if c.behavior == nil {
		c.behavior = NewBehavior()
	}
	c.behavior.Add(stage, name, fn)
	return c
}

// SetBehavior - Replaces the whole behavior definition of the capsule
func (c *Capsule) SetBehavior(b *Behavior) *Capsule {
	c.behavior = b
	return c
}

// SetDriver - Replaces the execution driver of the capsule
func (c *Capsule) SetDriver(d Driver) *Capsule {
	c.driver = d
	return c
}

// SetLogger - Replaces the logger of the capsule. Systems reach it through Context.Logger.
func (c *Capsule) SetLogger(logger logrus.FieldLogger) *Capsule {
	c.logger = logger
	return c
}

// Logger - Returns the logger of the capsule
func (c *Capsule) Logger() logrus.FieldLogger {
	if c.logger == nil {
		return logrus.StandardLogger()
	}
	return c.logger
}

// Driver - Returns the execution driver of the capsule
func (c *Capsule) Driver() Driver {
	return c.driver
}

// Ticks - Returns the number of completed ticks
func (c *Capsule) Ticks() uint64 {
	return c.ticks
}

// Started - Returns true once the Startup systems ran
func (c *Capsule) Started() bool {
	return c.started
}

// PendingExits - Returns the number of queued exit events
func (c *Capsule) PendingExits() int {
	return c.events.len()
}

// ChangeFlag - Returns the change flag of the capsule
func (c *Capsule) ChangeFlag() (*ChangeFlag, error) {
	return Resource[*ChangeFlag](c.world, ChangeFlagResource)
}

// Tick - Runs one tick: the Startup systems on the first tick only, then the Update and Last systems. It returns
// the exit the run should stop with, if any.
func (c *Capsule) Tick() (Exit, bool) {
	if !c.started {
		c.started = true
		if exit, failed := c.runStage(Startup); failed {
			return exit, true
		}
	}
	for _, stage := range []Stage{Update, Last} {
		if exit, failed := c.runStage(stage); failed {
			return exit, true
		}
	}
	c.ticks++
	return c.events.pending()
}

// runStage - Runs the systems of a stage, stopping at the first failing one
func (c *Capsule) runStage(stage Stage) (Exit, bool) {
	ctx := &Context{
		World:   c.world,
		Tick:    c.ticks,
		Logger:  c.Logger(),
		capsule: c,
	}
	for _, system := range c.behavior.Systems(stage) {
		if err := system.Run(ctx); err != nil {
			exit := exitFromError(err)
			ctx.Logger.WithError(err).WithFields(logrus.Fields{
				"system": system.Name,
				"stage":  stage.String(),
				"tick":   c.ticks,
			}).Error("system failed")
			c.events.send(exit)
			return exit, true
		}
	}
	return Exit{}, false
}

// Context - What a system sees of the capsule it runs in
type Context struct {
	// World - Resources of the capsule
	World *World
	// Tick - Index of the current tick
	Tick uint64
	// Logger - Logger of the capsule
	Logger logrus.FieldLogger

	capsule *Capsule
}

// Exit - Queues an exit event. The run stops at the end of the current tick.
func (ctx *Context) Exit(e Exit) {
	ctx.capsule.events.send(e)
}

// detectReload - Turns a raised change flag into a reload request
func detectReload(ctx *Context) error {
	flag, err := Resource[*ChangeFlag](ctx.World, ChangeFlagResource)
	if err != nil {
		return err
	}
	if flag.IsSet() {
		ctx.Exit(Reload())
	}
	return nil
}
