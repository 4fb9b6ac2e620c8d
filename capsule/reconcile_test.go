package capsule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pausedCounter - Returns a capsule that counted to 5 and then requested a reload
func pausedCounter(t *testing.T) *Capsule {
	t.Helper()
	c := New()
	c.World().Insert("counter", new(int))
	c.World().Insert("resource", []string{"a", "b"})
	c.AddSystem(Update, "count_up", func(ctx *Context) error {
		if err := countUp(ctx); err != nil {
			return err
		}
		if n, _ := Resource[*int](ctx.World, "counter"); *n == 5 {
			flag, err := Resource[*ChangeFlag](ctx.World, ChangeFlagResource)
			if err != nil {
				return err
			}
			flag.Set()
		}
		return nil
	}).SetDriver(RunTicks(100))

	sig := Run(c)
	require.Equal(t, Reload(), sig.Exit())
	paused, err := sig.IntoCapsule()
	require.NoError(t, err)
	require.Equal(t, 5, *counter(t, paused))
	require.Equal(t, 1, paused.PendingExits())
	return paused
}

func TestReconcileKeepsState(t *testing.T) {
	prev := pausedCounter(t)
	world := prev.World()
	flag, err := prev.ChangeFlag()
	require.NoError(t, err)
	ticks := prev.Ticks()

	next := New()
	next.World().Insert("counter", new(int))
	next.AddSystem(Update, "count_by_ten", func(ctx *Context) error {
		n, err := Resource[*int](ctx.World, "counter")
		if err != nil {
			return err
		}
		*n += 10
		return nil
	}).SetDriver(RunTicks(1))
	behavior := next.Behavior()

	merged, err := prev.Reconcile(next)
	require.NoError(t, err)

	assert.Same(t, prev, merged)
	assert.Same(t, world, merged.World())
	assert.Equal(t, []string{"a", "b"}, world.resources["resource"])
	assert.Equal(t, ticks, merged.Ticks())
	assert.True(t, merged.Started())
	mergedFlag, err := merged.ChangeFlag()
	require.NoError(t, err)
	assert.Same(t, flag, mergedFlag)

	assert.Same(t, behavior, merged.Behavior())
	assert.NotNil(t, merged.Driver())
	assert.Equal(t, 0, merged.PendingExits(), "stale exit events are cleared")
	assert.Nil(t, next.Behavior())
	assert.Nil(t, next.Driver())

	// the next run resumes from 5 under the new behavior
	flag.Reset()
	sig := Run(merged)
	assert.Equal(t, Success(), sig.Exit())
	assert.Equal(t, 15, *counter(t, merged))
}

func TestReconcileWithoutClearingWouldReload(t *testing.T) {
	prev := pausedCounter(t)
	flag, err := prev.ChangeFlag()
	require.NoError(t, err)
	flag.Reset()

	// the stale reload event is still queued before reconciliation
	exit, ok := prev.events.pending()
	require.True(t, ok)
	assert.Equal(t, Reload(), exit)

	merged, err := prev.Reconcile(New().SetDriver(RunTicks(1)))
	require.NoError(t, err)
	assert.Equal(t, Success(), Run(merged).Exit())
}

func TestReconcileRejectsIncompleteCapsule(t *testing.T) {
	prev := pausedCounter(t)

	_, err := prev.Reconcile(New().SetBehavior(nil))
	assert.ErrorIs(t, err, ErrMissingBehavior)

	_, err = prev.Reconcile(nil)
	assert.ErrorIs(t, err, ErrMissingBehavior)

	_, err = prev.Reconcile(New().SetDriver(nil))
	assert.ErrorIs(t, err, ErrMissingDriver)

	var nilCapsule *Capsule
	_, err = nilCapsule.Reconcile(New())
	assert.ErrorIs(t, err, ErrNilCapsule)

	assert.Equal(t, 5, *counter(t, prev), "a failed reconciliation leaves the old state alone")
	assert.True(t, prev.Behavior().Has(Update, "count_up"))
}
