package syncengine

import (
	"context"
	"database/sql"
	"time"

	"github.com/starford/glide/internal/store"
)

// Result summarizes one cycle or hydration.
type Result struct {
	Pushed     int           `json:"pushed"`
	PushFailed int           `json:"push_failed"`
	Pulled     int           `json:"pulled"`
	Deferred   int           `json:"deferred"`
	Skipped    int           `json:"skipped"`
	Hydrated   bool          `json:"hydrated,omitempty"`
	Coalesced  bool          `json:"coalesced,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// Sync runs one push-then-pull cycle. If a cycle is already running the
// call returns at once with Coalesced set, and the running cycle performs
// exactly one more pass when it finishes.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	e.stateMu.Lock()
	if e.running {
		e.rerun = true
		e.stateMu.Unlock()
		return Result{Coalesced: true}, nil
	}
	e.running = true
	e.stateMu.Unlock()

	for {
		res := e.cycle(ctx)

		e.stateMu.Lock()
		again := e.rerun && res.Err == nil && ctx.Err() == nil
		e.rerun = false
		if !again {
			e.running = false
		}
		e.stateMu.Unlock()

		if !again {
			return res, res.Err
		}
	}
}

func (e *Engine) cycle(ctx context.Context) Result {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	began := time.Now()
	start := e.now()
	e.setState(StateSyncing, nil)
	e.notify()

	var res Result
	res.Err = e.runCycle(ctx, start, &res)
	res.Duration = time.Since(began)
	e.finish(ctx, res.Err)
	return res
}

func (e *Engine) runCycle(ctx context.Context, start time.Time, res *Result) error {
	unreachable, hard := e.pushPhase(ctx, res)
	if hard != nil {
		return hard
	}
	if unreachable != nil {
		return unreachable
	}

	hydrated, err := e.db.Hydrated(ctx)
	if err != nil {
		return err
	}
	if !hydrated {
		return e.hydrateLocked(ctx, start, res)
	}
	since, err := e.db.MetaTime(ctx, store.MetaPullSince)
	if err != nil {
		return err
	}
	if err := e.pullAll(ctx, since, res); err != nil {
		return err
	}
	return e.db.Write(ctx, func(tx *sql.Tx) error {
		if err := store.SetMetaTimeTx(tx, store.MetaLastSyncAt, start); err != nil {
			return err
		}
		if res.Deferred > 0 {
			// Deferred changes must be listed again once their local
			// entries flush or exhaust.
			e.log.Info("sync: pull watermark held", "deferred", res.Deferred, "since", since)
			return nil
		}
		return store.SetMetaTimeTx(tx, store.MetaPullSince, start)
	})
}

func (e *Engine) finish(ctx context.Context, err error) {
	if err != nil {
		e.setState(StateFailed, err)
	} else {
		e.setState(StateIdle, nil)
	}
	e.refreshCounts(context.WithoutCancel(ctx))
	e.notify()
}

// Hydrate performs the initial full pull: folders, then every page of
// notes, then actions. It does nothing when the store is already hydrated
// unless force is set. Rows are matched on server id, so re-running after
// a partial failure creates no duplicates.
func (e *Engine) Hydrate(ctx context.Context, force bool) (Result, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	hydrated, err := e.db.Hydrated(ctx)
	if err != nil {
		return Result{}, err
	}
	if hydrated && !force {
		return Result{Hydrated: true}, nil
	}

	began := time.Now()
	start := e.now()
	e.setState(StateSyncing, nil)
	e.notify()

	var res Result
	res.Err = e.hydrateLocked(ctx, start, &res)
	res.Duration = time.Since(began)
	e.finish(ctx, res.Err)
	return res, res.Err
}

func (e *Engine) hydrateLocked(ctx context.Context, start time.Time, res *Result) error {
	e.log.Info("sync: hydrating")
	if err := e.pullAll(ctx, time.Time{}, res); err != nil {
		return err
	}
	err := e.db.Write(ctx, func(tx *sql.Tx) error {
		if err := store.SetMetaTx(tx, store.MetaHydrated, "1"); err != nil {
			return err
		}
		if err := store.SetMetaTimeTx(tx, store.MetaLastFullSyncAt, start); err != nil {
			return err
		}
		if err := store.SetMetaTimeTx(tx, store.MetaLastSyncAt, start); err != nil {
			return err
		}
		if res.Deferred > 0 {
			// The next cycle pulls everything again.
			return store.DeleteMetaTx(tx, store.MetaPullSince)
		}
		return store.SetMetaTimeTx(tx, store.MetaPullSince, start)
	})
	if err == nil {
		res.Hydrated = true
		e.log.Info("sync: hydrated", "pulled", res.Pulled, "skipped", res.Skipped)
	}
	return err
}
