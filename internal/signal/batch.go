package signal

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// FetchFunc fetches a single snapshot.
type FetchFunc func(ctx context.Context, key string) (Snapshot, error)

// FetchEach calls fetch for every key with at most limit calls in flight,
// each bounded by timeout. It never fails as a whole: keys whose call failed
// are absent from the snapshots and present in errs.
func FetchEach(ctx context.Context, keys []string, limit int, timeout time.Duration, fetch FetchFunc) (map[string]Snapshot, map[string]error) {
	var (
		mu    sync.Mutex
		snaps = make(map[string]Snapshot, len(keys))
		errs  = make(map[string]error)
	)

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, key := range keys {
		g.Go(func() error {
			callCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			snap, err := fetch(callCtx, key)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[key] = err
				return nil
			}
			snap.Key = key
			snaps[key] = snap
			return nil
		})
	}
	_ = g.Wait()

	return snaps, errs
}
