package analytics

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"

	"customer-care/internal/storage"
	"customer-care/internal/tracker"
)

// Collection is the result of loading a whole store.
type Collection struct {
	Trackers []*tracker.Tracker
	// Skipped holds the sessions whose documents failed to decode.
	Skipped []string
}

// Load reads every stored tracker with at most workers concurrent
// retrievals. Sessions that fail to decode are logged and listed in Skipped;
// a store failure aborts the load.
func Load(ctx context.Context, store storage.Store, workers int) (*Collection, error) {
	keys, err := store.Keys()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if workers < 1 {
		workers = 1
	}
	out := make([]*tracker.Tracker, len(keys))
	undecodable := make([]bool, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, found, err := store.Retrieve(key)
			if err != nil {
				var de *tracker.DecodingError
				if errors.As(err, &de) {
					log.Printf("⚠️ Skipping undecodable session %s: %v", key, err)
					undecodable[i] = true
					return nil
				}
				return fmt.Errorf("retrieve %s: %w", key, err)
			}
			if found {
				out[i] = t
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c := &Collection{}
	for i, t := range out {
		if t != nil {
			c.Trackers = append(c.Trackers, t)
		}
		if undecodable[i] {
			c.Skipped = append(c.Skipped, keys[i])
		}
	}
	sort.Slice(c.Trackers, func(i, j int) bool { return c.Trackers[i].SessionID < c.Trackers[j].SessionID })
	sort.Strings(c.Skipped)
	return c, nil
}

// Collect is Load without the skipped list.
func Collect(ctx context.Context, store storage.Store, workers int) ([]*tracker.Tracker, error) {
	c, err := Load(ctx, store, workers)
	if err != nil {
		return nil, err
	}
	return c.Trackers, nil
}

// Build collects the store and analyzes it over w.
func Build(ctx context.Context, store storage.Store, w Window, workers int) (*Stats, error) {
	trackers, err := Collect(ctx, store, workers)
	if err != nil {
		return nil, err
	}
	return Analyze(trackers, w), nil
}
