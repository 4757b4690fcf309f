package translate

import (
	"context"
	"fmt"
	"sync"

	"github.com/mgpai22/captionstitch/internal/caption"
	"github.com/mgpai22/captionstitch/internal/logging"
	"github.com/mgpai22/captionstitch/internal/progress"
	"github.com/mgpai22/captionstitch/internal/segment"
)

const (
	DefaultBatchSize   = 50
	DefaultConcurrency = 3
)

type RunOptions struct {
	// BatchSize is the number of captions per request.
	BatchSize   int
	Concurrency int
	// OnUpdate receives a snapshot whenever a batch starts, finishes or
	// fails. Batches are the tracker's slots.
	OnUpdate progress.UpdateFunc
	Logger   *logging.Logger
}

// Captions translates the text of every caption and keeps its timing. The
// first failing batch cancels the others and fails the whole call, since a
// partly translated track is not useful.
func Captions(ctx context.Context, t BatchTranslator, captions []caption.Caption, opts RunOptions) ([]caption.Caption, error) {
	if len(captions) == 0 {
		return []caption.Caption{}, nil
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	logger := logging.OrNop(opts.Logger)

	items := make([]Item, len(captions))
	for i, c := range captions {
		items[i] = Item{Index: i, Text: c.Text}
	}
	batches := chunkItems(items, opts.BatchSize)

	tracker, err := progress.New(len(batches), opts.OnUpdate, progress.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	gen := tracker.Generation()

	logger.Infow("Translating captions",
		"translator", t.Name(),
		"captions", len(captions),
		"batches", len(batches),
		"concurrency", opts.Concurrency,
	)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	translated := make([][]Item, len(batches))
	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup

	for i, batch := range batches {
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}

		wg.Go(func() {
			defer func() { <-sem }()

			_ = tracker.Update(gen, i, 0, segment.StatusRunning)
			results, err := t.TranslateBatch(ctx, batch)
			if err != nil {
				err = fmt.Errorf("batch %d failed: %w", i, err)
				_ = tracker.MarkFailed(gen, i, err)
				cancel(err)
				return
			}
			translated[i] = results
			_ = tracker.MarkComplete(gen, i)
			logger.Debugw("Batch translated", "batch", i, "items", len(results))
		})
	}
	wg.Wait()

	if err := context.Cause(ctx); err != nil {
		return nil, err
	}

	out := make([]caption.Caption, len(captions))
	copy(out, captions)
	for _, results := range translated {
		for _, r := range results {
			out[r.Index].Text = r.Text
		}
	}
	return out, nil
}

func chunkItems(items []Item, size int) [][]Item {
	var batches [][]Item
	for start := 0; start < len(items); start += size {
		batches = append(batches, items[start:min(start+size, len(items))])
	}
	return batches
}
