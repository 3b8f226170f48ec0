// Package batch drives one job's items through analysis and persistence in
// fixed-size chunks, reporting progress after every chunk.
package batch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/zulandar/instantory/internal/analyzer"
	"github.com/zulandar/instantory/internal/filetype"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the number of items analyzed together.
const DefaultChunkSize = 5

// Item is one classified file of a batch.
type Item struct {
	URL  string
	Name string
	Kind filetype.Kind
}

// Analyzer enriches single items.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, url, instruction string) (analyzer.Result[analyzer.InventoryRecord], error)
	AnalyzeDocument(ctx context.Context, url, filename, instruction string) (analyzer.Result[analyzer.DocumentRecord], error)
}

// Store persists enrichment records.
type Store interface {
	UpsertInventory(ctx context.Context, rec analyzer.InventoryRecord) error
	UpsertDocument(ctx context.Context, rec analyzer.DocumentRecord) error
}

// Tracker receives progress for a job. *jobs.Registry satisfies it.
type Tracker interface {
	Progress(id string, pct int, message string) error
	RecordError(id, msg string) error
}

// Outcome summarizes a finished run.
type Outcome struct {
	// Processed counts items that were analyzed and persisted without error.
	Processed int
	Total     int
	// Fallbacks counts processed items stored with placeholder values.
	Fallbacks int
}

// Complete reports whether every item was processed.
func (o Outcome) Complete() bool { return o.Processed == o.Total }

// Options configures a Processor.
type Options struct {
	Analyzer  Analyzer
	Store     Store
	Tracker   Tracker
	ChunkSize int
	Logger    *zerolog.Logger
}

// Processor runs batches. It is safe for concurrent use by multiple jobs.
type Processor struct {
	analyzer  Analyzer
	store     Store
	tracker   Tracker
	chunkSize int
	log       zerolog.Logger
}

// New returns a Processor.
func New(opts Options) *Processor {
	p := &Processor{
		analyzer:  opts.Analyzer,
		store:     opts.Store,
		tracker:   opts.Tracker,
		chunkSize: opts.ChunkSize,
		log:       zerolog.Nop(),
	}
	if p.chunkSize <= 0 {
		p.chunkSize = DefaultChunkSize
	}
	if opts.Logger != nil {
		p.log = *opts.Logger
	}
	return p
}

// Progress maps processed items onto the 10..100 band that follows the
// queued to processing transition.
func Progress(processed, total int) int {
	if total <= 0 {
		return 100
	}
	return 10 + 90*processed/total
}

// Noun names the items of a batch for status messages.
func Noun(items []Item) string {
	if len(items) == 0 {
		return "items"
	}
	kind := items[0].Kind
	for _, it := range items[1:] {
		if it.Kind != kind {
			return "items"
		}
	}
	switch kind {
	case filetype.Image:
		return "images"
	case filetype.Document:
		return "documents"
	}
	return "items"
}

// Run processes items in submission order, one chunk at a time. Items of a
// chunk run concurrently, at most ChunkSize at once. A failing item is
// recorded on the job and does not stop the run.
func (p *Processor) Run(ctx context.Context, jobID string, items []Item, instruction string) Outcome {
	out := Outcome{Total: len(items)}
	noun := Noun(items)

	for start, chunk := 0, 1; start < len(items); start, chunk = start+p.chunkSize, chunk+1 {
		end := min(start+p.chunkSize, len(items))
		part := items[start:end]
		errs := make([]error, len(part))
		var fallbacks atomic.Int32

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.chunkSize)
		for i, it := range part {
			g.Go(func() error {
				fb, err := p.processItem(gctx, it, instruction)
				errs[i] = err
				if fb {
					fallbacks.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		for i, err := range errs {
			if err == nil {
				out.Processed++
				continue
			}
			msg := fmt.Sprintf("chunk %d: %s: %v", chunk, part[i].Name, err)
			p.log.Error().Err(err).Str("job_id", jobID).Int("chunk", chunk).Str("item", part[i].Name).Msg("batch.item.failed")
			if terr := p.tracker.RecordError(jobID, msg); terr != nil {
				p.log.Warn().Err(terr).Str("job_id", jobID).Msg("batch.record_error.failed")
			}
		}
		out.Fallbacks += int(fallbacks.Load())

		msg := fmt.Sprintf("Processed %d/%d %s", out.Processed, out.Total, noun)
		if err := p.tracker.Progress(jobID, Progress(out.Processed, out.Total), msg); err != nil {
			p.log.Warn().Err(err).Str("job_id", jobID).Msg("batch.progress.failed")
		}
		p.log.Info().
			Str("job_id", jobID).
			Int("chunk", chunk).
			Int("processed", out.Processed).
			Int("total", out.Total).
			Msg("batch.chunk.done")
	}
	return out
}

// processItem analyzes and persists one item. It reports whether the stored
// record is a fallback.
func (p *Processor) processItem(ctx context.Context, it Item, instruction string) (fallback bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch it.Kind {
	case filetype.Image:
		res, err := p.analyzer.AnalyzeImage(ctx, it.URL, instruction)
		if err != nil {
			return false, err
		}
		if err := p.store.UpsertInventory(ctx, res.Record); err != nil {
			return false, err
		}
		return res.Fallback(), nil
	case filetype.Document:
		res, err := p.analyzer.AnalyzeDocument(ctx, it.URL, it.Name, instruction)
		if err != nil {
			return false, err
		}
		if err := p.store.UpsertDocument(ctx, res.Record); err != nil {
			return false, err
		}
		return res.Fallback(), nil
	default:
		return false, fmt.Errorf("unknown item kind %q", it.Kind)
	}
}
