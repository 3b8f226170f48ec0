package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zulandar/instantory/internal/analyzer"
	"github.com/zulandar/instantory/internal/filetype"
	"github.com/zulandar/instantory/internal/jobs"
)

type fakeAnalyzer struct {
	fail     map[string]error
	fallback map[string]bool
	panics   map[string]bool
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	mu          sync.Mutex
	order       []string
}

func (f *fakeAnalyzer) enter(url string) {
	n := f.inFlight.Add(1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	f.mu.Lock()
	f.order = append(f.order, url)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeAnalyzer) leave() { f.inFlight.Add(-1) }

func (f *fakeAnalyzer) AnalyzeImage(_ context.Context, url, _ string) (analyzer.Result[analyzer.InventoryRecord], error) {
	f.enter(url)
	defer f.leave()
	if f.panics[url] {
		panic("decoder exploded")
	}
	if err := f.fail[url]; err != nil {
		return analyzer.Result[analyzer.InventoryRecord]{}, err
	}
	rec := analyzer.FallbackInventory(url)
	if f.fallback[url] {
		return analyzer.Result[analyzer.InventoryRecord]{Record: rec, Outcome: analyzer.OutcomeFallback, Reason: "x"}, nil
	}
	rec.Name = "item " + url
	return analyzer.Result[analyzer.InventoryRecord]{Record: rec, Outcome: analyzer.OutcomeOK}, nil
}

func (f *fakeAnalyzer) AnalyzeDocument(_ context.Context, url, filename, _ string) (analyzer.Result[analyzer.DocumentRecord], error) {
	f.enter(url)
	defer f.leave()
	if err := f.fail[url]; err != nil {
		return analyzer.Result[analyzer.DocumentRecord]{}, err
	}
	rec := analyzer.FallbackDocument()
	rec.FilePath = url
	rec.Title = filename
	return analyzer.Result[analyzer.DocumentRecord]{Record: rec, Outcome: analyzer.OutcomeOK}, nil
}

type fakeStore struct {
	mu        sync.Mutex
	fail      map[string]bool
	inventory []string
	documents []string
}

func (s *fakeStore) UpsertInventory(_ context.Context, rec analyzer.InventoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[rec.ImageURL] {
		return errors.New("connection reset")
	}
	s.inventory = append(s.inventory, rec.ImageURL)
	return nil
}

func (s *fakeStore) UpsertDocument(_ context.Context, rec analyzer.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[rec.FilePath] {
		return errors.New("connection reset")
	}
	s.documents = append(s.documents, rec.FilePath)
	return nil
}

// spyTracker records every progress update on top of a real registry.
type spyTracker struct {
	*jobs.Registry
	mu       sync.Mutex
	progress []int
	messages []string
}

func (s *spyTracker) Progress(id string, pct int, message string) error {
	s.mu.Lock()
	s.progress = append(s.progress, pct)
	s.messages = append(s.messages, message)
	s.mu.Unlock()
	return s.Registry.Progress(id, pct, message)
}

func images(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		name := fmt.Sprintf("img%d.png", i)
		items[i] = Item{URL: "https://blob/" + name, Name: name, Kind: filetype.Image}
	}
	return items
}

func setup(t *testing.T, fa *fakeAnalyzer, fs *fakeStore, chunk int) (*Processor, *spyTracker, string) {
	t.Helper()
	reg := jobs.NewRegistry(jobs.RegistryOpts{})
	spy := &spyTracker{Registry: reg}
	job := reg.Create(0)
	if err := reg.Start(job.ID); err != nil {
		t.Fatal(err)
	}
	p := New(Options{Analyzer: fa, Store: fs, Tracker: spy, ChunkSize: chunk})
	return p, spy, job.ID
}

func TestProgress(t *testing.T) {
	tests := []struct {
		processed, total, want int
	}{
		{0, 7, 10},
		{5, 7, 74},
		{7, 7, 100},
		{6, 7, 87},
		{0, 0, 100},
		{1, 3, 40},
	}
	for _, tt := range tests {
		if got := Progress(tt.processed, tt.total); got != tt.want {
			t.Errorf("Progress(%d, %d) = %d, want %d", tt.processed, tt.total, got, tt.want)
		}
	}
}

func TestRun_SevenImagesChunkFive(t *testing.T) {
	fa := &fakeAnalyzer{}
	fs := &fakeStore{}
	p, spy, id := setup(t, fa, fs, 5)

	out := p.Run(context.Background(), id, images(7), "")

	if out.Processed != 7 || out.Total != 7 || !out.Complete() {
		t.Errorf("outcome = %+v", out)
	}
	if len(spy.progress) != 2 || spy.progress[0] != 74 || spy.progress[1] != 100 {
		t.Errorf("progress updates = %v, want [74 100]", spy.progress)
	}
	if spy.messages[0] != "Processed 5/7 images" || spy.messages[1] != "Processed 7/7 images" {
		t.Errorf("messages = %q", spy.messages)
	}
	if len(fs.inventory) != 7 {
		t.Errorf("stored = %d, want 7", len(fs.inventory))
	}
	job, _ := spy.Get(id)
	if job.Error != "" {
		t.Errorf("unexpected job error %q", job.Error)
	}
}

func TestRun_PartialFailure(t *testing.T) {
	items := images(7)
	fa := &fakeAnalyzer{fail: map[string]error{items[1].URL: errors.New("fetch: unexpected status: 404")}}
	fs := &fakeStore{fail: map[string]bool{items[6].URL: true}}
	p, spy, id := setup(t, fa, fs, 5)

	out := p.Run(context.Background(), id, items, "")

	if out.Processed != 5 || out.Complete() {
		t.Errorf("outcome = %+v, want 5/7", out)
	}
	if len(spy.progress) != 2 {
		t.Fatalf("progress = %v, want one update per chunk", spy.progress)
	}
	if spy.progress[0] != Progress(4, 7) || spy.progress[1] != Progress(5, 7) {
		t.Errorf("progress = %v", spy.progress)
	}
	job, _ := spy.Get(id)
	for _, want := range []string{"chunk 1: img1.png: fetch", "chunk 2: img6.png: connection reset"} {
		if !strings.Contains(job.Error, want) {
			t.Errorf("job error %q missing %q", job.Error, want)
		}
	}
	if job.Status != jobs.StatusProcessing {
		t.Errorf("processor changed status to %s", job.Status)
	}
}

func TestRun_AllChunksAttempted(t *testing.T) {
	items := images(10)
	fail := map[string]error{}
	for _, it := range items[:5] {
		fail[it.URL] = errors.New("boom")
	}
	fa := &fakeAnalyzer{fail: fail}
	fs := &fakeStore{}
	p, _, id := setup(t, fa, fs, 5)

	out := p.Run(context.Background(), id, items, "")
	if out.Processed != 5 {
		t.Errorf("Processed = %d, want 5", out.Processed)
	}
	if len(fa.order) != 10 {
		t.Errorf("attempted %d items, want 10", len(fa.order))
	}
}

func TestRun_ConcurrencyBoundedByChunk(t *testing.T) {
	fa := &fakeAnalyzer{delay: 20 * time.Millisecond}
	fs := &fakeStore{}
	p, _, id := setup(t, fa, fs, 3)

	out := p.Run(context.Background(), id, images(8), "")
	if out.Processed != 8 {
		t.Fatalf("Processed = %d", out.Processed)
	}
	if got := fa.maxInFlight.Load(); got > 3 {
		t.Errorf("max in flight = %d, want <= 3", got)
	}
	// Chunks are sequential: every item of chunk 1 starts before any of chunk 2.
	first := map[string]bool{}
	for _, it := range images(8)[:3] {
		first[it.URL] = true
	}
	for i, url := range fa.order[:3] {
		if !first[url] {
			t.Errorf("order[%d] = %s started before chunk 1 finished", i, url)
		}
	}
}

func TestRun_PanicIsItemFailure(t *testing.T) {
	items := images(3)
	fa := &fakeAnalyzer{panics: map[string]bool{items[0].URL: true}}
	fs := &fakeStore{}
	p, spy, id := setup(t, fa, fs, 5)

	out := p.Run(context.Background(), id, items, "")
	if out.Processed != 2 {
		t.Errorf("Processed = %d, want 2", out.Processed)
	}
	job, _ := spy.Get(id)
	if !strings.Contains(job.Error, "panic: decoder exploded") {
		t.Errorf("job error = %q", job.Error)
	}
}

func TestRun_FallbacksCounted(t *testing.T) {
	items := images(4)
	fa := &fakeAnalyzer{fallback: map[string]bool{items[0].URL: true, items[3].URL: true}}
	fs := &fakeStore{}
	p, _, id := setup(t, fa, fs, 5)

	out := p.Run(context.Background(), id, items, "")
	if out.Processed != 4 || out.Fallbacks != 2 {
		t.Errorf("outcome = %+v, want 4 processed with 2 fallbacks", out)
	}
}

func TestRun_MixedKinds(t *testing.T) {
	items := []Item{
		{URL: "https://blob/a.png", Name: "a.png", Kind: filetype.Image},
		{URL: "https://blob/b.pdf", Name: "b.pdf", Kind: filetype.Document},
		{URL: "https://blob/c", Name: "c", Kind: "bogus"},
	}
	fa := &fakeAnalyzer{}
	fs := &fakeStore{}
	p, spy, id := setup(t, fa, fs, 5)

	out := p.Run(context.Background(), id, items, "")
	if out.Processed != 2 {
		t.Errorf("Processed = %d, want 2", out.Processed)
	}
	if len(fs.inventory) != 1 || len(fs.documents) != 1 {
		t.Errorf("stored inventory=%v documents=%v", fs.inventory, fs.documents)
	}
	if spy.messages[0] != "Processed 2/3 items" {
		t.Errorf("message = %q", spy.messages[0])
	}
}

func TestRun_Empty(t *testing.T) {
	p, spy, id := setup(t, &fakeAnalyzer{}, &fakeStore{}, 5)
	out := p.Run(context.Background(), id, nil, "")
	if out.Total != 0 || !out.Complete() {
		t.Errorf("outcome = %+v", out)
	}
	if len(spy.progress) != 0 {
		t.Errorf("progress = %v, want none", spy.progress)
	}
}

func TestNoun(t *testing.T) {
	img := Item{Kind: filetype.Image}
	doc := Item{Kind: filetype.Document}
	tests := []struct {
		items []Item
		want  string
	}{
		{[]Item{img, img}, "images"},
		{[]Item{doc}, "documents"},
		{[]Item{img, doc}, "items"},
		{nil, "items"},
	}
	for _, tt := range tests {
		if got := Noun(tt.items); got != tt.want {
			t.Errorf("Noun(%v) = %q, want %q", tt.items, got, tt.want)
		}
	}
}

func TestNew_DefaultChunkSize(t *testing.T) {
	p := New(Options{})
	if p.chunkSize != DefaultChunkSize {
		t.Errorf("chunkSize = %d, want %d", p.chunkSize, DefaultChunkSize)
	}
}
