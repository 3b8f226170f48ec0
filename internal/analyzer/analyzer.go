// Package analyzer turns one source file into a fully populated enrichment
// record by calling the completion service. Malformed or missing service
// output never escapes as an error: it is absorbed into a fallback record.
package analyzer

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/zulandar/instantory/internal/llm"
)

// NA is the placeholder written into string fields with no usable value.
const NA = "N/A"

// SummaryLimit is the maximum length, in characters, of a document summary.
const SummaryLimit = 400

// Outcome tags how a record was produced.
type Outcome string

const (
	// OutcomeOK means the record came from a well-formed service response.
	OutcomeOK Outcome = "ok"
	// OutcomeFallback means some or all fields hold placeholder values.
	OutcomeFallback Outcome = "fallback"
)

// Result wraps a record with how it was produced.
type Result[T any] struct {
	Record  T
	Outcome Outcome
	// Reason describes why the record fell back. Empty when Outcome is ok.
	Reason string
}

// Fallback reports whether the record holds placeholder values.
func (r Result[T]) Fallback() bool { return r.Outcome == OutcomeFallback }

func ok[T any](rec T) Result[T] { return Result[T]{Record: rec, Outcome: OutcomeOK} }

func fallback[T any](rec T, reason string) Result[T] {
	return Result[T]{Record: rec, Outcome: OutcomeFallback, Reason: reason}
}

// InventoryRecord is the enrichment of one product image.
type InventoryRecord struct {
	ImageURL     string
	Name         string
	Description  string
	Category     string
	Material     string
	Color        string
	Dimensions   string
	OriginSource string
	ImportCost   float64
	RetailPrice  float64
	KeyTags      string
}

// DocumentRecord is the enrichment of one document.
type DocumentRecord struct {
	FilePath         string
	FileType         string
	Title            string
	Author           string
	Category         string
	Field            string
	PublicationYear  *int
	JournalPublisher *string
	Thesis           string
	Issue            string
	Summary          string
	Hashtags         string
	InfluencedBy     string
	PageLength       int
	ExtractedText    string
}

// Fetcher retrieves source bytes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Completer sends a chat completion request.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Options configures an Analyzer.
type Options struct {
	Fetcher       Fetcher
	LLM           Completer
	ImageModel    string
	DocumentModel string
	// ImageMaxTokens bounds the image completion. Document completions use
	// a fixed budget.
	ImageMaxTokens int
	Logger         *zerolog.Logger
}

// Analyzer enriches images and documents.
type Analyzer struct {
	fetch          Fetcher
	llm            Completer
	imageModel     string
	documentModel  string
	imageMaxTokens int
	log            zerolog.Logger
}

// New returns an Analyzer. Empty model names default to gpt-4o for images
// and gpt-4o-mini for documents.
func New(opts Options) *Analyzer {
	a := &Analyzer{
		fetch:          opts.Fetcher,
		llm:            opts.LLM,
		imageModel:     opts.ImageModel,
		documentModel:  opts.DocumentModel,
		imageMaxTokens: opts.ImageMaxTokens,
		log:            zerolog.Nop(),
	}
	if opts.Logger != nil {
		a.log = *opts.Logger
	}
	if a.imageModel == "" {
		a.imageModel = "gpt-4o"
	}
	if a.documentModel == "" {
		a.documentModel = "gpt-4o-mini"
	}
	if a.imageMaxTokens <= 0 {
		a.imageMaxTokens = 2000
	}
	return a
}
