package analyzer

import (
	"context"
	"fmt"

	"github.com/zulandar/instantory/internal/extract"
	"github.com/zulandar/instantory/internal/filetype"
	"github.com/zulandar/instantory/internal/llm"
)

// DefaultDocumentInstruction is used when a batch carries no instruction.
const DefaultDocumentInstruction = "Analyze and catalog the document."

const (
	documentMaxTokens   = 1600
	documentTemperature = 0.2
	// maxPromptChars bounds how much extracted text is sent for analysis.
	maxPromptChars = 60000
)

// FallbackDocument returns the placeholder record for a document whose
// analysis failed. Source fields are filled in by the caller.
func FallbackDocument() DocumentRecord {
	return DocumentRecord{
		Title:        "Untitled Document",
		Author:       "Unknown Author",
		Category:     "Document",
		Field:        "General",
		Thesis:       "Document analysis unavailable",
		Issue:        "Unable to determine",
		Summary:      "Document processing error occurred",
		Hashtags:     NA,
		InfluencedBy: NA,
	}
}

// AnalyzeDocument fetches the document at url, extracts its text based on
// filename and catalogs it. Fetch and extraction failures are returned as
// errors since no record can be produced without text.
func (a *Analyzer) AnalyzeDocument(ctx context.Context, url, filename, instruction string) (Result[DocumentRecord], error) {
	data, err := a.fetch.Fetch(ctx, url)
	if err != nil {
		return Result[DocumentRecord]{}, fmt.Errorf("analyzer: fetch document: %w", err)
	}
	text, err := extract.Text(filename, data)
	if err != nil {
		return Result[DocumentRecord]{}, fmt.Errorf("analyzer: %w", err)
	}

	finish := func(rec DocumentRecord) DocumentRecord {
		rec.FilePath = url
		rec.FileType = filetype.Ext(filename)
		rec.ExtractedText = text
		rec.PageLength = extract.LineCount(text)
		if rec.Title == NA {
			rec.Title = filename
		}
		return rec
	}

	prompt := extract.Normalize(text)
	if prompt == "" {
		return a.documentFallback(url, finish(FallbackDocument()), "no extractable text"), nil
	}
	prompt = truncate(prompt, maxPromptChars)

	if instruction == "" {
		instruction = DefaultDocumentInstruction
	}
	content, err := a.llm.Complete(ctx, llm.Request{
		Model: a.documentModel,
		Messages: []llm.Message{
			llm.Text("system", documentPrompt(instruction)),
			llm.Text("user", prompt),
		},
		MaxTokens:   documentMaxTokens,
		Temperature: llm.Float(documentTemperature),
		JSONMode:    true,
	})
	if err != nil {
		return a.documentFallback(url, finish(FallbackDocument()), "complete: "+err.Error()), nil
	}

	fields, err := decodeObject(content)
	if err != nil {
		return a.documentFallback(url, finish(FallbackDocument()), err.Error()), nil
	}

	rec, defaulted := sanitizeDocument(fields)
	rec = finish(rec)
	if verr := documentSchema.validate(fields); verr != nil {
		a.log.Warn().Err(verr).Str("url", url).Strs("defaulted", defaulted).Msg("analyzer.document.schema_violation")
		return fallback(rec, verr.Error()), nil
	}
	a.log.Debug().Str("url", url).Str("title", rec.Title).Msg("analyzer.document.ok")
	return ok(rec), nil
}

func (a *Analyzer) documentFallback(url string, rec DocumentRecord, reason string) Result[DocumentRecord] {
	a.log.Warn().Str("url", url).Str("reason", reason).Msg("analyzer.document.fallback")
	return fallback(rec, reason)
}

func sanitizeDocument(m map[string]any) (DocumentRecord, []string) {
	var defaulted []string
	str := func(key string) string {
		v, ok := stringField(m, key)
		if !ok {
			defaulted = append(defaulted, key)
		}
		return v
	}
	list := func(key string) string {
		items := listField(m, key)
		if len(items) == 0 {
			defaulted = append(defaulted, key)
			return NA
		}
		return joinList(items)
	}
	rec := DocumentRecord{
		Title:            str("title"),
		Author:           str("author"),
		Category:         str("category"),
		Field:            str("field"),
		PublicationYear:  yearField(m, "publication_year"),
		JournalPublisher: optionalString(m, "journal_publisher"),
		Thesis:           str("thesis"),
		Issue:            str("issue"),
		Summary:          truncate(str("summary"), SummaryLimit),
		Hashtags:         list("hashtags"),
		InfluencedBy:     list("influenced_by"),
	}
	return rec, defaulted
}
