package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	sq "github.com/Masterminds/squirrel"
)

// ErrEmptyQuery is returned by SearchDocuments for a blank query.
var ErrEmptyQuery = errors.New("search query is required")

// Search scopes accepted by SearchDocuments.
const (
	FieldAll      = "all"
	FieldContent  = "content"
	FieldMetadata = "metadata"
)

const (
	searchLimit    = 100
	excerptContext = 150
	// excerptHead is how much leading text stands in when the match is not
	// inside the extracted text.
	excerptHead = 300
)

var metadataColumns = []string{"title", "author", "summary", "thesis", "hashtags"}

// SearchResult is one document matching a search.
type SearchResult struct {
	ID      uint   `json:"id"`
	Title   string `json:"title"`
	Author  string `json:"author"`
	Summary string `json:"summary"`
	Excerpt string `json:"excerpt"`
}

type searchRow struct {
	ID            uint
	Title         string
	Author        string
	Summary       string
	ExtractedText string
}

// SearchDocuments finds documents whose content, metadata or both contain
// query, case-insensitively. Unknown fields search everything.
func (s *Store) SearchDocuments(ctx context.Context, query, field string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("store: search: %w", ErrEmptyQuery)
	}

	sqlStr, args, err := searchQuery(query, field).ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build search: %w", err)
	}
	var rows []searchRow
	if err := s.db.WithContext(ctx).Raw(sqlStr, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: search documents: %w", err)
	}

	out := make([]SearchResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, SearchResult{
			ID:      r.ID,
			Title:   r.Title,
			Author:  r.Author,
			Summary: r.Summary,
			Excerpt: Excerpt(r.ExtractedText, query, excerptContext),
		})
	}
	return out, nil
}

func searchQuery(query, field string) sq.SelectBuilder {
	pattern := "%" + strings.ToLower(query) + "%"
	var cols []string
	switch field {
	case FieldContent:
		cols = []string{"extracted_text"}
	case FieldMetadata:
		cols = metadataColumns
	default:
		cols = append(append([]string{}, metadataColumns...), "extracted_text")
	}
	var or sq.Or
	for _, c := range cols {
		or = append(or, sq.Like{"LOWER(" + c + ")": pattern})
	}
	return sq.Select("id", "title", "author", "summary", "extracted_text").
		From("document_vault").
		Where(or).
		OrderBy("created_at DESC", "id DESC").
		Limit(searchLimit)
}

// Excerpt returns the part of text around the first case-insensitive
// occurrence of query, with up to around characters on each side. Elided
// ends are marked with "...".
func Excerpt(text, query string, around int) string {
	if text == "" || query == "" {
		return ""
	}
	runes := []rune(text)
	lower := strings.Map(unicode.ToLower, text)
	needle := strings.Map(unicode.ToLower, query)

	idx := strings.Index(lower, needle)
	if idx < 0 {
		if len(runes) <= excerptHead {
			return text
		}
		return string(runes[:excerptHead]) + "..."
	}
	pos := len([]rune(lower[:idx]))
	start := max(0, pos-around)
	end := min(len(runes), pos+len([]rune(needle))+around)

	excerpt := string(runes[start:end])
	if start > 0 {
		excerpt = "..." + excerpt
	}
	if end < len(runes) {
		excerpt += "..."
	}
	return excerpt
}
