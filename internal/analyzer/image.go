package analyzer

import (
	"context"

	"github.com/zulandar/instantory/internal/imageprep"
	"github.com/zulandar/instantory/internal/llm"
)

// DefaultImageInstruction is used when a batch carries no instruction.
const DefaultImageInstruction = "Catalog, categorize and describe the inventory item."

// FallbackInventory returns the placeholder record for an image whose
// analysis failed.
func FallbackInventory(url string) InventoryRecord {
	return InventoryRecord{
		ImageURL:     url,
		Name:         "Untitled Item",
		Description:  NA,
		Category:     NA,
		Material:     NA,
		Color:        NA,
		Dimensions:   NA,
		OriginSource: NA,
		KeyTags:      "unclassified",
	}
}

// AnalyzeImage fetches the image at url and catalogs it. Every failure,
// including an unreachable source, yields a fallback record.
func (a *Analyzer) AnalyzeImage(ctx context.Context, url, instruction string) (Result[InventoryRecord], error) {
	data, err := a.fetch.Fetch(ctx, url)
	if err != nil {
		return a.imageFallback(url, "fetch: "+err.Error()), nil
	}

	prepared, err := imageprep.Prepare(data)
	if err != nil {
		return a.imageFallback(url, "prepare: "+err.Error()), nil
	}

	if instruction == "" {
		instruction = DefaultImageInstruction
	}
	content, err := a.llm.Complete(ctx, llm.Request{
		Model:     a.imageModel,
		Messages:  []llm.Message{llm.TextWithImage(imagePrompt(instruction), prepared.DataURL())},
		MaxTokens: a.imageMaxTokens,
	})
	if err != nil {
		return a.imageFallback(url, "complete: "+err.Error()), nil
	}

	fields, err := decodeObject(content)
	if err != nil {
		a.log.Warn().Str("url", url).Str("content", truncate(content, 200)).Msg("analyzer.image.decode_failed")
		return a.imageFallback(url, err.Error()), nil
	}

	rec, defaulted := sanitizeInventory(fields)
	rec.ImageURL = url
	if verr := inventorySchema.validate(fields); verr != nil {
		a.log.Warn().Err(verr).Str("url", url).Strs("defaulted", defaulted).Msg("analyzer.image.schema_violation")
		return fallback(rec, verr.Error()), nil
	}
	a.log.Debug().Str("url", url).Str("name", rec.Name).Msg("analyzer.image.ok")
	return ok(rec), nil
}

func (a *Analyzer) imageFallback(url, reason string) Result[InventoryRecord] {
	a.log.Warn().Str("url", url).Str("reason", reason).Msg("analyzer.image.fallback")
	return fallback(FallbackInventory(url), reason)
}

func sanitizeInventory(m map[string]any) (InventoryRecord, []string) {
	var defaulted []string
	str := func(key string) string {
		v, ok := stringField(m, key)
		if !ok {
			defaulted = append(defaulted, key)
		}
		return v
	}
	num := func(key string) float64 {
		v, ok := numberField(m, key)
		if !ok {
			defaulted = append(defaulted, key)
		}
		return v
	}
	rec := InventoryRecord{
		Name:         str("name"),
		Description:  str("description"),
		Category:     str("category"),
		Material:     str("material"),
		Color:        str("color"),
		Dimensions:   str("dimensions"),
		OriginSource: str("origin_source"),
		ImportCost:   num("import_cost"),
		RetailPrice:  num("retail_price"),
	}
	tags := listField(m, "key_tags")
	if len(tags) == 0 {
		defaulted = append(defaulted, "key_tags")
		rec.KeyTags = NA
	} else {
		rec.KeyTags = joinList(tags)
	}
	return rec, defaulted
}
