package analyzer

import "strings"

func imagePrompt(instruction string) string {
	return strings.Join([]string{
		"You are an assistant that catalogs and analyzes products for an inventory system.",
		instruction,
		"Please respond ONLY with valid JSON containing these fields:",
		`{`,
		`  "name": "<string>",`,
		`  "description": "<string>",`,
		`  "category": "<string>",`,
		`  "material": "<string>",`,
		`  "color": "<string>",`,
		`  "dimensions": "<string>",`,
		`  "origin_source": "<string>",`,
		`  "import_cost": <number>,`,
		`  "retail_price": <number>,`,
		`  "key_tags": "<comma separated string>"`,
		`}`,
		`If a field is unavailable, write "N/A" (not empty or null).`,
	}, "\n")
}

func documentPrompt(instruction string) string {
	return strings.Join([]string{
		instruction,
		"Provide a JSON object with the following fields:",
		`1. "title": Document title (required)`,
		`2. "author": Author names if available (required)`,
		`3. "category": Document type (e.g., Research Paper, Technical Report) (required)`,
		`4. "field": Primary field or subject area (required)`,
		`5. "publication_year": Publication year as integer if available`,
		`6. "journal_publisher": Journal or publisher name if available`,
		`7. "thesis": Clear, concise thesis statement (required)`,
		`8. "issue": Main question or problem addressed (required)`,
		`9. "summary": Comprehensive summary in 400 characters or less (required)`,
		`10. "influenced_by": 1-3 relevant persons, papers, cases, institutions, etc.`,
		`11. "hashtags": 3-5 relevant keyword tags for categorization`,
		"",
		"Focus on accuracy and conciseness. For required fields, provide best inference if not explicitly stated.",
		"Provide response in valid JSON format only, no additional text.",
	}, "\n")
}
