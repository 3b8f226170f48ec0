package analyzer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zulandar/instantory/internal/extract"
	"github.com/zulandar/instantory/internal/fetch"
	"github.com/zulandar/instantory/internal/llm"
)

type fakeFetcher map[string][]byte

func (f fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	data, ok := f[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return data, nil
}

type fakeLLM struct {
	reply string
	err   error
	calls []llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.calls = append(f.calls, req)
	return f.reply, f.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const goodInventoryJSON = `{
  "name": "Brass Lamp",
  "description": "A desk lamp",
  "category": "Lighting",
  "material": "Brass",
  "color": "Gold",
  "dimensions": "30x15x15 cm",
  "origin_source": "India",
  "import_cost": 12.5,
  "retail_price": "$49.99",
  "key_tags": ["lamp", " vintage ", ""]
}`

func newImageAnalyzer(t *testing.T, fl *fakeLLM) *Analyzer {
	t.Helper()
	return New(Options{
		Fetcher: fakeFetcher{"https://blob/lamp.png": pngBytes(t), "https://blob/junk.png": []byte("not an image")},
		LLM:     fl,
	})
}

func assertInventoryPopulated(t *testing.T, rec InventoryRecord) {
	t.Helper()
	for name, v := range map[string]string{
		"name": rec.Name, "description": rec.Description, "category": rec.Category,
		"material": rec.Material, "color": rec.Color, "dimensions": rec.Dimensions,
		"origin_source": rec.OriginSource, "key_tags": rec.KeyTags, "image_url": rec.ImageURL,
	} {
		if v == "" {
			t.Errorf("%s is empty", name)
		}
	}
	if rec.ImportCost < 0 || rec.RetailPrice < 0 {
		t.Errorf("negative amounts: %v / %v", rec.ImportCost, rec.RetailPrice)
	}
}

func TestAnalyzeImage_OK(t *testing.T) {
	fl := &fakeLLM{reply: goodInventoryJSON}
	a := newImageAnalyzer(t, fl)

	res, err := a.AnalyzeImage(context.Background(), "https://blob/lamp.png", "")
	if err != nil {
		t.Fatalf("AnalyzeImage: %v", err)
	}
	if res.Fallback() {
		t.Fatalf("unexpected fallback: %s", res.Reason)
	}
	rec := res.Record
	if rec.Name != "Brass Lamp" || rec.Material != "Brass" {
		t.Errorf("record = %+v", rec)
	}
	if rec.ImportCost != 12.5 || rec.RetailPrice != 49.99 {
		t.Errorf("amounts = %v / %v", rec.ImportCost, rec.RetailPrice)
	}
	if rec.KeyTags != "lamp,vintage" {
		t.Errorf("KeyTags = %q", rec.KeyTags)
	}
	if rec.ImageURL != "https://blob/lamp.png" {
		t.Errorf("ImageURL = %q", rec.ImageURL)
	}

	if len(fl.calls) != 1 {
		t.Fatalf("calls = %d", len(fl.calls))
	}
	req := fl.calls[0]
	if req.Model != "gpt-4o" || req.MaxTokens != 2000 {
		t.Errorf("request model/tokens = %q/%d", req.Model, req.MaxTokens)
	}
	parts, ok := req.Messages[0].Content.([]llm.Part)
	if !ok || len(parts) != 2 {
		t.Fatalf("content = %#v", req.Messages[0].Content)
	}
	if !strings.Contains(parts[0].Text, DefaultImageInstruction) {
		t.Errorf("prompt missing default instruction: %q", parts[0].Text)
	}
	if !strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,") {
		t.Errorf("image url = %.40q", parts[1].ImageURL.URL)
	}
}

func TestAnalyzeImage_Fallbacks(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		reply      string
		llmErr     error
		wantReason string
		wantCalls  int
	}{
		{"service error", "https://blob/lamp.png", "", errors.New("status 500"), "complete", 1},
		{"not json", "https://blob/lamp.png", "Sorry, I cannot help.", nil, "decode response", 1},
		{"json array", "https://blob/lamp.png", `["a"]`, nil, "not a JSON object", 1},
		{"undecodable image", "https://blob/junk.png", goodInventoryJSON, nil, "prepare", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fl := &fakeLLM{reply: tt.reply, err: tt.llmErr}
			a := newImageAnalyzer(t, fl)
			res, err := a.AnalyzeImage(context.Background(), tt.url, "x")
			if err != nil {
				t.Fatalf("AnalyzeImage: %v", err)
			}
			if !res.Fallback() {
				t.Fatal("expected fallback")
			}
			if !strings.Contains(res.Reason, tt.wantReason) {
				t.Errorf("Reason = %q, want %q", res.Reason, tt.wantReason)
			}
			if res.Record != FallbackInventory(tt.url) {
				t.Errorf("record = %+v", res.Record)
			}
			if len(fl.calls) != tt.wantCalls {
				t.Errorf("calls = %d, want %d", len(fl.calls), tt.wantCalls)
			}
			assertInventoryPopulated(t, res.Record)
		})
	}
}

func TestAnalyzeImage_PartialResponseIsCoerced(t *testing.T) {
	fl := &fakeLLM{reply: "```json\n" + `{"name":"Chair","description":"","color":42,"import_cost":"abc","retail_price":-3,"key_tags":"wood, seat"}` + "\n```"}
	a := newImageAnalyzer(t, fl)

	res, err := a.AnalyzeImage(context.Background(), "https://blob/lamp.png", "x")
	if err != nil {
		t.Fatalf("AnalyzeImage: %v", err)
	}
	if !res.Fallback() || res.Reason == "" {
		t.Fatalf("want schema fallback with reason, got %+v", res)
	}
	rec := res.Record
	if rec.Name != "Chair" {
		t.Errorf("Name = %q", rec.Name)
	}
	if rec.Description != NA || rec.Color != NA || rec.Material != NA {
		t.Errorf("strings = %q/%q/%q, want N/A", rec.Description, rec.Color, rec.Material)
	}
	if rec.ImportCost != 0 || rec.RetailPrice != 0 {
		t.Errorf("amounts = %v/%v, want 0", rec.ImportCost, rec.RetailPrice)
	}
	if rec.KeyTags != "wood,seat" {
		t.Errorf("KeyTags = %q", rec.KeyTags)
	}
	assertInventoryPopulated(t, rec)
}

func TestAnalyzeImage_FetchFailureFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tests := []struct {
		name    string
		fetcher Fetcher
		url     string
	}{
		{"unreachable", fakeFetcher{}, "https://blob/missing.png"},
		{"not found", fetch.New(fetch.Options{}), srv.URL + "/x.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fl := &fakeLLM{reply: goodInventoryJSON}
			a := New(Options{Fetcher: tt.fetcher, LLM: fl})

			res, err := a.AnalyzeImage(context.Background(), tt.url, "x")
			if err != nil {
				t.Fatalf("AnalyzeImage: %v", err)
			}
			if !res.Fallback() {
				t.Fatal("expected fallback record")
			}
			if !strings.HasPrefix(res.Reason, "fetch: ") {
				t.Errorf("Reason = %q, want fetch: prefix", res.Reason)
			}
			if res.Record.Name != "Untitled Item" || res.Record.ImageURL != tt.url {
				t.Errorf("record = %+v", res.Record)
			}
			assertInventoryPopulated(t, res.Record)
			if len(fl.calls) != 0 {
				t.Errorf("service called %d times after fetch failure", len(fl.calls))
			}
		})
	}
}

const goodDocumentJSON = `{
  "title": "On Queues",
  "author": "A. Erlang",
  "category": "Research Paper",
  "field": "Telephony",
  "publication_year": 1909,
  "journal_publisher": "Nyt Tidsskrift",
  "thesis": "Call arrivals follow a Poisson process.",
  "issue": "Sizing exchanges",
  "summary": "SUMMARY",
  "influenced_by": ["Poisson"],
  "hashtags": ["#queueing", "#probability"]
}`

func newDocAnalyzer(fl *fakeLLM, files map[string]string) *Analyzer {
	ff := fakeFetcher{}
	for k, v := range files {
		ff[k] = []byte(v)
	}
	return New(Options{Fetcher: ff, LLM: fl})
}

func TestAnalyzeDocument_OK(t *testing.T) {
	long := strings.Repeat("s", 500)
	fl := &fakeLLM{reply: strings.Replace(goodDocumentJSON, "SUMMARY", long, 1)}
	a := newDocAnalyzer(fl, map[string]string{"https://blob/q.txt": "line one\nline two\nline three"})

	res, err := a.AnalyzeDocument(context.Background(), "https://blob/q.txt", "q.txt", "")
	if err != nil {
		t.Fatalf("AnalyzeDocument: %v", err)
	}
	if res.Fallback() {
		t.Fatalf("unexpected fallback: %s", res.Reason)
	}
	rec := res.Record
	if rec.Title != "On Queues" || rec.Author != "A. Erlang" {
		t.Errorf("record = %+v", rec)
	}
	if rec.PublicationYear == nil || *rec.PublicationYear != 1909 {
		t.Errorf("PublicationYear = %v", rec.PublicationYear)
	}
	if rec.JournalPublisher == nil || *rec.JournalPublisher != "Nyt Tidsskrift" {
		t.Errorf("JournalPublisher = %v", rec.JournalPublisher)
	}
	if len(rec.Summary) != SummaryLimit {
		t.Errorf("summary length = %d, want %d", len(rec.Summary), SummaryLimit)
	}
	if rec.Hashtags != "#queueing,#probability" || rec.InfluencedBy != "Poisson" {
		t.Errorf("lists = %q / %q", rec.Hashtags, rec.InfluencedBy)
	}
	if rec.FilePath != "https://blob/q.txt" || rec.FileType != "txt" {
		t.Errorf("source = %q / %q", rec.FilePath, rec.FileType)
	}
	if rec.PageLength != 3 {
		t.Errorf("PageLength = %d, want 3", rec.PageLength)
	}
	if rec.ExtractedText != "line one\nline two\nline three" {
		t.Errorf("ExtractedText = %q", rec.ExtractedText)
	}

	req := fl.calls[0]
	if req.Model != "gpt-4o-mini" || !req.JSONMode || req.MaxTokens != 1600 {
		t.Errorf("request = %+v", req)
	}
	if req.Temperature == nil || *req.Temperature != 0.2 {
		t.Errorf("temperature = %v", req.Temperature)
	}
	if sys, _ := req.Messages[0].Content.(string); !strings.HasPrefix(sys, DefaultDocumentInstruction) {
		t.Errorf("system prompt = %.60q", sys)
	}
}

func TestAnalyzeDocument_ServiceFailureFallsBack(t *testing.T) {
	fl := &fakeLLM{err: errors.New("timeout")}
	a := newDocAnalyzer(fl, map[string]string{"https://blob/r.txt": "some text"})

	res, err := a.AnalyzeDocument(context.Background(), "https://blob/r.txt", "r.txt", "x")
	if err != nil {
		t.Fatalf("AnalyzeDocument: %v", err)
	}
	if !res.Fallback() {
		t.Fatal("expected fallback")
	}
	rec := res.Record
	want := FallbackDocument()
	if rec.Title != want.Title || rec.Thesis != want.Thesis || rec.Summary != want.Summary {
		t.Errorf("record = %+v", rec)
	}
	if rec.PublicationYear != nil || rec.JournalPublisher != nil {
		t.Error("optional fields should be nil on fallback")
	}
	if rec.FilePath != "https://blob/r.txt" || rec.ExtractedText != "some text" {
		t.Errorf("source fields not filled: %+v", rec)
	}
}

func TestAnalyzeDocument_MissingTitleUsesFilename(t *testing.T) {
	fl := &fakeLLM{reply: `{"author":"x","category":"c","field":"f","thesis":"t","issue":"i","summary":"s","publication_year":"n/a"}`}
	a := newDocAnalyzer(fl, map[string]string{"https://blob/notes.txt": "body"})

	res, err := a.AnalyzeDocument(context.Background(), "https://blob/notes.txt", "notes.txt", "x")
	if err != nil {
		t.Fatalf("AnalyzeDocument: %v", err)
	}
	if !res.Fallback() {
		t.Error("missing required field should be reported as fallback")
	}
	if res.Record.Title != "notes.txt" {
		t.Errorf("Title = %q, want filename", res.Record.Title)
	}
	if res.Record.PublicationYear != nil {
		t.Errorf("PublicationYear = %v, want nil", *res.Record.PublicationYear)
	}
	if res.Record.Hashtags != NA {
		t.Errorf("Hashtags = %q, want N/A", res.Record.Hashtags)
	}
}

func TestAnalyzeDocument_EmptyTextSkipsService(t *testing.T) {
	fl := &fakeLLM{reply: goodDocumentJSON}
	a := newDocAnalyzer(fl, map[string]string{"https://blob/blank.txt": "  \n\t\n"})

	res, err := a.AnalyzeDocument(context.Background(), "https://blob/blank.txt", "blank.txt", "x")
	if err != nil {
		t.Fatalf("AnalyzeDocument: %v", err)
	}
	if !res.Fallback() || res.Reason != "no extractable text" {
		t.Errorf("result = %+v", res)
	}
	if len(fl.calls) != 0 {
		t.Errorf("service called %d times", len(fl.calls))
	}
}

func TestAnalyzeDocument_HardFailures(t *testing.T) {
	fl := &fakeLLM{reply: goodDocumentJSON}
	a := newDocAnalyzer(fl, map[string]string{"https://blob/old.rtf": "{\\rtf1 hi}"})

	_, err := a.AnalyzeDocument(context.Background(), "https://blob/old.rtf", "old.rtf", "x")
	if !errors.Is(err, extract.ErrUnsupportedType) {
		t.Errorf("err = %v, want ErrUnsupportedType", err)
	}
	if _, err := a.AnalyzeDocument(context.Background(), "https://blob/gone.txt", "gone.txt", "x"); err == nil {
		t.Error("expected fetch error")
	}
	if len(fl.calls) != 0 {
		t.Errorf("service called %d times", len(fl.calls))
	}
}
