// Package filetype classifies submitted files into images and documents by
// extension.
package filetype

import (
	"path"
	"strings"
)

// Kind is the processing class of a submitted file.
type Kind string

const (
	Image    Kind = "image"
	Document Kind = "document"
)

// Classifier holds the extension allow-list partitioned by kind.
type Classifier struct {
	exts map[string]Kind
}

// NewClassifier builds a Classifier. Extensions are matched case-insensitively
// and may be given with or without a leading dot. An extension listed in both
// slices is treated as an image.
func NewClassifier(images, documents []string) *Classifier {
	c := &Classifier{exts: make(map[string]Kind, len(images)+len(documents))}
	for _, ext := range documents {
		c.exts[NormalizeExt(ext)] = Document
	}
	for _, ext := range images {
		c.exts[NormalizeExt(ext)] = Image
	}
	return c
}

// Classify returns the kind of filename, or false when its extension is not
// allowed or missing.
func (c *Classifier) Classify(filename string) (Kind, bool) {
	ext := Ext(filename)
	if ext == "" {
		return "", false
	}
	k, ok := c.exts[ext]
	return k, ok
}

// Allowed reports whether filename has an allowed extension of any kind.
func (c *Classifier) Allowed(filename string) bool {
	_, ok := c.Classify(filename)
	return ok
}

// Ext returns the lowercased extension of filename without the dot.
func Ext(filename string) string {
	return NormalizeExt(path.Ext(strings.TrimSpace(filename)))
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// Entry is a filename that survived classification. Index is its position
// in the input.
type Entry struct {
	Index int
	Name  string
	Kind  Kind
}

// Partition classifies names in order. Names with no allowed extension are
// returned in dropped.
func (c *Classifier) Partition(names []string) (kept []Entry, dropped []string) {
	for i, name := range names {
		k, ok := c.Classify(name)
		if !ok {
			dropped = append(dropped, name)
			continue
		}
		kept = append(kept, Entry{Index: i, Name: name, Kind: k})
	}
	return kept, dropped
}
