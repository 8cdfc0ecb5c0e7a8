package parser

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Field is the result of one extractor: a value and whether the page
// actually carried it. Extractors never signal absence any other way.
type Field[T any] struct {
	Value T
	Found bool
}

func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Found: true}
}

func None[T any]() Field[T] {
	return Field[T]{}
}

// Or returns the extracted value, or def when the field was not found.
func (f Field[T]) Or(def T) T {
	if f.Found {
		return f.Value
	}
	return def
}

// ParseDocument parses a raw page body.
func ParseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}
