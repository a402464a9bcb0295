// Package schema publishes the OpenAPI description of the response bodies
// and validates bodies against it.
package schema

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var document []byte

// SummarySchema is the component every response body must satisfy.
const SummarySchema = "Summary"

var ErrSchemaNotFound = errors.New("schema not found")

var (
	loadOnce sync.Once
	loaded   *openapi3.T
	loadErr  error
)

// Load parses and validates the embedded document once.
func Load() (*openapi3.T, error) {
	loadOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(document)
		if err != nil {
			loadErr = fmt.Errorf("failed to load openapi document: %w", err)
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			loadErr = fmt.Errorf("invalid openapi document: %w", err)
			return
		}
		loaded = doc
	})
	return loaded, loadErr
}

// JSON renders the document as indented JSON.
func JSON() ([]byte, error) {
	doc, err := Load()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ValidateBody checks a response body against the Summary schema.
func ValidateBody(body []byte) error {
	doc, err := Load()
	if err != nil {
		return err
	}
	if doc.Components == nil {
		return ErrSchemaNotFound
	}
	ref, ok := doc.Components.Schemas[SummarySchema]
	if !ok || ref.Value == nil {
		return fmt.Errorf("%w: %s", ErrSchemaNotFound, SummarySchema)
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("response body is not JSON: %w", err)
	}
	return ref.Value.VisitJSON(v)
}
