package collection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type compiledSchema struct {
	raw    string
	schema *jsonschema.Schema
}

// compileSchema accepts draft-07 documents. References outside the schema
// itself cannot be resolved and fail compilation.
func compileSchema(collection string, raw json.RawMessage) (*jsonschema.Schema, error) {
	url := "mem://notesync/schemas/" + collection + ".json"

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return sch, nil
}

// schemaFor returns the compiled schema for collection, or nil when none
// is registered. Callers hold s.mu.
func (s *Service) schemaFor(ctx context.Context, collection string) (*jsonschema.Schema, error) {
	schemas, err := s.Repo.LoadSchemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	raw, ok := schemas[collection]
	if !ok {
		delete(s.compiled, collection)
		return nil, nil
	}
	if c, ok := s.compiled[collection]; ok && c.raw == string(raw) {
		return c.schema, nil
	}
	sch, err := compileSchema(collection, raw)
	if err != nil {
		// stored schemas were checked on the way in
		return nil, fmt.Errorf("stored schema for %q: %v", collection, err)
	}
	s.cacheSchema(collection, raw, sch)
	return sch, nil
}

func (s *Service) cacheSchema(collection string, raw json.RawMessage, sch *jsonschema.Schema) {
	if s.compiled == nil {
		s.compiled = map[string]compiledSchema{}
	}
	s.compiled[collection] = compiledSchema{raw: string(raw), schema: sch}
}

// validate runs the collection's JSON Schema and then its registered
// Validator against one incoming item. Callers hold s.mu.
func (s *Service) validate(ctx context.Context, collection string, raw json.RawMessage, fields map[string]any) error {
	sch, err := s.schemaFor(ctx, collection)
	if err != nil {
		return err
	}
	if sch != nil {
		if err := sch.Validate(fields); err != nil {
			return &SchemaError{Collection: collection, Err: err}
		}
	}
	if v := s.Validators[collection]; v != nil {
		return v(raw)
	}
	return nil
}

func (s *Service) Schemas(ctx context.Context) (Items, error) {
	schemas, err := s.Repo.LoadSchemas(ctx)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	if schemas == nil {
		schemas = Items{}
	}
	return schemas, nil
}

func (s *Service) Schema(ctx context.Context, collection string) (json.RawMessage, error) {
	if err := CheckName(collection); err != nil {
		return nil, err
	}
	schemas, err := s.Schemas(ctx)
	if err != nil {
		return nil, err
	}
	raw, ok := schemas[collection]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoSchema, collection)
	}
	return raw, nil
}

// PutSchema registers raw as the schema for collection, replacing any
// previous one. Items already stored are not re-checked.
func (s *Service) PutSchema(ctx context.Context, collection string, raw json.RawMessage) (json.RawMessage, error) {
	if err := CheckName(collection); err != nil {
		return nil, err
	}
	if _, err := decodeFields(raw); err != nil {
		return nil, fmt.Errorf("%w: schema must be a JSON object", ErrInvalidSchema)
	}
	raw = compact(raw)
	sch, err := compileSchema(collection, raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	schemas, err := s.Schemas(ctx)
	if err != nil {
		return nil, err
	}
	schemas[collection] = raw
	if err := s.Repo.SaveSchemas(ctx, schemas); err != nil {
		return nil, fmt.Errorf("save schemas: %w", err)
	}
	s.cacheSchema(collection, raw, sch)
	return raw, nil
}

// DeleteSchema removes the schema for collection. A collection without one
// is reported as ErrNoSchema.
func (s *Service) DeleteSchema(ctx context.Context, collection string) error {
	if err := CheckName(collection); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	schemas, err := s.Schemas(ctx)
	if err != nil {
		return err
	}
	if _, ok := schemas[collection]; !ok {
		return fmt.Errorf("%w %q", ErrNoSchema, collection)
	}
	delete(schemas, collection)
	if err := s.Repo.SaveSchemas(ctx, schemas); err != nil {
		return fmt.Errorf("save schemas: %w", err)
	}
	delete(s.compiled, collection)
	return nil
}
