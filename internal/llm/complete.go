package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jonathan/job-matcher/internal/schemas"
)

// validatable is implemented by DTOs carrying validator tags.
type validatable interface {
	Validate() error
}

// Complete runs req and decodes the response into T. The raw response is checked
// against req.Schema and, when *T implements Validate, against the struct rules.
// Any mismatch is a *SchemaError.
func Complete[T any](ctx context.Context, c Client, req Request) (*T, error) {
	if req.Schema == "" {
		return nil, fmt.Errorf("%s: request has no response schema", req.Name)
	}

	raw, err := c.CompleteJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	text := CleanJSONBlock(raw)

	if err := schemas.Validate(req.Schema, text); err != nil {
		return nil, &SchemaError{Name: req.Name, Schema: req.Schema, Cause: err}
	}

	var out T
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, &SchemaError{Name: req.Name, Schema: req.Schema, Cause: err}
	}

	if v, ok := any(&out).(validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, &SchemaError{Name: req.Name, Schema: req.Schema, Cause: err}
		}
	}
	return &out, nil
}
