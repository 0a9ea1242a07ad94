// Package eventschema validates event payloads against versioned JSON
// Schemas and classifies compatibility between schema versions.
package eventschema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/better-auth-go/platform/pkg/platform/perrors"
)

// ValidationError describes one point of schema non-conformance.
type ValidationError struct {
	Pointer string
	Message string
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// Compatibility classifies the structural relationship between two
// versions of the same event type's schema.
type Compatibility int

const (
	// Full means either version can read the other's data.
	Full Compatibility = iota
	// Forward means fields were only removed (nothing was added
	// without a default, nothing was narrowed).
	Forward
	// Backward means fields without a default were added (nothing was
	// removed, nothing was narrowed).
	Backward
	// Breaking means no safe reader exists in at least one direction.
	Breaking
)

func (c Compatibility) String() string {
	switch c {
	case Full:
		return "Full"
	case Forward:
		return "Forward"
	case Backward:
		return "Backward"
	case Breaking:
		return "Breaking"
	default:
		return "Unknown"
	}
}

// schemaEntry is one registered (type, version).
type schemaEntry struct {
	eventType string
	version   int
	raw       map[string]any
	compiled  *jsonschema.Schema
}

func compile(eventType string, version int, raw map[string]any) (*jsonschema.Schema, error) {
	resourceID := fmt.Sprintf("%s/v%d.json", eventType, version)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceID, raw); err != nil {
		return nil, perrors.New(perrors.KindInvalidInput, "eventschema.compile", fmt.Errorf("add schema resource: %w", err))
	}
	schema, err := c.Compile(resourceID)
	if err != nil {
		return nil, perrors.New(perrors.KindInvalidInput, "eventschema.compile", fmt.Errorf("compile schema: %w", err))
	}
	return schema, nil
}

func validationErrorsFrom(err error) []ValidationError {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []ValidationError{{Pointer: "", Message: err.Error()}}
	}
	var out []ValidationError
	flattenValidationError(ve, &out)
	if len(out) == 0 {
		out = append(out, ValidationError{Pointer: ve.InstanceLocation, Message: ve.Error()})
	}
	return out
}

func flattenValidationError(ve *jsonschema.ValidationError, out *[]ValidationError) {
	if len(ve.Causes) == 0 {
		*out = append(*out, ValidationError{
			Pointer: joinPointer(ve.InstanceLocation),
			Message: ve.Error(),
		})
		return
	}
	for _, cause := range ve.Causes {
		flattenValidationError(cause, out)
	}
}

// joinPointer renders a jsonschema instance-location token path as a
// JSON Pointer ("/a/b/0").
func joinPointer(loc []string) string {
	if len(loc) == 0 {
		return "/"
	}
	return "/" + strings.Join(loc, "/")
}
