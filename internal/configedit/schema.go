// Package configedit is the type-dispatched mutation surface for a selected
// node's configuration. A registry maps each node kind to a schema describing
// the editable fields, their defaults and their validation rules; edits are
// committed to the graph store immediately as shallow config patches.
package configedit

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/avi3tal/flowcanvas/internal/faults"
	"github.com/avi3tal/flowcanvas/internal/types"
)

// FieldType selects the widget a field renders as.
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldNumber FieldType = "number"
	FieldSelect FieldType = "select"
)

// Field describes one editable config entry.
type Field struct {
	Name    string
	Label   string
	Type    FieldType
	Default any
	// FreeText fields keep a local edit buffer so re-renders do not displace
	// the caret; every keystroke still commits to canonical state.
	FreeText bool
	Options  []string
}

// QueryConfig is the typed config of a userQuery node.
type QueryConfig struct {
	QueryText string `json:"queryText"`
}

// RetrievalConfig is the typed config of a knowledgeBase node.
type RetrievalConfig struct {
	Collection string `json:"collection" validate:"required"`
	TopK       int    `json:"topK" validate:"gte=1,lte=50"`
}

// ModelCallConfig is the typed config of an llmEngine node. Temperature is
// validated into [0,1] on edit but stored values are never force-corrected.
type ModelCallConfig struct {
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature" validate:"gte=0,lte=1"`
	CustomPrompt string  `json:"customPrompt"`
}

// OutputConfig is the typed config of an output node.
type OutputConfig struct {
	Format string `json:"format" validate:"oneof=text json markdown"`
}

// Schema describes the editable surface of one node kind.
type Schema struct {
	Kind   types.NodeKind
	Fields []Field
	// decode maps a merged config into the kind's typed struct for
	// validation.
	decode func(map[string]any) (any, error)
}

// Defaults returns a fresh config populated with every field default.
func (s *Schema) Defaults() map[string]any {
	cfg := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		if f.Default != nil {
			cfg[f.Name] = f.Default
		}
	}
	return cfg
}

// Registry is the dispatch table keyed by node kind.
type Registry struct {
	schemas  map[types.NodeKind]*Schema
	validate *validator.Validate
}

// NewRegistry builds the registry for the four built-in node kinds.
func NewRegistry() *Registry {
	r := &Registry{
		schemas:  make(map[types.NodeKind]*Schema),
		validate: validator.New(),
	}

	r.register(&Schema{
		Kind: types.KindUserQuery,
		Fields: []Field{
			{Name: "queryText", Label: "Query text", Type: FieldText, Default: "", FreeText: true},
		},
		decode: decodeInto[QueryConfig],
	})
	r.register(&Schema{
		Kind: types.KindKnowledgeBase,
		Fields: []Field{
			{Name: "collection", Label: "Collection", Type: FieldText, Default: "default"},
			{Name: "topK", Label: "Top K", Type: FieldNumber, Default: 5},
		},
		decode: decodeInto[RetrievalConfig],
	})
	r.register(&Schema{
		Kind: types.KindLLMEngine,
		Fields: []Field{
			{Name: "provider", Label: "Provider", Type: FieldSelect, Default: "openai", Options: []string{"openai", "anthropic", "mock"}},
			{Name: "model", Label: "Model", Type: FieldText, Default: "gpt-3.5-turbo"},
			{Name: "temperature", Label: "Temperature", Type: FieldNumber, Default: 0.7},
			{Name: "customPrompt", Label: "Custom prompt", Type: FieldText, Default: "", FreeText: true},
		},
		decode: decodeInto[ModelCallConfig],
	})
	r.register(&Schema{
		Kind: types.KindOutput,
		Fields: []Field{
			{Name: "format", Label: "Format", Type: FieldSelect, Default: "text", Options: []string{"text", "json", "markdown"}},
		},
		decode: decodeInto[OutputConfig],
	})

	return r
}

func (r *Registry) register(s *Schema) {
	r.schemas[s.Kind] = s
}

// Schema returns the schema for a node kind.
func (r *Registry) Schema(kind types.NodeKind) (*Schema, bool) {
	s, ok := r.schemas[kind]
	return s, ok
}

// Defaults returns the default config for a node kind, or an empty config for
// unknown kinds.
func (r *Registry) Defaults(kind types.NodeKind) map[string]any {
	if s, ok := r.schemas[kind]; ok {
		return s.Defaults()
	}
	return map[string]any{}
}

// Validate checks a full (already merged) config against the kind's typed
// schema. Unknown kinds accept anything.
func (r *Registry) Validate(kind types.NodeKind, cfg map[string]any) error {
	s, ok := r.schemas[kind]
	if !ok || s.decode == nil {
		return nil
	}
	typed, err := s.decode(cfg)
	if err != nil {
		return faults.NewValidation("config for %s does not match its schema: %v", kind, err)
	}
	if err := r.validate.Struct(typed); err != nil {
		return faults.NewValidation("invalid config for %s: %v", kind, err)
	}
	return nil
}

// decodeInto round-trips a config mapping through JSON into the typed config
// struct T. Keys outside the schema (such as documents) are ignored.
func decodeInto[T any](cfg map[string]any) (any, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "marshal config")
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return out, nil
}
