package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/toolgate/pkg/parser"
	"github.com/harun/toolgate/pkg/tsd"
)

// CodeToolNotFound is reported when an invocation names an unregistered
// tool.
const CodeToolNotFound = "TOOL_NOT_FOUND"

// Parameter defines a parameter for a tool.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Handler is the function signature for tool execution.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Definition defines a tool's metadata and handler.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Registry maps tool names to executable implementations and their
// parameter schemas. The policy applier's execute and fallback functions
// are thin adapters over Invoke.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	logger  zerolog.Logger
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
		logger:  logger.With().Str("component", "registry").Logger(),
	}
}

// Register validates a tool definition, compiles its parameter schema and
// installs it.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}
	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	r.logger.Info().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Get returns a tool definition by name, or nil.
func (r *Registry) Get(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns every registered definition, sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, *def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ListToolNames returns the registered tool names, sorted.
func (r *Registry) ListToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke executes a parsed invocation against its registered tool and
// returns the uniform result shape.
func (r *Registry) Invoke(ctx context.Context, inv parser.Invocation) tsd.ToolResult {
	result, err := r.execute(ctx, inv.Tool, inv.Args)
	if err != nil {
		return tsd.Failure(tsd.ClassifyError(err), "%v", err)
	}
	return result
}

// ExecuteFunc adapts the registry for the policy applier. Unknown tools
// and handler errors surface as returned errors so the applier can
// classify and fold them.
func (r *Registry) ExecuteFunc() tsd.ExecuteFunc {
	return func(ctx context.Context, toolName string, args map[string]interface{}) (tsd.ToolResult, error) {
		return r.execute(ctx, toolName, args)
	}
}

func (r *Registry) execute(ctx context.Context, toolName string, args map[string]interface{}) (tsd.ToolResult, error) {
	r.mu.RLock()
	def := r.tools[toolName]
	schema := r.schemas[toolName]
	r.mu.RUnlock()

	if def == nil {
		return tsd.ToolResult{}, &tsd.CodedError{Code: CodeToolNotFound, Message: fmt.Sprintf("tool not found: %s", toolName)}
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	if err := validateArgs(schema, args); err != nil {
		return tsd.ToolResult{}, &tsd.CodedError{Code: tsd.CodeValidationFailed, Message: err.Error()}
	}

	r.logger.Debug().Str("tool", toolName).Msg("Executing tool")

	output, err := def.Handler(ctx, args)
	if err != nil {
		return tsd.ToolResult{}, err
	}
	return tsd.ToolResult{Success: true, Data: output}, nil
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type": param.Type,
		}
		if param.Description != "" {
			paramSchema["description"] = param.Description
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		violations := []string{}
		for _, v := range result.Errors() {
			violations = append(violations, v.String())
		}
		return fmt.Errorf("parameter validation failed: %v", violations)
	}
	return nil
}
