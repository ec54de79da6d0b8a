package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolgate/pkg/parser"
	"github.com/harun/toolgate/pkg/tsd"
)

func TestRegistry_Register(t *testing.T) {
	r := New(zerolog.Nop())

	def := Definition{
		Name:        "test_tool",
		Description: "A test tool",
		Parameters: []Parameter{
			{Name: "input", Type: "string", Description: "Input parameter", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return "result", nil
		},
	}

	err := r.Register(def)
	assert.NoError(t, err)

	tool := r.Get("test_tool")
	require.NotNil(t, tool)
	assert.Equal(t, "test_tool", tool.Name)
}

func TestRegistry_Register_InvalidDefinition(t *testing.T) {
	r := New(zerolog.Nop())
	handler := func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return nil, nil }

	tests := []struct {
		name string
		def  Definition
	}{
		{"empty name", Definition{Description: "Test", Handler: handler}},
		{"empty description", Definition{Name: "test", Handler: handler}},
		{"nil handler", Definition{Name: "test", Description: "Test"}},
		{"bad parameter type", Definition{
			Name: "test", Description: "Test", Handler: handler,
			Parameters: []Parameter{{Name: "x", Type: "float"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, r.Register(tt.def))
		})
	}
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := New(zerolog.Nop())
	def := Definition{
		Name:        "dup",
		Description: "Duplicate test",
		Handler:     func(ctx context.Context, args map[string]interface{}) (interface{}, error) { return nil, nil },
	}

	require.NoError(t, r.Register(def))
	assert.Error(t, r.Register(def))
}

func TestRegistry_Invoke_Success(t *testing.T) {
	r := New(zerolog.Nop())
	require.NoError(t, RegisterBuiltins(r))

	result := r.Invoke(context.Background(), parser.Invocation{
		Tool: "echo",
		Args: map[string]interface{}{"message": "Hello, World!"},
	})

	assert.True(t, result.Success)
	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Hello, World!", data["message"])
}

func TestRegistry_Invoke_ToolNotFound(t *testing.T) {
	r := New(zerolog.Nop())

	result := r.Invoke(context.Background(), parser.Invocation{Tool: "nonexistent"})

	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeToolNotFound, result.Error.Code)
}

func TestRegistry_Invoke_ValidationError(t *testing.T) {
	r := New(zerolog.Nop())
	require.NoError(t, RegisterBuiltins(r))

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing required", map[string]interface{}{}},
		{"wrong type", map[string]interface{}{"message": 42}},
		{"unknown parameter", map[string]interface{}{"message": "hi", "extra": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := r.Invoke(context.Background(), parser.Invocation{Tool: "echo", Args: tt.args})
			assert.False(t, result.Success)
			require.NotNil(t, result.Error)
			assert.Equal(t, tsd.CodeValidationFailed, result.Error.Code)
		})
	}
}

func TestRegistry_ExecuteFunc_HandlerErrorPropagates(t *testing.T) {
	r := New(zerolog.Nop())
	require.NoError(t, r.Register(Definition{
		Name:        "failing",
		Description: "Always fails",
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return nil, errors.New("boom")
		},
	}))

	execFn := r.ExecuteFunc()
	_, err := execFn(context.Background(), "failing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRegistry_ListToolNamesSorted(t *testing.T) {
	r := New(zerolog.Nop())
	require.NoError(t, RegisterBuiltins(r))

	assert.Equal(t, []string{"echo", "sleep", "time.now"}, r.ListToolNames())
}

func TestBuiltin_Sleep_HonorsContext(t *testing.T) {
	r := New(zerolog.Nop())
	require.NoError(t, RegisterBuiltins(r))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	execFn := r.ExecuteFunc()
	_, err := execFn(ctx, "sleep", map[string]interface{}{"ms": float64(5000)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
