package dispatch

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolgate/pkg/parser"
	"github.com/harun/toolgate/pkg/registry"
	"github.com/harun/toolgate/pkg/tsd"
)

func newTestDispatcher(t *testing.T, mode parser.Mode) *Dispatcher {
	t.Helper()

	reg := registry.New(zerolog.Nop())
	require.NoError(t, registry.RegisterBuiltins(reg))

	router := parser.NewRouter(mode, zerolog.Nop())
	router.SetKnownToolNames(reg.ListToolNames())

	return New(Config{
		Router:   router,
		Applier:  tsd.NewApplier(tsd.ApplierConfig{Logger: zerolog.Nop()}),
		Registry: reg,
		Store:    tsd.NewStore(zerolog.Nop()),
		Session:  tsd.Session{},
		Logger:   zerolog.Nop(),
	})
}

func TestDispatcher_DispatchText_TaggedCall(t *testing.T) {
	d := newTestDispatcher(t, parser.ModeHybrid)

	outcomes, err := d.DispatchText(context.Background(), `<tool_call>{"name": "echo", "arguments": {"message": "hi"}}</tool_call>`)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	assert.Equal(t, "echo", outcomes[0].Invocation.Tool)
	assert.NotEmpty(t, outcomes[0].Invocation.Meta.CorrelationID)
	assert.True(t, outcomes[0].Result.Success)

	data, ok := outcomes[0].Result.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hi", data["message"])
}

func TestDispatcher_DispatchText_PlainMessage(t *testing.T) {
	d := newTestDispatcher(t, parser.ModeHybrid)

	outcomes, err := d.DispatchText(context.Background(), "Just an ordinary answer.")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestDispatcher_DispatchText_MalformedTagPropagates(t *testing.T) {
	d := newTestDispatcher(t, parser.ModeHybrid)

	outcomes, err := d.DispatchText(context.Background(), `<tool_call>{oops}</tool_call>`)
	require.Error(t, err)
	assert.Nil(t, outcomes)
}

func TestDispatcher_DispatchText_LaterInvocationsProceed(t *testing.T) {
	d := newTestDispatcher(t, parser.ModeEmbedding)

	raw := `<tool_call>{"name": "no_such_tool"}</tool_call>
<tool_call>{"name": "echo", "arguments": {"message": "still here"}}</tool_call>`

	outcomes, err := d.DispatchText(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.False(t, outcomes[0].Result.Success)
	assert.Equal(t, registry.CodeToolNotFound, outcomes[0].Result.Error.Code)
	assert.True(t, outcomes[1].Result.Success)
}

func TestDispatcher_DispatchInvocation_AppliesStorePolicy(t *testing.T) {
	d := newTestDispatcher(t, parser.ModeHybrid)
	require.NoError(t, d.store.Set(&tsd.Definition{
		ToolName:   "echo",
		RateLimits: &tsd.RateLimitConfig{MaxCallsPerSecond: 1, BurstAllowance: 0},
	}))

	inv := parser.Invocation{Tool: "echo", Args: map[string]interface{}{"message": "x"}}

	first := d.DispatchInvocation(context.Background(), inv)
	second := d.DispatchInvocation(context.Background(), inv)

	assert.True(t, first.Success)
	assert.False(t, second.Success)
	require.NotNil(t, second.Error)
	assert.Equal(t, tsd.CodeRateLimitExceeded, second.Error.Code)
}

func TestDispatcher_DispatchInvocation_FallbackTool(t *testing.T) {
	d := newTestDispatcher(t, parser.ModeHybrid)
	require.NoError(t, d.store.Set(&tsd.Definition{
		ToolName:     "missing_primary",
		FallbackTool: "echo",
	}))

	result := d.DispatchInvocation(context.Background(), parser.Invocation{
		Tool: "missing_primary",
		Args: map[string]interface{}{"message": "rescued"},
	})

	assert.True(t, result.Success)
	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "rescued", data["message"])
}

func TestDispatcher_DispatchInvocation_StampsCorrelationID(t *testing.T) {
	d := newTestDispatcher(t, parser.ModeHybrid)

	result := d.DispatchInvocation(context.Background(), parser.Invocation{
		Tool: "echo",
		Args: map[string]interface{}{"message": "x"},
	})
	assert.True(t, result.Success)
}

func TestStreamSession_DispatchesOnClosingTag(t *testing.T) {
	d := newTestDispatcher(t, parser.ModeHybrid)
	session := d.Stream()

	outcomes, err := session.Feed(context.Background(), `working... <tool_call>{"name": "ec`)
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	outcomes, err = session.Feed(context.Background(), `ho", "arguments": {"message": "streamed"}}</tool_call>`)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Result.Success)

	outcomes, remaining, err := session.Flush(context.Background())
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Equal(t, "working...", remaining)
}
