package gateway

import (
	"context"
	"time"

	"github.com/harun/toolgate/pkg/dispatch"
	"github.com/harun/toolgate/pkg/parser"
)

// RegisterMethods wires the dispatch pipeline into the RPC router.
// Methods serialize results only; parsing and policy stay in the core.
func RegisterMethods(router *RPCRouter, dispatcher *dispatch.Dispatcher) {
	_ = router.RegisterMethod("dispatch", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		output, _ := params["output"].(string)
		if output == "" {
			return nil, &RPCError{Code: InvalidParams, Message: "output is required"}
		}
		outcomes, err := dispatcher.DispatchText(ctx, output)
		if err != nil {
			return nil, &RPCError{Code: InvalidParams, Message: err.Error()}
		}
		return map[string]interface{}{
			"outcomes": outcomes,
		}, nil
	})

	_ = router.RegisterMethod("dispatch.invoke", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		tool, _ := params["tool"].(string)
		if tool == "" {
			return nil, &RPCError{Code: InvalidParams, Message: "tool is required"}
		}
		args, _ := params["args"].(map[string]interface{})
		inv := preExtractedInvocation(tool, args)
		return dispatcher.DispatchInvocation(ctx, inv), nil
	})

	_ = router.RegisterMethod("tools.list", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{
			"tools": dispatcher.Registry().List(),
		}, nil
	})

	_ = router.RegisterMethod("ping", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return map[string]interface{}{"pong": true}, nil
	})
}

// preExtractedInvocation builds an invocation for transports that already
// split tool name and arguments, bypassing the parsers.
func preExtractedInvocation(tool string, args map[string]interface{}) parser.Invocation {
	if args == nil {
		args = map[string]interface{}{}
	}
	return parser.Invocation{
		Tool: tool,
		Args: args,
		Meta: parser.Meta{
			ParserUsed: parser.ParserDirect,
			Timestamp:  time.Now().UnixMilli(),
		},
	}
}
