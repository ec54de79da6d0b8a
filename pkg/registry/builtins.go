package registry

import (
	"context"
	"fmt"
	"time"
)

// RegisterBuiltins registers the baseline tools every toolgate deployment
// ships with. They double as end-to-end probes for transports and policy
// wiring.
func RegisterBuiltins(r *Registry) error {
	tools := []Definition{
		echoTool(),
		timeNowTool(),
		sleepTool(),
	}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

func echoTool() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echo the given message back to the caller.",
		Parameters: []Parameter{
			{Name: "message", Type: "string", Description: "Message to echo", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return map[string]interface{}{
				"message": args["message"],
			}, nil
		},
	}
}

func timeNowTool() Definition {
	return Definition{
		Name:        "time.now",
		Description: "Return the current server time.",
		Parameters: []Parameter{
			{Name: "format", Type: "string", Description: "Go time layout (default RFC3339)", Required: false},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			layout := time.RFC3339
			if raw, ok := args["format"].(string); ok && raw != "" {
				layout = raw
			}
			return map[string]interface{}{
				"time": time.Now().Format(layout),
			}, nil
		},
	}
}

func sleepTool() Definition {
	return Definition{
		Name:        "sleep",
		Description: "Sleep for the given number of milliseconds. Useful for exercising timeout policies.",
		Parameters: []Parameter{
			{Name: "ms", Type: "number", Description: "Milliseconds to sleep", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			ms, ok := args["ms"].(float64)
			if !ok || ms < 0 {
				return nil, fmt.Errorf("ms must be a non-negative number")
			}
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
				return map[string]interface{}{"slept_ms": ms}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}
