package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCRouter_ParseRequest(t *testing.T) {
	router := NewRPCRouter()

	tests := []struct {
		name     string
		frame    string
		wantCode int
	}{
		{"invalid json", `{not json`, ParseError},
		{"missing id", `{"method": "ping", "jsonrpc": "2.0"}`, InvalidRequest},
		{"missing method", `{"id": "1", "jsonrpc": "2.0"}`, InvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rpcErr := router.ParseRequest([]byte(tt.frame))
			assert.Nil(t, req)
			require.NotNil(t, rpcErr)
			assert.Equal(t, tt.wantCode, rpcErr.Code)
		})
	}
}

func TestRPCRouter_ParseRequest_DefaultsVersion(t *testing.T) {
	router := NewRPCRouter()

	req, rpcErr := router.ParseRequest([]byte(`{"id": "1", "method": "ping"}`))
	require.Nil(t, rpcErr)
	assert.Equal(t, "2.0", req.JSONRPC)
}

func TestRPCRouter_Route_MethodNotFound(t *testing.T) {
	router := NewRPCRouter()

	resp := router.Route(context.Background(), &RPCRequest{ID: "1", Method: "nope", JSONRPC: "2.0"})

	assert.Equal(t, "1", resp.ID)
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
}

func TestRPCRouter_Route_Success(t *testing.T) {
	router := NewRPCRouter()
	require.NoError(t, router.RegisterMethod("add", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		a, _ := params["a"].(float64)
		b, _ := params["b"].(float64)
		return a + b, nil
	}))

	resp := router.Route(context.Background(), &RPCRequest{
		ID:      "42",
		Method:  "add",
		Params:  map[string]interface{}{"a": float64(2), "b": float64(3)},
		JSONRPC: "2.0",
	})

	assert.Nil(t, resp.Error)
	assert.Equal(t, float64(5), resp.Result)
	assert.Equal(t, "42", resp.ID)
}

func TestRPCRouter_Route_RPCErrorPassthrough(t *testing.T) {
	router := NewRPCRouter()
	require.NoError(t, router.RegisterMethod("strict", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return nil, &RPCError{Code: InvalidParams, Message: "missing thing"}
	}))

	resp := router.Route(context.Background(), &RPCRequest{ID: "1", Method: "strict", JSONRPC: "2.0"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)
	assert.Equal(t, "missing thing", resp.Error.Message)
}

func TestRPCRouter_Route_PlainErrorBecomesInternal(t *testing.T) {
	router := NewRPCRouter()
	require.NoError(t, router.RegisterMethod("broken", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return nil, errors.New("kaboom")
	}))

	resp := router.Route(context.Background(), &RPCRequest{ID: "1", Method: "broken", JSONRPC: "2.0"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InternalError, resp.Error.Code)
}

func TestRPCRouter_RegisterNilHandler(t *testing.T) {
	router := NewRPCRouter()
	assert.Error(t, router.RegisterMethod("bad", nil))
}
