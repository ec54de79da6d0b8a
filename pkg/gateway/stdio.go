package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
)

// StdioServer serves JSON-RPC over newline-delimited frames on a reader
// and writer pair, normally stdin and stdout. It shares the method router
// with the websocket transport.
type StdioServer struct {
	rpc    *RPCRouter
	in     io.Reader
	out    io.Writer
	logger zerolog.Logger
}

// NewStdioServer creates a stdio transport over the given router.
func NewStdioServer(rpc *RPCRouter, in io.Reader, out io.Writer, logger zerolog.Logger) *StdioServer {
	return &StdioServer{
		rpc:    rpc,
		in:     in,
		out:    out,
		logger: logger.With().Str("component", "stdio").Logger(),
	}
}

// Run reads frames until EOF or context cancellation. Blank lines are
// skipped; every non-blank line produces exactly one response frame.
func (s *StdioServer) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	encoder := json.NewEncoder(s.out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp *RPCResponse
		req, rpcErr := s.rpc.ParseRequest(line)
		if rpcErr != nil {
			resp = &RPCResponse{JSONRPC: "2.0", Error: rpcErr}
		} else {
			resp = s.rpc.Route(ctx, req)
		}

		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error().Err(err).Msg("Stdio read failed")
		return err
	}
	s.logger.Info().Msg("Stdio stream closed")
	return nil
}
