package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/iafnetworkspa/joke-mcp/internal/auth"
)

// ServeStdio reads one JSON-RPC message per line from in and writes one
// response line per request to out. Messages are handled one at a time, in
// order. It returns nil when in reaches EOF or ctx is cancelled between
// messages.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	encoder := json.NewEncoder(out)

	log.Info().Msg("Serving MCP over stdio")

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read request: %w", err)
		}
		eof := errors.Is(err, io.EOF)

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			response := s.Handle(ctx, line, stdioAuthContext(line))
			if response != nil {
				if err := encoder.Encode(response); err != nil {
					return fmt.Errorf("failed to encode response: %w", err)
				}
			}
		}

		if eof {
			log.Info().Msg("Stdin closed, stopping")
			return nil
		}
	}
}

// stdioAuthContext reads the optional bearer token carried in
// params._meta.authorization.token
func stdioAuthContext(line []byte) auth.Context {
	var meta requestMeta
	if err := json.Unmarshal(line, &meta); err != nil {
		return auth.Context{}
	}
	return auth.Context{BearerToken: meta.Params.Meta.Authorization.Token}
}
