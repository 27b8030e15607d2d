// Package mcpserver exposes the conversion pipeline as Model Context Protocol
// tools so assistants can turn files and URLs into Markdown.
package mcpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hyperifyio/tomd/internal/pipeline"
)

// ErrMissingConverter is returned when no converter is provided.
var ErrMissingConverter = errors.New("mcpserver: converter is required")

// Converter runs one conversion request.
type Converter interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Server is the MCP server for tomd.
type Server struct {
	conv   Converter
	server *mcp.Server
}

// NewServer creates a server that answers tool calls with conv.
func NewServer(conv Converter, version string) (*Server, error) {
	if conv == nil {
		return nil, ErrMissingConverter
	}
	if version == "" {
		version = "dev"
	}
	s := &Server{
		conv:   conv,
		server: mcp.NewServer(&mcp.Implementation{Name: "tomd", Version: version}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Connect attaches the server to an arbitrary transport.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

// RunHTTP serves the streamable HTTP transport on addr.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Shutdown(context.Background())
	}()

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
