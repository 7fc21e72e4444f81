// Package mcpserver exposes the Detector and Validator Registries as a
// small Model Context Protocol server over stdio, so an editor or agent
// integration can drive the "test" and "list" operations without
// shelling out to the CLI.
package mcpserver

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"keyhunter/internal/detect"
	"keyhunter/internal/validate"
)

// Server holds the registries the MCP tools operate against.
type Server struct {
	detectors  *detect.Registry
	validators *validate.Registry
	logger     *log.Logger
}

// New builds a Server over the given registries.
func New(detectors *detect.Registry, validators *validate.Registry, logger *log.Logger) *Server {
	return &Server{detectors: detectors, validators: validators, logger: logger}
}

// TestKeyInput is the payload for the test_key tool.
type TestKeyInput struct {
	KeyType string `json:"key_type"`
	Key     string `json:"key"`
}

// TestKeyOutput reports one validator's classification of a key.
type TestKeyOutput struct {
	RequestID string            `json:"request_id"`
	Valid     bool              `json:"valid"`
	Message   string            `json:"message"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (s *Server) testKey(ctx context.Context, _ *mcp.CallToolRequest, in TestKeyInput) (*mcp.CallToolResult, TestKeyOutput, error) {
	requestID := uuid.NewString()
	validators, err := s.validators.Resolve(in.KeyType)
	if err != nil || len(validators) == 0 {
		return nil, TestKeyOutput{RequestID: requestID}, err
	}
	if err := s.validators.Gates().Acquire(ctx, validators[0].KeyType()); err != nil {
		return nil, TestKeyOutput{RequestID: requestID}, err
	}
	result, err := validators[0].Validate(ctx, in.Key)
	if err != nil {
		return nil, TestKeyOutput{RequestID: requestID}, err
	}
	return nil, TestKeyOutput{
		RequestID: requestID,
		Valid:     result.Valid,
		Message:   result.Message,
		Metadata:  result.Metadata,
	}, nil
}

// ListRegistryInput is the payload for the list_registry tool.
type ListRegistryInput struct {
	Kind string `json:"kind"` // "detectors" or "validators"
}

// ListRegistryOutput lists the requested registry's names.
type ListRegistryOutput struct {
	RequestID string   `json:"request_id"`
	Names     []string `json:"names"`
}

func (s *Server) listRegistry(_ context.Context, _ *mcp.CallToolRequest, in ListRegistryInput) (*mcp.CallToolResult, ListRegistryOutput, error) {
	requestID := uuid.NewString()
	if in.Kind == "validators" {
		return nil, ListRegistryOutput{RequestID: requestID, Names: s.validators.SupportedNames()}, nil
	}
	return nil, ListRegistryOutput{RequestID: requestID, Names: s.detectors.SupportedNames()}, nil
}

// Serve runs the MCP server over stdio until the transport closes.
func (s *Server) Serve(ctx context.Context) error {
	impl := &mcp.Implementation{
		Name:    "key-hunter",
		Title:   "Key Hunter Registries",
		Version: "0.1.0",
	}
	server := mcp.NewServer(impl, &mcp.ServerOptions{HasTools: true})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "test_key",
		Description: "Validate a single candidate credential against its issuing service.",
	}, s.testKey)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_registry",
		Description: "List the names registered in the detector or validator registry.",
	}, s.listRegistry)

	s.logger.Printf("serving mcp over stdio")
	return server.Run(ctx, &mcp.StdioTransport{})
}
