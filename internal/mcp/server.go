// internal/mcp/server.go
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/veilproject/veil/internal/config"
	"github.com/veilproject/veil/internal/mask"
	"github.com/veilproject/veil/internal/redact"
	"github.com/veilproject/veil/internal/secure"
)

// Server wraps the MCP server with masking tools
type Server struct {
	server *mcp.Server
}

// MaskInput is the input schema for the mask tool
type MaskInput struct {
	Text         string `json:"text" jsonschema:"The string to mask"`
	VisibleStart *int   `json:"visible_start,omitempty" jsonschema:"Characters kept verbatim at the start (default 2)"`
	VisibleEnd   *int   `json:"visible_end,omitempty" jsonschema:"Characters kept verbatim at the end (default 2)"`
	Sensitivity  string `json:"sensitivity,omitempty" jsonschema:"One of low, medium, high (default medium)"`
	MaskChar     string `json:"mask_char,omitempty" jsonschema:"Literal repeated over the hidden span (default *)"`
}

// MaskOutput is the output schema for the mask tool
type MaskOutput struct {
	Masked string `json:"masked"`
}

// RedactInput is the input schema for the redact tool
type RedactInput struct {
	Text      string `json:"text" jsonschema:"The text to redact"`
	RulesFile string `json:"rules_file" jsonschema:"Path to a YAML rules file mapping regex patterns to mask options"`
}

// RedactOutput is the output schema for the redact tool
type RedactOutput struct {
	Redacted   string   `json:"redacted"`
	Matches    int      `json:"matches"`
	RuleErrors []string `json:"rule_errors,omitempty"`
}

// DigestInput is the input schema for the digest tool
type DigestInput struct {
	Text      string `json:"text" jsonschema:"The string to hash"`
	Algorithm string `json:"algorithm,omitempty" jsonschema:"sha256 or sha512 (default sha256)"`
	Salt      string `json:"salt,omitempty" jsonschema:"Optional salt mixed in ahead of the input"`
}

// DigestOutput is the output schema for the digest tool
type DigestOutput struct {
	Digest string `json:"digest"`
}

// RandomStringInput is the input schema for the random_string tool
type RandomStringInput struct {
	Length  int    `json:"length" jsonschema:"Number of characters to generate"`
	Charset string `json:"charset,omitempty" jsonschema:"alphanumeric, numeric, or hex (default alphanumeric)"`
}

// RandomStringOutput is the output schema for the random_string tool
type RandomStringOutput struct {
	Value string `json:"value"`
}

// NewServer creates a new MCP server with masking tools
func NewServer() *Server {
	s := &Server{}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "veil",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "mask",
		Description: "Mask the middle of a string, keeping a visible prefix and suffix. Use for card numbers, tokens, and other secrets that must stay recognizable but not readable.",
	}, s.handleMask)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "redact",
		Description: "Apply a named rule set of regular expressions to a block of text, masking every match. Rules come from a YAML rules file on the server host.",
	}, s.handleRedact)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "digest",
		Description: "Hash a string with sha256 or sha512 and an optional salt, returning the hex digest. Useful for producing stable references to secrets without storing them.",
	}, s.handleDigest)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "random_string",
		Description: "Generate a cryptographically random string from the alphanumeric, numeric, or hex charset.",
	}, s.handleRandomString)

	s.server = server
	return s
}

func (s *Server) handleMask(ctx context.Context, req *mcp.CallToolRequest, input MaskInput) (*mcp.CallToolResult, MaskOutput, error) {
	cfg := mask.DefaultConfig()
	if input.VisibleStart != nil {
		cfg.VisibleStart = *input.VisibleStart
	}
	if input.VisibleEnd != nil {
		cfg.VisibleEnd = *input.VisibleEnd
	}
	if input.Sensitivity != "" {
		cfg.Sensitivity = mask.Sensitivity(input.Sensitivity)
	}
	if input.MaskChar != "" {
		cfg.MaskChar = input.MaskChar
	}

	return nil, MaskOutput{Masked: mask.Mask(input.Text, cfg)}, nil
}

func (s *Server) handleRedact(ctx context.Context, req *mcp.CallToolRequest, input RedactInput) (*mcp.CallToolResult, RedactOutput, error) {
	rules, err := config.LoadRules(input.RulesFile)
	if err != nil {
		return nil, RedactOutput{}, fmt.Errorf("loading rules: %w", err)
	}

	out := redact.Apply(input.Text, rules)

	var ruleErrs []string
	for _, e := range out.Errors {
		ruleErrs = append(ruleErrs, e.Error())
	}

	return nil, RedactOutput{
		Redacted:   out.Text,
		Matches:    out.Matches,
		RuleErrors: ruleErrs,
	}, nil
}

func (s *Server) handleDigest(ctx context.Context, req *mcp.CallToolRequest, input DigestInput) (*mcp.CallToolResult, DigestOutput, error) {
	algorithm := input.Algorithm
	if algorithm == "" {
		algorithm = secure.AlgorithmSHA256
	}

	digest, err := secure.Digest(input.Text, algorithm, []byte(input.Salt))
	if err != nil {
		return nil, DigestOutput{}, err
	}
	return nil, DigestOutput{Digest: digest}, nil
}

func (s *Server) handleRandomString(ctx context.Context, req *mcp.CallToolRequest, input RandomStringInput) (*mcp.CallToolResult, RandomStringOutput, error) {
	charset := input.Charset
	if charset == "" {
		charset = secure.CharsetAlphanumeric
	}

	value, err := secure.RandomString(input.Length, charset)
	if err != nil {
		return nil, RandomStringOutput{}, err
	}
	return nil, RandomStringOutput{Value: value}, nil
}

// Run starts the MCP server on stdio
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP server over streamable HTTP on addr
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)

	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
