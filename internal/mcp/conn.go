// Package mcp manages the long-lived connection to the Atlassian MCP server
// and exposes tool invocation to the agent.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/smallnest/atlaschat/internal/log"
	"github.com/smallnest/atlaschat/internal/render"
)

const (
	clientName    = "atlaschat"
	clientVersion = "0.1.0"

	// Atlassian context tools prefetched at connect time to ground the
	// worker prompt.
	resourcesTool = "getAccessibleAtlassianResources"
	userInfoTool  = "atlassianUserInfo"
)

// Config describes how to reach the MCP server.
type Config struct {
	Transport string   // "stdio" or "http"
	Endpoint  string   // remote URL (http transport)
	Command   string   // stdio proxy command, e.g. "npx"
	Args      []string // stdio proxy args, e.g. ["-y", "mcp-remote", url]
}

// Conn is an initialized MCP session with cached tool metadata.
type Conn struct {
	client   *client.Client
	logger   log.Logger
	tools    []mcpgo.Tool
	toolDocs string
	context  Context
}

// Context carries the Atlassian-side context fetched once per connection.
type Context struct {
	Resources string // getAccessibleAtlassianResources result
	UserInfo  string // atlassianUserInfo result
}

// Dial connects, runs the initialize handshake, caches the tool inventory
// and prefetches the Atlassian context documents.
func Dial(ctx context.Context, cfg Config, logger log.Logger) (*Conn, error) {
	if logger == nil {
		logger = &log.NoOpLogger{}
	}

	var (
		c   *client.Client
		err error
	)
	switch cfg.Transport {
	case "stdio":
		logger.Info("spawning MCP stdio proxy: %s %s", cfg.Command, strings.Join(cfg.Args, " "))
		c, err = client.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to start stdio MCP client: %w", err)
		}
	case "http":
		logger.Info("connecting to MCP server at %s", cfg.Endpoint)
		c, err = client.NewStreamableHttpClient(cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to create streamable HTTP client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to start MCP transport: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported MCP transport %q", cfg.Transport)
	}

	conn := &Conn{client: c, logger: logger}
	if err := conn.initialize(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Conn) initialize(ctx context.Context) error {
	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	initResult, err := c.client.Initialize(ctx, initReq)
	if err != nil {
		return fmt.Errorf("MCP initialize failed: %w", err)
	}
	c.logger.Info("connected to MCP server: %s %s",
		initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	toolsResult, err := c.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("MCP tool listing failed: %w", err)
	}
	c.tools = toolsResult.Tools
	c.toolDocs = marshalToolDocs(toolsResult.Tools)
	c.logger.Info("MCP server exposes %d tools", len(c.tools))

	// These calls fail on servers that don't expose Atlassian context
	// tools; the prompt then just goes without the documents.
	c.context.Resources = c.callForContext(ctx, resourcesTool)
	c.context.UserInfo = c.callForContext(ctx, userInfoTool)

	return nil
}

func (c *Conn) callForContext(ctx context.Context, tool string) string {
	out, err := c.CallTool(ctx, tool, map[string]any{})
	if err != nil {
		c.logger.Warn("prefetch of %s failed: %v", tool, err)
		return fmt.Sprintf(`{"error":%q}`, fmt.Sprintf("Error calling %s: %v", tool, err))
	}
	return out
}

// CallTool invokes a tool and returns its text payload. HTML payloads
// (Confluence storage format) are flattened to plain text.
func (c *Conn) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	c.logger.Debug("tools/call %s", name)
	result, err := c.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("MCP tool %s failed: %w", name, err)
	}

	text := flattenContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("MCP tool %s returned an error: %s", name, text)
	}
	return text, nil
}

// Tools returns the cached tool inventory.
func (c *Conn) Tools() []mcpgo.Tool {
	return c.tools
}

// ToolDocs returns the tool inventory as a JSON document for the prompt.
func (c *Conn) ToolDocs() string {
	return c.toolDocs
}

// Context returns the prefetched Atlassian context documents.
func (c *Conn) Context() Context {
	return c.context
}

// Close shuts down the transport (and the stdio proxy process).
func (c *Conn) Close() error {
	return c.client.Close()
}

// flattenContent extracts text content parts and de-HTMLs them where the
// payload looks like markup.
func flattenContent(content []mcpgo.Content) string {
	var parts []string
	for _, item := range content {
		tc, ok := item.(mcpgo.TextContent)
		if !ok {
			continue
		}
		text := tc.Text
		if render.LooksLikeHTML(text) {
			text = render.FlattenHTML(text)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}

func marshalToolDocs(tools []mcpgo.Tool) string {
	docs := struct {
		Tools []mcpgo.Tool `json:"tools"`
	}{Tools: tools}

	data, err := json.Marshal(docs)
	if err != nil {
		return "{}"
	}
	return string(data)
}
