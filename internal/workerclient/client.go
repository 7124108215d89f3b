// Package workerclient provides the three transport-specific adapters that
// speak the shared tool-call protocol to a managed worker (spec §4.2):
// LOCAL (stdio child process), STREAM_SSE and STREAM_HTTP. All three wrap
// github.com/mark3labs/mcp-go's client package, generalizing the teacher's
// internal/mcp.Client (which only switched between "stdio" and "sse").
package workerclient

import (
	"context"
	"fmt"
	"time"

	sdkclient "github.com/mark3labs/mcp-go/client"
	sdkmcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// ConnectTimeout is the hard cap on establishing a transport plus completing
// the handshake (spec §4.2).
const ConnectTimeout = 30 * time.Second

// DefaultCallTimeout is the configurable default for call_tool (spec §4.2).
const DefaultCallTimeout = 60 * time.Second

// CloseTimeout bounds close() (spec §4.2).
const CloseTimeout = 5 * time.Second

// Content is one element of a call_tool result (spec §4.2). Content of any
// kind other than text, image or audio is reported as Kind "other" with no
// payload; its original kind and data are not kept.
type Content struct {
	Kind string `json:"kind"` // "text" | "image" | "audio" | other
	Text string `json:"text,omitempty"`
	Data []byte `json:"data,omitempty"`
	Mime string `json:"mime,omitempty"`
}

// Result is the outcome of a call_tool invocation.
type Result struct {
	Content []Content
	IsError bool
}

// Client is the capability set common to all three transport adapters.
type Client interface {
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]worker.ToolDescriptor, error)
	CallTool(ctx context.Context, tool string, args map[string]any) (Result, error)
	// OnToolsChanged registers a callback invoked when the peer announces its
	// tool list changed. At most one callback is retained.
	OnToolsChanged(func([]worker.ToolDescriptor))
	// OnClosed registers a callback that Close invokes once, after closing
	// the transport, with Close's error. The adapters do not invoke it when
	// the peer side fails or drops the connection on its own.
	OnClosed(func(error))
	// ProcessID returns the child PID for LOCAL adapters, 0 otherwise.
	ProcessID() int
	// StderrTail returns the stderr ring for LOCAL adapters, nil otherwise.
	StderrTail() *worker.StderrTail
	Close() error
}

// New builds the transport-appropriate adapter for cfg. It does not connect.
func New(cfg worker.WorkerConfig) (Client, error) {
	switch cfg.Transport {
	case worker.Local:
		return newLocalClient(cfg), nil
	case worker.StreamSSE:
		return newSSEClient(cfg), nil
	case worker.StreamHTTP:
		return newStreamHTTPClient(cfg), nil
	default:
		return nil, swarmerr.New(swarmerr.BadInput, "workerclient: unknown transport %q", cfg.Transport)
	}
}

// clientInfo is the fixed identity this supervisor presents during the MCP
// initialize handshake, following the teacher's internal/mcp.Client.Connect.
var clientInfo = sdkmcp.Implementation{Name: "mcp-swarm", Version: "0.1.0"}

// handshake performs the MCP initialize exchange common to every transport,
// closing inner on failure exactly as the teacher's Client.Connect does.
func handshake(ctx context.Context, inner sdkclient.MCPClient, name string) error {
	_, err := inner.Initialize(ctx, sdkmcp.InitializeRequest{
		Params: sdkmcp.InitializeParams{
			ProtocolVersion: sdkmcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      clientInfo,
		},
	})
	if err != nil {
		_ = inner.Close()
		return fmt.Errorf("workerclient: initialize %q: %w", name, err)
	}
	return nil
}

// toDescriptors converts mcp-go tool listings to the shared worker model.
func toDescriptors(tools []sdkmcp.Tool) []worker.ToolDescriptor {
	out := make([]worker.ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		schema, err := marshalSchema(t.InputSchema)
		if err != nil {
			schema = []byte("{}")
		}
		out = append(out, worker.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return out
}

// toResult converts an mcp-go CallToolResult into the workerclient Result.
func toResult(r *sdkmcp.CallToolResult) Result {
	res := Result{IsError: r.IsError}
	for _, c := range r.Content {
		switch v := c.(type) {
		case sdkmcp.TextContent:
			res.Content = append(res.Content, Content{Kind: "text", Text: v.Text})
		case sdkmcp.ImageContent:
			res.Content = append(res.Content, Content{Kind: "image", Data: []byte(v.Data), Mime: v.MIMEType})
		case sdkmcp.AudioContent:
			res.Content = append(res.Content, Content{Kind: "audio", Data: []byte(v.Data), Mime: v.MIMEType})
		default:
			res.Content = append(res.Content, Content{Kind: "other"})
		}
	}
	return res
}
