package workerclient

import (
	"context"
	"fmt"
	"sync"

	sdkclient "github.com/mark3labs/mcp-go/client"
	sdkmcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// streamHTTPClient is the STREAM_HTTP transport adapter: a bidirectional
// streamable-HTTP endpoint. mcp-go's own client package grew streamable-HTTP
// support alongside its "stdio"/"sse" pair the teacher already consumes, so
// this adapter follows the same connect/handshake/close shape as its two
// siblings rather than introducing a fourth pattern.
type streamHTTPClient struct {
	cfg worker.WorkerConfig

	mu      sync.RWMutex
	inner   *sdkclient.StreamableHttpMCPClient
	onTools func([]worker.ToolDescriptor)
	onClose func(error)
}

func newStreamHTTPClient(cfg worker.WorkerConfig) *streamHTTPClient {
	return &streamHTTPClient{cfg: cfg}
}

func (c *streamHTTPClient) Connect(ctx context.Context) error {
	opts := streamableOptions(c.cfg.Headers)
	cli, err := sdkclient.NewStreamableHttpClient(c.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("workerclient: create streamable-http client %q: %w", c.cfg.Name, err)
	}
	if err := cli.Start(ctx); err != nil {
		return fmt.Errorf("workerclient: start streamable-http client %q: %w", c.cfg.Name, err)
	}
	if err := handshake(ctx, cli, c.cfg.Name); err != nil {
		return err
	}

	c.mu.Lock()
	c.inner = cli
	c.mu.Unlock()

	cli.OnNotification(func(n sdkmcp.JSONRPCNotification) {
		if n.Method != "notifications/tools/list_changed" {
			return
		}
		c.mu.RLock()
		cb := c.onTools
		c.mu.RUnlock()
		if cb == nil {
			return
		}
		tools, err := c.ListTools(context.Background())
		if err == nil {
			cb(tools)
		}
	})
	return nil
}

func (c *streamHTTPClient) ListTools(ctx context.Context) ([]worker.ToolDescriptor, error) {
	c.mu.RLock()
	inner := c.inner
	c.mu.RUnlock()
	if inner == nil {
		return nil, fmt.Errorf("workerclient: %q not connected", c.cfg.Name)
	}
	result, err := inner.ListTools(ctx, sdkmcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("workerclient: list tools %q: %w", c.cfg.Name, err)
	}
	return toDescriptors(result.Tools), nil
}

func (c *streamHTTPClient) CallTool(ctx context.Context, tool string, args map[string]any) (Result, error) {
	c.mu.RLock()
	inner := c.inner
	c.mu.RUnlock()
	if inner == nil {
		return Result{}, fmt.Errorf("workerclient: %q not connected", c.cfg.Name)
	}
	req := sdkmcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	result, err := inner.CallTool(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("workerclient: call %q on %q: %w", tool, c.cfg.Name, err)
	}
	return toResult(result), nil
}

func (c *streamHTTPClient) OnToolsChanged(cb func([]worker.ToolDescriptor)) {
	c.mu.Lock()
	c.onTools = cb
	c.mu.Unlock()
}

func (c *streamHTTPClient) OnClosed(cb func(error)) {
	c.mu.Lock()
	c.onClose = cb
	c.mu.Unlock()
}

func (c *streamHTTPClient) ProcessID() int { return 0 }

func (c *streamHTTPClient) StderrTail() *worker.StderrTail { return nil }

func (c *streamHTTPClient) Close() error {
	c.mu.Lock()
	inner := c.inner
	cb := c.onClose
	c.inner = nil
	c.mu.Unlock()
	if inner == nil {
		return nil
	}
	err := inner.Close()
	if cb != nil {
		cb(err)
	}
	return err
}

func streamableOptions(headers map[string]string) []sdkclient.StreamableHTTPCOption {
	if len(headers) == 0 {
		return nil
	}
	return []sdkclient.StreamableHTTPCOption{sdkclient.WithHTTPHeaders(headers)}
}
