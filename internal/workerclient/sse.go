package workerclient

import (
	"context"
	"fmt"
	"sync"

	sdkclient "github.com/mark3labs/mcp-go/client"
	sdkmcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// sseClient is the STREAM_SSE transport adapter: a network endpoint reached
// over server-sent events, generalizing the teacher's "sse" branch of
// internal/mcp.Client.Connect.
type sseClient struct {
	cfg worker.WorkerConfig

	mu      sync.RWMutex
	inner   *sdkclient.SSEMCPClient
	onTools func([]worker.ToolDescriptor)
	onClose func(error)
}

func newSSEClient(cfg worker.WorkerConfig) *sseClient {
	return &sseClient{cfg: cfg}
}

func (c *sseClient) Connect(ctx context.Context) error {
	opts := headerOptions(c.cfg.Headers)
	cli, err := sdkclient.NewSSEMCPClient(c.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("workerclient: create sse client %q: %w", c.cfg.Name, err)
	}
	if err := cli.Start(ctx); err != nil {
		return fmt.Errorf("workerclient: start sse client %q: %w", c.cfg.Name, err)
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

func (c *sseClient) ListTools(ctx context.Context) ([]worker.ToolDescriptor, error) {
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

func (c *sseClient) CallTool(ctx context.Context, tool string, args map[string]any) (Result, error) {
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

func (c *sseClient) OnToolsChanged(cb func([]worker.ToolDescriptor)) {
	c.mu.Lock()
	c.onTools = cb
	c.mu.Unlock()
}

func (c *sseClient) OnClosed(cb func(error)) {
	c.mu.Lock()
	c.onClose = cb
	c.mu.Unlock()
}

func (c *sseClient) ProcessID() int { return 0 }

func (c *sseClient) StderrTail() *worker.StderrTail { return nil }

func (c *sseClient) Close() error {
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
