package workerclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	sdkclient "github.com/mark3labs/mcp-go/client"
	sdkmcp "github.com/mark3labs/mcp-go/mcp"

	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// localClient is the LOCAL transport adapter: a child process speaking the
// tool-call protocol over stdin/stdout, generalizing the teacher's "stdio"
// branch of internal/mcp.Client.Connect.
type localClient struct {
	cfg worker.WorkerConfig

	mu      sync.RWMutex
	inner   *sdkclient.StdioMCPClient
	pid     int
	stderr  *worker.StderrTail
	onTools func([]worker.ToolDescriptor)
	onClose func(error)
}

func newLocalClient(cfg worker.WorkerConfig) *localClient {
	return &localClient{cfg: cfg, stderr: &worker.StderrTail{}}
}

// pidProvider is satisfied by mcp-go stdio client versions that expose the
// spawned child's PID. Not every version does; when it doesn't, ProcessID
// stays 0 and the instance is simply not tracked for orphan cleanup.
type pidProvider interface{ Pid() int }

// stderrProvider is satisfied by mcp-go stdio client versions that expose
// the child's stderr stream for capture.
type stderrProvider interface{ Stderr() io.Reader }

func (c *localClient) Connect(ctx context.Context) error {
	env := make([]string, 0, len(c.cfg.Env))
	for k, v := range c.cfg.Env {
		env = append(env, k+"="+v)
	}

	cli, err := sdkclient.NewStdioMCPClient(c.cfg.Command, env, c.cfg.Args...)
	if err != nil {
		return fmt.Errorf("workerclient: start local worker %q: %w", c.cfg.Name, err)
	}

	if err := handshake(ctx, cli, c.cfg.Name); err != nil {
		return err
	}

	c.mu.Lock()
	c.inner = cli
	if p, ok := any(cli).(pidProvider); ok {
		c.pid = p.Pid()
	}
	c.mu.Unlock()

	if sp, ok := any(cli).(stderrProvider); ok {
		if r := sp.Stderr(); r != nil {
			go c.captureStderr(r)
		}
	}

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

// captureStderr splits the child's stderr into lines, truncating and
// ring-buffering each one (spec §4.2, LOCAL-specific behavior).
func (c *localClient) captureStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		c.stderr.Append(scanner.Text())
	}
}

func (c *localClient) ListTools(ctx context.Context) ([]worker.ToolDescriptor, error) {
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

func (c *localClient) CallTool(ctx context.Context, tool string, args map[string]any) (Result, error) {
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

func (c *localClient) OnToolsChanged(cb func([]worker.ToolDescriptor)) {
	c.mu.Lock()
	c.onTools = cb
	c.mu.Unlock()
}

func (c *localClient) OnClosed(cb func(error)) {
	c.mu.Lock()
	c.onClose = cb
	c.mu.Unlock()
}

func (c *localClient) ProcessID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pid
}

func (c *localClient) StderrTail() *worker.StderrTail {
	return c.stderr
}

func (c *localClient) Close() error {
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
