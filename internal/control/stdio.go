package control

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/SpideXD/mcp-swarm/internal/meta"
	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// StdioServer exposes fourteen meta-tools (every one except update_worker,
// which only the HTTP dispatcher serves) over the parent process's
// stdin/stdout via mark3labs/mcp-go's server package (spec §6.5): single
// client, no sessions, no HTTP. Grounded on teranos-QNTX's gopls MCPServer,
// which registers one mcp.NewTool per operation against a *server.MCPServer
// and serves it with server.ServeStdio.
type StdioServer struct {
	facade *meta.Facade
	srv    *server.MCPServer
}

// NewStdioServer builds the tool registrations over facade.
func NewStdioServer(facade *meta.Facade) *StdioServer {
	s := &StdioServer{
		facade: facade,
		srv:    server.NewMCPServer("mcp-swarm", "0.1.0", server.WithToolCapabilities(true)),
	}
	s.registerTools()
	return s
}

// Serve blocks, speaking MCP over stdio until the client disconnects.
func (s *StdioServer) Serve() error {
	return server.ServeStdio(s.srv)
}

func (s *StdioServer) registerTools() {
	s.srv.AddTool(mcp.NewTool("discover",
		mcp.WithDescription("Search upstream catalogs for external tool-providing workers"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
	), s.handleDiscover)

	s.srv.AddTool(mcp.NewTool("declare_worker",
		mcp.WithDescription("Declare and start a worker, replacing any existing same-named primary"),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("transport", mcp.Required(), mcp.Description("LOCAL, STREAM_SSE, or STREAM_HTTP")),
		mcp.WithString("command"),
		mcp.WithString("url"),
		mcp.WithString("description"),
		mcp.WithBoolean("stateful"),
	), s.handleDeclareWorker)

	s.srv.AddTool(mcp.NewTool("remove_worker",
		mcp.WithDescription("Stop a live worker instance and remove its persisted config"),
		mcp.WithString("name", mcp.Required()),
	), s.handleRemoveWorker)

	s.srv.AddTool(mcp.NewTool("list_workers",
		mcp.WithDescription("List live and persisted worker configs"),
	), s.handleListWorkers)

	s.srv.AddTool(mcp.NewTool("stop_worker",
		mcp.WithDescription("Stop a live worker instance, keeping its persisted config"),
		mcp.WithString("name", mcp.Required()),
	), s.handleStopWorker)

	s.srv.AddTool(mcp.NewTool("start_worker",
		mcp.WithDescription("Spawn a worker from its persisted config"),
		mcp.WithString("name", mcp.Required()),
	), s.handleStartWorker)

	s.srv.AddTool(mcp.NewTool("reset_worker",
		mcp.WithDescription("Restart a live worker, or spawn fresh from persisted config"),
		mcp.WithString("name", mcp.Required()),
	), s.handleResetWorker)

	s.srv.AddTool(mcp.NewTool("list_tools",
		mcp.WithDescription("List tool summaries, or full schemas for one worker"),
		mcp.WithString("server"),
	), s.handleListTools)

	s.srv.AddTool(mcp.NewTool("call_tool",
		mcp.WithDescription("Invoke a tool on a worker through the admission queue"),
		mcp.WithString("server", mcp.Required()),
		mcp.WithString("tool", mcp.Required()),
	), s.handleCallTool)

	s.srv.AddTool(mcp.NewTool("list_profiles",
		mcp.WithDescription("List built-in and user worker profile bundles"),
	), s.handleListProfiles)

	s.srv.AddTool(mcp.NewTool("activate_profile",
		mcp.WithDescription("Declare every entry in a profile bundle that isn't already connected"),
		mcp.WithString("name", mcp.Required()),
	), s.handleActivateProfile)

	s.srv.AddTool(mcp.NewTool("deactivate_profile",
		mcp.WithDescription("Stop every live entry in a profile bundle"),
		mcp.WithString("name", mcp.Required()),
	), s.handleDeactivateProfile)

	s.srv.AddTool(mcp.NewTool("create_profile",
		mcp.WithDescription("Persist a new user profile bundle"),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("description"),
	), s.handleCreateProfile)

	s.srv.AddTool(mcp.NewTool("delete_profile",
		mcp.WithDescription("Delete a user profile bundle"),
		mcp.WithString("name", mcp.Required()),
	), s.handleDeleteProfile)
}

func (s *StdioServer) handleDiscover(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := 0
	if v, ok := req.GetArguments()["limit"].(float64); ok {
		limit = int(v)
	}
	entries := s.facade.Discover(ctx, query, limit)
	return jsonResult(entries)
}

func (s *StdioServer) handleDeclareWorker(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	raw, _ := json.Marshal(args)
	var cfg struct {
		Name        string            `json:"name"`
		Transport   string            `json:"transport"`
		Command     string            `json:"command"`
		Args        []string          `json:"args"`
		Env         map[string]string `json:"env"`
		URL         string            `json:"url"`
		Headers     map[string]string `json:"headers"`
		Description string            `json:"description"`
		Stateful    bool              `json:"stateful"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, explicit := args["stateful"]
	wc := toWorkerConfig(cfg.Name, cfg.Transport, cfg.Command, cfg.Args, cfg.Env, cfg.URL, cfg.Headers, cfg.Description, cfg.Stateful, explicit)
	snap, err := s.facade.DeclareWorker(ctx, wc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap)
}

func (s *StdioServer) handleRemoveWorker(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.facade.RemoveWorker(name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("removed"), nil
}

func (s *StdioServer) handleListWorkers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workers, err := s.facade.ListWorkers()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(workers)
}

func (s *StdioServer) handleStopWorker(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.facade.StopWorker(name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("stopped"), nil
}

func (s *StdioServer) handleStartWorker(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := s.facade.StartWorker(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap)
}

func (s *StdioServer) handleResetWorker(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := s.facade.ResetWorker(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap)
}

func (s *StdioServer) handleListTools(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	server := req.GetString("server", "")
	if server == "" {
		workers, err := s.facade.ListWorkers()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(workers)
	}
	tools, err := s.facade.ListTools(server)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(tools)
}

func (s *StdioServer) handleCallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	server, err := req.RequireString("server")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	toolName, err := req.RequireString("tool")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := req.GetArguments()
	callArgs, _ := args["args"].(map[string]any)
	// stdio mode is single-client with no session id (spec §6.5): the
	// stateful-isolation branch of call_queued is never taken.
	result, err := s.facade.CallTool(ctx, server, toolName, callArgs, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *StdioServer) handleListProfiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bundles, err := s.facade.ListProfiles()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(bundles)
}

func (s *StdioServer) handleActivateProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.facade.ActivateProfile(ctx, name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("activated"), nil
}

func (s *StdioServer) handleDeactivateProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.facade.DeactivateProfile(name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("deactivated"), nil
}

func (s *StdioServer) handleCreateProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	raw, _ := json.Marshal(args)
	var bundle struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Entries     []struct {
			Name        string            `json:"name"`
			Command     string            `json:"command"`
			Args        []string          `json:"args"`
			Env         map[string]string `json:"env"`
			Description string            `json:"description"`
		} `json:"entries"`
	}
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pb := toProfileBundle(bundle.Name, bundle.Description, bundle.Entries)
	if err := s.facade.CreateProfile(pb); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("created"), nil
}

func (s *StdioServer) handleDeleteProfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.facade.DeleteProfile(name); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("deleted"), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toWorkerConfig(name, transport, command string, args []string, env map[string]string, url string, headers map[string]string, description string, stateful, explicit bool) worker.WorkerConfig {
	cfg := worker.WorkerConfig{
		Name:        name,
		Transport:   worker.Transport(transport),
		Command:     command,
		Args:        args,
		Env:         env,
		URL:         url,
		Headers:     headers,
		Description: description,
		Stateful:    stateful,
	}
	meta.ApplyStatefulDefault(&cfg, explicit)
	return cfg
}

func toProfileBundle(name, description string, entries []struct {
	Name        string            `json:"name"`
	Command     string            `json:"command"`
	Args        []string          `json:"args"`
	Env         map[string]string `json:"env"`
	Description string            `json:"description"`
}) worker.ProfileBundle {
	out := make([]worker.ProfileEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, worker.ProfileEntry{
			Name:        e.Name,
			Command:     e.Command,
			Args:        e.Args,
			Env:         e.Env,
			Description: e.Description,
		})
	}
	return worker.ProfileBundle{Name: name, Description: description, Entries: out}
}
