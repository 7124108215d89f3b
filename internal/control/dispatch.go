package control

import (
	"context"
	"encoding/json"

	"github.com/SpideXD/mcp-swarm/internal/meta"
	"github.com/SpideXD/mcp-swarm/internal/swarmerr"
	"github.com/SpideXD/mcp-swarm/internal/worker"
)

// dispatch routes one /mcp tool-call envelope to the matching meta-tool
// (spec §4.6). This is the HTTP-surface twin of the MCP-tool registrations
// in stdio.go — both ultimately call the same meta.Facade methods.
func (s *Server) dispatch(ctx context.Context, tool string, args map[string]any, sessionID string) (any, error) {
	switch tool {
	case "discover":
		query, _ := args["query"].(string)
		limit := intArg(args, "limit", 0)
		return s.facade.Discover(ctx, query, limit), nil

	case "declare_worker":
		cfg, err := decodeWorkerConfig(args)
		if err != nil {
			return nil, err
		}
		return s.facade.DeclareWorker(ctx, cfg)

	case "remove_worker":
		name, _ := args["name"].(string)
		return nil, s.facade.RemoveWorker(name)

	case "list_workers":
		return s.facade.ListWorkers()

	case "stop_worker":
		name, _ := args["name"].(string)
		return nil, s.facade.StopWorker(name)

	case "start_worker":
		name, _ := args["name"].(string)
		return s.facade.StartWorker(ctx, name)

	case "reset_worker":
		name, _ := args["name"].(string)
		return s.facade.ResetWorker(ctx, name)

	case "update_worker":
		name, _ := args["name"].(string)
		if name == "" {
			return nil, swarmerr.New(swarmerr.BadInput, "update_worker requires name")
		}
		return s.facade.UpdateWorker(ctx, name, func(cfg *worker.WorkerConfig) {
			applyPatch(cfg, args)
		})

	case "list_tools":
		server, _ := args["server"].(string)
		return s.facade.ListTools(server)

	case "call_tool":
		server, _ := args["server"].(string)
		toolName, _ := args["tool"].(string)
		callArgs, _ := args["args"].(map[string]any)
		return s.facade.CallTool(ctx, server, toolName, callArgs, sessionID)

	case "list_profiles":
		return s.facade.ListProfiles()

	case "activate_profile":
		name, _ := args["name"].(string)
		return nil, s.facade.ActivateProfile(ctx, name)

	case "deactivate_profile":
		name, _ := args["name"].(string)
		return nil, s.facade.DeactivateProfile(name)

	case "create_profile":
		bundle, err := decodeProfileBundle(args)
		if err != nil {
			return nil, err
		}
		return nil, s.facade.CreateProfile(bundle)

	case "delete_profile":
		name, _ := args["name"].(string)
		return nil, s.facade.DeleteProfile(name)

	default:
		return nil, swarmerr.New(swarmerr.NotFound, "unknown tool %q", tool)
	}
}

func intArg(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}

func decodeWorkerConfig(args map[string]any) (worker.WorkerConfig, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return worker.WorkerConfig{}, swarmerr.Wrap(swarmerr.BadInput, err, "declare_worker: %v", err)
	}
	var cfg worker.WorkerConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return worker.WorkerConfig{}, swarmerr.Wrap(swarmerr.BadInput, err, "declare_worker: %v", err)
	}
	_, explicit := args["stateful"]
	meta.ApplyStatefulDefault(&cfg, explicit)
	return cfg, nil
}

func decodeProfileBundle(args map[string]any) (worker.ProfileBundle, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return worker.ProfileBundle{}, swarmerr.Wrap(swarmerr.BadInput, err, "create_profile: %v", err)
	}
	var bundle worker.ProfileBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return worker.ProfileBundle{}, swarmerr.Wrap(swarmerr.BadInput, err, "create_profile: %v", err)
	}
	return bundle, nil
}

// applyPatch merges only the fields present in args onto cfg (spec §4.6
// update_worker's "only provided fields change").
func applyPatch(cfg *worker.WorkerConfig, args map[string]any) {
	if v, ok := args["transport"].(string); ok {
		cfg.Transport = worker.Transport(v)
	}
	if v, ok := args["command"].(string); ok {
		cfg.Command = v
	}
	if v, ok := args["args"].([]any); ok {
		argv := make([]string, 0, len(v))
		for _, a := range v {
			if str, ok := a.(string); ok {
				argv = append(argv, str)
			}
		}
		cfg.Args = argv
	}
	if v, ok := args["env"].(map[string]any); ok {
		env := make(map[string]string, len(v))
		for k, val := range v {
			if str, ok := val.(string); ok {
				env[k] = str
			}
		}
		cfg.Env = env
	}
	if v, ok := args["headers"].(map[string]any); ok {
		headers := make(map[string]string, len(v))
		for k, val := range v {
			if str, ok := val.(string); ok {
				headers[k] = str
			}
		}
		cfg.Headers = headers
	}
	if v, ok := args["url"].(string); ok {
		cfg.URL = v
	}
	if v, ok := args["description"].(string); ok {
		cfg.Description = v
	}
	if v, ok := args["stateful"].(bool); ok {
		cfg.Stateful = v
	}
}
