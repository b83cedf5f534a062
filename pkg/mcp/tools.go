package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/arbor/internal/diagram"
	"github.com/rendis/arbor/internal/jsondoc"
	"github.com/rendis/arbor/internal/xmldoc"
	"github.com/rendis/arbor/pkg/bt"
	"github.com/rendis/arbor/pkg/schema"
)

// The JSON document schema compiles once; every load after the first
// reuses the compiled parser.
var (
	jsonParserOnce sync.Once
	jsonParserInst *jsondoc.Parser
	jsonParserErr  error
)

func jsonParser() (*jsondoc.Parser, error) {
	jsonParserOnce.Do(func() {
		jsonParserInst, jsonParserErr = jsondoc.NewParser()
	})
	return jsonParserInst, jsonParserErr
}

// handleLoad parses, validates, builds and registers a tree.
func (s *ArborServer) handleLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	path := req.GetString("path", "")
	if text == "" && path == "" {
		return mcp.NewToolResultError("one of text or path is required"), nil
	}
	if text != "" && path != "" {
		return mcp.NewToolResultError("text and path are mutually exclusive"), nil
	}

	doc, source, parseErr := parseDefinition(text, path, req.GetString("format", ""))
	if parseErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("parse failed: %v", parseErr)), nil
	}

	// Validation accumulates; surface every issue in one round trip.
	if result := bt.Validate(doc); !result.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("validation failed:\n%s", strings.Join(result.Messages(), "\n"))), nil
	}

	tree, buildErr := s.builder.BuildTree(doc, req.GetString("tree", ""))
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("build failed: %v", buildErr)), nil
	}

	schedule := req.GetString("schedule", "")
	var addErr error
	if schedule != "" {
		addErr = s.runner.AddScheduled(ctx, tree, source, schedule)
	} else {
		addErr = s.runner.Add(ctx, tree, source)
	}
	if addErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to register tree: %v", addErr)), nil
	}

	// Capture session mapping so run completions can be pushed back.
	s.captureSession(ctx, tree.UID())

	out := map[string]any{
		"tree_uid":   tree.UID(),
		"name":       tree.Name(),
		"node_count": len(tree.Nodes()),
		"status":     tree.Status(),
	}
	if schedule != "" {
		out["schedule"] = schedule
	}
	return marshalResult(out)
}

// handleTick ticks a loaded tree once or until it reaches a terminal status.
func (s *ArborServer) handleTick(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	treeUID, err := req.RequireString("tree_uid")
	if err != nil {
		return mcp.NewToolResultError("tree_uid is required"), nil
	}
	mode := req.GetString("mode", "once")

	var (
		status  schema.Status
		tickErr error
	)
	switch mode {
	case "once":
		status, tickErr = s.runner.RunOnce(ctx, treeUID)
	case "run":
		status, tickErr = s.runner.RunToCompletion(ctx, treeUID)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown mode: %s", mode)), nil
	}
	if tickErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tick failed: %v", tickErr)), nil
	}

	return marshalResult(map[string]any{
		"tree_uid": treeUID,
		"mode":     mode,
		"status":   status,
	})
}

// handleHalt aborts a tree's in-flight run and resets it to idle.
func (s *ArborServer) handleHalt(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	treeUID, err := req.RequireString("tree_uid")
	if err != nil {
		return mcp.NewToolResultError("tree_uid is required"), nil
	}

	if haltErr := s.runner.Halt(treeUID); haltErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("halt failed: %v", haltErr)), nil
	}

	return marshalResult(map[string]any{
		"ok":       true,
		"tree_uid": treeUID,
		"status":   schema.StatusIdle,
	})
}

// handleStatus reports per-node statuses and tick statistics.
func (s *ArborServer) handleStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	treeUID, err := req.RequireString("tree_uid")
	if err != nil {
		return mcp.NewToolResultError("tree_uid is required"), nil
	}

	tree, treeErr := s.runner.Tree(treeUID)
	if treeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tree lookup failed: %v", treeErr)), nil
	}
	obs, obsErr := s.runner.Observer(treeUID)
	if obsErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("observer lookup failed: %v", obsErr)), nil
	}

	// A node path narrows the report to a single node.
	if path := req.GetString("node", ""); path != "" {
		stats, statErr := obs.StatisticsByPath(path)
		if statErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("node lookup failed: %v", statErr)), nil
		}
		return marshalResult(map[string]any{
			"tree_uid": treeUID,
			"node":     path,
			"stats":    stats,
		})
	}

	nodes := make([]map[string]any, 0, len(tree.Nodes()))
	for _, n := range tree.Nodes() {
		entry := map[string]any{
			"uid":    n.UID(),
			"name":   n.Name(),
			"kind":   n.Kind(),
			"path":   obs.Path(n.UID()),
			"status": n.Status(),
		}
		if stats, ok := obs.Statistics(n.UID()); ok {
			entry["stats"] = stats
		}
		nodes = append(nodes, entry)
	}

	return marshalResult(map[string]any{
		"tree_uid": treeUID,
		"name":     tree.Name(),
		"status":   tree.Status(),
		"nodes":    nodes,
	})
}

// handleBlackboard reads the root blackboard, optionally writing entries first.
func (s *ArborServer) handleBlackboard(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	treeUID, err := req.RequireString("tree_uid")
	if err != nil {
		return mcp.NewToolResultError("tree_uid is required"), nil
	}

	tree, treeErr := s.runner.Tree(treeUID)
	if treeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tree lookup failed: %v", treeErr)), nil
	}
	bb := tree.Blackboard()

	if set := mcp.ParseStringMap(req, "set", nil); len(set) > 0 {
		for k, v := range set {
			bb.Set(k, valueOf(v))
		}
	}

	if key := req.GetString("key", ""); key != "" {
		v, found := bb.Get(key)
		out := map[string]any{
			"tree_uid": treeUID,
			"key":      key,
			"found":    found,
		}
		if found {
			out["value"] = v.Interface()
		}
		return marshalResult(out)
	}

	return marshalResult(map[string]any{
		"tree_uid": treeUID,
		"entries":  bb.Snapshot(),
	})
}

// handleStructure renders a loaded tree in the requested format.
func (s *ArborServer) handleStructure(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	treeUID, err := req.RequireString("tree_uid")
	if err != nil {
		return mcp.NewToolResultError("tree_uid is required"), nil
	}
	format := req.GetString("format", "json")

	tree, treeErr := s.runner.Tree(treeUID)
	if treeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("tree lookup failed: %v", treeErr)), nil
	}

	model, buildErr := diagram.Build(tree)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "json":
		return marshalResult(model)
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "dot":
		return mcp.NewToolResultText(diagram.RenderDOT(model)), nil
	case "image":
		png, imgErr := diagram.RenderImage(model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unsupported format: %s", format)), nil
	}
}

// handleQuery lists trees, transitions, or registered node types.
func (s *ArborServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "trees":
		return s.queryTrees(filter)
	case "transitions":
		return s.queryTransitions(ctx, filter)
	case "nodes":
		return s.queryNodes(filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// --- Query helpers ---

func (s *ArborServer) queryTrees(filter map[string]any) (*mcp.CallToolResult, error) {
	trees := s.runner.List()

	if status, ok := filter["status"].(string); ok && status != "" {
		want := schema.Status(status)
		filtered := trees[:0]
		for _, t := range trees {
			if t.Status == want {
				filtered = append(filtered, t)
			}
		}
		trees = filtered
	}
	if limit := extractInt(filter, "limit", 0); limit > 0 && len(trees) > limit {
		trees = trees[:limit]
	}

	return marshalResult(map[string]any{"trees": trees})
}

func (s *ArborServer) queryTransitions(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no store configured; transitions are not persisted"), nil
	}
	treeUID, ok := filter["tree_uid"].(string)
	if !ok || treeUID == "" {
		return mcp.NewToolResultError("transition query requires 'tree_uid' in filter"), nil
	}

	limit := extractInt(filter, "limit", 100)

	if nodeRaw, hasNode := filter["node_uid"]; hasNode {
		uid, ok := asInt(nodeRaw)
		if !ok || uid < 0 {
			return mcp.NewToolResultError("node_uid must be a non-negative integer"), nil
		}
		recs, qErr := s.store.TransitionsByNode(ctx, treeUID, uint16(uid), limit)
		if qErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", qErr)), nil
		}
		return marshalResult(map[string]any{"transitions": recs})
	}

	since := int64(extractInt(filter, "since", 0))
	recs, qErr := s.store.Transitions(ctx, treeUID, since)
	if qErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", qErr)), nil
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return marshalResult(map[string]any{"transitions": recs})
}

func (s *ArborServer) queryNodes(filter map[string]any) (*mcp.CallToolResult, error) {
	registered := s.builder.Registry().Describe()

	if kind, ok := filter["kind"].(string); ok && kind != "" {
		want := bt.Kind(kind)
		filtered := registered[:0]
		for _, rn := range registered {
			if rn.Kind == want {
				filtered = append(filtered, rn)
			}
		}
		registered = filtered
	}

	return marshalResult(map[string]any{"nodes": registered})
}

// --- Internal helpers ---

// parseDefinition decodes a tree document from inline text or a file.
// The format is taken from the argument, the file extension, or the first
// non-space byte, in that order.
func parseDefinition(text, path, format string) (*schema.Document, string, error) {
	data := []byte(text)
	source := "mcp"
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, "", err
		}
		data = b
		source = path
		if format == "" && strings.EqualFold(filepath.Ext(path), ".json") {
			format = "json"
		}
	}
	if format == "" {
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
			format = "json"
		} else {
			format = "xml"
		}
	}

	switch format {
	case "json":
		p, err := jsonParser()
		if err != nil {
			return nil, "", err
		}
		doc, err := p.Parse(data)
		return doc, source, err
	default:
		doc, err := xmldoc.Parse(data)
		return doc, source, err
	}
}

// valueOf maps a decoded JSON value onto a blackboard value.
func valueOf(v any) schema.Value {
	switch val := v.(type) {
	case string:
		return schema.StringValue(val)
	case float64:
		return schema.NumberValue(val)
	case bool:
		return schema.BoolValue(val)
	default:
		return schema.AnyValue(val)
	}
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	if n, ok := asInt(filter[key]); ok {
		return n
	}
	return defaultVal
}

// asInt coerces the numeric shapes JSON decoding produces.
func asInt(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		return int(val), true
	case int:
		return val, true
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n, true
		}
	}
	return 0, false
}

// captureSession maps the tree UID to the loading MCP session for notifications.
func (s *ArborServer) captureSession(ctx context.Context, treeUID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(treeUID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
