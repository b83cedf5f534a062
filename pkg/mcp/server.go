package mcp

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/arbor/internal/runner"
	"github.com/rendis/arbor/internal/store"
	"github.com/rendis/arbor/internal/streaming"
	"github.com/rendis/arbor/pkg/bt"
)

// ArborServerDeps holds the dependencies for creating an ArborServer.
type ArborServerDeps struct {
	Runner  *runner.Runner
	Store   store.Store
	Builder *bt.Builder
	Hub     streaming.EventHub
	Logger  *slog.Logger
}

// ArborServer wraps an MCP server with arbor-specific tool handlers.
type ArborServer struct {
	runner    *runner.Runner
	store     store.Store
	builder   *bt.Builder
	hub       streaming.EventHub
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  *MCPNotifier
	mcpServer *server.MCPServer
}

// NewArborServer creates a new ArborServer with all 7 tools registered.
func NewArborServer(deps ArborServerDeps) *ArborServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &ArborServer{
		runner:   deps.Runner,
		store:    deps.Store,
		builder:  deps.Builder,
		hub:      deps.Hub,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"arbor",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Arbor is a behavior tree execution engine. Use arbor.load to register a tree from an XML or JSON definition, arbor.tick to tick it (once or to completion), arbor.status to inspect per-node statuses, arbor.blackboard to read or write its blackboard, arbor.structure to render the tree, arbor.halt to stop a running tree, and arbor.query to list trees/transitions/nodes."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *ArborServer) Serve(ctx context.Context) error {
	go s.watchRuns(ctx)
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// ServeSSE starts the SSE transport on addr and blocks until ctx is
// cancelled. Graceful shutdown surfaces as http.ErrServerClosed.
func (s *ArborServer) ServeSSE(ctx context.Context, addr, baseURL string) error {
	go s.watchRuns(ctx)
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sse.Shutdown(shutdownCtx)
	}()
	if err := sse.Start(addr); err != nil {
		return err
	}
	return http.ErrServerClosed
}

// SSEHandler returns the SSE transport as an http.Handler for mounting into
// an existing server at /sse and /message. The caller owns the listener and
// should run WatchEvents alongside to keep session notifications flowing.
func (s *ArborServer) SSEHandler(baseURL string) http.Handler {
	return server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
}

// WatchEvents forwards run-completion events to connected sessions until ctx
// is cancelled. Serve and ServeSSE start this themselves.
func (s *ArborServer) WatchEvents(ctx context.Context) {
	s.watchRuns(ctx)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *ArborServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// watchRuns forwards run-completion events to the session that loaded the
// tree. Best-effort: without a hub there is nothing to forward.
func (s *ArborServer) watchRuns(ctx context.Context) {
	if s.hub == nil {
		return
	}
	events, cancel, err := s.hub.Subscribe(ctx, streaming.EventFilter{
		EventTypes: []string{streaming.EventTreeFinished, streaming.EventTreeHalted},
	})
	if err != nil {
		s.logger.Warn("run watcher disabled", "error", err)
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload := map[string]any{
				"tree_uid": ev.TreeUID,
				"event":    ev.EventType,
			}
			if ev.Payload != nil {
				payload["detail"] = ev.Payload
			}
			if nErr := s.notifier.Notify(ctx, ev.TreeUID, payload); nErr != nil {
				s.logger.Debug("run notification failed", "tree_uid", ev.TreeUID, "error", nErr)
			}
		}
	}
}

// tools returns the 7 registered MCP tools as ServerTool entries.
func (s *ArborServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: loadTool(), Handler: s.handleLoad},
		{Tool: tickTool(), Handler: s.handleTick},
		{Tool: haltTool(), Handler: s.handleHalt},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: blackboardTool(), Handler: s.handleBlackboard},
		{Tool: structureTool(), Handler: s.handleStructure},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func loadTool() mcp.Tool {
	return mcp.NewTool("arbor.load",
		mcp.WithDescription("Parse, validate and register a behavior tree from an XML or JSON definition"),
		mcp.WithString("text", mcp.Description("Tree definition document (XML or JSON)")),
		mcp.WithString("path", mcp.Description("Path to a definition file, alternative to text")),
		mcp.WithString("format", mcp.Enum("xml", "json"), mcp.Description("Document format (inferred from path extension or content when omitted)")),
		mcp.WithString("tree", mcp.Description("ID of the tree to instantiate (default: the document's main tree)")),
		mcp.WithString("schedule", mcp.Description("Cron expression; when set the tree is ticked to completion on this schedule")),
	)
}

func tickTool() mcp.Tool {
	return mcp.NewTool("arbor.tick",
		mcp.WithDescription("Tick a loaded tree: a single root tick, or repeated ticks until a terminal status"),
		mcp.WithString("tree_uid", mcp.Required(), mcp.Description("UID of the tree to tick")),
		mcp.WithString("mode", mcp.Enum("once", "run"), mcp.Description("once = single tick (default), run = tick until SUCCESS or FAILURE")),
	)
}

func haltTool() mcp.Tool {
	return mcp.NewTool("arbor.halt",
		mcp.WithDescription("Halt a tree: abort its in-flight run and reset every node to idle"),
		mcp.WithString("tree_uid", mcp.Required(), mcp.Description("UID of the tree to halt")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("arbor.status",
		mcp.WithDescription("Get per-node statuses and tick statistics for a loaded tree"),
		mcp.WithString("tree_uid", mcp.Required(), mcp.Description("UID of the tree to inspect")),
		mcp.WithString("node", mcp.Description("Node path (e.g. main/retry/approach) to inspect a single node")),
	)
}

func blackboardTool() mcp.Tool {
	return mcp.NewTool("arbor.blackboard",
		mcp.WithDescription("Read the root blackboard of a tree, optionally writing entries first"),
		mcp.WithString("tree_uid", mcp.Required(), mcp.Description("UID of the tree")),
		mcp.WithObject("set", mcp.Description("Entries to write before the snapshot is taken")),
		mcp.WithString("key", mcp.Description("Return only this key instead of the full snapshot")),
	)
}

func structureTool() mcp.Tool {
	return mcp.NewTool("arbor.structure",
		mcp.WithDescription("Render the structure of a loaded tree. Returns JSON, ASCII art, Mermaid or DOT syntax, or a base64-encoded PNG"),
		mcp.WithString("tree_uid", mcp.Required(), mcp.Description("UID of the tree to render")),
		mcp.WithString("format", mcp.Enum("json", "ascii", "mermaid", "dot", "image"),
			mcp.Description("Output format (default: json)")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("arbor.query",
		mcp.WithDescription("Query loaded trees, persisted transitions, or registered node types"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("trees", "transitions", "nodes"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (tree_uid, node_uid, since, limit)")),
	)
}
