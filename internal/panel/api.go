package panel

import (
	"fmt"
	"net/http"

	"github.com/rendis/arbor/internal/diagram"
	"github.com/rendis/arbor/pkg/schema"
)

func (s *PanelServer) handleListTrees(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"trees": s.deps.Runner.List()})
}

func (s *PanelServer) handleTreeStatus(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	info, ok := s.treeInfo(uid)
	if !ok {
		writeError(w, http.StatusNotFound, "tree not found")
		return
	}
	nodes, err := s.nodeRows(uid)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tree":  info,
		"nodes": nodes,
	})
}

func (s *PanelServer) handleTreeBlackboard(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	tree, err := s.deps.Runner.Tree(uid)
	if err != nil {
		writeError(w, http.StatusNotFound, "tree not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tree_uid": uid,
		"entries":  tree.Blackboard().Snapshot(),
	})
}

func (s *PanelServer) handleTreeTransitions(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "transitions are not persisted")
		return
	}
	if _, err := s.deps.Runner.Tree(uid); err != nil {
		writeError(w, http.StatusNotFound, "tree not found")
		return
	}

	since := int64(queryInt(r, "since", 0))
	limit := queryInt(r, "limit", 200)

	recs, err := s.deps.Store.Transitions(r.Context(), uid, since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("query transitions: %v", err))
		return
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tree_uid":    uid,
		"transitions": recs,
	})
}

func (s *PanelServer) handleTreeDiagram(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	tree, err := s.deps.Runner.Tree(uid)
	if err != nil {
		writeError(w, http.StatusNotFound, "tree not found")
		return
	}
	model, err := diagram.Build(tree)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("diagram build: %v", err))
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "ascii":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, diagram.RenderASCII(model))
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, diagram.RenderMermaid(model))
	case "dot":
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		fmt.Fprint(w, diagram.RenderDOT(model))
	case "png":
		png, imgErr := diagram.RenderImage(model)
		if imgErr != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("render image: %v", imgErr))
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
	}
}

// handleTickTree drives one tree by hand. mode=once advances a single tick,
// mode=run ticks until the tree settles.
func (s *PanelServer) handleTickTree(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	var (
		status schema.Status
		err    error
	)
	switch mode := r.URL.Query().Get("mode"); mode {
	case "", "once":
		status, err = s.deps.Runner.RunOnce(r.Context(), uid)
	case "run":
		status, err = s.deps.Runner.RunToCompletion(r.Context(), uid)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown mode %q", mode))
		return
	}
	if err != nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("tick: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tree_uid": uid,
		"status":   status,
	})
}

func (s *PanelServer) handleHaltTree(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	if err := s.deps.Runner.Halt(uid); err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("halt: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"tree_uid": uid,
	})
}

func (s *PanelServer) handleRemoveTree(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	if err := s.deps.Runner.Remove(uid); err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("remove: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"tree_uid": uid,
	})
}
