package panel

import (
	"net/http"
	"sort"

	"github.com/rendis/arbor/internal/diagram"
	"github.com/rendis/arbor/internal/observer"
	"github.com/rendis/arbor/internal/runner"
	"github.com/rendis/arbor/pkg/schema"
)

// --- Page data types ---

type pageData struct {
	Title  string
	Active string
}

type dashboardData struct {
	pageData
	Trees        []runner.TreeInfo
	RunningCount int
	IdleCount    int
	FailedCount  int
}

type nodeRow struct {
	UID    uint16                  `json:"uid"`
	Name   string                  `json:"name"`
	Kind   string                  `json:"kind"`
	Path   string                  `json:"path"`
	Status schema.Status           `json:"status"`
	Stats  observer.NodeStatistics `json:"stats"`
}

type treeDetailData struct {
	pageData
	Info    runner.TreeInfo
	Nodes   []nodeRow
	Ascii   string
	Mermaid string
}

// --- Page handlers ---

func (s *PanelServer) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	trees := s.deps.Runner.List()

	data := dashboardData{
		pageData: pageData{Title: "Trees", Active: "dashboard"},
		Trees:    trees,
	}
	for _, t := range trees {
		switch t.Status {
		case schema.StatusRunning:
			data.RunningCount++
		case schema.StatusFailure:
			data.FailedCount++
		case schema.StatusIdle:
			data.IdleCount++
		}
	}

	s.renderPage(w, "dashboard.html", data)
}

func (s *PanelServer) handleTreeDetail(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")

	info, ok := s.treeInfo(uid)
	if !ok {
		http.NotFound(w, r)
		return
	}
	nodes, err := s.nodeRows(uid)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	tree, _ := s.deps.Runner.Tree(uid)
	model, err := diagram.Build(tree)
	if err != nil {
		s.deps.Logger.Error("diagram build failed", "tree_uid", uid, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.renderPage(w, "tree_detail.html", treeDetailData{
		pageData: pageData{Title: info.Name, Active: "dashboard"},
		Info:     info,
		Nodes:    nodes,
		Ascii:    diagram.RenderASCII(model),
		Mermaid:  diagram.RenderMermaid(model),
	})
}

// --- Shared lookups ---

// treeInfo finds the runner's info entry for one tree UID.
func (s *PanelServer) treeInfo(uid string) (runner.TreeInfo, bool) {
	for _, info := range s.deps.Runner.List() {
		if info.UID == uid {
			return info, true
		}
	}
	return runner.TreeInfo{}, false
}

// nodeRows assembles the per-node status table for a tree, ordered by UID.
func (s *PanelServer) nodeRows(uid string) ([]nodeRow, error) {
	tree, err := s.deps.Runner.Tree(uid)
	if err != nil {
		return nil, err
	}
	obs, err := s.deps.Runner.Observer(uid)
	if err != nil {
		return nil, err
	}

	rows := make([]nodeRow, 0, len(tree.Nodes()))
	for _, n := range tree.Nodes() {
		row := nodeRow{
			UID:    n.UID(),
			Name:   n.Name(),
			Kind:   string(n.Kind()),
			Path:   obs.Path(n.UID()),
			Status: n.Status(),
		}
		if stats, ok := obs.Statistics(n.UID()); ok {
			row.Stats = stats
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UID < rows[j].UID })
	return rows, nil
}
