// Package httpapi serves a small debug/status HTTP surface over the
// coordinator's in-memory state: what's pending, what's running, and
// per-project load progress.
package httpapi

import (
	"net/http"

	"github.com/go-martini/martini"
	"github.com/martini-contrib/binding"
	"github.com/martini-contrib/render"

	"github.com/rosrad/rtags/internal/unit"
)

// JobSummary is one job's externally-visible shape.
type JobSummary struct {
	ID          uint64 `json:"id"`
	Project     string `json:"project"`
	Source      string `json:"source"`
	Status      string `json:"status"`
	Destination string `json:"destination,omitempty"`
}

// JobsSnapshot is the full job-table state at the moment it was taken.
type JobsSnapshot struct {
	Pending    []JobSummary `json:"pending"`
	Processing []JobSummary `json:"processing"`
	Local      []JobSummary `json:"local"`
}

// ProjectStatus is one project's lifecycle state and file count.
type ProjectStatus struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	FileCount int    `json:"file_count"`
}

// JobsView is the read-only slice of scheduler state httpapi needs to
// answer GET /jobs.
type JobsView interface {
	Snapshot() JobsSnapshot
}

// ProjectsView is the read-only slice of project state httpapi needs
// to answer GET /status.
type ProjectsView interface {
	Statuses() []ProjectStatus
}

// SubmitView is the write surface httpapi needs to answer POST
// /submit: admitting a compile command without going through the TCP
// wire protocol.
type SubmitView interface {
	SubmitCompile(project string, src unit.Source)
}

// SubmitForm is the bound shape of a POST /submit request body, the
// HTTP analogue of wire.SubmitMessage.
type SubmitForm struct {
	Project    string   `form:"project" binding:"required"`
	Path       string   `form:"path" binding:"required"`
	Compiler   string   `form:"compiler"`
	Args       []string `form:"args"`
	WorkingDir string   `form:"working_dir"`
}

// New builds the martini handler serving jobs, projects, and compile
// submission. Callers run it with m.RunOnAddr(addr) or mount it under
// an existing server.
func New(jobs JobsView, projects ProjectsView, submit SubmitView) *martini.ClassicMartini {
	m := martini.Classic()
	m.Use(render.Renderer(render.Options{
		IndentJSON: true,
	}))

	m.Get("/jobs", func(r render.Render) {
		r.JSON(http.StatusOK, jobs.Snapshot())
	})

	m.Get("/status", func(r render.Render) {
		r.JSON(http.StatusOK, projects.Statuses())
	})

	m.Post("/submit", binding.Bind(SubmitForm{}), func(f SubmitForm, r render.Render) {
		compiler := f.Compiler
		if compiler == "" {
			compiler = "cc"
		}
		submit.SubmitCompile(f.Project, unit.Source{
			Path:        f.Path,
			Compiler:    compiler,
			Args:        f.Args,
			WorkingDir:  f.WorkingDir,
			ProjectRoot: f.Project,
		})
		r.JSON(http.StatusAccepted, map[string]string{"status": "queued"})
	})

	return m
}
