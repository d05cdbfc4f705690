package server

import (
	"github.com/rosrad/rtags/internal/httpapi"
	"github.com/rosrad/rtags/internal/job"
)

// Snapshot implements httpapi.JobsView over the live job table.
func (s *Server) Snapshot() httpapi.JobsSnapshot {
	return httpapi.JobsSnapshot{
		Pending:    summarize(s.table.PendingJobs()),
		Processing: summarize(s.table.ProcessingJobs()),
		Local:      summarize(s.table.LocalJobs()),
	}
}

func summarize(jobs []*job.Job) []httpapi.JobSummary {
	out := make([]httpapi.JobSummary, len(jobs))
	for i, j := range jobs {
		out[i] = httpapi.JobSummary{
			ID:          j.ID,
			Project:     j.Project,
			Source:      j.Unit.SourceFile,
			Status:      j.Unit.Status.String(),
			Destination: j.Destination,
		}
	}
	return out
}

// Statuses implements httpapi.ProjectsView over the project manager.
func (s *Server) Statuses() []httpapi.ProjectStatus {
	projs := s.projects.All()
	out := make([]httpapi.ProjectStatus, len(projs))
	for i, p := range projs {
		out[i] = httpapi.ProjectStatus{
			Name:      p.Name(),
			State:     p.State().String(),
			FileCount: p.FileCount(),
		}
	}
	return out
}
