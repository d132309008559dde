package cron

import (
	"context"
	"fmt"
	"slices"
)

// Job is one unit of periodic work. Name doubles as the metrics label, so it
// must be stable and unique within a registry.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in run order.
type Registry struct {
	jobs []Job
}

// NewRegistry registers jobs in order, skipping nils. It panics on a duplicate
// or empty name since that is a wiring mistake.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			panic(err)
		}
	}
	return r
}

// Register appends job. A nil job is ignored.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	name := job.Name()
	if name == "" {
		return fmt.Errorf("cron job %T has no name", job)
	}
	if slices.ContainsFunc(r.jobs, func(j Job) bool { return j.Name() == name }) {
		return fmt.Errorf("cron job %q registered twice", name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	return slices.Clone(r.jobs)
}
