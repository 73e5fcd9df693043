package engine

import (
	"context"
	"net/http"
	"time"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

// Job statuses reported by the engine.
const (
	JobCreated   = "CREATED"
	JobRunning   = "RUNNING"
	JobDone      = "DONE"
	JobFailed    = "FAILED"
	JobCancelled = "CANCELLED"
)

// Job is an asynchronous engine task.
type Job struct {
	Key         string   `json:"-"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Progress    float64  `json:"progress"`
	Exception   string   `json:"exception"`
	Warnings    []string `json:"warnings"`
	Dest        string   `json:"-"`
}

// Terminal reports whether the job has stopped.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobDone, JobFailed, JobCancelled:
		return true
	}
	return false
}

type jobDTO struct {
	Key         keyRef   `json:"key"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Progress    float64  `json:"progress"`
	Exception   string   `json:"exception"`
	Warnings    []string `json:"warnings"`
	Dest        keyRef   `json:"dest"`
}

func (d jobDTO) job() *Job {
	return &Job{
		Key:         d.Key.Name,
		Description: d.Description,
		Status:      d.Status,
		Progress:    d.Progress,
		Exception:   d.Exception,
		Warnings:    d.Warnings,
		Dest:        d.Dest.Name,
	}
}

// GetJob fetches the current state of a job.
func (c *Client) GetJob(ctx context.Context, key string) (*Job, error) {
	var resp struct {
		Jobs []jobDTO `json:"jobs"`
	}
	if err := c.call(ctx, http.MethodGet, "/3/Jobs/"+escapeKey(key), nil, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Jobs) == 0 {
		return nil, errors.Newf("job %s: engine returned no job", key)
	}
	return resp.Jobs[0].job(), nil
}

// WaitJob polls a job until it stops. FAILED and CANCELLED jobs are returned
// as JobError. Job warnings are passed to errors.Warn.
func (c *Client) WaitJob(ctx context.Context, key string) (*Job, error) {
	logger := c.logger.With(log.JobKey, key)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		job, err := c.GetJob(ctx, key)
		if err != nil {
			return nil, errors.Wrapf(err, "wait job %s", key)
		}
		logger.Debug("Job status",
			log.JobStatusKey, job.Status,
			log.ProgressKey, job.Progress,
		)

		if job.Terminal() {
			for _, w := range job.Warnings {
				errors.Warn(errors.NewConvergenceWarning(job.Description, job.Dest, w))
			}
			if job.Status != JobDone {
				return job, errors.NewJobError(job.Key, job.Description, job.Status, job.Exception)
			}
			logger.Debug("Job finished",
				log.DurationMsKey, time.Since(start).Milliseconds(),
			)
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, errors.Wrapf(ctx.Err(), "wait job %s", key)
		case <-ticker.C:
		}
	}
}
