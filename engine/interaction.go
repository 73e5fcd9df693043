package engine

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

// InteractionRequest asks the engine to build categorical interaction columns.
type InteractionRequest struct {
	// Source is the frame holding FactorColumns.
	Source        string
	FactorColumns []string
	// Pairwise builds every pair of FactorColumns. Otherwise one column
	// combining all of them is built.
	Pairwise      bool
	MaxFactors    int
	MinOccurrence int
	// Dest is the key of the frame that receives the interaction columns.
	Dest string
}

// Validate checks the request before it is sent.
func (r InteractionRequest) Validate() error {
	if r.Source == "" {
		return errors.NewValidationError("source_frame", "must not be empty", r.Source)
	}
	if len(r.FactorColumns) < 2 {
		return errors.NewValidationError("factor_columns", "need at least two columns", r.FactorColumns)
	}
	if r.MaxFactors <= 0 {
		return errors.NewValidationError("max_factors", "must be positive", r.MaxFactors)
	}
	if r.MinOccurrence <= 0 {
		return errors.NewValidationError("min_occurrence", "must be positive", r.MinOccurrence)
	}
	if r.Dest == "" {
		return errors.NewValidationError("dest", "must not be empty", r.Dest)
	}
	return nil
}

// Interaction runs an interaction job and returns the destination frame key.
func (c *Client) Interaction(ctx context.Context, req InteractionRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	form := url.Values{
		"source_frame":   {req.Source},
		"factor_columns": {ListParam(req.FactorColumns)},
		"pairwise":       {boolParam(req.Pairwise)},
		"max_factors":    {strconv.Itoa(req.MaxFactors)},
		"min_occurrence": {strconv.Itoa(req.MinOccurrence)},
		"dest":           {req.Dest},
	}
	var started jobDTO
	if err := c.call(ctx, http.MethodPost, "/3/Interaction", nil, form, &started); err != nil {
		return "", errors.Wrap(err, "interaction")
	}
	job, err := c.WaitJob(ctx, started.Key.Name)
	if err != nil {
		return "", errors.Wrap(err, "interaction")
	}

	dest := job.Dest
	if dest == "" {
		dest = req.Dest
	}
	c.logger.Info("Interaction built",
		log.OperationKey, log.OperationInteraction,
		log.FrameKey, dest,
		"factors", len(req.FactorColumns),
		"pairwise", req.Pairwise,
	)
	return dest, nil
}
