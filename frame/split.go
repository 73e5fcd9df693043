package frame

import (
	"context"
	"fmt"

	"github.com/YuminosukeSato/remoteglm/engine/rapids"
	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

// Split partitions the rows of f into len(ratios)+1 frames. The last frame
// takes the remainder, so ratios must be positive and sum to less than 1.
//
// Each row draws one uniform number u from a seeded generator on the engine.
// Split i keeps the rows with c[i-1] < u <= c[i], where c holds the cumulative
// ratios, so the same seed always yields the same partition.
func (f *Frame) Split(ctx context.Context, ratios []float64, seed int64) ([]*Frame, error) {
	if len(ratios) == 0 {
		return nil, errors.NewValidationError("ratios", "need at least one ratio", ratios)
	}
	bounds := make([]float64, len(ratios))
	var sum float64
	for i, r := range ratios {
		if r <= 0 {
			return nil, errors.NewValidationError("ratios", "ratios must be positive", ratios)
		}
		sum += r
		bounds[i] = sum
	}
	if sum >= 1 {
		return nil, errors.NewValidationError("ratios", "ratios must sum to less than 1", ratios)
	}

	rnd := NewKey("runif")
	if _, err := f.client.Assign(ctx, rnd, rapids.Runif(f.ref(), seed)); err != nil {
		return nil, errors.Wrap(err, "split")
	}
	defer func() {
		if _, err := f.client.Rapids(context.WithoutCancel(ctx), rapids.Remove(rnd)); err != nil {
			f.logger.Warn("Failed to remove split column", log.FrameKey, rnd, "error", err.Error())
		}
	}()

	u := rapids.Key(rnd)
	out := make([]*Frame, 0, len(ratios)+1)
	for i := 0; i <= len(bounds); i++ {
		var pred rapids.Expr
		switch {
		case i == 0:
			pred = rapids.Le(u, rapids.Num(bounds[0]))
		case i == len(bounds):
			pred = rapids.Gt(u, rapids.Num(bounds[i-1]))
		default:
			pred = rapids.And(rapids.Gt(u, rapids.Num(bounds[i-1])), rapids.Le(u, rapids.Num(bounds[i])))
		}
		part, err := f.derive(ctx, fmt.Sprintf("split%d", i), rapids.Rows(f.ref(), pred))
		if err != nil {
			return nil, errors.Wrapf(err, "split part %d", i)
		}
		out = append(out, part)
	}

	f.logger.Info("Frame split",
		log.OperationKey, log.OperationSplit,
		log.RandomSeedKey, seed,
		"ratios", ratios,
		"rows", splitRows(out),
	)
	return out, nil
}

func splitRows(parts []*Frame) []int64 {
	rows := make([]int64, len(parts))
	for i, p := range parts {
		rows[i] = p.rows
	}
	return rows
}
