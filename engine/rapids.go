package engine

import (
	"context"
	"net/http"
	"net/url"

	"github.com/YuminosukeSato/remoteglm/engine/rapids"
	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

// RapidsResult is the value of an evaluated Rapids expression. Exactly one of
// Key, Scalar or String is meaningful, depending on what the expression
// produced.
type RapidsResult struct {
	Key     string
	Rows    int64
	Cols    int
	Scalar  *float64
	String  string
	IsFrame bool
}

type rapidsDTO struct {
	Key     *keyRef `json:"key"`
	NumRows int64   `json:"num_rows"`
	NumCols int     `json:"num_cols"`
	Scalar  *Float  `json:"scalar"`
	String  string  `json:"string"`
}

// Rapids evaluates expr in the current session.
func (c *Client) Rapids(ctx context.Context, expr rapids.Expr) (*RapidsResult, error) {
	session := c.SessionID()
	if session == "" {
		return nil, errors.WithStack(errors.ErrNoSession)
	}

	ast := expr.String()
	c.logger.Debug("Rapids", log.RapidsKey, ast)

	form := url.Values{"ast": {ast}, "session_id": {session}}
	var resp rapidsDTO
	if err := c.call(ctx, http.MethodPost, "/99/Rapids", nil, form, &resp); err != nil {
		return nil, errors.Wrap(err, "rapids")
	}

	out := &RapidsResult{String: resp.String}
	if resp.Key != nil && resp.Key.Name != "" {
		out.Key = resp.Key.Name
		out.Rows = resp.NumRows
		out.Cols = resp.NumCols
		out.IsFrame = true
	}
	if resp.Scalar != nil {
		v := float64(*resp.Scalar)
		out.Scalar = &v
	}
	return out, nil
}

// Assign evaluates expr and stores the resulting frame under key.
func (c *Client) Assign(ctx context.Context, key string, expr rapids.Expr) (*RapidsResult, error) {
	res, err := c.Rapids(ctx, rapids.Assign(key, expr))
	if err != nil {
		return nil, err
	}
	if !res.IsFrame {
		return nil, errors.NewValueError("Assign", "expression did not produce a frame")
	}
	return res, nil
}
