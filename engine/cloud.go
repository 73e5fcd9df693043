package engine

import (
	"context"
	"fmt"
	"net/http"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

// Node is one member of the engine cluster.
type Node struct {
	Name    string `json:"h2o"`
	Healthy bool   `json:"healthy"`
	FreeMem int64  `json:"free_mem"`
	MaxMem  int64  `json:"max_mem"`
	Cores   int    `json:"num_cpus"`
}

// Cloud is the cluster status reported by /3/Cloud.
type Cloud struct {
	Name      string `json:"cloud_name"`
	Version   string `json:"version"`
	Size      int    `json:"cloud_size"`
	Healthy   bool   `json:"cloud_healthy"`
	Consensus bool   `json:"consensus"`
	Nodes     []Node `json:"nodes"`
}

// FreeMem sums the free memory of all nodes.
func (c *Cloud) FreeMem() int64 {
	var total int64
	for _, n := range c.Nodes {
		total += n.FreeMem
	}
	return total
}

// Cloud returns the cluster status.
func (c *Client) Cloud(ctx context.Context) (*Cloud, error) {
	var cloud Cloud
	if err := c.call(ctx, http.MethodGet, "/3/Cloud", nil, nil, &cloud); err != nil {
		return nil, err
	}
	return &cloud, nil
}

// Connect checks that the cluster is healthy and opens a session.
//
// memLimit is the memory the workflow expects to have, in bytes (0 disables
// the check). The engine's heap is fixed when the cluster starts, so a
// shortfall is reported as a warning and does not fail the connection.
func (c *Client) Connect(ctx context.Context, memLimit int64) (*Cloud, error) {
	cloud, err := c.Cloud(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	if !cloud.Healthy {
		return nil, errors.Newf("connect: cluster %q is not healthy", cloud.Name)
	}

	var sess struct {
		SessionKey string `json:"session_key"`
	}
	if err := c.call(ctx, http.MethodPost, "/4/sessions", nil, nil, &sess); err != nil {
		return nil, errors.Wrap(err, "open session")
	}
	if sess.SessionKey == "" {
		return nil, errors.New("open session: engine returned an empty session key")
	}
	c.setSession(sess.SessionKey)

	if memLimit > 0 && cloud.FreeMem() < memLimit {
		errors.Warn(errors.Newf("cluster %q has %s free, below the requested %s",
			cloud.Name, FormatBytes(cloud.FreeMem()), FormatBytes(memLimit)))
	}

	c.logger.Info("Connected to engine",
		"cloud", cloud.Name,
		"version", cloud.Version,
		"nodes", cloud.Size,
		log.SessionKey, sess.SessionKey,
	)
	return cloud, nil
}

// EndSession closes the current session. It is a no-op without one.
func (c *Client) EndSession(ctx context.Context) error {
	id := c.SessionID()
	if id == "" {
		return nil
	}
	if err := c.call(ctx, http.MethodDelete, "/4/sessions/"+escapeKey(id), nil, nil, nil); err != nil {
		return errors.Wrap(err, "end session")
	}
	c.setSession("")
	return nil
}

// RemoveAll deletes every frame and model on the cluster.
func (c *Client) RemoveAll(ctx context.Context) error {
	if err := c.call(ctx, http.MethodDelete, "/3/DKV", nil, nil, nil); err != nil {
		return errors.Wrap(err, "remove all")
	}
	c.logger.Info("Cluster reset")
	return nil
}

// FormatBytes renders a byte count with a binary unit suffix, e.g. "2.0G".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%c", float64(n)/float64(div), "KMGTPE"[exp])
}
