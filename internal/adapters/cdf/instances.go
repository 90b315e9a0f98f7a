package cdf

import (
	"context"
	"sync/atomic"

	"plexingest/internal/platform/logger"
)

// Node is one extraction-metadata instance destined for the auxiliary space
type Node struct {
	Space      string         `json:"space"`
	ExternalID string         `json:"externalId"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Instances writes extraction-metadata nodes. It is strictly best-effort:
// the first failure disables the writer for the rest of the process, and
// Apply never propagates an error to the caller
type Instances struct {
	c        *Client
	space    string
	disabled atomic.Bool
	log      logger.Logger
}

// NewInstances wraps c with a metadata writer targeting space. A nil
// client or empty space yields a writer that is disabled from the start
func NewInstances(c *Client, space string) *Instances {
	i := &Instances{c: c, space: space, log: *logger.Named("cdf-meta")}
	if c == nil || space == "" {
		i.disabled.Store(true)
	}
	return i
}

// Disabled reports whether metadata writes have been switched off
func (i *Instances) Disabled() bool { return i.disabled.Load() }

// Apply upserts nodes into the auxiliary space. Failures are logged once
// and permanently disable the writer
func (i *Instances) Apply(ctx context.Context, nodes []Node) {
	if i.disabled.Load() || len(nodes) == 0 {
		return
	}

	items := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		space := n.Space
		if space == "" {
			space = i.space
		}
		item := map[string]any{
			"instanceType": "node",
			"space":        space,
			"externalId":   n.ExternalID,
		}
		if len(n.Properties) > 0 {
			item["sources"] = []map[string]any{{
				"source": map[string]any{
					"type":       "container",
					"space":      space,
					"externalId": "ExtractionRun",
				},
				"properties": n.Properties,
			}}
		}
		items = append(items, item)
	}

	body := map[string]any{"items": items, "replace": true}
	if _, err := i.c.post(ctx, "/models/instances", body); err != nil {
		i.disabled.Store(true)
		i.log.Warn().Err(err).Msg("metadata write failed, disabling for process lifetime")
		return
	}
	i.log.Debug().Int("nodes", len(nodes)).Msg("metadata nodes applied")
}
