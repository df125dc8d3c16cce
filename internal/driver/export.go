package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/halcyonlabs/consilium/internal/core/model"
	"github.com/halcyonlabs/consilium/internal/logger"
)

// Exporter persists a completed expert run as an audit graph: one Session
// node, one Expert node per DAG node, FEEDS edges between them.
type Exporter struct {
	driver GraphDriver
	log    *logger.Logger
}

func NewExporter(d GraphDriver, log *logger.Logger) *Exporter {
	if log == nil {
		log = logger.Nop()
	}
	return &Exporter{driver: d, log: log}
}

func (e *Exporter) ExportSession(ctx context.Context, sessionID string, startedAt, completedAt time.Time, succeeded, failed int, nodes []model.ExpertNode, links []model.ExpertLink) error {
	if e.driver == nil {
		return nil
	}

	_, err := e.driver.ExecuteQuery(ctx, SaveSessionNodeQuery, map[string]interface{}{
		"id":           sessionID,
		"started_at":   startedAt.UTC().Format(time.RFC3339),
		"completed_at": completedAt.UTC().Format(time.RFC3339),
		"succeeded":    succeeded,
		"failed":       failed,
	})
	if err != nil {
		return fmt.Errorf("failed to save session node: %w", err)
	}

	for _, n := range nodes {
		_, err := e.driver.ExecuteQuery(ctx, SaveExpertNodeQuery, map[string]interface{}{
			"id":           n.ID,
			"session_id":   sessionID,
			"name":         n.Name,
			"type":         string(n.Type),
			"category":     n.Category,
			"state":        string(n.State),
			"provider":     n.Provider,
			"model":        n.Model,
			"duration_ms":  n.DurationMs,
			"cost":         n.Cost,
			"total_tokens": n.TokenUsage.Total,
			"error":        n.Error,
		})
		if err != nil {
			return fmt.Errorf("failed to save expert node %s: %w", n.ID, err)
		}
		_, err = e.driver.ExecuteQuery(ctx, SaveSessionExpertEdgeQuery, map[string]interface{}{
			"session_id": sessionID,
			"id":         n.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to link expert node %s: %w", n.ID, err)
		}
	}

	for _, l := range links {
		_, err := e.driver.ExecuteQuery(ctx, SaveExpertLinkQuery, map[string]interface{}{
			"id":        l.ID,
			"source_id": l.Source,
			"target_id": l.Target,
			"type":      string(l.Type),
			"strength":  l.Strength,
			"active":    l.Active,
		})
		if err != nil {
			return fmt.Errorf("failed to save expert link %s: %w", l.ID, err)
		}
	}

	e.log.Info("exported session graph", "session", sessionID, "nodes", len(nodes), "links", len(links))
	return nil
}
