package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/voyagekit/compass/internal/services"
	"github.com/voyagekit/compass/pkg/models"
)

// SubscriptionGraph reads the weighted actor/publisher/item edges out of
// Neo4j. Malformed records are skipped and counted, matching the scan
// policy of the Postgres providers.
type SubscriptionGraph struct {
	driver  neo4j.DriverWithContext
	metrics *services.EngineMetrics
	logger  *logrus.Logger
}

func NewSubscriptionGraph(driver neo4j.DriverWithContext, metrics *services.EngineMetrics, logger *logrus.Logger) *SubscriptionGraph {
	return &SubscriptionGraph{driver: driver, metrics: metrics, logger: logger}
}

func (s *SubscriptionGraph) Edges(ctx context.Context) ([]models.SubscriptionEdge, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (from)-[r:SUBSCRIBES_TO|INTERACTED_WITH]->(to)
		RETURN from.node_id AS from_id,
		       to.node_id AS to_id,
		       coalesce(r.weight, 1.0) AS weight,
		       r.updated_at AS updated_at`

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscription edges: %w", err)
	}

	var edges []models.SubscriptionEdge
	for result.Next(ctx) {
		record := result.Record()
		edge, ok := s.parseEdge(record)
		if !ok {
			if s.metrics != nil {
				s.metrics.ScanErrors.WithLabelValues("graph").Inc()
			}
			continue
		}
		edges = append(edges, edge)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subscription edges: %w", err)
	}

	s.logger.WithField("edges", len(edges)).Debug("Loaded subscription graph")
	return edges, nil
}

func (s *SubscriptionGraph) parseEdge(record *neo4j.Record) (models.SubscriptionEdge, bool) {
	var edge models.SubscriptionEdge

	fromVal, ok := record.Get("from_id")
	if !ok {
		return edge, false
	}
	toVal, ok := record.Get("to_id")
	if !ok {
		return edge, false
	}
	from, ok := fromVal.(string)
	if !ok || from == "" {
		return edge, false
	}
	to, ok := toVal.(string)
	if !ok || to == "" {
		return edge, false
	}

	edge.From = from
	edge.To = to
	edge.Weight = 1.0
	if weightVal, ok := record.Get("weight"); ok {
		switch w := weightVal.(type) {
		case float64:
			edge.Weight = w
		case int64:
			edge.Weight = float64(w)
		}
	}
	if tsVal, ok := record.Get("updated_at"); ok {
		if ts, ok := tsVal.(time.Time); ok {
			edge.Timestamp = ts
		}
	}
	return edge, true
}
