package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	pipelineCompleted = "completed"
	pipelineFailed    = "failed"
	pipelineSkipped   = "skipped"
)

// BatchPipeline is the single writer of the published graph snapshot and
// latent model. One guard covers both rebuilds: a trigger while a run is
// in progress is counted and skipped, never queued, so at most one batch
// recompute executes at any time.
type BatchPipeline struct {
	influence   *InfluenceGraphService
	recommender *LatentFactorRecommender
	metrics     *EngineMetrics
	logger      *logrus.Logger
	interval    time.Duration

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewBatchPipeline(
	influence *InfluenceGraphService,
	recommender *LatentFactorRecommender,
	metrics *EngineMetrics,
	interval time.Duration,
	logger *logrus.Logger,
) *BatchPipeline {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchPipeline{
		influence:   influence,
		recommender: recommender,
		metrics:     metrics,
		logger:      logger,
		interval:    interval,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start runs an immediate warm-up recompute and then retriggers on the
// configured interval. A zero interval disables the ticker; recomputes
// then happen only via TriggerRecompute.
func (p *BatchPipeline) Start() {
	p.TriggerRecompute()

	if p.interval <= 0 {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.TriggerRecompute()
			}
		}
	}()
}

// Stop cancels any in-flight run and waits for it to finish. Partially
// built snapshots are discarded; the last published versions stay
// authoritative.
func (p *BatchPipeline) Stop() {
	p.cancel()
	p.wg.Wait()
}

// TriggerRecompute starts one asynchronous batch run and reports whether
// it actually started. Safe to call from any goroutine.
func (p *BatchPipeline) TriggerRecompute() bool {
	if !p.running.CompareAndSwap(false, true) {
		p.metrics.ObservePipeline(pipelineSkipped, 0)
		p.logger.Info("Batch recompute already in progress, trigger skipped")
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		p.run()
	}()
	return true
}

// Running reports whether a batch run is currently executing.
func (p *BatchPipeline) Running() bool {
	return p.running.Load()
}

func (p *BatchPipeline) run() {
	start := time.Now()
	failed := false

	snap, err := p.influence.Recompute(p.ctx)
	switch {
	case err == nil:
		if p.metrics != nil {
			p.metrics.RankIterations.Set(float64(snap.Rank.Iterations))
			p.metrics.GraphNodes.Set(float64(snap.NodeCount))
			p.metrics.GraphEdges.Set(float64(snap.EdgeCount))
		}
	case errors.Is(err, context.Canceled):
		p.metrics.ObservePipeline(pipelineFailed, 0)
		return
	default:
		failed = true
		p.logger.WithError(err).Error("Influence graph recompute failed")
	}

	model, err := p.recommender.Recompute(p.ctx)
	switch {
	case err == nil:
		if p.metrics != nil {
			p.metrics.ModelActors.Set(float64(len(model.ActorFactors)))
			p.metrics.ModelItems.Set(float64(len(model.ItemFactors)))
			quality := p.recommender.Metrics()
			p.metrics.DiscoveryCoverage.Set(quality.CatalogCoverage)
			p.metrics.DiscoveryDiversity.Set(quality.DiversityIndex)
		}
	case errors.Is(err, context.Canceled):
		p.metrics.ObservePipeline(pipelineFailed, 0)
		return
	case errors.Is(err, ErrInsufficientData):
		// An empty interaction log is a valid state, not a failure.
		p.logger.WithError(err).Warn("Skipping latent model training")
	default:
		failed = true
		p.logger.WithError(err).Error("Latent model training failed")
	}

	duration := time.Since(start)
	if failed {
		p.metrics.ObservePipeline(pipelineFailed, duration)
	} else {
		p.metrics.ObservePipeline(pipelineCompleted, duration)
	}

	p.logger.WithFields(logrus.Fields{
		"duration": duration,
		"failed":   failed,
	}).Info("Batch recompute finished")
}
