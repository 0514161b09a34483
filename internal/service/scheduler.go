package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/joaomazul/LinkedFlow-sub001/internal/config"
)

// Scheduler drives the poller and the executor on their own tickers, for
// deployments that do not rely on an external cron hitting the trigger
// endpoints.
type Scheduler struct {
	pollerConfig   *config.PollerConfig
	executorConfig *config.ExecutorConfig
	logger         *zap.Logger
	poller         *PollerService
	executor       *ExecutorService
	pollTicker     *time.Ticker
	execTicker     *time.Ticker
	stopCh         chan struct{}
}

func NewScheduler(
	pollerCfg *config.PollerConfig,
	executorCfg *config.ExecutorConfig,
	logger *zap.Logger,
	poller *PollerService,
	executor *ExecutorService,
) *Scheduler {
	return &Scheduler{
		pollerConfig:   pollerCfg,
		executorConfig: executorCfg,
		logger:         logger,
		poller:         poller,
		executor:       executor,
		stopCh:         make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if s.pollerConfig.Enabled {
		s.logger.Info("Starting poll scheduler", zap.Duration("interval", s.pollerConfig.Interval))
		s.pollTicker = time.NewTicker(s.pollerConfig.Interval)

		// Run first poll immediately
		go s.runPoll(ctx)

		go func() {
			for {
				select {
				case <-s.pollTicker.C:
					s.runPoll(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		s.logger.Info("Poll scheduler is disabled")
	}

	if s.executorConfig.Enabled {
		s.logger.Info("Starting execute scheduler", zap.Duration("interval", s.executorConfig.Interval))
		s.execTicker = time.NewTicker(s.executorConfig.Interval)

		go func() {
			for {
				select {
				case <-s.execTicker.C:
					s.runExecute(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		s.logger.Info("Execute scheduler is disabled")
	}
}

func (s *Scheduler) Stop() {
	if s.pollTicker != nil {
		s.pollTicker.Stop()
	}
	if s.execTicker != nil {
		s.execTicker.Stop()
	}
	close(s.stopCh)
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) runPoll(ctx context.Context) {
	start := time.Now()
	summary, err := s.poller.RunOnce(ctx)
	if err != nil {
		s.logger.Error("Scheduled poll failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}
	s.logger.Info("Scheduled poll completed",
		zap.String("run_id", summary.RunID),
		zap.Duration("duration", time.Since(start)))
}

func (s *Scheduler) runExecute(ctx context.Context) {
	start := time.Now()
	summary, err := s.executor.RunOnce(ctx)
	if err != nil {
		s.logger.Error("Scheduled execute failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}
	s.logger.Info("Scheduled execute completed",
		zap.String("run_id", summary.RunID),
		zap.Duration("duration", time.Since(start)))
}
