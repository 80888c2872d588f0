// Package worker runs background maintenance over asynq: the periodic
// ticket-issuance reconciliation job that completes issuance for confirmed
// registrations whose ticket count trails their quantity.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nkulkarni/eventgate/internal/service"
)

// TypeReconcileIssuance is the task type for the issuance repair job.
const TypeReconcileIssuance = "reconcile:issuance"

// Worker wraps an asynq server plus scheduler for the reconciliation job.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
}

// New builds a worker connected to Redis. cronSpec schedules the periodic
// reconciliation run.
func New(redisAddr, cronSpec string, svc *service.Service, logger *slog.Logger) (*Worker, error) {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"default": 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReconcileIssuance, func(ctx context.Context, _ *asynq.Task) error {
		repaired, err := svc.ReconcileIssuance(ctx)
		if err != nil {
			return fmt.Errorf("reconcile issuance: %w", err)
		}
		logger.Info("reconcile task finished", "repaired", repaired)
		return nil
	})

	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register(cronSpec, asynq.NewTask(TypeReconcileIssuance, nil)); err != nil {
		return nil, fmt.Errorf("register reconcile schedule: %w", err)
	}

	return &Worker{server: server, scheduler: scheduler, mux: mux}, nil
}

// Run starts the scheduler and blocks serving tasks until Shutdown.
func (w *Worker) Run() error {
	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := w.server.Run(w.mux); err != nil {
		return fmt.Errorf("run task server: %w", err)
	}
	return nil
}

// Shutdown stops the scheduler and task server gracefully.
func (w *Worker) Shutdown() {
	w.scheduler.Shutdown()
	w.server.Shutdown()
}
