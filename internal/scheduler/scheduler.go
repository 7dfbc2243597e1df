package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/goroutine"
)

// DeadlineSweeper выполняет один проход обхода дедлайнов.
type DeadlineSweeper interface {
	Sweep(ctx context.Context) (reminders, actions int)
}

// DisputeSweeper продвигает зависшие споры по цепочке эскалации.
type DisputeSweeper interface {
	EscalationSweep(ctx context.Context) int
}

// RiskSweeper выполняет один проход детекторов монитора рисков.
type RiskSweeper interface {
	Sweep(ctx context.Context) int
}

// Scheduler запускает периодические обходы в отдельных горутинах.
// Каждый обход идемпотентен, поэтому перезапуск процесса или параллельный
// инстанс не приводят к двойным финансовым действиям.
type Scheduler struct {
	deadlines DeadlineSweeper
	disputes  DisputeSweeper
	monitor   RiskSweeper
	policy    config.SchedulerPolicy
	log       *logrus.Logger
}

func New(deadlines DeadlineSweeper, disputes DisputeSweeper, monitor RiskSweeper, policy config.SchedulerPolicy, log *logrus.Logger) *Scheduler {
	return &Scheduler{
		deadlines: deadlines,
		disputes:  disputes,
		monitor:   monitor,
		policy:    policy,
		log:       log,
	}
}

// Start запускает все обходы. Горутины живут до отмены контекста.
func (s *Scheduler) Start(ctx context.Context) {
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		s.runLoop(ctx, "deadlines", s.policy.SweepInterval, func(ctx context.Context) {
			reminders, actions := s.deadlines.Sweep(ctx)
			if reminders > 0 || actions > 0 {
				s.log.WithFields(logrus.Fields{
					"reminders": reminders,
					"actions":   actions,
				}).Info("обход дедлайнов завершён")
			}
		})
	})

	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		s.runLoop(ctx, "disputes", s.policy.SweepInterval, func(ctx context.Context) {
			if processed := s.disputes.EscalationSweep(ctx); processed > 0 {
				s.log.WithField("processed", processed).Info("обход эскалации споров завершён")
			}
		})
	})

	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		s.runLoop(ctx, "monitor", s.policy.RiskSweepInterval, func(ctx context.Context) {
			if raised := s.monitor.Sweep(ctx); raised > 0 {
				s.log.WithField("alerts", raised).Info("обход монитора рисков завершён")
			}
		})
	})

	s.log.WithFields(logrus.Fields{
		"sweep_interval": s.policy.SweepInterval,
		"risk_interval":  s.policy.RiskSweepInterval,
	}).Info("планировщик запущен")
}

// runLoop крутит один обход по тикеру до отмены контекста.
// Паника внутри прохода гасится, чтобы не останавливать цикл.
func (s *Scheduler) runLoop(ctx context.Context, name string, interval time.Duration, sweep func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.WithField("sweep", name).Info("обход остановлен")
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						s.log.WithFields(logrus.Fields{
							"sweep": name,
							"panic": r,
						}).Error("паника в обходе")
					}
				}()
				sweep(ctx)
			}()
		}
	}
}
