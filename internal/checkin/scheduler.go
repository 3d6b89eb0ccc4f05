package checkin

import (
	"context"
	"log/slog"
	"time"

	"echomind/internal/patient"
)

// PatientSource lists the patients eligible for scheduled check-ins: those
// with both a channel binding and a configured check-in time.
type PatientSource interface {
	SchedulablePatients(ctx context.Context) ([]patient.Patient, error)
}

// Scheduler wakes once per tick, matches each schedulable patient's local
// clock against their configured check-in time, and fires a check-in for each
// match. Patient dispatch is fire-and-continue so one slow channel never
// delays the rest of the tick.
type Scheduler struct {
	source  PatientSource
	engine  Service
	tick    time.Duration
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func NewScheduler(source PatientSource, engine Service, tick time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		source:  source,
		engine:  engine,
		tick:    tick,
		timeout: 30 * time.Second,
		logger:  logger,
		now:     time.Now,
	}
}

// Run blocks until ctx is cancelled. Ticks that fire while a sweep is still
// running are dropped by the ticker, so sweeps never overlap.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("check-in scheduler started", "tick", s.tick)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("check-in scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	patients, err := s.source.SchedulablePatients(ctx)
	if err != nil {
		s.logger.Error("failed to list schedulable patients", "error", err)
		return
	}

	now := s.now()
	for i := range patients {
		p := patients[i]
		if !s.due(&p, now) {
			continue
		}
		go func(p patient.Patient) {
			cctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()
			if err := s.engine.Checkin(cctx, &p); err != nil {
				s.logger.Error("scheduled check-in failed", "patient_id", p.ID, "error", err)
			}
		}(p)
	}
}

// due matches the patient's configured time against their local wall clock:
// the hour must match exactly and the minute may drift by one in either
// direction, so a tick landing at :31 still catches a :30 check-in.
func (s *Scheduler) due(p *patient.Patient, now time.Time) bool {
	hour, minute, err := patient.ParseCheckinTime(p.CheckinTime)
	if err != nil {
		s.logger.Warn("patient has unparseable check-in time",
			"patient_id", p.ID, "checkin_time", p.CheckinTime)
		return false
	}

	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		s.logger.Warn("patient has unknown timezone, using UTC",
			"patient_id", p.ID, "timezone", p.Timezone)
		loc = time.UTC
	}
	local := now.In(loc)
	if local.Hour() != hour {
		return false
	}
	diff := local.Minute() - minute
	return diff >= -1 && diff <= 1
}
