package janitor

import (
	"context"
	"time"

	"wikiadm/config"
	"wikiadm/core/store"
	"wikiadm/core/utils"

	"github.com/robfig/cron/v3"
)

// Janitor periodically drops expired sessions and change log entries
// past the retention window.
type Janitor struct {
	cfg      config.JanitorConfig
	sessions store.SessionStore
	audits   store.AuditStore
	logger   *utils.Logger
	cron     *cron.Cron
}

func New(cfg config.JanitorConfig, sessions store.SessionStore, audits store.AuditStore, logger *utils.Logger) *Janitor {
	return &Janitor{cfg: cfg, sessions: sessions, audits: audits, logger: logger, cron: cron.New()}
}

func (j *Janitor) Start() {
	if !j.cfg.Enabled {
		return
	}
	spec := j.cfg.Spec
	if spec == "" {
		spec = "@every 10m"
	}
	if _, err := j.cron.AddFunc(spec, j.Sweep); err != nil {
		if j.logger != nil {
			j.logger.Errorf("janitor schedule %q: %v", spec, err)
		}
		return
	}
	j.cron.Start()
	if j.logger != nil {
		j.logger.Printf("janitor started spec=%q retention_days=%d", spec, j.cfg.AuditRetentionDays)
	}
}

func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one cleanup pass.
func (j *Janitor) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	now := utils.NowUTC()
	if n, err := j.sessions.DeleteExpired(ctx, now); err != nil {
		if j.logger != nil {
			j.logger.Errorf("janitor sessions sweep: %v", err)
		}
	} else if n > 0 && j.logger != nil {
		j.logger.Printf("janitor removed %d expired sessions", n)
	}
	if j.cfg.AuditRetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -j.cfg.AuditRetentionDays)
		if n, err := j.audits.DeleteOlderThan(ctx, cutoff); err != nil {
			if j.logger != nil {
				j.logger.Errorf("janitor audit sweep: %v", err)
			}
		} else if n > 0 && j.logger != nil {
			j.logger.Printf("janitor removed %d change log entries before %s", n, cutoff.Format(time.RFC3339))
		}
	}
}
