package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/anyclaw/anyclaw/internal/auth"
	"github.com/anyclaw/anyclaw/internal/logger"
	"github.com/anyclaw/anyclaw/internal/models"
)

const (
	JobUsageRetention = "usage-retention"
	JobOTPSweep       = "otp-sweep"
	JobGatewayCensus  = "gateway-census"
)

type UsagePruner interface {
	PruneUsage(ctx context.Context, before string) (int64, error)
}

// AuditPruner is optional on the usage store. When present the retention job
// trims the audit trail with the same cutoff.
type AuditPruner interface {
	PruneAudit(ctx context.Context, before time.Time) (int64, error)
}

type GatewayLister interface {
	ListGateways(ctx context.Context) ([]models.Gateway, error)
}

// CountSink receives the per-status gateway census. *metrics.Metrics
// satisfies it.
type CountSink interface {
	SetGatewayCounts(counts map[string]int)
}

type Maintenance struct {
	Usage         UsagePruner
	RetentionDays int
	OTPs          auth.OTPStore
	Gateways      GatewayLister
	Counts        CountSink
	Now           func() time.Time
}

// Register adds every maintenance job whose dependencies are set. The OTP
// sweep is skipped for stores that expire entries themselves.
func (m Maintenance) Register(s *Scheduler) error {
	if m.Now == nil {
		m.Now = time.Now
	}
	if m.Usage != nil && m.RetentionDays > 0 {
		if err := s.Add(JobUsageRetention, "0 30 3 * * *", m.pruneUsage); err != nil {
			return err
		}
	}
	if _, ok := m.OTPs.(auth.Sweeper); ok {
		if err := s.Add(JobOTPSweep, "0 */5 * * * *", m.sweepOTPs); err != nil {
			return err
		}
	}
	if m.Gateways != nil && m.Counts != nil {
		if err := s.Add(JobGatewayCensus, "*/30 * * * * *", m.census); err != nil {
			return err
		}
	}
	return nil
}

func (m Maintenance) pruneUsage(ctx context.Context) error {
	cutoff := m.Now().UTC().AddDate(0, 0, -m.RetentionDays)
	before := cutoff.Format(time.DateOnly)
	n, err := m.Usage.PruneUsage(ctx, before)
	if err != nil {
		return fmt.Errorf("prune usage: %w", err)
	}
	if n > 0 {
		logger.Info("Usage retention: removed %d rows before %s", n, before)
	}

	ap, ok := m.Usage.(AuditPruner)
	if !ok {
		return nil
	}
	n, err = ap.PruneAudit(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune audit: %w", err)
	}
	if n > 0 {
		logger.Info("Audit retention: removed %d events", n)
	}
	return nil
}

func (m Maintenance) sweepOTPs(ctx context.Context) error {
	n, err := m.OTPs.(auth.Sweeper).Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep codes: %w", err)
	}
	if n > 0 {
		logger.Debug("Swept %d expired login codes", n)
	}
	return nil
}

func (m Maintenance) census(ctx context.Context) error {
	gateways, err := m.Gateways.ListGateways(ctx)
	if err != nil {
		return fmt.Errorf("list gateways: %w", err)
	}
	counts := make(map[string]int)
	for _, gw := range gateways {
		counts[gw.Status]++
	}
	m.Counts.SetGatewayCounts(counts)
	return nil
}
