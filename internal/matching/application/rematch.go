package application

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	catalogdomain "orderops/internal/catalog/domain"
	ordersdomain "orderops/internal/orders/domain"
	sharedinfra "orderops/internal/shared/infrastructure"
)

// RematchReport résume une passe de rematch
type RematchReport struct {
	RunID     string        `json:"run_id"`
	Rules     int           `json:"rules"`
	Scanned   int           `json:"scanned"`
	Matched   int           `json:"matched"`
	Unmatched int           `json:"unmatched"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"`
	Defects   int           `json:"defects"`
	Duration  time.Duration `json:"duration_ns"`
}

// Writes retourne le nombre d'écritures effectuées par la passe
func (r *RematchReport) Writes() int {
	return r.Matched + r.Unmatched
}

// Rematch re-résout toutes les lignes "à traiter" contre les règles courantes.
//
// Chaque écriture est conditionnelle au statut lu: une ligne résolue entre-temps
// par un import n'est pas écrasée (comptée Skipped). Une ligne dont le résultat
// ne change pas d'état n'est pas écrite, donc deux passes successives sans
// nouvelle règle ne produisent aucune écriture à la seconde. Une passe
// interrompue peut être relancée sans risque.
func (s *MatchingService) Rematch(ctx context.Context) (*RematchReport, error) {
	start := time.Now()
	report := &RematchReport{RunID: uuid.NewString()}
	log := s.logger.With(zap.String("run_id", report.RunID))

	rs, err := s.rules.Snapshot(ctx)
	if err != nil {
		return report, err
	}
	report.Rules = rs.Len()

	var matched, unmatched, skipped atomic.Int64

	pool := sharedinfra.NewWorkerPool(ctx, s.opts.RematchWorkers)
	pool.Start()

	var after ordersdomain.LineID
	for {
		page, err := s.lines.FindPending(ctx, after, s.opts.PageSize)
		if err != nil {
			pool.Stop()
			return s.finish(report, start, &matched, &unmatched, &skipped), err
		}
		report.Defects += len(page.Defects)
		for _, d := range page.Defects {
			log.Warn("unreadable order line skipped",
				zap.Int64("line_id", int64(d.ID)), zap.String("reason", d.Reason))
		}

		for _, line := range page.Lines {
			report.Scanned++

			expected := line.Status()
			res := s.ResolveLine(rs, line)
			if res.Matched() {
				if err := line.ApplyMatch(res.KitID); err != nil {
					pool.Stop()
					return s.finish(report, start, &matched, &unmatched, &skipped), err
				}
			} else if !line.MarkUnmatched() {
				report.Unchanged++
				continue
			}

			id, kit, status := line.ID(), line.MatchedKit(), line.Status()
			err := pool.Submit(func(ctx context.Context) error {
				return s.writeResolution(ctx, id, kit, status, expected, &matched, &unmatched, &skipped)
			})
			if err != nil {
				pool.Stop()
				return s.finish(report, start, &matched, &unmatched, &skipped), ctxErrOr(ctx, err)
			}
		}

		after = page.LastID
		if page.Rows < s.opts.PageSize {
			break
		}
	}

	err = pool.Wait()
	s.finish(report, start, &matched, &unmatched, &skipped)
	if err != nil {
		log.Warn("rematch finished with write errors", zap.Error(err))
		return report, err
	}
	// Une annulation après le dernier Submit abandonne les écritures en file
	if err := ctx.Err(); err != nil {
		log.Warn("rematch interrupted", zap.Error(err))
		return report, err
	}

	log.Info("rematch completed",
		zap.Int("rules", report.Rules),
		zap.Int("scanned", report.Scanned),
		zap.Int("matched", report.Matched),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("skipped", report.Skipped),
		zap.Int("defects", report.Defects),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (s *MatchingService) writeResolution(
	ctx context.Context,
	id ordersdomain.LineID,
	kit catalogdomain.KitID,
	status, expected ordersdomain.ProcessStatus,
	matched, unmatched, skipped *atomic.Int64,
) error {
	ok, err := s.lines.UpdateResolution(ctx, id, kit, status, expected)
	if err != nil {
		return err
	}
	switch {
	case !ok:
		skipped.Add(1)
	case status == ordersdomain.StatusMatched:
		matched.Add(1)
	default:
		unmatched.Add(1)
	}
	return nil
}

func (s *MatchingService) finish(report *RematchReport, start time.Time, matched, unmatched, skipped *atomic.Int64) *RematchReport {
	report.Matched = int(matched.Load())
	report.Unmatched = int(unmatched.Load())
	report.Skipped = int(skipped.Load())
	report.Duration = time.Since(start)
	return report
}

func ctxErrOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
