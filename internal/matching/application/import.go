package application

import (
	"context"

	"go.uber.org/zap"

	ordersdomain "orderops/internal/orders/domain"
)

// InputDefect décrit une ligne d'import rejetée. Les défauts sont comptés,
// jamais fatals pour l'import.
type InputDefect struct {
	Index       int    `json:"index"`
	SiteOrderNo string `json:"site_order_no"`
	Reason      string `json:"reason"`
}

// ImportOrdersReport résume un import de lignes de commande
type ImportOrdersReport struct {
	Received  int           `json:"received"`
	Inserted  int           `json:"inserted"`
	Matched   int           `json:"matched"`
	Unmatched int           `json:"unmatched"`
	Defects   []InputDefect `json:"defects"`
}

// ImportOrders valide, résout et insère des lignes brutes. Chaque ligne est
// écrite avec son statut initial (MATCHED ou UNMATCHED) en une seule insertion.
// Une erreur du store interrompt l'import; le rapport partiel est retourné.
func (s *MatchingService) ImportOrders(ctx context.Context, inputs []ordersdomain.OrderLineInput) (*ImportOrdersReport, error) {
	report := &ImportOrdersReport{Received: len(inputs)}

	rs, err := s.rules.Snapshot(ctx)
	if err != nil {
		return report, err
	}

	for i, in := range inputs {
		line, err := ordersdomain.NewOrderLine(in)
		if err != nil {
			report.Defects = append(report.Defects, InputDefect{Index: i, SiteOrderNo: in.SiteOrderNo, Reason: err.Error()})
			continue
		}

		if res := s.ResolveLine(rs, line); res.Matched() {
			if err := line.ApplyMatch(res.KitID); err != nil {
				return report, err
			}
		} else {
			line.MarkUnmatched()
		}

		if _, err := s.lines.Insert(ctx, line); err != nil {
			return report, err
		}
		report.Inserted++
		if line.Status() == ordersdomain.StatusMatched {
			report.Matched++
		} else {
			report.Unmatched++
		}
	}

	if len(report.Defects) > 0 {
		s.logger.Warn("order import rejected rows",
			zap.Int("defects", len(report.Defects)),
			zap.Int("received", report.Received))
	}
	s.logger.Info("order import completed",
		zap.Int("inserted", report.Inserted),
		zap.Int("matched", report.Matched),
		zap.Int("unmatched", report.Unmatched))
	return report, nil
}
