package application

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"

	bomdomain "orderops/internal/bom/domain"
	"orderops/internal/export/domain"
	ordersdomain "orderops/internal/orders/domain"
)

// BomSource parcourt les lignes BOM stockées
type BomSource interface {
	StreamItems(ctx context.Context, fn func(*bomdomain.BomItem) error) error
}

// OrderLineSource parcourt les lignes de commande à exporter
type OrderLineSource interface {
	StreamOrderLines(ctx context.Context, status *ordersdomain.ProcessStatus, fn func(*domain.OrderLineExportRow) error) error
}

// utf8BOM permet à Excel d'ouvrir le CSV en UTF-8 (noms coréens)
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ExportService exports streamés: aucune ligne n'est accumulée en mémoire
type ExportService struct {
	boms      BomSource
	lines     OrderLineSource
	logger    *zap.Logger
	batchSize int
}

// NewExportService crée une nouvelle instance de ExportService
func NewExportService(boms BomSource, lines OrderLineSource, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		boms:      boms,
		lines:     lines,
		logger:    logger,
		batchSize: 1000,
	}
}

// Export exécute un job et retourne le nombre de lignes écrites
func (s *ExportService) Export(ctx context.Context, job *domain.ExportJob, w io.Writer) (int, error) {
	start := time.Now()

	var (
		n   int
		err error
	)
	switch {
	case job.ExportType() == domain.ExportTypeBom:
		n, err = s.ExportBomCSV(ctx, w)
	case job.Format() == domain.ExportFormatParquet:
		n, err = s.ExportOrderLinesParquet(ctx, job.Status(), w)
	default:
		n, err = s.ExportOrderLinesCSV(ctx, job.Status(), w)
	}
	if err != nil {
		return n, fmt.Errorf("export %s/%s: %w", job.ExportType(), job.Format(), err)
	}

	s.logger.Info("export completed",
		zap.String("type", string(job.ExportType())),
		zap.String("format", string(job.Format())),
		zap.Int("rows", n),
		zap.Duration("duration", time.Since(start)))
	return n, nil
}

// ExportBomCSV écrit la BOM nettoyée: BOM UTF-8 puis kit_id,product_id,multiplier
func (s *ExportService) ExportBomCSV(ctx context.Context, w io.Writer) (int, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	if _, err := bw.Write(utf8BOM); err != nil {
		return 0, err
	}
	cw := csv.NewWriter(bw)
	if err := cw.Write(domain.BomCSVHeaders()); err != nil {
		return 0, err
	}

	n := 0
	err := s.boms.StreamItems(ctx, func(item *bomdomain.BomItem) error {
		n++
		if err := cw.Write([]string{
			string(item.KitID()),
			string(item.ProductID()),
			strconv.Itoa(item.Quantity().Value()),
		}); err != nil {
			return err
		}
		if n%s.batchSize == 0 {
			cw.Flush()
			return cw.Error()
		}
		return nil
	})
	if err != nil {
		return n, err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, err
	}
	return n, bw.Flush()
}

// ExportOrderLinesCSV écrit les lignes de commande résolues en CSV
func (s *ExportService) ExportOrderLinesCSV(ctx context.Context, status *ordersdomain.ProcessStatus, w io.Writer) (int, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	if _, err := bw.Write(utf8BOM); err != nil {
		return 0, err
	}
	cw := csv.NewWriter(bw)
	if err := cw.Write(domain.OrderLineCSVHeaders()); err != nil {
		return 0, err
	}

	n := 0
	err := s.lines.StreamOrderLines(ctx, status, func(row *domain.OrderLineExportRow) error {
		n++
		if err := cw.Write(row.ToCSVRow()); err != nil {
			return err
		}
		// Flush régulier pour borner le buffer interne du writer CSV
		if n%s.batchSize == 0 {
			cw.Flush()
			return cw.Error()
		}
		return nil
	})
	if err != nil {
		return n, err
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, err
	}
	return n, bw.Flush()
}

// ExportOrderLinesParquet écrit les lignes de commande résolues en Parquet (snappy)
func (s *ExportService) ExportOrderLinesParquet(ctx context.Context, status *ordersdomain.ProcessStatus, w io.Writer) (int, error) {
	pf := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(pf, new(domain.OrderLineParquet), 4)
	if err != nil {
		return 0, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	n := 0
	err = s.lines.StreamOrderLines(ctx, status, func(row *domain.OrderLineExportRow) error {
		n++
		return pw.Write(row.ToParquet())
	})
	if err != nil {
		_ = pw.WriteStop()
		return n, err
	}
	if err := pw.WriteStop(); err != nil {
		return n, fmt.Errorf("finalize parquet: %w", err)
	}
	return n, nil
}
