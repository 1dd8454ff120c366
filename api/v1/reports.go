package v1

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	exportdomain "orderops/internal/export/domain"
	ordersdomain "orderops/internal/orders/domain"
)

// OrderStatus handler pour GET /api/v1/reconciliation/orders?missing_limit=
func (h *Handlers) OrderStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.recon.OrderStatus(r.Context(), queryInt(r, "missing_limit", 50))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// ExportBom handler pour GET /api/v1/export/bom (CSV kit_id,product_id,multiplier)
func (h *Handlers) ExportBom(w http.ResponseWriter, r *http.Request) {
	job, err := exportdomain.NewExportJob(exportdomain.ExportFormatCSV, exportdomain.ExportTypeBom, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.stream(w, r, job)
}

// ExportOrderLines handler pour GET /api/v1/export/order-lines?format=csv|parquet&status=
// status=NEW désigne les lignes jamais tentées; absent, tous les statuts sont exportés.
func (h *Handlers) ExportOrderLines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format := exportdomain.ExportFormat(strings.ToLower(q.Get("format")))
	if format == "" {
		format = exportdomain.ExportFormatCSV
	}

	var status *ordersdomain.ProcessStatus
	if raw := strings.ToUpper(q.Get("status")); raw != "" {
		s := ordersdomain.ProcessStatus(raw)
		if raw == "NEW" {
			s = ordersdomain.StatusNew
		}
		status = &s
	}

	job, err := exportdomain.NewExportJob(format, exportdomain.ExportTypeOrderLines, status)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	h.stream(w, r, job)
}

// stream écrit l'export directement dans la réponse. Une fois des octets
// envoyés, une erreur ne peut plus changer le code HTTP: elle est journalisée.
func (h *Handlers) stream(w http.ResponseWriter, r *http.Request, job *exportdomain.ExportJob) {
	w.Header().Set("Content-Type", job.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+job.Filename())

	cw := &countingWriter{w: w}
	rows, err := h.exports.Export(r.Context(), job, cw)
	if err != nil {
		if cw.n == 0 {
			w.Header().Del("Content-Disposition")
			h.writeError(w, r, err)
			return
		}
		h.logger.Error("export interrupted",
			zap.String("file", job.Filename()),
			zap.Int64("bytes", cw.n),
			zap.Error(err))
		return
	}
	h.logger.Debug("export sent", zap.String("file", job.Filename()), zap.Int("rows", rows))
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
