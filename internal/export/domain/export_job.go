package domain

import (
	"errors"
	"strconv"
	"time"

	ordersdomain "orderops/internal/orders/domain"
)

// ExportFormat représente le format d'export
type ExportFormat string

const (
	ExportFormatCSV     ExportFormat = "csv"
	ExportFormatParquet ExportFormat = "parquet"
)

// ExportType représente le type d'export
type ExportType string

const (
	ExportTypeBom        ExportType = "bom"
	ExportTypeOrderLines ExportType = "order_lines"
)

var ErrInvalidExport = errors.New("invalid export request")

// ExportJob représente une demande d'export validée
type ExportJob struct {
	format     ExportFormat
	exportType ExportType
	status     *ordersdomain.ProcessStatus
	createdAt  time.Time
}

// NewExportJob crée un nouveau job d'export avec validation.
// status filtre les lignes de commande; nil exporte tous les statuts.
func NewExportJob(format ExportFormat, exportType ExportType, status *ordersdomain.ProcessStatus) (*ExportJob, error) {
	if format != ExportFormatCSV && format != ExportFormatParquet {
		return nil, errors.New("invalid export format")
	}
	switch exportType {
	case ExportTypeBom:
		if format != ExportFormatCSV || status != nil {
			return nil, ErrInvalidExport
		}
	case ExportTypeOrderLines:
		if status != nil && !status.Valid() {
			return nil, ErrInvalidExport
		}
	default:
		return nil, errors.New("invalid export type")
	}

	return &ExportJob{
		format:     format,
		exportType: exportType,
		status:     status,
		createdAt:  time.Now(),
	}, nil
}

// Format retourne le format d'export
func (ej *ExportJob) Format() ExportFormat {
	return ej.format
}

// ExportType retourne le type d'export
func (ej *ExportJob) ExportType() ExportType {
	return ej.exportType
}

// Status retourne le filtre de statut, nil pour tous
func (ej *ExportJob) Status() *ordersdomain.ProcessStatus {
	return ej.status
}

// CreatedAt retourne la date de création
func (ej *ExportJob) CreatedAt() time.Time {
	return ej.createdAt
}

// Filename nom de fichier proposé au téléchargement
func (ej *ExportJob) Filename() string {
	return string(ej.exportType) + "_" + ej.createdAt.Format("20060102_150405") + "." + string(ej.format)
}

// ContentType type MIME du format
func (ej *ExportJob) ContentType() string {
	if ej.format == ExportFormatParquet {
		return "application/vnd.apache.parquet"
	}
	return "text/csv; charset=utf-8"
}

// OrderLineExportRow représente une ligne de commande résolue
type OrderLineExportRow struct {
	LineID          int64
	SiteOrderNo     string
	Platform        string
	ProductName     string
	OptionText      string
	SiteProductCode string
	MasterCode      string
	Quantity        int
	PaidAt          time.Time
	MatchedKitID    string
	KitName         string
	Status          string
}

// ToCSVRow convertit en tableau pour CSV
func (r *OrderLineExportRow) ToCSVRow() []string {
	paid := ""
	if !r.PaidAt.IsZero() {
		paid = r.PaidAt.Format(time.DateTime)
	}
	return []string{
		strconv.FormatInt(r.LineID, 10),
		r.SiteOrderNo,
		r.Platform,
		r.ProductName,
		r.OptionText,
		r.SiteProductCode,
		r.MasterCode,
		strconv.Itoa(r.Quantity),
		paid,
		r.MatchedKitID,
		r.KitName,
		r.Status,
	}
}

// ToParquet convertit en ligne Parquet
func (r *OrderLineExportRow) ToParquet() OrderLineParquet {
	p := OrderLineParquet{
		LineID:          r.LineID,
		SiteOrderNo:     r.SiteOrderNo,
		Platform:        r.Platform,
		ProductName:     r.ProductName,
		OptionText:      r.OptionText,
		SiteProductCode: r.SiteProductCode,
		MasterCode:      r.MasterCode,
		Quantity:        int32(r.Quantity),
		MatchedKitID:    r.MatchedKitID,
		KitName:         r.KitName,
		Status:          r.Status,
	}
	if !r.PaidAt.IsZero() {
		p.PaidAt = r.PaidAt.UnixMilli()
	}
	return p
}

// OrderLineParquet schéma Parquet d'une ligne de commande
type OrderLineParquet struct {
	LineID          int64  `parquet:"name=line_id, type=INT64"`
	SiteOrderNo     string `parquet:"name=site_order_no, type=BYTE_ARRAY, convertedtype=UTF8"`
	Platform        string `parquet:"name=platform, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProductName     string `parquet:"name=product_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	OptionText      string `parquet:"name=option_text, type=BYTE_ARRAY, convertedtype=UTF8"`
	SiteProductCode string `parquet:"name=site_product_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	MasterCode      string `parquet:"name=master_product_code, type=BYTE_ARRAY, convertedtype=UTF8"`
	Quantity        int32  `parquet:"name=qty, type=INT32"`
	PaidAt          int64  `parquet:"name=paid_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	MatchedKitID    string `parquet:"name=matched_kit_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	KitName         string `parquet:"name=kit_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status          string `parquet:"name=process_status, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// OrderLineCSVHeaders retourne les en-têtes CSV des lignes de commande
func OrderLineCSVHeaders() []string {
	return []string{
		"line_id",
		"site_order_no",
		"platform_name",
		"product_name",
		"option_text",
		"site_product_code",
		"master_product_code",
		"qty",
		"paid_at",
		"matched_kit_id",
		"kit_name",
		"process_status",
	}
}

// BomCSVHeaders en-têtes du fichier BOM nettoyé
func BomCSVHeaders() []string {
	return []string{"kit_id", "product_id", "multiplier"}
}
