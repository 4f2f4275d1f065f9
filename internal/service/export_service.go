package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/parade-registry-api/internal/models"
	appErrors "github.com/noah-isme/parade-registry-api/pkg/errors"
	"github.com/noah-isme/parade-registry-api/pkg/export"
)

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

const (
	exportTimestampLayout = "20060102_150405"
	exportDateLayout      = "02/01/2006 15:04:05"
	exportTitle           = "Vehículos registrados"
)

// ExportHeaders is the fixed column set of registration exports.
var ExportHeaders = []string{
	"ID",
	"Nombre Completo",
	"Documento",
	"Teléfono",
	"Email",
	"Temática",
	"Tipo Vehículo",
	"Placa",
	"Fecha Registro",
	"Validado",
	"Fecha Validación",
	"Validado Por",
}

type registrationLister interface {
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
	Rows        int
}

// ExportService renders the admin listing as CSV or PDF.
type ExportService struct {
	repo   registrationLister
	audit  auditWriter
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
	now    func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(repo registrationLister, audit auditWriter, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{repo: repo, audit: audit, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Export renders the registrations matching filter in format.
func (s *ExportService) Export(ctx context.Context, filter models.RegistrationFilter, format string, actor Actor) (*ExportFile, error) {
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	dataset := BuildRegistrationDataset(items)

	file := &ExportFile{
		Filename: fmt.Sprintf("vehiculos_%s.%s", s.now().In(displayLocation).Format(exportTimestampLayout), format),
		Rows:     len(items),
	}
	switch format {
	case ExportFormatCSV:
		file.ContentType = "text/csv; charset=utf-8"
		file.Content, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		file.ContentType = "application/pdf"
		file.Content, err = s.pdf.Render(dataset, exportTitle)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.record(ctx, actor, filter, format, len(items))
	return file, nil
}

// BuildRegistrationDataset maps registrations to export rows in list order.
func BuildRegistrationDataset(items []models.Registration) export.Dataset {
	rows := make([]map[string]string, 0, len(items))
	for _, reg := range items {
		validado := "No"
		if reg.Validado {
			validado = "Sí"
		}
		rows = append(rows, map[string]string{
			"ID":               reg.ID,
			"Nombre Completo":  reg.NombreCompleto,
			"Documento":        reg.DocumentoIdentificacion,
			"Teléfono":         reg.Telefono,
			"Email":            reg.Email,
			"Temática":         reg.Tematica,
			"Tipo Vehículo":    reg.TipoVehiculo,
			"Placa":            reg.Placa,
			"Fecha Registro":   formatExportTime(&reg.FechaRegistro),
			"Validado":         validado,
			"Fecha Validación": formatExportTime(reg.ValidadoAt),
			"Validado Por":     derefString(reg.ValidadoPor),
		})
	}
	return export.Dataset{Headers: ExportHeaders, Rows: rows}
}

func (s *ExportService) record(ctx context.Context, actor Actor, filter models.RegistrationFilter, format string, rows int) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"format": format, "documento": filter.Documento, "rows": rows})
	log := &models.AuditLog{
		Action:    models.AuditActionRegistrationExport,
		Resource:  "registration",
		NewValues: payload,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}
	if actor.UserID != "" {
		log.UserID = &actor.UserID
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record export audit log", zap.Error(err))
	}
}

func formatExportTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.In(displayLocation).Format(exportDateLayout)
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
