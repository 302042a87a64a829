package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/models"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/export"
)

type rosterSource interface {
	List(ctx context.Context) ([]models.Student, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

var rosterColumns = []export.Column{
	{Key: "id", Header: "ID", Width: 1},
	{Key: "name", Header: "Name", Width: 3},
	{Key: "email", Header: "Email", Width: 4},
	{Key: "age", Header: "Age", Width: 1},
	{Key: "course", Header: "Course", Width: 3},
	{Key: "created_at", Header: "Created", Width: 3},
	{Key: "updated_at", Header: "Updated", Width: 3},
}

// ExportService renders the student roster as a downloadable file.
type ExportService struct {
	students rosterSource
	csv      datasetRenderer
	pdf      datasetRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService constructs the export service.
func NewExportService(students rosterSource, logger *zap.Logger, csv, pdf datasetRenderer) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{students: students, csv: csv, pdf: pdf, logger: logger, now: time.Now}
}

// Export renders every student in the requested format.
func (s *ExportService) Export(ctx context.Context, format models.ExportFormat) (*models.StudentExport, error) {
	if !format.Valid() {
		return nil, appErrors.Validation("unsupported export format", map[string]string{"format": "must be one of csv, pdf"})
	}
	students, err := s.students.List(ctx)
	if err != nil {
		return nil, err
	}

	dataset := buildRosterDataset(students)
	var content []byte
	switch format {
	case models.ExportFormatPDF:
		content, err = s.pdf.Render(dataset)
	default:
		content, err = s.csv.Render(dataset)
	}
	if err != nil {
		s.logger.Error("render student export", zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	return &models.StudentExport{
		Filename:    fmt.Sprintf("students-%s.%s", s.now().UTC().Format("20060102-150405"), format),
		ContentType: format.ContentType(),
		Content:     content,
		Rows:        len(students),
	}, nil
}

func buildRosterDataset(students []models.Student) export.Dataset {
	rows := make([]map[string]string, 0, len(students))
	for _, st := range students {
		rows = append(rows, map[string]string{
			"id":         strconv.FormatInt(st.ID, 10),
			"name":       st.Name,
			"email":      st.Email,
			"age":        strconv.Itoa(st.Age),
			"course":     st.Course,
			"created_at": st.CreatedAt.UTC().Format(time.RFC3339),
			"updated_at": st.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{Title: "Student roster", Columns: rosterColumns, Rows: rows}
}
