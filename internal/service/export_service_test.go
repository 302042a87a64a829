package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/student-records-api/internal/models"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/export"
)

type rosterStub struct {
	students []models.Student
	err      error
}

func (r rosterStub) List(ctx context.Context) ([]models.Student, error) {
	return r.students, r.err
}

type failingPDF struct{}

func (failingPDF) Render(export.Dataset) ([]byte, error) {
	return nil, errors.New("font missing")
}

func newExportServiceForTest(src rosterSource) *ExportService {
	svc := NewExportService(src, zap.NewNop(), nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC) }
	return svc
}

func rosterFixture() []models.Student {
	created := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	return []models.Student{
		{ID: 1, Name: "Alice", Email: "alice@x.com", Age: 20, Course: "CS", CreatedAt: created, UpdatedAt: created},
		{ID: 2, Name: "Bob", Email: "bob@x.com", Age: 22, Course: "Math", CreatedAt: created, UpdatedAt: created},
	}
}

func TestExportServiceCSV(t *testing.T) {
	svc := newExportServiceForTest(rosterStub{students: rosterFixture()})

	result, err := svc.Export(context.Background(), models.ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "students-20240901-080000.csv", result.Filename)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Equal(t, 2, result.Rows)

	lines := strings.Split(strings.TrimSpace(string(result.Content)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ID,Name,Email,Age,Course,Created,Updated", lines[0])
	assert.Equal(t, "1,Alice,alice@x.com,20,CS,2024-08-01T10:00:00Z,2024-08-01T10:00:00Z", lines[1])
}

func TestExportServicePDF(t *testing.T) {
	svc := newExportServiceForTest(rosterStub{students: rosterFixture()})

	result, err := svc.Export(context.Background(), models.ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, bytes.HasPrefix(result.Content, []byte("%PDF-")))
}

func TestExportServiceRejectsFormat(t *testing.T) {
	svc := newExportServiceForTest(rosterStub{})

	_, err := svc.Export(context.Background(), models.ExportFormat("xlsx"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestExportServicePropagatesErrors(t *testing.T) {
	storeErr := appErrors.StoreUnavailable(sql.ErrConnDone, "failed to list students")
	svc := newExportServiceForTest(rosterStub{err: storeErr})
	_, err := svc.Export(context.Background(), models.ExportFormatCSV)
	assert.ErrorIs(t, err, appErrors.ErrStoreUnavailable)

	svc = NewExportService(rosterStub{students: rosterFixture()}, zap.NewNop(), nil, failingPDF{})
	_, err = svc.Export(context.Background(), models.ExportFormatPDF)
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
