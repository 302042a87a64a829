package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-records-api/internal/dto"
	"github.com/noah-isme/student-records-api/internal/models"
	appErrors "github.com/noah-isme/student-records-api/pkg/errors"
	"github.com/noah-isme/student-records-api/pkg/response"
)

type studentService interface {
	Create(ctx context.Context, req dto.StudentRequest) (*models.Student, error)
	GetByID(ctx context.Context, id int64) (*models.Student, error)
	List(ctx context.Context) ([]models.Student, error)
	Update(ctx context.Context, id int64, req dto.StudentRequest) (*models.Student, error)
	Delete(ctx context.Context, id int64) error
	FindByName(ctx context.Context, substring string) ([]models.Student, error)
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	FindByCourse(ctx context.Context, course string) ([]models.Student, error)
	FindByAgeRange(ctx context.Context, minAge, maxAge int) ([]models.Student, error)
}

type studentExporter interface {
	Export(ctx context.Context, format models.ExportFormat) (*models.StudentExport, error)
}

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students studentService
	exports  studentExporter
}

// NewStudentHandler constructs StudentHandler. exports may be nil to disable
// the export endpoint.
func NewStudentHandler(students studentService, exports studentExporter) *StudentHandler {
	return &StudentHandler{students: students, exports: exports}
}

// Register mounts the student routes on the given group.
func (h *StudentHandler) Register(rg *gin.RouterGroup) {
	students := rg.Group("/students")
	students.POST("", h.Create)
	students.GET("", h.List)
	students.GET("/search", h.SearchByName)
	students.GET("/email/:email", h.GetByEmail)
	students.GET("/course/:course", h.ListByCourse)
	students.GET("/age", h.ListByAgeRange)
	if h.exports != nil {
		students.GET("/export", h.Export)
	}
	students.GET("/:id", h.Get)
	students.PUT("/:id", h.Update)
	students.DELETE("/:id", h.Delete)
}

// Create godoc
// @Summary Create student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body dto.StudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req dto.StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	students, err := h.students.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, students)
}

// Get godoc
// @Summary Get student by id
// @Tags Students
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	student, err := h.students.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if student == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "student not found with id: "+c.Param("id")))
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// Update godoc
// @Summary Update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body dto.StudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.StudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// Delete godoc
// @Summary Delete student
// @Tags Students
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.students.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "student deleted successfully")
}

// SearchByName godoc
// @Summary Search students by name
// @Tags Students
// @Produce json
// @Param name query string false "Case-insensitive name fragment"
// @Success 200 {object} response.Envelope
// @Router /students/search [get]
func (h *StudentHandler) SearchByName(c *gin.Context) {
	students, err := h.students.FindByName(c.Request.Context(), c.Query("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, students)
}

// GetByEmail godoc
// @Summary Get student by email
// @Tags Students
// @Produce json
// @Param email path string true "Exact email"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/email/{email} [get]
func (h *StudentHandler) GetByEmail(c *gin.Context) {
	email := c.Param("email")
	student, err := h.students.FindByEmail(c.Request.Context(), email)
	if err != nil {
		response.Error(c, err)
		return
	}
	if student == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "student not found with email: "+email))
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// ListByCourse godoc
// @Summary List students in a course
// @Tags Students
// @Produce json
// @Param course path string true "Exact course name"
// @Success 200 {object} response.Envelope
// @Router /students/course/{course} [get]
func (h *StudentHandler) ListByCourse(c *gin.Context) {
	students, err := h.students.FindByCourse(c.Request.Context(), c.Param("course"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, students)
}

// ListByAgeRange godoc
// @Summary List students within an inclusive age range
// @Tags Students
// @Produce json
// @Param min query int true "Minimum age"
// @Param max query int true "Maximum age"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/age [get]
func (h *StudentHandler) ListByAgeRange(c *gin.Context) {
	details := map[string]string{}
	minAge, err := strconv.Atoi(strings.TrimSpace(c.Query("min")))
	if err != nil {
		details["min"] = "must be an integer"
	}
	maxAge, err := strconv.Atoi(strings.TrimSpace(c.Query("max")))
	if err != nil {
		details["max"] = "must be an integer"
	}
	if len(details) > 0 {
		response.Error(c, appErrors.Validation("invalid age range", details))
		return
	}

	students, err := h.students.FindByAgeRange(c.Request.Context(), minAge, maxAge)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, students)
}

// Export godoc
// @Summary Export the student roster
// @Tags Students
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /students/export [get]
func (h *StudentHandler) Export(c *gin.Context) {
	format := models.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ExportFormatCSV))))
	result, err := h.exports.Export(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Content)
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Validation("invalid student id", map[string]string{"id": "must be a positive integer"}))
		return 0, false
	}
	return id, true
}
