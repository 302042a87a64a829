package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/student-records-api/internal/models"
)

var (
	// ErrDuplicateEmail is returned when a write violates the unique email index.
	ErrDuplicateEmail = errors.New("student email already exists")
	// ErrStudentNotFound is returned when an update targets a missing row.
	ErrStudentNotFound = errors.New("student not found")
)

// QueryObserver receives the duration of every query issued by the repository.
type QueryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

const studentColumns = "id, name, email, age, course, created_at, updated_at"

// StudentRepository manages persistence for student records. Queries are
// written with "?" placeholders and rebound for the underlying driver.
type StudentRepository struct {
	db       *sqlx.DB
	observer QueryObserver
}

// NewStudentRepository constructs a StudentRepository. observer may be nil.
func NewStudentRepository(db *sqlx.DB, observer QueryObserver) *StudentRepository {
	return &StudentRepository{db: db, observer: observer}
}

func (r *StudentRepository) track(label string) func() {
	start := time.Now()
	return func() {
		if r.observer != nil {
			r.observer.ObserveDBQuery(label, time.Since(start))
		}
	}
}

// Save inserts the student when it has no id and overwrites it otherwise.
// The returned copy carries the store-assigned id.
func (r *StudentRepository) Save(ctx context.Context, student *models.Student) (*models.Student, error) {
	if student.IsPersisted() {
		return r.update(ctx, student)
	}
	return r.insert(ctx, student)
}

func (r *StudentRepository) insert(ctx context.Context, student *models.Student) (*models.Student, error) {
	defer r.track("students.insert")()
	query := r.db.Rebind(`INSERT INTO students (name, email, age, course, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
	var id int64
	err := r.db.QueryRowxContext(ctx, query,
		student.Name, student.Email, student.Age, student.Course, student.CreatedAt, student.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert student: %w", err)
	}
	saved := *student
	saved.ID = id
	return &saved, nil
}

func (r *StudentRepository) update(ctx context.Context, student *models.Student) (*models.Student, error) {
	defer r.track("students.update")()
	query := r.db.Rebind(`UPDATE students SET name = ?, email = ?, age = ?, course = ?, updated_at = ? WHERE id = ?`)
	result, err := r.db.ExecContext(ctx, query,
		student.Name, student.Email, student.Age, student.Course, student.UpdatedAt, student.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("update student: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update student rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrStudentNotFound
	}
	saved := *student
	return &saved, nil
}

// FindByID fetches a student by id. It returns nil when none exists.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	defer r.track("students.find_by_id")()
	return r.findOne(ctx, "id", id)
}

// FindByEmail fetches the student holding exactly this email. It returns nil
// when none exists.
func (r *StudentRepository) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	defer r.track("students.find_by_email")()
	return r.findOne(ctx, "email", email)
}

func (r *StudentRepository) findOne(ctx context.Context, column string, value interface{}) (*models.Student, error) {
	query := r.db.Rebind(fmt.Sprintf("SELECT %s FROM students WHERE %s = ?", studentColumns, column))
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find student by %s: %w", column, err)
	}
	return &student, nil
}

// ExistsByEmail checks whether any student holds the email (case-sensitive).
func (r *StudentRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	defer r.track("students.exists_by_email")()
	return r.exists(ctx, "email", email)
}

// ExistsByID checks whether a student with the id exists.
func (r *StudentRepository) ExistsByID(ctx context.Context, id int64) (bool, error) {
	defer r.track("students.exists_by_id")()
	return r.exists(ctx, "id", id)
}

func (r *StudentRepository) exists(ctx context.Context, column string, value interface{}) (bool, error) {
	query := r.db.Rebind(fmt.Sprintf("SELECT 1 FROM students WHERE %s = ? LIMIT 1", column))
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check student %s: %w", column, err)
	}
	return true, nil
}

// FindAll returns every student ordered by id.
func (r *StudentRepository) FindAll(ctx context.Context) ([]models.Student, error) {
	defer r.track("students.find_all")()
	return r.selectStudents(ctx, "list students", "")
}

// FindByNameContainingIgnoreCase returns students whose name contains the
// substring regardless of case. Wildcard characters match literally. Case
// folding relies on LOWER being Unicode-aware, which database.NewSQLite
// arranges for SQLite.
func (r *StudentRepository) FindByNameContainingIgnoreCase(ctx context.Context, substring string) ([]models.Student, error) {
	defer r.track("students.find_by_name")()
	pattern := "%" + escapeLike(strings.ToLower(substring)) + "%"
	return r.selectStudents(ctx, "search students by name", `WHERE LOWER(name) LIKE ? ESCAPE '\'`, pattern)
}

// FindByCourse returns students enrolled in exactly this course.
func (r *StudentRepository) FindByCourse(ctx context.Context, course string) ([]models.Student, error) {
	defer r.track("students.find_by_course")()
	return r.selectStudents(ctx, "list students by course", "WHERE course = ?", course)
}

// FindByAgeBetween returns students whose age lies in [minAge, maxAge].
func (r *StudentRepository) FindByAgeBetween(ctx context.Context, minAge, maxAge int) ([]models.Student, error) {
	defer r.track("students.find_by_age")()
	return r.selectStudents(ctx, "list students by age", "WHERE age BETWEEN ? AND ?", minAge, maxAge)
}

func (r *StudentRepository) selectStudents(ctx context.Context, op, where string, args ...interface{}) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students", studentColumns)
	if where != "" {
		query += " " + where
	}
	query = r.db.Rebind(query + " ORDER BY id")

	students := make([]models.Student, 0)
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return students, nil
}

// DeleteByID removes the student. Deleting a missing id is a no-op.
func (r *StudentRepository) DeleteByID(ctx context.Context, id int64) error {
	defer r.track("students.delete")()
	query := r.db.Rebind("DELETE FROM students WHERE id = ?")
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (r *StudentRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Name() == "unique_violation"
	}
	// mattn/go-sqlite3 reports constraint failures through its message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
