package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/student-records-api/internal/models"
)

var studentRowColumns = []string{"id", "name", "email", "age", "course", "created_at", "updated_at"}

func newStudentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "postgres"), mock, func() { db.Close() }
}

type recordingObserver struct {
	mu     sync.Mutex
	labels []string
}

func (o *recordingObserver) ObserveDBQuery(label string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.labels = append(o.labels, label)
}

func TestStudentRepositorySaveInsert(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	observer := &recordingObserver{}
	repo := NewStudentRepository(db, observer)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO students (name, email, age, course, created_at, updated_at)\n        VALUES ($1, $2, $3, $4, $5, $6) RETURNING id")).
		WithArgs("Alice", "alice@x.com", 20, "CS", now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	input := &models.Student{Name: "Alice", Email: "alice@x.com", Age: 20, Course: "CS", CreatedAt: now, UpdatedAt: now}
	saved, err := repo.Save(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(7), saved.ID)
	assert.Zero(t, input.ID)
	assert.Equal(t, []string{"students.insert"}, observer.labels)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySaveInsertDuplicate(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectQuery("INSERT INTO students").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "ux_students_email"})

	_, err := repo.Save(context.Background(), &models.Student{Name: "Bob", Email: "alice@x.com", Age: 22, Course: "Math"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySaveInsertSQLiteDuplicate(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectQuery("INSERT INTO students").
		WillReturnError(errors.New("UNIQUE constraint failed: students.email"))

	_, err := repo.Save(context.Background(), &models.Student{Name: "Bob", Email: "alice@x.com", Age: 22, Course: "Math"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestStudentRepositorySaveInsertFailure(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectQuery("INSERT INTO students").WillReturnError(sql.ErrConnDone)

	_, err := repo.Save(context.Background(), &models.Student{Name: "Bob", Email: "bob@x.com", Age: 22, Course: "Math"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NotErrorIs(t, err, ErrDuplicateEmail)
}

func TestStudentRepositorySaveUpdate(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET name = $1, email = $2, age = $3, course = $4, updated_at = $5 WHERE id = $6")).
		WithArgs("Alice", "alice@x.com", 21, "Math", now, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	saved, err := repo.Save(context.Background(), &models.Student{ID: 3, Name: "Alice", Email: "alice@x.com", Age: 21, Course: "Math", UpdatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, "Math", saved.Course)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySaveUpdateMissingRow(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectExec("UPDATE students SET").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.Save(context.Background(), &models.Student{ID: 99, Name: "Ghost", Email: "g@x.com", Age: 30, Course: "CS"})
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestStudentRepositorySaveUpdateDuplicate(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectExec("UPDATE students SET").WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.Save(context.Background(), &models.Student{ID: 1, Name: "Alice", Email: "bob@x.com", Age: 30, Course: "CS"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestStudentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, age, course, created_at, updated_at FROM students WHERE id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(studentRowColumns).AddRow(1, "Alice", "alice@x.com", 20, "CS", now, now))

	student, err := repo.FindByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, student)
	assert.Equal(t, "Alice", student.Name)
	assert.Equal(t, now, student.CreatedAt)

	mock.ExpectQuery("FROM students WHERE id = \\$1").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(studentRowColumns))

	missing, err := repo.FindByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE email = $1")).
		WithArgs("alice@x.com").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).AddRow(1, "Alice", "alice@x.com", 20, "CS", now, now))

	student, err := repo.FindByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), student.ID)

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE email = $1")).
		WithArgs("down@x.com").
		WillReturnError(sql.ErrConnDone)

	_, err = repo.FindByEmail(context.Background(), "down@x.com")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestStudentRepositoryExists(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE email = $1 LIMIT 1")).
		WithArgs("alice@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE email = $1 LIMIT 1")).
		WithArgs("Alice@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM students WHERE id = $1 LIMIT 1")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByEmail(context.Background(), "Alice@x.com")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsByID(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindAll(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, age, course, created_at, updated_at FROM students ORDER BY id")).
		WillReturnRows(sqlmock.NewRows(studentRowColumns))

	students, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, students)
	assert.Empty(t, students)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByNameEscapesPattern(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM students WHERE LOWER(name) LIKE $1 ESCAPE '\' ORDER BY id`)).
		WithArgs("%ali%").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).
			AddRow(1, "Alice", "alice@x.com", 20, "CS", now, now).
			AddRow(3, "Natalia", "nat@x.com", 25, "Bio", now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`LIKE $1 ESCAPE`)).
		WithArgs(`%50\%\_off\\%`).
		WillReturnRows(sqlmock.NewRows(studentRowColumns))

	students, err := repo.FindByNameContainingIgnoreCase(context.Background(), "ALI")
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "Natalia", students[1].Name)

	_, err = repo.FindByNameContainingIgnoreCase(context.Background(), `50%_OFF\`)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByCourseAndAge(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE course = $1 ORDER BY id")).
		WithArgs("CS").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).AddRow(1, "Alice", "alice@x.com", 20, "CS", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE age BETWEEN $1 AND $2 ORDER BY id")).
		WithArgs(18, 20).
		WillReturnRows(sqlmock.NewRows(studentRowColumns).AddRow(1, "Alice", "alice@x.com", 20, "CS", now, now))

	byCourse, err := repo.FindByCourse(context.Background(), "CS")
	require.NoError(t, err)
	assert.Len(t, byCourse, 1)

	byAge, err := repo.FindByAgeBetween(context.Background(), 18, 20)
	require.NoError(t, err)
	assert.Len(t, byAge, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryDeleteByID(t *testing.T) {
	db, mock, cleanup := newStudentMock(t)
	defer cleanup()
	repo := NewStudentRepository(db, nil)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE id = $1")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.DeleteByID(context.Background(), 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryRebindsForSQLite(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer raw.Close()
	repo := NewStudentRepository(sqlx.NewDb(raw, "sqlite3"), nil)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM students WHERE id = ?")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DeleteByID(context.Background(), 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}
