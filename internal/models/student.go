package models

import "time"

// Student is the single record type managed by the service.
// A zero ID marks a transient student that has not been persisted yet.
type Student struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Age       int       `db:"age" json:"age"`
	Course    string    `db:"course" json:"course"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// IsPersisted reports whether the store has assigned an id.
func (s *Student) IsPersisted() bool {
	return s != nil && s.ID != 0
}

// Age bounds shared by validation and range queries.
const (
	MinStudentAge = 18
	MaxStudentAge = 100
)
