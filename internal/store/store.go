// Package store persists conversations and messages through gorm. Every
// mutation is a single statement or a short transaction so concurrent
// requests never need application level locks.
package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("record not found")

// Store implements the conversation and message stores on one *gorm.DB.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
