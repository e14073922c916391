// Package inmemdb implements the core repositories on in-memory tables;
// it backs the API test suites.
package inmemdb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/elimu/core"
	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/result"
	"github.com/trezcool/elimu/core/task"
	"github.com/trezcool/elimu/core/user"
)

var errNoSQL = errors.New("inmemdb: raw SQL not supported")

// DB holds all tables behind a single lock. It satisfies core.DB so services
// that coordinate transactions can run against it; the raw SQL executor
// methods are never reached because the in-memory repositories ignore the
// optional executor argument.
type DB struct {
	mu sync.RWMutex

	users     map[string]*user.User
	courses   map[string]*course.Course
	rosters   map[string]map[string]bool // courseID -> studentID set
	tasks     map[string]*task.Task
	questions map[string]*task.Question
	answers   map[string]*result.Answer
	results   map[string]*result.Result
}

var _ core.DB = (*DB)(nil)

func NewDB() *DB {
	return &DB{
		users:     make(map[string]*user.User),
		courses:   make(map[string]*course.Course),
		rosters:   make(map[string]map[string]bool),
		tasks:     make(map[string]*task.Task),
		questions: make(map[string]*task.Question),
		answers:   make(map[string]*result.Answer),
		results:   make(map[string]*result.Result),
	}
}

func (db *DB) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNoSQL
}
func (db *DB) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNoSQL
}
func (db *DB) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }
func (db *DB) GetContext(context.Context, interface{}, string, ...interface{}) error {
	return errNoSQL
}
func (db *DB) SelectContext(context.Context, interface{}, string, ...interface{}) error {
	return errNoSQL
}

func (db *DB) Beginx() (core.DBTransactor, error) {
	return tx{db}, nil
}

// tx is a no-op transactor: the in-memory tables mutate immediately, so
// commit and rollback have nothing to do.
type tx struct {
	*DB
}

func (tx) Commit() error   { return nil }
func (tx) Rollback() error { return nil }
