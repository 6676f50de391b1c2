// Package store is the relay core's sole SQL surface (spec.md §4.A): four
// narrow repositories over a single connection pool, presented behind a
// Store facade. No other package in this module issues SQL directly.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Conn bundles the two handles repositories need onto one pool: gorm.DB for
// simple reads (.Raw/.Scan), and the underlying *sql.DB for the
// ON-CONFLICT fill-forward upserts that are easiest to hand-write. Both
// share the same *sql.DB under the hood.
type Conn struct {
	DB  *sql.DB
	Orm *gorm.DB
}

// Open establishes the shared connection pool, matching the teacher's
// cmd/worker/main.go connectDatabase (raw sql.Open over lib/pq) fronted by a
// gorm.DB for read convenience.
func Open(dsn string) (*Conn, error) {
	orm, err := gorm.Open(postgres.New(postgres.Config{
		DSN: dsn,
	}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := orm.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Conn{DB: sqlDB, Orm: orm}, nil
}

func (c *Conn) Close() error {
	return c.DB.Close()
}
