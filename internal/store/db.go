// Package store persists terminal session rows to Postgres and owns
// the schema migrations.
package store

import (
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
)

// Open connects to Postgres via the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
