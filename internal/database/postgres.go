package database

import (
	"database/sql"
)

type PgHelpdeskRepository struct {
	conn *sql.DB
}

func NewPgHelpdeskRepository(dsn string) (*PgHelpdeskRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgHelpdeskRepository{conn: db}, nil
}

func (db *PgHelpdeskRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
