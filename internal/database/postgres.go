package database

import (
	"database/sql"
)

type PgTripChatRepository struct {
	conn *sql.DB
}

func NewPgTripChatRepository(dsn string) (*PgTripChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgTripChatRepository{conn: db}, nil
}

func (db *PgTripChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgTripChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
