package journal

import (
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore keeps the journal in a MySQL database. dsn uses the
// go-sql-driver format and must enable parseTime for Recent to work.
type MySQLStore struct {
	sqlStore
}

// NewMySQLStore connects to dsn and creates the events table if missing.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)

	store := &MySQLStore{sqlStore{db: db}}
	if err := store.init(`
	CREATE TABLE IF NOT EXISTS session_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		session_id VARCHAR(36) NOT NULL,
		client_id VARCHAR(128) NOT NULL,
		username VARCHAR(255) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		reason VARCHAR(512) NOT NULL DEFAULT '',
		at DATETIME(6) NOT NULL,
		INDEX idx_session_events_session (session_id)
	)`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
