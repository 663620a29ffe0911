package sqlstore

import "fmt"

// Dialect holds the statements that differ between SQL engines.
type Dialect struct {
	Name         string
	Schema       []string
	InsertDoc    string
	InsertMember string
}

// MySQL is used for MariaDB/MySQL via github.com/go-sql-driver/mysql.
var MySQL = Dialect{
	Name: "mysql",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id VARCHAR(255) PRIMARY KEY,
			doc LONGTEXT NOT NULL,
			revision BIGINT NOT NULL,
			updated_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS conversation_members (
			participant VARCHAR(255) NOT NULL,
			conversation_id VARCHAR(255) NOT NULL,
			PRIMARY KEY (participant, conversation_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	},
	InsertDoc:    "INSERT IGNORE INTO conversations (id, doc, revision, updated_at) VALUES (?, ?, ?, ?)",
	InsertMember: "INSERT IGNORE INTO conversation_members (participant, conversation_id) VALUES (?, ?)",
}

// SQLite is used via github.com/mattn/go-sqlite3.
var SQLite = Dialect{
	Name: "sqlite3",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			doc TEXT NOT NULL,
			revision INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_members (
			participant TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			PRIMARY KEY (participant, conversation_id)
		)`,
	},
	InsertDoc:    "INSERT OR IGNORE INTO conversations (id, doc, revision, updated_at) VALUES (?, ?, ?, ?)",
	InsertMember: "INSERT OR IGNORE INTO conversation_members (participant, conversation_id) VALUES (?, ?)",
}

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql driver %q", driver)
	}
}
