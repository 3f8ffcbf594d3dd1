package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/dsetyadi/chatagent/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func ApplyMigrations(db *sql.DB) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return err
		}
		for _, q := range splitStatements(string(content)) {
			if _, err := db.Exec(q); err != nil {
				if strings.Contains(err.Error(), "already exists") {
					continue
				}
				return fmt.Errorf("execute query in %s: %w", file, err)
			}
		}
	}
	return nil
}

// splitStatements splits a migration file on top-level semicolons.
// Semicolons inside dollar-quoted bodies ($$ ... $$, $tag$ ... $tag$) do
// not terminate a statement.
func splitStatements(content string) []string {
	var stmts []string
	var buf strings.Builder
	var quoteTag string
	for i := 0; i < len(content); i++ {
		c := content[i]
		if quoteTag == "" && c == '$' {
			if tag, ok := dollarTagAt(content, i); ok {
				quoteTag = tag
				buf.WriteString(tag)
				i += len(tag) - 1
				continue
			}
		} else if quoteTag != "" && c == '$' && strings.HasPrefix(content[i:], quoteTag) {
			buf.WriteString(quoteTag)
			i += len(quoteTag) - 1
			quoteTag = ""
			continue
		}
		if c == ';' && quoteTag == "" {
			if s := strings.TrimSpace(buf.String()); s != "" {
				stmts = append(stmts, s)
			}
			buf.Reset()
			continue
		}
		buf.WriteByte(c)
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

// dollarTagAt reports whether a dollar-quote delimiter like $$ or $body$
// starts at offset i.
func dollarTagAt(content string, i int) (string, bool) {
	end := strings.IndexByte(content[i+1:], '$')
	if end < 0 {
		return "", false
	}
	tag := content[i : i+1+end+1]
	for _, r := range tag[1 : len(tag)-1] {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return "", false
		}
	}
	return tag, true
}
