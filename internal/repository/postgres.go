package repository

import (
	"database/sql"
	"fmt"

	"github.com/opensource-compliance/kestrel/internal/domain"
	_ "github.com/lib/pq"
)

// openPostgres opens the shared store for multi-instance deployments.
// Unset fields fall back to local-development defaults; SSL defaults to
// disabled because in-cluster traffic usually terminates TLS elsewhere.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	host := cfg.PostgresHost
	if host == "" {
		host = "localhost"
	}
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}
	dbname := cfg.PostgresDB
	if dbname == "" {
		dbname = "kestrel"
	}
	sslMode := cfg.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, cfg.PostgresUser, cfg.PostgresPassword, dbname, sslMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database %s: %w", dbname, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres database %s: %w", dbname, err)
	}
	return db, nil
}
