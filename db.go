package main

import (
	"context"
	"time"

	"github.com/cor0nius/rainodds/internal/database"
	_ "github.com/lib/pq"
)

// ConnectDB opens the PostgreSQL connection that backs the second response
// cache tier and initializes dbQueries with the sqlc-generated Queries.
// It is only called when DB_URL is configured.
func (cfg *apiConfig) ConnectDB() error {
	db, err := cfg.newDBClientFunc("postgres", cfg.dbURL)
	if err != nil {
		cfg.logger.Error("couldn't prepare connection to database", "error", err)
		return err
	}
	if err := db.Ping(); err != nil {
		cfg.logger.Error("couldn't connect to database", "error", err)
		return err
	}
	cfg.dbQueries = database.New(db)
	cfg.logger.Info("connected to database")
	return nil
}

// dbQuerier abstracts the database operations used by the application.
// It is implemented by the sqlc-generated Queries struct.
type dbQuerier interface {
	UpsertAPIResponse(ctx context.Context, arg database.UpsertAPIResponseParams) (database.ApiResponse, error)
	GetFreshAPIResponse(ctx context.Context, arg database.GetFreshAPIResponseParams) (database.ApiResponse, error)
	DeleteExpiredAPIResponses(ctx context.Context, expiresAt time.Time) (int64, error)
	DeleteAllAPIResponses(ctx context.Context) error
}
