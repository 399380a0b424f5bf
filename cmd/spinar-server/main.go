package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "modernc.org/sqlite"

	"github.com/cran/spINAR/internal/api"
	"github.com/cran/spINAR/internal/store"
)

func main() {
	// Run archive (SQLite). Uses local file spinar.sqlite.
	dbPath := os.Getenv("SPINAR_DB_PATH")
	if dbPath == "" {
		dbPath = "spinar.sqlite"
	}

	log.Printf("Using database path: %s", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("failed to open sqlite db: %v", err)
	}
	defer db.Close()

	// Pragmas for better performance
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	if err := store.EnsureTables(context.Background(), db); err != nil {
		log.Fatalf("failed to ensure run tables: %v", err)
	}

	r := mux.NewRouter()
	api.RegisterRoutes(r, db)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// bootstrap requests can run for minutes
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("spINAR server listening on http://localhost:%s", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	log.Println("server stopped")
}
