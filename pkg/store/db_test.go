package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/openmicromirror/dlpc900ctl/pkg/logger"
)

func TestNewDBCreatesFileAndRunsMigrations(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	dbPath := filepath.Join(t.TempDir(), "audit.db")

	db, err := NewDB(Config{Path: dbPath}, log)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected database file to exist: %v", err)
	}
	if !db.GetDB().Migrator().HasTable(&UploadRecord{}) {
		t.Fatalf("expected upload_records table to exist after migration")
	}
}

func TestNewDBDefaultPath(t *testing.T) {
	log := logger.New(logger.Config{Level: "error"})
	defer func() { _ = os.Remove("dlpctl.db") }()

	db, err := NewDB(Config{}, log)
	if err != nil {
		t.Fatalf("failed to create database with default path: %v", err)
	}
	defer func() { _ = db.Close() }()
}
