package common

import (
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// ExportsDir is where async export jobs write their files
	ExportsDir = "data/exports"
	// UploadsDir is where uploaded feed files are stored before import
	UploadsDir = "data/uploads"
)

var (
	db     *gorm.DB
	dbLock sync.RWMutex
)

// Init opens the sqlite database at path and stores it as the package handle
func Init(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, WrapError(err, ErrorTypeIO, "create database directory")
		}
	}

	conn, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, WrapError(err, ErrorTypeIO, "open database")
	}

	dbLock.Lock()
	db = conn
	dbLock.Unlock()
	return conn, nil
}

// GetDB returns the database handle opened by Init
func GetDB() *gorm.DB {
	dbLock.RLock()
	defer dbLock.RUnlock()
	return db
}

// SetDB replaces the package handle (used by tests)
func SetDB(conn *gorm.DB) {
	dbLock.Lock()
	db = conn
	dbLock.Unlock()
}
