package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestNew_SQLite(t *testing.T) {
	cfg := Config{
		Path:     ":memory:",
		LogLevel: "warn",
	}

	db, err := New(cfg, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()

	err = db.Ping(context.Background())
	assert.NoError(t, err)

	assert.Equal(t, "sqlite", db.Driver())
}

func TestDB_Ping(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	err := db.Ping(ctx)
	assert.NoError(t, err)
}

func TestDB_Ping_WithTimeout(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.Ping(ctx)
	assert.NoError(t, err)
}

func TestDB_Close(t *testing.T) {
	db := setupTestDB(t)

	err := db.Close()
	assert.NoError(t, err)

	err = db.Ping(context.Background())
	assert.Error(t, err)
}

func TestDB_Stats(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	stats, err := db.Stats()
	require.NoError(t, err)
	require.NotNil(t, stats)

	assert.Contains(t, stats, "max_open_connections")
	assert.Contains(t, stats, "open_connections")
	assert.Contains(t, stats, "in_use")
	assert.Contains(t, stats, "idle")
}

func TestDB_WithContext(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	ctxDB := db.WithContext(ctx)

	assert.NotNil(t, ctxDB)
	assert.Equal(t, db.Driver(), ctxDB.Driver())
}

func TestDB_Transaction(t *testing.T) {
	cfg := Config{
		Path:     ":memory:",
		LogLevel: "silent",
	}

	db, err := New(cfg, nil, &Options{PrepareStmt: false})
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	type TxTestItem struct {
		ID    uint   `gorm:"primarykey"`
		Value string `gorm:"not null"`
	}

	err = db.DB.AutoMigrate(&TxTestItem{})
	require.NoError(t, err)

	err = db.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&TxTestItem{Value: "test1"}).Error
	})
	assert.NoError(t, err)

	var count int64
	err = db.DB.Model(&TxTestItem{}).Where("value = ?", "test1").Count(&count).Error
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	testErr := fmt.Errorf("forced rollback error")
	err = db.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&TxTestItem{Value: "test2"}).Error; err != nil {
			return err
		}
		return testErr
	})
	assert.Error(t, err)
	assert.ErrorIs(t, err, testErr)

	err = db.DB.Model(&TxTestItem{}).Where("value = ?", "test2").Count(&count).Error
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestDB_SQLitePragmas(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	// In-memory SQLite uses "memory" journal mode, not "wal".
	var journalMode string
	err := db.DB.Raw("PRAGMA journal_mode").Scan(&journalMode).Error
	require.NoError(t, err)
	assert.Equal(t, "memory", journalMode)

	var foreignKeys int
	err = db.DB.Raw("PRAGMA foreign_keys").Scan(&foreignKeys).Error
	require.NoError(t, err)
	assert.Equal(t, 1, foreignKeys)
}

func TestGormLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected logger.LogLevel
	}{
		{"silent", logger.Silent},
		{"error", logger.Error},
		{"warn", logger.Warn},
		{"info", logger.Info},
		{"unknown", logger.Warn},
		{"", logger.Warn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			result := gormLogLevel(tt.level)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := Config{
		Path:     ":memory:",
		LogLevel: "silent",
	}

	db, err := New(cfg, nil, nil)
	require.NoError(t, err)

	return db
}
