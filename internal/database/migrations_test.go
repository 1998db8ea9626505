package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/soapboxlabs/soapbox/internal/storage"
	"github.com/soapboxlabs/soapbox/internal/suggestions"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsTenantCounters(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&suggestions.Suggestion{}, &storage.TenantCounter{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	for id := int64(1); id <= 3; id++ {
		record := suggestions.Suggestion{
			TenantID:         "tenant-1",
			ID:               id,
			AuthorID:         "author-1",
			ChannelID:        "channel-1",
			MessageID:        "message-1",
			Content:          "legacy",
			CreatedAtSeconds: 1700000000,
		}
		if err := database.Create(&record).Error; err != nil {
			testContext.Fatalf("failed to insert suggestion: %v", err)
		}
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var counter storage.TenantCounter
	if err := database.Where("tenant_id = ?", "tenant-1").Take(&counter).Error; err != nil {
		testContext.Fatalf("expected counter row to be created: %v", err)
	}
	if counter.Count != 3 {
		testContext.Fatalf("expected counter to match highest id, got %d", counter.Count)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillTenantCounters).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsIsIdempotent(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&suggestions.Suggestion{}, &storage.TenantCounter{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("first run failed: %v", err)
	}
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("second run failed: %v", err)
	}

	var count int64
	if err := database.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		testContext.Fatalf("failed to count migration records: %v", err)
	}
	if count != 1 {
		testContext.Fatalf("expected a single migration record, got %d", count)
	}
}
