package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillTenantCounters = "2026-06-12_backfill_tenant_counters"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillTenantCounters, apply: backfillTenantCounters},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillTenantCounters seeds counter rows from the highest assigned
// sequence number, for databases created before the counter table existed.
// The counter must never trail the suggestions table or the next creation
// would collide with an existing primary key.
func backfillTenantCounters(db *gorm.DB) error {
	const statement = `
		INSERT INTO tenant_counters (tenant_id, count)
		SELECT tenant_id, MAX(id) FROM suggestions
		WHERE tenant_id NOT IN (SELECT tenant_id FROM tenant_counters)
		GROUP BY tenant_id;`
	return db.Exec(statement).Error
}
