// database/migrate.go - Database Migration Runner
package database

import (
	"certvault/models"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"
)

// migration is one structural change applied exactly once, in order,
// and recorded in the schema_versions table.
type migration struct {
	version int
	name    string
	run     func(tx *gorm.DB) error
}

var orderedMigrations = []migration{
	{1, "award_members_snapshot_rewrite", migrateMemberSnapshots},
}

// RunMigrations brings the store to the current schema. Safe to re-run:
// versioned migrations are applied once, and every legacy column add is
// guarded by a column-exists check to tolerate hand-edited files.
func RunMigrations(handle *gorm.DB) error {
	log.Println("🔄 Running database migrations...")

	if err := handle.AutoMigrate(&models.SchemaVersion{}); err != nil {
		return fmt.Errorf("schema version table: %w", err)
	}

	// Structural rewrites must see the legacy table shapes before
	// AutoMigrate starts adding columns to them.
	if err := applyVersionedMigrations(handle); err != nil {
		return err
	}

	ensureLegacyColumns(handle)

	if err := handle.AutoMigrate(
		&models.Award{},
		&models.TeamMember{},
		&models.AwardMember{},
		&models.Attachment{},
		&models.ImportJob{},
		&models.CustomFlag{},
		&models.AwardFlagValue{},
		&models.Setting{},
	); err != nil {
		return fmt.Errorf("core migrations: %w", err)
	}

	if err := createSearchTables(handle); err != nil {
		return fmt.Errorf("search tables: %w", err)
	}

	createIndexes(handle)

	log.Println("✅ All migrations completed successfully")
	return nil
}

// applyVersionedMigrations runs every migration newer than the recorded
// schema version, each inside its own transaction so a mid-migration
// failure leaves the previous shape untouched.
func applyVersionedMigrations(handle *gorm.DB) error {
	var current int
	handle.Model(&models.SchemaVersion{}).Select("COALESCE(MAX(version), 0)").Scan(&current)

	for _, m := range orderedMigrations {
		if m.version <= current {
			continue
		}
		err := handle.Transaction(func(tx *gorm.DB) error {
			if err := m.run(tx); err != nil {
				return err
			}
			return tx.Create(&models.SchemaVersion{Version: m.version, Name: m.name}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		log.Printf("✅ Applied migration %d: %s", m.version, m.name)
	}
	return nil
}

// migrateMemberSnapshots converts the legacy award↔member join table
// (profile foreign keys only) to the name-snapshot shape. Detected by
// the absence of the member_name column; a second run is a no-op.
func migrateMemberSnapshots(tx *gorm.DB) error {
	m := tx.Migrator()
	if !m.HasTable("award_members") {
		return nil
	}
	if m.HasColumn(&models.AwardMember{}, "member_name") {
		return nil
	}

	stmts := []string{
		`CREATE TABLE award_members_new (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			award_id INTEGER NOT NULL,
			member_name TEXT NOT NULL,
			member_id INTEGER,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT INTO award_members_new (award_id, member_name, member_id, sort_order)
		SELECT am.award_id,
			COALESCE(tm.name, ''),
			CASE WHEN tm.id IS NULL THEN NULL ELSE am.member_id END,
			ROW_NUMBER() OVER (PARTITION BY am.award_id ORDER BY am.member_id) - 1
		FROM award_members am
		LEFT JOIN team_members tm ON tm.id = am.member_id`,
		`DROP TABLE award_members`,
		`ALTER TABLE award_members_new RENAME TO award_members`,
	}
	for _, stmt := range stmts {
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// ensureLegacyColumns adds columns that old installations lack. Each
// add is guarded so re-running against any vintage of file is safe.
func ensureLegacyColumns(handle *gorm.DB) {
	m := handle.Migrator()

	type columnAdd struct {
		model any
		field string
	}
	adds := []columnAdd{
		{&models.Award{}, "CertificateCode"},
		{&models.Award{}, "Remarks"},
		{&models.Award{}, "Deleted"},
		{&models.Award{}, "DeletedAt"},
		{&models.Attachment{}, "FileHash"},
		{&models.Attachment{}, "FileSize"},
		{&models.Attachment{}, "Deleted"},
		{&models.Attachment{}, "DeletedAt"},
		{&models.TeamMember{}, "SortIndex"},
	}
	for _, add := range adds {
		if !m.HasTable(add.model) {
			continue
		}
		if m.HasColumn(add.model, add.field) {
			continue
		}
		if err := m.AddColumn(add.model, add.field); err != nil {
			log.Printf("Error adding legacy column %s: %v", add.field, err)
		}
	}
}

// createSearchTables creates the two full-text mirrors. Their rowids
// align 1:1 with awards.id and team_members.id; rows are maintained by
// explicit synchronizer calls, never by triggers. The trigram
// tokenizer gives substring matching for CJK text, which unicode61
// would lump into one token per run.
func createSearchTables(handle *gorm.DB) error {
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS awards_fts USING fts5(
			competition_name, certificate_code, remarks, member_names,
			tokenize = 'trigram'
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS members_fts USING fts5(
			name, student_id, major, class_name, college,
			tokenize = 'trigram'
		)`,
	}
	for _, stmt := range stmts {
		if err := handle.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// createIndexes creates secondary indexes for common lookups
func createIndexes(handle *gorm.DB) {
	handle.Exec("CREATE INDEX IF NOT EXISTS idx_awards_date ON awards(award_date DESC)")
	handle.Exec("CREATE INDEX IF NOT EXISTS idx_awards_deleted ON awards(deleted)")
	handle.Exec("CREATE INDEX IF NOT EXISTS idx_awards_level_rank ON awards(level, rank)")
	handle.Exec("CREATE INDEX IF NOT EXISTS idx_award_members_award ON award_members(award_id, sort_order)")
	handle.Exec("CREATE INDEX IF NOT EXISTS idx_award_members_member ON award_members(member_id)")
	handle.Exec("CREATE INDEX IF NOT EXISTS idx_attachments_award ON attachments(award_id, deleted)")
	handle.Exec("CREATE INDEX IF NOT EXISTS idx_attachments_hash ON attachments(file_hash, file_size)")
	handle.Exec("CREATE INDEX IF NOT EXISTS idx_flag_values_award ON award_flag_values(award_id)")
}

// Reset drops every non-system object in the file and re-initializes
// the schema. The file itself is kept: on some platforms an open handle
// blocks deletion, so dropping in place is the portable route.
func Reset(handle *gorm.DB) error {
	handle.Exec("PRAGMA foreign_keys = OFF")
	defer handle.Exec("PRAGMA foreign_keys = ON")

	type object struct {
		Name string
		Ddl  string
	}

	// Virtual tables go first so their shadow tables vanish with them
	// instead of showing up as orphans in the second pass.
	var tables []object
	handle.Raw(`SELECT name AS name, COALESCE(sql, '') AS ddl
		FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`).Scan(&tables)
	for _, t := range tables {
		if strings.HasPrefix(strings.ToUpper(t.Ddl), "CREATE VIRTUAL TABLE") {
			if err := handle.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", t.Name)).Error; err != nil {
				return fmt.Errorf("drop virtual table %s: %w", t.Name, err)
			}
		}
	}

	var views []object
	handle.Raw(`SELECT name AS name, COALESCE(sql, '') AS ddl
		FROM sqlite_master WHERE type = 'view' AND name NOT LIKE 'sqlite_%'`).Scan(&views)
	for _, v := range views {
		if err := handle.Exec(fmt.Sprintf("DROP VIEW IF EXISTS %q", v.Name)).Error; err != nil {
			return fmt.Errorf("drop view %s: %w", v.Name, err)
		}
	}

	var rest []object
	handle.Raw(`SELECT name AS name, COALESCE(sql, '') AS ddl
		FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`).Scan(&rest)
	for _, t := range rest {
		if err := handle.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", t.Name)).Error; err != nil {
			return fmt.Errorf("drop %s: %w", t.Name, err)
		}
	}

	log.Println("🔄 Store reset, re-initializing schema")
	return RunMigrations(handle)
}
