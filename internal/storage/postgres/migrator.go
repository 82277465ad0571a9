package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	migrationsGlob   = "sql/migrations/*.sql"
	migrationLockKey = int64(52177303)
	migrationLockTTL = 5 * time.Second
)

// Колонка checksum добавлена позже таблицы: ALTER догоняет базы,
// созданные до её появления.
var migrationTableDDL = []string{
	`CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    checksum TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT ''`,
}

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

	// ErrMigrationDrift — up-файл уже применённой миграции изменён после применения.
	ErrMigrationDrift = errors.New("applied migration was modified")
)

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

type migration struct {
	Version  int64
	Name     string
	UpSQL    string
	DownSQL  string
	Checksum string
}

func (m migration) label() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// appliedMigration — строка schema_migrations.
type appliedMigration struct {
	Version  int64
	Name     string
	Checksum string
}

// MigrationReport — состояние схемы относительно встроенных миграций.
type MigrationReport struct {
	Version int64
	Applied int
	// Pending — миграции, которые применит MigrateUp.
	Pending []string
	// Drifted — применённые миграции, чей up-файл с тех пор изменился.
	Drifted []string
	// Unknown — применённые версии, которых нет среди встроенных файлов
	// (база мигрирована более новой сборкой).
	Unknown []int64
}

// MigrateUp применяет up-миграции.
// steps=0 означает "применить все доступные". Изменённые после применения
// миграции блокируют накат с ErrMigrationDrift.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает миграции.
// steps<=0 интерпретируется как 1 шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.migrate(ctx, migrationDown, steps)
}

// MigrationStatus сравнивает schema_migrations со встроенными файлами.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationReport, error) {
	if s == nil || s.db == nil {
		return MigrationReport{}, fmt.Errorf("postgres store is not initialized")
	}

	known, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return MigrationReport{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := ensureMigrationTable(queryCtx, s.db); err != nil {
		return MigrationReport{}, err
	}
	applied, err := loadApplied(queryCtx, s.db)
	if err != nil {
		return MigrationReport{}, err
	}

	return inspectMigrations(known, applied), nil
}

func (s *Store) migrate(ctx context.Context, direction migrationDirection, steps int) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}
	if direction != migrationUp && direction != migrationDown {
		return fmt.Errorf("unsupported migration direction: %s", direction)
	}

	known, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationLockTTL)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if err := ensureMigrationTable(ctx, conn); err != nil {
		return err
	}
	applied, err := loadApplied(ctx, conn)
	if err != nil {
		return err
	}

	var plan []migration
	if direction == migrationUp {
		if err := backfillChecksums(ctx, conn, known, applied); err != nil {
			return err
		}
		plan, err = planUp(known, applied, steps)
	} else {
		plan, err = planDown(known, applied, steps)
	}
	if err != nil {
		return err
	}

	logger := log.WithFields(log.Fields{"component": "postgres-migrator", "direction": direction})
	for _, m := range plan {
		started := time.Now()
		if err := applyOne(ctx, conn, m, direction); err != nil {
			return err
		}
		logger.WithFields(log.Fields{
			"migration": m.label(),
			"duration":  time.Since(started),
		}).Info("migration applied")
	}

	return nil
}

// inspectMigrations строит отчёт без обращения к базе.
func inspectMigrations(known []migration, applied []appliedMigration) MigrationReport {
	report := MigrationReport{Applied: len(applied)}

	byVersion := make(map[int64]migration, len(known))
	for _, m := range known {
		byVersion[m.Version] = m
	}
	done := make(map[int64]struct{}, len(applied))
	for _, a := range applied {
		done[a.Version] = struct{}{}
		if a.Version > report.Version {
			report.Version = a.Version
		}
		m, ok := byVersion[a.Version]
		switch {
		case !ok:
			report.Unknown = append(report.Unknown, a.Version)
		case a.Checksum != "" && a.Checksum != m.Checksum:
			report.Drifted = append(report.Drifted, m.label())
		}
	}
	for _, m := range known {
		if _, ok := done[m.Version]; !ok {
			report.Pending = append(report.Pending, m.label())
		}
	}

	return report
}

// planUp возвращает неприменённые миграции по возрастанию версии.
func planUp(known []migration, applied []appliedMigration, steps int) ([]migration, error) {
	report := inspectMigrations(known, applied)
	if len(report.Drifted) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMigrationDrift, strings.Join(report.Drifted, ", "))
	}

	done := make(map[int64]struct{}, len(applied))
	for _, a := range applied {
		done[a.Version] = struct{}{}
	}

	var plan []migration
	for _, m := range known {
		if _, ok := done[m.Version]; ok {
			continue
		}
		plan = append(plan, m)
		if steps > 0 && len(plan) == steps {
			break
		}
	}
	return plan, nil
}

// planDown возвращает последние steps применённых миграций от новой к старой.
func planDown(known []migration, applied []appliedMigration, steps int) ([]migration, error) {
	byVersion := make(map[int64]migration, len(known))
	for _, m := range known {
		byVersion[m.Version] = m
	}

	ordered := append([]appliedMigration(nil), applied...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Version > ordered[j].Version })
	if steps < len(ordered) {
		ordered = ordered[:steps]
	}

	plan := make([]migration, 0, len(ordered))
	for _, a := range ordered {
		m, ok := byVersion[a.Version]
		if !ok {
			return nil, fmt.Errorf("cannot rollback unknown migration version %d", a.Version)
		}
		plan = append(plan, m)
	}
	return plan, nil
}

func ensureMigrationTable(ctx context.Context, q querier) error {
	for _, ddl := range migrationTableDDL {
		if _, err := q.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure migration table: %w", err)
		}
	}
	return nil
}

// backfillChecksums проставляет контрольные суммы строкам, записанным до
// появления колонки checksum.
func backfillChecksums(ctx context.Context, q querier, known []migration, applied []appliedMigration) error {
	byVersion := make(map[int64]migration, len(known))
	for _, m := range known {
		byVersion[m.Version] = m
	}
	for _, a := range applied {
		m, ok := byVersion[a.Version]
		if a.Checksum != "" || !ok {
			continue
		}
		if _, err := q.ExecContext(ctx, `
			UPDATE schema_migrations SET checksum = $2
			WHERE version = $1 AND checksum = ''
		`, m.Version, m.Checksum); err != nil {
			return fmt.Errorf("backfill checksum %s: %w", m.label(), err)
		}
	}
	return nil
}

func applyOne(ctx context.Context, conn *sql.Conn, m migration, direction migrationDirection) error {
	body := m.UpSQL
	record := `INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES ($1, $2, $3, NOW())`
	args := []any{m.Version, m.Name, m.Checksum}
	if direction == migrationDown {
		body = m.DownSQL
		record = `DELETE FROM schema_migrations WHERE version = $1`
		args = []any{m.Version}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx (%s %s): %w", direction, m.label(), err)
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute %s migration %s: %w", direction, m.label(), err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record %s migration %s: %w", direction, m.label(), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", direction, m.label(), err)
	}
	return nil
}

func loadApplied(ctx context.Context, q querier) ([]appliedMigration, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT version, name, checksum
		FROM schema_migrations
		ORDER BY version
	`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []appliedMigration
	for rows.Next() {
		var a appliedMigration
		if err := rows.Scan(&a.Version, &a.Name, &a.Checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

func migrationChecksum(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

func loadMigrationsFromFS(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, migrationsGlob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration)
	for _, file := range files {
		base := filepath.Base(file)
		parts := migrationFilePattern.FindStringSubmatch(base)
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid migration file name: %s", base)
		}

		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", base, err)
		}
		if version <= 0 {
			return nil, fmt.Errorf("migration version must be positive: %s", base)
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: parts[2]}
			byVersion[version] = m
		} else if m.Name != parts[2] {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.Name, parts[2])
		}

		target := &m.UpSQL
		if migrationDirection(parts[3]) == migrationDown {
			target = &m.DownSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*target = body
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m.label())
		}
		m.Checksum = migrationChecksum(m.UpSQL)
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })

	return migrations, nil
}
