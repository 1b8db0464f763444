package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/crfloyd/git-frisky/internal/config"
	"github.com/crfloyd/git-frisky/internal/logging"
	"github.com/crfloyd/git-frisky/internal/security"
)

const (
	// commandRetention is the number of command records kept per repository.
	commandRetention = 1000

	defaultListLimit = 50
)

var ErrEmptyRepoPath = errors.New("repository path is empty")

// Service wraps SQLite access through GORM.
type Service struct {
	db        *gorm.DB
	path      string
	log       logging.Logger
	sanitizer *security.LogSanitizer
	now       func() time.Time
}

// NewService opens (or creates) the database. dbPath may be empty, in which
// case the default data dir is used; unwritable locations fall back to a
// per-CWD and then a temp-dir copy.
func NewService(dbPath string, log logging.Logger) (*Service, error) {
	if log == nil {
		log = logging.Nop()
	}
	log = log.With("component", "database")

	path, db, err := openWritableDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&RecentRepository{}, &CommandRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	_ = os.Chmod(path, 0o600)

	log.Debug("database initialized", "path", path)
	return newService(db, path, log), nil
}

func newService(db *gorm.DB, path string, log logging.Logger) *Service {
	return &Service{
		db:        db,
		path:      path,
		log:       log,
		sanitizer: security.NewLogSanitizer(),
		now:       time.Now,
	}
}

func openWritableDatabase(dbPath string) (string, *gorm.DB, error) {
	candidates := make([]string, 0, 4)
	if p := strings.TrimSpace(dbPath); p != "" {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, config.DBPath())
	if cwd, err := os.Getwd(); err == nil && strings.TrimSpace(cwd) != "" {
		candidates = append(candidates, filepath.Join(cwd, ".frisky", config.DBFileName))
	}
	candidates = append(candidates, filepath.Join(os.TempDir(), config.AppName, config.DBFileName))

	var lastErr error
	for _, candidate := range candidates {
		if err := os.MkdirAll(filepath.Dir(candidate), 0o700); err != nil {
			lastErr = err
			continue
		}
		if !isLikelyWritable(candidate) {
			lastErr = fmt.Errorf("path not writable: %s", candidate)
			continue
		}

		db, err := gorm.Open(sqlite.Open(candidate), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			lastErr = err
			continue
		}

		sqlDB, err := db.DB()
		if err != nil {
			lastErr = err
			continue
		}

		sqlDB.Exec("PRAGMA journal_mode=WAL")
		sqlDB.Exec("PRAGMA busy_timeout=5000")
		sqlDB.Exec("PRAGMA synchronous=NORMAL")

		return candidate, db, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no database path candidates available")
	}
	return "", nil, fmt.Errorf("failed to open writable database: %w", lastErr)
}

func isLikelyWritable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// Path returns the database file in use.
func (s *Service) Path() string {
	return s.path
}

// Close closes the connection.
func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// === RecentRepository ===

// TouchRepository records that repoPath was opened now.
func (s *Service) TouchRepository(repoPath string) error {
	repoPath = strings.TrimSpace(repoPath)
	if repoPath == "" {
		return ErrEmptyRepoPath
	}
	now := s.now()
	repo := RecentRepository{
		Path:         repoPath,
		Name:         filepath.Base(repoPath),
		OpenCount:    1,
		LastOpenedAt: now,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "path"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"open_count":     gorm.Expr("open_count + 1"),
			"last_opened_at": now,
			"updated_at":     now,
		}),
	}).Create(&repo).Error
}

// RecentRepositories lists repositories most recently opened first.
func (s *Service) RecentRepositories(limit int) ([]RecentRepository, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var repos []RecentRepository
	err := s.db.Order("last_opened_at DESC, id DESC").Limit(limit).Find(&repos).Error
	return repos, err
}

// ForgetRepository removes a repository from the recent list.
func (s *Service) ForgetRepository(repoPath string) error {
	return s.db.Where("path = ?", strings.TrimSpace(repoPath)).Delete(&RecentRepository{}).Error
}

// === CommandRecord ===

// RecordCommand stores one finished command and keeps only the most recent
// records per repository.
func (s *Service) RecordCommand(record *CommandRecord) error {
	if record == nil {
		return fmt.Errorf("command record is nil")
	}
	if strings.TrimSpace(record.RepoPath) == "" {
		return ErrEmptyRepoPath
	}
	record.Args = s.sanitizer.Sanitize(record.Args)
	record.Stderr = s.sanitizer.Sanitize(record.Stderr)
	record.Error = s.sanitizer.Sanitize(record.Error)
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		return tx.Exec(`
			DELETE FROM command_records
			WHERE repo_path = ?
			  AND id NOT IN (
				SELECT id
				FROM command_records
				WHERE repo_path = ?
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			  )
		`, record.RepoPath, record.RepoPath, commandRetention).Error
	})
}

// ListCommands lists the commands of one repository, newest first.
func (s *Service) ListCommands(repoPath string, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var records []CommandRecord
	err := s.db.Where("repo_path = ?", strings.TrimSpace(repoPath)).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
