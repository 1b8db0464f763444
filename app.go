package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/crfloyd/git-frisky/internal/config"
	"github.com/crfloyd/git-frisky/internal/database"
	fw "github.com/crfloyd/git-frisky/internal/filewatcher"
	gp "github.com/crfloyd/git-frisky/internal/gitpanel"
	"github.com/crfloyd/git-frisky/internal/logging"
	"github.com/crfloyd/git-frisky/internal/vcs"
	_ "github.com/crfloyd/git-frisky/internal/vcs/gitcli"
	_ "github.com/crfloyd/git-frisky/internal/vcs/libgit2"
)

const shutdownTimeout = 3 * time.Second

// App is the Wails binding. Its exported methods are callable from the
// frontend.
type App struct {
	ctx context.Context
	cfg *config.Config
	log logging.Logger

	db          *database.Service
	gitPanel    *gp.Service
	fileWatcher fw.Watcher
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{
		cfg: config.Default(),
		log: logging.Nop(),
	}
}

// Startup is called when the app starts. It loads config, opens the history
// database and builds the git panel and watcher services.
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx

	cfg, err := config.Load("")
	if err != nil {
		a.log.Warn("config invalid, using defaults", "error", err)
		cfg = config.Default()
	}
	a.cfg = cfg

	if logger, logErr := logging.New(os.Stderr, cfg.Logging.Format, cfg.Logging.Level); logErr == nil {
		a.log = logger.With("app", config.AppName)
	}
	a.log.Info("starting up", "version", config.AppVersion, "backend", cfg.Git.Backend)

	if err := config.EnsureDataDirs(); err != nil {
		a.log.Warn("failed to create data dirs", "error", err)
	}

	dbService, err := database.NewService(cfg.Storage.DBPath, a.log)
	if err != nil {
		a.log.Warn("history database unavailable", "error", err)
	} else {
		a.db = dbService
	}

	opener, err := vcs.NewOpener(cfg.Git.Backend, vcs.Options{
		Binary:       cfg.Git.Binary,
		ReadTimeout:  cfg.Git.ReadTimeout,
		WriteTimeout: cfg.Git.WriteTimeout,
	})
	if err != nil {
		a.log.Error("git backend unavailable", "backend", cfg.Git.Backend, "error", err)
		return
	}

	opts := []gp.Option{
		gp.WithLogger(a.log),
		gp.WithWriteTimeout(cfg.Git.WriteTimeout),
		gp.WithLogLimit(cfg.History.Limit),
	}
	if a.db != nil {
		opts = append(opts, gp.WithStore(a.db))
	}
	a.gitPanel = gp.NewService(a.emitRuntimeEvent, opener, opts...)

	a.fileWatcher = fw.NewService(a.emitRuntimeEvent,
		fw.WithDebounce(cfg.Watch.Debounce),
		fw.WithLogger(a.log),
	)
	a.fileWatcher.OnChange(a.handleRepoChange)

	a.log.Info("startup complete")
}

// Shutdown is called when the app is shutting down
func (a *App) Shutdown(ctx context.Context) {
	a.log.Info("shutting down")

	if a.fileWatcher != nil {
		if err := a.fileWatcher.Close(); err != nil {
			a.log.Warn("error closing file watcher", "error", err)
		}
	}

	if a.gitPanel != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		if err := a.gitPanel.Close(shutdownCtx); err != nil {
			a.log.Warn("error draining git panel queue", "error", err)
		}
		cancel()
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("error closing database", "error", err)
		}
	}
}

func (a *App) emitRuntimeEvent(eventName string, data interface{}) {
	if a.ctx == nil || strings.TrimSpace(eventName) == "" {
		return
	}
	runtime.EventsEmit(a.ctx, eventName, data)
}

// handleRepoChange turns watcher events into git panel invalidations.
func (a *App) handleRepoChange(event fw.ChangeEvent) {
	if a.gitPanel == nil {
		return
	}
	a.gitPanel.NotifyRepoChanged(event.RepoPath, event.Kind)
}

func (a *App) requestContext() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// === Git panel bindings ===

func (a *App) requireGitPanelService() (*gp.Service, error) {
	if a.gitPanel == nil {
		return nil, gp.NewBindingError(
			gp.CodeServiceUnavailable,
			"Git panel service unavailable.",
			"The git backend has not been initialized.",
		)
	}
	return a.gitPanel, nil
}

func (a *App) normalizeBindingError(err error) error {
	if err == nil {
		return nil
	}
	return gp.NormalizeBindingError(err)
}

// OpenRepo validates the repository and returns its summary.
func (a *App) OpenRepo(repoPath string) (gp.RepoSummary, error) {
	svc, err := a.requireGitPanelService()
	if err != nil {
		return gp.RepoSummary{}, err
	}
	result, openErr := svc.OpenRepo(a.requestContext(), repoPath)
	if openErr != nil {
		return gp.RepoSummary{}, a.normalizeBindingError(openErr)
	}
	return result, nil
}

// GetStatus returns the staged and unstaged changes.
func (a *App) GetStatus(repoPath string) (gp.StatusPayload, error) {
	svc, err := a.requireGitPanelService()
	if err != nil {
		return gp.StatusPayload{}, err
	}
	result, statusErr := svc.GetStatus(a.requestContext(), repoPath)
	if statusErr != nil {
		return gp.StatusPayload{}, a.normalizeBindingError(statusErr)
	}
	return result, nil
}

// GetDiff returns the hunks of one file, staged (HEAD to index) or not
// (index to working tree).
func (a *App) GetDiff(repoPath string, filePath string, staged bool) ([]gp.DiffHunk, error) {
	svc, err := a.requireGitPanelService()
	if err != nil {
		return nil, err
	}
	result, diffErr := svc.GetDiff(a.requestContext(), repoPath, filePath, staged)
	if diffErr != nil {
		return nil, a.normalizeBindingError(diffErr)
	}
	return result, nil
}

func (a *App) StageHunk(repoPath string, filePath string, hunk gp.DiffHunk) error {
	svc, err := a.requireGitPanelService()
	if err != nil {
		return err
	}
	return a.normalizeBindingError(svc.StageHunk(a.requestContext(), repoPath, filePath, hunk))
}

func (a *App) UnstageHunk(repoPath string, filePath string, hunk gp.DiffHunk) error {
	svc, err := a.requireGitPanelService()
	if err != nil {
		return err
	}
	return a.normalizeBindingError(svc.UnstageHunk(a.requestContext(), repoPath, filePath, hunk))
}

func (a *App) StageFiles(repoPath string, paths []string) error {
	svc, err := a.requireGitPanelService()
	if err != nil {
		return err
	}
	return a.normalizeBindingError(svc.Stage(a.requestContext(), repoPath, paths))
}

func (a *App) UnstageFiles(repoPath string, paths []string) error {
	svc, err := a.requireGitPanelService()
	if err != nil {
		return err
	}
	return a.normalizeBindingError(svc.Unstage(a.requestContext(), repoPath, paths))
}

// Commit records the staged changes with the configured identity.
func (a *App) Commit(repoPath string, message string) (gp.Commit, error) {
	svc, err := a.requireGitPanelService()
	if err != nil {
		return gp.Commit{}, err
	}
	result, commitErr := svc.Commit(a.requestContext(), repoPath, message)
	if commitErr != nil {
		return gp.Commit{}, a.normalizeBindingError(commitErr)
	}
	return result, nil
}

// GetLog returns up to limit commits reachable from local branches.
func (a *App) GetLog(repoPath string, limit int) ([]gp.Commit, error) {
	svc, err := a.requireGitPanelService()
	if err != nil {
		return nil, err
	}
	result, logErr := svc.Log(a.requestContext(), repoPath, limit)
	if logErr != nil {
		return nil, a.normalizeBindingError(logErr)
	}
	return result, nil
}

// === Watcher bindings ===

// StartWatch replaces any running watch with one on repoPath.
func (a *App) StartWatch(repoPath string) error {
	if a.fileWatcher == nil {
		return gp.NewBindingError(gp.CodeServiceUnavailable, "File watcher unavailable.", "")
	}
	if err := a.fileWatcher.Start(repoPath); err != nil {
		return gp.NewBindingError(gp.CodeOpenFailed, "Failed to watch repository.", err.Error())
	}
	return nil
}

// StopWatch stops the current watch, if any.
func (a *App) StopWatch() error {
	if a.fileWatcher == nil {
		return nil
	}
	if err := a.fileWatcher.Stop(); err != nil {
		return gp.NewBindingError(gp.CodeCommandFailed, "Failed to stop watching.", err.Error())
	}
	return nil
}

// === History bindings ===

func (a *App) requireDatabase() (*database.Service, error) {
	if a.db == nil {
		return nil, gp.NewBindingError(
			gp.CodeServiceUnavailable,
			"History unavailable.",
			"The history database could not be opened.",
		)
	}
	return a.db, nil
}

// RecentRepositories lists repositories opened before, most recent first.
func (a *App) RecentRepositories(limit int) ([]database.RecentRepository, error) {
	db, err := a.requireDatabase()
	if err != nil {
		return nil, err
	}
	repos, listErr := db.RecentRepositories(limit)
	if listErr != nil {
		return nil, gp.NewBindingError(gp.CodeUnknown, "Failed to list recent repositories.", listErr.Error())
	}
	return repos, nil
}

// CommandHistory lists the write commands recorded for a repository.
func (a *App) CommandHistory(repoPath string, limit int) ([]database.CommandRecord, error) {
	db, err := a.requireDatabase()
	if err != nil {
		return nil, err
	}
	records, listErr := db.ListCommands(repoPath, limit)
	if listErr != nil {
		return nil, gp.NewBindingError(gp.CodeUnknown, "Failed to list commands.", listErr.Error())
	}
	return records, nil
}

// PickRepositoryDirectory opens a native directory picker.
func (a *App) PickRepositoryDirectory(defaultPath string) (string, error) {
	if a.ctx == nil {
		return "", gp.NewBindingError(
			gp.CodeServiceUnavailable,
			"Window unavailable for directory selection.",
			"The runtime context has not been initialized.",
		)
	}

	options := runtime.OpenDialogOptions{
		Title:                "Select git repository",
		ShowHiddenFiles:      true,
		CanCreateDirectories: false,
	}
	if dir := resolveExistingDirectory(defaultPath); dir != "" {
		options.DefaultDirectory = dir
	}

	selectedPath, err := runtime.OpenDirectoryDialog(a.ctx, options)
	if err != nil {
		return "", gp.NewBindingError(gp.CodeCommandFailed, "Failed to open directory picker.", strings.TrimSpace(err.Error()))
	}
	return strings.TrimSpace(selectedPath), nil
}

// resolveExistingDirectory returns rawPath if it is a directory, otherwise
// its parent when that exists, otherwise "".
func resolveExistingDirectory(rawPath string) string {
	trimmed := strings.TrimSpace(rawPath)
	if trimmed == "" {
		return ""
	}

	cleaned := filepath.Clean(trimmed)
	if info, err := os.Stat(cleaned); err == nil && info.IsDir() {
		return cleaned
	}

	parent := filepath.Dir(cleaned)
	if parent == "" || parent == "." {
		return ""
	}
	if info, err := os.Stat(parent); err == nil && info.IsDir() {
		return parent
	}
	return ""
}
