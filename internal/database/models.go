package database

import "time"

// RecentRepository is a repository opened through the service, most recent
// first.
type RecentRepository struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Path         string    `gorm:"uniqueIndex;not null" json:"path"`
	Name         string    `gorm:"not null" json:"name"`
	OpenCount    int       `gorm:"default:0" json:"openCount"`
	LastOpenedAt time.Time `gorm:"index" json:"lastOpenedAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CommandRecord is the audit row of one finished write command.
type CommandRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CommandID  string    `gorm:"uniqueIndex;not null" json:"commandId"`
	RepoPath   string    `gorm:"index;not null" json:"repoPath"`
	Action     string    `gorm:"index;not null" json:"action"`
	Args       string    `gorm:"type:text" json:"args,omitempty"` // space separated, sanitized
	Status     string    `gorm:"not null" json:"status"`          // "succeeded" | "failed"
	ExitCode   int       `json:"exitCode"`
	DurationMs int64     `json:"durationMs"`
	Stderr     string    `gorm:"type:text" json:"stderr,omitempty"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}
