package database

import "time"

// Run is one observed test run.
type Run struct {
	ID            uint   `gorm:"primaryKey"`
	RunID         string `gorm:"not null;uniqueIndex"`
	StartedAt     time.Time
	EndedAt       time.Time
	Status        string `gorm:"index"`
	TestCount     int
	PassedCount   int
	FailedCount   int
	SkippedCount  int
	FlakyCount    int
	DurationSecs  float64
	Commit        string
	Branch        string `gorm:"index"`
	BuildID       string
	BuildURL      string
	RunnerVersion string
	CreatedAt     time.Time
}

// Result is the final outcome of one test in a run.
type Result struct {
	ID           uint   `gorm:"primaryKey"`
	ResultID     string `gorm:"not null;uniqueIndex"`
	RunID        string `gorm:"not null;index"`
	TestID       string `gorm:"not null;index"`
	Title        string
	Suite        string
	File         string
	Status       string
	Retries      int
	DurationSecs float64
	ErrorMessage string `gorm:"type:text"`
	Category     string
	CreatedAt    time.Time
}
