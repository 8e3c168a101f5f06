// =================================
// File: internal/logger/config.go
// =================================
package logger

// Config controls logger output and file rotation.
type Config struct {
	Development bool
	LogFile     string
	MaxSize     int // megabytes before rotation
	MaxBackups  int
	MaxAge      int // days
	Compress    bool
}

func DefaultConfig() *Config {
	return &Config{
		Development: false,
		LogFile:     "curvetrack.log",
		MaxSize:     50,
		MaxBackups:  3,
		MaxAge:      14,
		Compress:    true,
	}
}
