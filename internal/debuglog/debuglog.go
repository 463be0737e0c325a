// Package debuglog provides the rotating diagnostic log shared by the
// sync engine and the CLI. Sync failures are deliberately silent at
// the command line - replication is best-effort - so this file is
// where they remain observable.
package debuglog

import (
	"log"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger appending to debug.log inside dir, rotating at
// 5 MB and keeping three old files.
func New(dir, prefix string) *log.Logger {
	writer := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "debug.log"),
		MaxSize:    5, // megabytes
		MaxBackups: 3,
	}
	return log.New(writer, prefix, log.LstdFlags)
}
