// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package deletelog persists the audit trail of project deletions. One
// record is written per delete operation, whether the operation
// succeeded or failed.
package deletelog

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/lumberjack/v2"
	"github.com/juju/names/v5"
	"gopkg.in/yaml.v2"

	"github.com/reviewms/deleteproject/core/project"
)

var logger = loggo.GetLogger("deleteproject.deletelog")

// Record is a single audit entry describing the outcome of one delete
// operation.
type Record struct {
	Who      string `yaml:"who"`
	When     string `yaml:"when"` // ISO 8601 to second precision
	Project  string `yaml:"project"`
	Preserve bool   `yaml:"preserve"`
	Force    bool   `yaml:"force"`
	Error    string `yaml:"error,omitempty"`
}

// FileLog appends one YAML document per deletion to a rotated audit
// file.
type FileLog struct {
	clock      clock.Clock
	fileLogger io.WriteCloser
}

// NewFileLog returns an audit sink which writes to a delete-log.yaml
// file in the specified directory.
func NewFileLog(logDir string, clk clock.Clock) *FileLog {
	logPath := filepath.Join(logDir, "delete-log.yaml")
	if err := primeLogFile(logPath); err != nil {
		// This isn't a fatal error so log and continue if priming
		// fails.
		logger.Errorf("unable to prime %s (proceeding anyway): %v", logPath, err)
	}
	return &FileLog{
		clock: clk,
		fileLogger: &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    300, // MB
			MaxBackups: 10,
			Compress:   true,
		},
	}
}

// OnDelete records the outcome of one delete operation. A failure to
// write the audit trail must not mask the outcome of the deletion
// itself, so it is logged rather than returned.
func (l *FileLog) OnDelete(user names.UserTag, name project.Name, request project.DeleteRequest, opErr error) {
	record := Record{
		Who:      user.Id(),
		When:     l.clock.Now().UTC().Format(time.RFC3339),
		Project:  name.String(),
		Preserve: request.Preserve,
		Force:    request.Force,
	}
	if opErr != nil {
		record.Error = opErr.Error()
	}
	if err := l.addRecord(record); err != nil {
		logger.Errorf("cannot write delete log record for %q: %v", name, err)
	}
}

// Close closes the underlying audit file.
func (l *FileLog) Close() error {
	return errors.Trace(l.fileLogger.Close())
}

const documentStart = "---\n"

func (l *FileLog) addRecord(r Record) error {
	bytes, err := yaml.Marshal(r)
	if err != nil {
		return errors.Trace(err)
	}
	// Combining the start and document together in one write to
	// prevent lumberjack from rolling the file between them.
	withStart := make([]byte, 0, len(documentStart)+len(bytes))
	withStart = append(withStart, []byte(documentStart)...)
	withStart = append(withStart, bytes...)
	_, err = l.fileLogger.Write(withStart)
	return errors.Trace(err)
}

func primeLogFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(f.Close())
}
