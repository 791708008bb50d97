package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DailyFileWriter is an io.Writer that appends to a log file named
// {service}_{date}.log and switches to a new file on the first write of a new
// day. Safe for concurrent use.
type DailyFileWriter struct {
	service string
	dir     string

	mu       sync.Mutex
	file     *os.File
	currDate string
	closed   bool
}

// NewDailyFileWriter creates a DailyFileWriter for the given service writing
// into logDir. The directory must already exist.
//
// Parameters:
//   - service: Service name used in log file names
//   - logDir: Directory path for log files
//
// Returns:
//   - The new DailyFileWriter, or an error if the initial file cannot be opened
func NewDailyFileWriter(service, logDir string) (*DailyFileWriter, error) {
	w := &DailyFileWriter{service: service, dir: logDir}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateLocked(); err != nil {
		return nil, err
	}

	return w, nil
}

// Write implements io.Writer. It rotates to a new file when the date has
// changed since the last write.
func (w *DailyFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("writer is closed")
	}

	if w.file == nil || time.Now().Format("2006-01-02") != w.currDate {
		if err := w.rotateLocked(); err != nil {
			return 0, fmt.Errorf("rotation failed: %w", err)
		}
	}

	return w.file.Write(p)
}

// Close closes the current log file. Subsequent writes fail. Safe to call
// multiple times.
func (w *DailyFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}

	return nil
}

// CurrentLogFile returns the path of the file currently being written to, or
// an empty string if no file is open.
func (w *DailyFileWriter) CurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ""
	}

	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.service, w.currDate))
}

// rotateLocked opens the log file for the current date; caller holds w.mu.
func (w *DailyFileWriter) rotateLocked() error {
	date := time.Now().Format("2006-01-02")
	if date == w.currDate && w.file != nil {
		return nil
	}

	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	name := filepath.Join(w.dir, fmt.Sprintf("%s_%s.log", w.service, date))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", name, err)
	}

	w.file = file
	w.currDate = date
	return nil
}
