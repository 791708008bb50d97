package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"Error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"trace", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewFileWritesEntries(t *testing.T) {
	dir := t.TempDir()

	log, err := NewFile("testsvc", dir, zerolog.InfoLevel)
	require.NoError(t, err)

	log.Info("hello from test", Field{Key: "answer", Value: 42})
	log.Debug("filtered out")
	require.NoError(t, log.Close())

	name := filepath.Join(dir, "testsvc_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(name)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "hello from test")
	assert.Contains(t, content, `"answer":42`)
	assert.Contains(t, content, `"service":"testsvc"`)
	assert.NotContains(t, content, "filtered out")
}

func TestWithAddsFields(t *testing.T) {
	dir := t.TempDir()

	log, err := NewFile("withsvc", dir, zerolog.InfoLevel)
	require.NoError(t, err)

	derived := log.With(Field{Key: "session_id", Value: 7})
	derived.Info("scoped entry")
	log.Info("plain entry")
	require.NoError(t, log.Close())

	name := filepath.Join(dir, "withsvc_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(name)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"session_id":7`)
	assert.NotContains(t, lines[1], "session_id")
}

func TestDerivedLoggerCloseKeepsFileOpen(t *testing.T) {
	dir := t.TempDir()

	log, err := NewFile("sharedsvc", dir, zerolog.InfoLevel)
	require.NoError(t, err)
	defer log.Close()

	derived := log.With(Field{Key: "component", Value: "x"})
	require.NoError(t, derived.Close())

	// The shared file writer must still accept entries.
	log.Info("after derived close")

	name := filepath.Join(dir, "sharedsvc_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(data), "after derived close")
}

func TestNewFileBadDirectory(t *testing.T) {
	// A file where the directory should be.
	path := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := NewFile("badsvc", path, zerolog.InfoLevel)
	assert.Error(t, err)
}

func TestNopLoggerIsSilent(t *testing.T) {
	log := NewNop()

	assert.NotPanics(t, func() {
		log.Debug("a")
		log.Info("b", Field{Key: "k", Value: "v"})
		log.Warn("c")
		log.Error("d")
		log.With(Field{Key: "k", Value: 1}).Info("e")
	})
	assert.NoError(t, log.Close())
}

func TestDailyFileWriter(t *testing.T) {
	dir := t.TempDir()

	w, err := NewDailyFileWriter("svc", dir)
	require.NoError(t, err)

	n, err := w.Write([]byte("line one\n"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	current := w.CurrentLogFile()
	assert.Equal(t, filepath.Join(dir, "svc_"+time.Now().Format("2006-01-02")+".log"), current)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("after close\n"))
	assert.Error(t, err)
	assert.Empty(t, w.CurrentLogFile())

	data, err := os.ReadFile(current)
	require.NoError(t, err)
	assert.Equal(t, "line one\n", string(data))
}
