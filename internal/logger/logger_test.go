package logger

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebugRespectsMode(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	SetDebugMode(false)
	Debug("hidden %d", 1)
	assert.Empty(t, buf.String())

	SetDebugMode(true)
	defer SetDebugMode(false)
	Debug("visible %d", 2)
	assert.Contains(t, buf.String(), "visible 2")
	assert.Contains(t, buf.String(), "logger_test.go")
}

func TestLogOperation(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	LogOperation("note.update", "n-1", time.Now(), errors.New("boom"))
	out := buf.String()
	assert.Contains(t, out, "op=note.update")
	assert.Contains(t, out, "note_id=n-1")
	assert.Contains(t, out, "error=boom")
}
