package stdlogger_test

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okupy/okupy/internal/logger"
	"github.com/okupy/okupy/internal/logger/adapter/stdlogger"
)

// gorm writes through this interface.
var _ gormlogger.Writer = (*stdlogger.Logger)(nil)

type line struct {
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
}

func captureLines(t *testing.T, level string, fn func()) []line {
	t.Helper()

	stdout, stderr := os.Stdout, os.Stderr

	r, w, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout, os.Stderr = w, w

	outC := make(chan string)

	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()

	initErr := logger.Init(logger.Log{
		LogLevel:    level,
		AppName:     "okupy",
		ServiceName: "test",
		Console:     logger.Console{Enabled: true},
	})

	if initErr == nil {
		fn()
	}

	_ = w.Close()
	os.Stdout, os.Stderr = stdout, stderr
	out := <-outC

	require.NoError(t, initErr)

	var got []line

	for _, s := range strings.Split(strings.TrimSpace(out), "\n") {
		if s == "" {
			continue
		}

		var l line
		require.NoError(t, json.Unmarshal([]byte(s), &l))
		got = append(got, l)
	}

	return got
}

func TestLevels(t *testing.T) {
	got := captureLines(t, "info", func() {
		l := stdlogger.New("gorm")

		l.Debugf("hidden %d", 1)
		l.Infof("slow query %dms", 250)
		l.Printf("record %s", "not found")
		l.Warningf("deprecated %s", "option")
		l.Errorf("failed: %v", "timeout")
	})

	require.Len(t, got, 4)

	assert.Equal(t, line{Level: "info", Component: "gorm", Message: "slow query 250ms"}, got[0])
	assert.Equal(t, line{Level: "info", Component: "gorm", Message: "record not found"}, got[1])
	assert.Equal(t, line{Level: "warn", Component: "gorm", Message: "deprecated option"}, got[2])
	assert.Equal(t, line{Level: "error", Component: "gorm", Message: "failed: timeout"}, got[3])
}

func TestDebugLevel(t *testing.T) {
	got := captureLines(t, "debug", func() {
		stdlogger.New().Debugf("visible")
	})

	require.Len(t, got, 1)
	assert.Equal(t, "debug", got[0].Level)
	assert.Empty(t, got[0].Component)
}
