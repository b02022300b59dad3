package api

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(level logrus.Level, msg string, data logrus.Fields) *logrus.Entry {
	return &logrus.Entry{
		Logger:  logrus.StandardLogger(),
		Data:    data,
		Time:    time.Now(),
		Level:   level,
		Message: msg,
	}
}

func TestLogManager_Trim(t *testing.T) {
	lm := NewLogManager(3)
	for i := 0; i < 5; i++ {
		lm.AddLog(entry(logrus.InfoLevel, fmt.Sprintf("msg-%d", i), nil))
	}

	assert.Equal(t, 3, lm.Count())
	logs := lm.GetLogs("", 0)
	require.Len(t, logs, 3)
	assert.Equal(t, "msg-4", logs[0].Message)
	assert.Equal(t, "msg-2", logs[2].Message)

	assert.Len(t, lm.GetLogs("", 2), 2)
}

func TestLogManager_FieldsAreCopied(t *testing.T) {
	lm := NewLogManager(10)
	data := logrus.Fields{"error": stderrors.New("boom"), "tx_hash": "abc"}
	lm.AddLog(entry(logrus.ErrorLevel, "failed", data))
	data["tx_hash"] = "changed"

	logs := lm.GetLogs("error", 0)
	require.Len(t, logs, 1)
	assert.Equal(t, "boom", logs[0].Fields["error"])
	assert.Equal(t, "abc", logs[0].Fields["tx_hash"])
}

func TestLogManager_Pagination(t *testing.T) {
	lm := NewLogManager(0)
	for i := 0; i < 5; i++ {
		lm.AddLog(entry(logrus.WarnLevel, fmt.Sprintf("w-%d", i), nil))
	}
	lm.AddLog(entry(logrus.InfoLevel, "info", nil))

	page, total := lm.GetLogsWithPagination("warn", 2, 2)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "w-2", page[0].Message)

	page, total = lm.GetLogsWithPagination("", 9, 2)
	assert.Equal(t, 6, total)
	assert.Empty(t, page)

	lm.ClearLogs()
	assert.Zero(t, lm.Count())
}

func TestLogHook(t *testing.T) {
	hook := NewLogHook(NewLogManager(10), logrus.WarnLevel)
	assert.Equal(t, []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}, hook.Levels())

	require.NoError(t, hook.Fire(entry(logrus.WarnLevel, "w", nil)))
	assert.Equal(t, 1, hook.manager.Count())

	assert.Error(t, (&LogHook{}).Fire(entry(logrus.WarnLevel, "w", nil)))
}
