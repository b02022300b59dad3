package api

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry 日志条目
type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogManager 内存中的最近日志，超过容量时丢弃最旧的
type LogManager struct {
	logs    []LogEntry
	maxLogs int
	mu      sync.RWMutex
}

// NewLogManager 创建日志管理器
func NewLogManager(maxLogs int) *LogManager {
	if maxLogs <= 0 {
		maxLogs = 1000
	}
	return &LogManager{
		logs:    make([]LogEntry, 0, maxLogs),
		maxLogs: maxLogs,
	}
}

// AddLog 添加日志，字段会被复制，error类型转为字符串
func (lm *LogManager) AddLog(entry *logrus.Entry) {
	var fields map[string]interface{}
	if len(entry.Data) > 0 {
		fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				fields[k] = err.Error()
				continue
			}
			fields[k] = v
		}
	}

	logEntry := LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
		Fields:    fields,
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.logs = append(lm.logs, logEntry)
	if len(lm.logs) > lm.maxLogs {
		lm.logs = lm.logs[len(lm.logs)-lm.maxLogs:]
	}
}

// filtered 按级别过滤，结果按时间倒序
func (lm *LogManager) filtered(level string) []LogEntry {
	level = strings.ToLower(level)
	if level == "warn" {
		level = "warning"
	}

	out := make([]LogEntry, 0, len(lm.logs))
	for i := len(lm.logs) - 1; i >= 0; i-- {
		if level == "" || lm.logs[i].Level == level {
			out = append(out, lm.logs[i])
		}
	}
	return out
}

// GetLogs 获取最新的limit条日志，limit<=0时返回全部
func (lm *LogManager) GetLogs(level string, limit int) []LogEntry {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	logs := lm.filtered(level)
	if limit > 0 && limit < len(logs) {
		logs = logs[:limit]
	}
	return logs
}

// GetLogsWithPagination 获取分页日志，返回当前页和总数
func (lm *LogManager) GetLogsWithPagination(level string, page, pageSize int) ([]LogEntry, int) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	logs := lm.filtered(level)
	total := len(logs)

	start := (page - 1) * pageSize
	if start < 0 || start >= total {
		return []LogEntry{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return logs[start:end], total
}

// Count 当前日志数量
func (lm *LogManager) Count() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.logs)
}

// ClearLogs 清空日志
func (lm *LogManager) ClearLogs() {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.logs = make([]LogEntry, 0, lm.maxLogs)
}

// LogHook 将日志写入LogManager的logrus钩子
type LogHook struct {
	manager *LogManager
	levels  []logrus.Level
}

// NewLogHook 创建日志钩子，只收集minLevel及更严重的级别
func NewLogHook(manager *LogManager, minLevel logrus.Level) *LogHook {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= minLevel {
			levels = append(levels, l)
		}
	}
	return &LogHook{manager: manager, levels: levels}
}

// Fire 实现 logrus.Hook 接口
func (h *LogHook) Fire(entry *logrus.Entry) error {
	if h.manager == nil {
		return fmt.Errorf("日志管理器未初始化")
	}
	h.manager.AddLog(entry)
	return nil
}

// Levels 实现 logrus.Hook 接口
func (h *LogHook) Levels() []logrus.Level {
	return h.levels
}
