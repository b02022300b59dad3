package api

import (
	"net/http"
	"net/url"
	"sync"

	"esdtscan/internal/config"
	"esdtscan/internal/logging"
	"esdtscan/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ConfigManager 运行时配置管理，只允许修改日志级别和校验模式
type ConfigManager struct {
	cfg       *config.Config
	logger    *logrus.Logger
	validator *validation.Validator
	mu        sync.RWMutex
}

// NewConfigManager 创建配置管理器
func NewConfigManager(cfg *config.Config, validator *validation.Validator, logger *logrus.Logger) *ConfigManager {
	return &ConfigManager{
		cfg:       cfg,
		logger:    logger,
		validator: validator,
	}
}

// RuntimeUpdate 可在运行时修改的配置
type RuntimeUpdate struct {
	LogLevel         *string `json:"log_level"`
	StrictValidation *bool   `json:"strict_validation"`
}

// redactDSN 隐藏DSN中的密码
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// view 配置快照，敏感字段已隐藏
func (cm *ConfigManager) view() gin.H {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	cfg := cm.cfg
	output := gin.H{
		"format":      cfg.Output.Format,
		"directory":   cfg.Output.Directory,
		"file_format": cfg.Output.FileFormat,
	}
	if cfg.Output.Kafka != nil {
		output["kafka"] = cfg.Output.Kafka
	}
	if cfg.Output.Postgres != nil {
		output["postgres"] = gin.H{"dsn": redactDSN(cfg.Output.Postgres.DSN)}
	}

	return gin.H{
		"gateway":     cfg.Gateway,
		"interpreter": cfg.Interpreter,
		"processor":   cfg.Processor,
		"store":       cfg.Store,
		"output":      output,
		"logging":     cfg.Logging,
	}
}

// GetConfig 获取配置
func (cm *ConfigManager) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"config": cm.view()})
}

// UpdateConfig 修改运行时配置
func (cm *ConfigManager) UpdateConfig(c *gin.Context) {
	var req RuntimeUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误", "message": err.Error()})
		return
	}

	var level logrus.Level
	if req.LogLevel != nil {
		parsed, err := logging.ParseLevel(*req.LogLevel)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "日志级别无效", "message": err.Error()})
			return
		}
		level = parsed
	}

	cm.mu.Lock()
	if req.LogLevel != nil {
		cm.logger.SetLevel(level)
		cm.cfg.Logging.Level = level.String()
	}
	if req.StrictValidation != nil {
		cm.cfg.Interpreter.StrictValidation = *req.StrictValidation
		if cm.validator != nil {
			cm.validator.SetStrictMode(*req.StrictValidation)
		}
	}
	fields := logrus.Fields{
		"log_level":         cm.cfg.Logging.Level,
		"strict_validation": cm.cfg.Interpreter.StrictValidation,
	}
	cm.mu.Unlock()

	cm.logger.WithFields(fields).Info("运行时配置已更新")

	c.JSON(http.StatusOK, gin.H{
		"message": "配置已更新",
		"config":  cm.view(),
	})
}
