package api

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"esdtscan/internal/config"
	"esdtscan/internal/errors"
	"esdtscan/internal/processor"
	"esdtscan/internal/validation"
	"esdtscan/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// maxBodySize 请求体上限
const maxBodySize = 16 << 20

// TokenIndex 已发现代币的查询接口
type TokenIndex interface {
	LookupToken(identifier string) (*models.IssuedToken, error)
	ListTokens(limit int) ([]*models.IssuedToken, error)
}

// Server API服务器
type Server struct {
	processor     *processor.Processor
	tokens        TokenIndex
	config        *config.Config
	configManager *ConfigManager
	logger        *logrus.Logger
	logManager    *LogManager
	router        *gin.Engine
	startTime     time.Time

	mu     sync.Mutex
	server *http.Server
}

// NewServer 创建API服务器，tokens可以为空
func NewServer(cfg *config.Config, proc *processor.Processor, tokens TokenIndex, validator *validation.Validator, logger *logrus.Logger) *Server {
	logManager := NewLogManager(cfg.API.LogBufferSize)
	logger.AddHook(NewLogHook(logManager, logrus.InfoLevel))

	s := &Server{
		processor:     proc,
		tokens:        tokens,
		config:        cfg,
		configManager: NewConfigManager(cfg, validator, logger),
		logger:        logger,
		logManager:    logManager,
		startTime:     time.Now(),
	}
	s.router = s.newRouter()
	return s
}

// Router HTTP处理器
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) newRouter() *gin.Engine {
	gin.SetMode(s.config.API.Mode)
	router := gin.New()

	// 添加CORS中间件
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	if s.config.API.Mode == gin.DebugMode {
		router.Use(gin.Logger())
	}
	router.Use(gin.Recovery())

	s.setupRoutes(router)
	return router
}

// Start 启动API服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         s.config.API.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.API.ReadTimeout,
		WriteTimeout: s.config.API.WriteTimeout,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Infof("API服务器启动在 %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止API服务器
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// setupRoutes 设置路由
func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)

	api := router.Group("/api/v1")
	{
		// 回执解释
		api.POST("/interpret", s.interpret)
		api.GET("/receipts/:hash", s.getReceipt)
		api.POST("/receipts/batch", s.batchReceipts)

		// 代币查询
		api.GET("/tokens", s.listTokens)
		api.GET("/tokens/:identifier", s.getToken)

		// 统计信息
		api.GET("/stats", s.getStats)

		// 日志管理
		api.GET("/logs", s.getLogs)
		api.DELETE("/logs", s.clearLogs)

		// 配置管理
		api.GET("/config", s.configManager.GetConfig)
		api.PUT("/config", s.configManager.UpdateConfig)
	}
}

// healthCheck 健康检查
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "esdtscan-api",
	})
}

// interpret 解释请求体中的网关响应
func (s *Server) interpret(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "读取请求体失败", "message": err.Error()})
		return
	}

	result, err := s.processor.ProcessRaw(c.Request.Context(), raw)
	if err != nil {
		status := http.StatusInternalServerError
		if stderrors.Is(err, errors.ErrMalformedReceipt) {
			status = http.StatusBadRequest
		}
		c.JSON(status, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// getReceipt 按交易哈希获取回执
func (s *Server) getReceipt(c *gin.Context) {
	hash := c.Param("hash")
	if !validation.IsValidTxHash(hash) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "交易哈希无效", "hash": hash})
		return
	}

	result, err := s.processor.ProcessHash(c.Request.Context(), hash)
	if err != nil {
		c.JSON(statusFor(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// batchReceipts 批量获取回执
func (s *Server) batchReceipts(c *gin.Context) {
	var req struct {
		Hashes  []string `json:"hashes" binding:"required"`
		Workers int      `json:"workers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误", "message": err.Error()})
		return
	}
	if req.Workers == 0 {
		req.Workers = s.config.Processor.Workers
	}
	for _, hash := range req.Hashes {
		if !validation.IsValidTxHash(hash) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "交易哈希无效", "hash": hash})
			return
		}
	}

	batch, err := s.processor.ProcessHashes(c.Request.Context(), req.Hashes, req.Workers)
	if err != nil {
		c.JSON(statusFor(err), errorBody(err))
		return
	}

	messages := make([]string, 0, len(batch.Errors))
	for _, e := range batch.Errors {
		messages = append(messages, e.Error())
	}
	c.JSON(http.StatusOK, gin.H{
		"batch":  batch,
		"errors": messages,
	})
}

// listTokens 已发现代币列表
func (s *Server) listTokens(c *gin.Context) {
	if s.tokens == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未启用本地存储"})
		return
	}

	limit := 100
	if v := c.Query("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = l
		}
	}

	tokens, err := s.tokens.ListTokens(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tokens": tokens,
		"total":  len(tokens),
	})
}

// getToken 按标识查询代币
func (s *Server) getToken(c *gin.Context) {
	if s.tokens == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未启用本地存储"})
		return
	}

	identifier := c.Param("identifier")
	if !validation.IsValidTokenIdentifier(identifier) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "代币标识无效", "identifier": identifier})
		return
	}

	token, err := s.tokens.LookupToken(identifier)
	if err != nil {
		c.JSON(statusFor(err), errorBody(err))
		return
	}
	c.JSON(http.StatusOK, token)
}

// getStats 获取统计信息
func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"receipts": s.processor.Stats(),
		"errors":   s.processor.ErrorStats(),
		"uptime":   time.Since(s.startTime).String(),
	})
}

// getLogs 获取日志
func (s *Server) getLogs(c *gin.Context) {
	level := c.Query("level")

	page := 1 // 默认第1页
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}

	pageSize := 20 // 默认每页20条
	if ps, err := strconv.Atoi(c.Query("pageSize")); err == nil && ps > 0 {
		pageSize = ps
	}

	logs, total := s.logManager.GetLogsWithPagination(level, page, pageSize)

	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
		"level":    level,
	})
}

// clearLogs 清空日志
func (s *Server) clearLogs(c *gin.Context) {
	s.logManager.ClearLogs()

	c.JSON(http.StatusOK, gin.H{
		"message": "日志已清空",
	})
}

// statusFor 错误对应的HTTP状态码
func statusFor(err error) int {
	if errors.IsNotFound(err) {
		return http.StatusNotFound
	}

	var se *errors.ScanError
	if !stderrors.As(err, &se) {
		return http.StatusInternalServerError
	}

	switch se.Type {
	case errors.ErrorTypeMalformedReceipt, errors.ErrorTypeValidation:
		return http.StatusBadRequest
	case errors.ErrorTypeNetwork:
		if se.Code == "TRANSACTION_NOT_FOUND" {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	case errors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}

	var se *errors.ScanError
	if stderrors.As(err, &se) {
		body["code"] = se.Code
		body["type"] = se.Type.String()
		body["retryable"] = se.Retryable
	}
	return body
}
