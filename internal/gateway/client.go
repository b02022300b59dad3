package gateway

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"esdtscan/internal/config"
	"esdtscan/internal/errors"
	"esdtscan/internal/logging"
	"esdtscan/internal/retry"
	"esdtscan/internal/validation"

	"github.com/sirupsen/logrus"
)

// maxResponseSize 单个回执响应的最大字节数
const maxResponseSize = 16 << 20

// Client MultiversX网关客户端
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     *logrus.Logger
}

// NewClient 创建网关客户端
func NewClient(cfg *config.GatewayConfig, logger *logrus.Logger) (*Client, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.NewScanError(errors.ErrorTypeConfig, errors.SeverityCritical,
			"CONFIG_INVALID", "未配置网关地址")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("网关地址无效: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: timeout},
		retrier:    retry.NewRetrier(retry.GatewayRetryConfig(cfg.RetryLimit, cfg.RetryDelay), logger),
		logger:     logger,
	}, nil
}

// BaseURL 网关地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchTransaction 拉取带智能合约结果的交易，返回原始响应体
func (c *Client) FetchTransaction(ctx context.Context, hash string) ([]byte, error) {
	if !validation.IsValidTxHash(hash) {
		return nil, errors.NewScanError(errors.ErrorTypeValidation, errors.SeverityLow,
			"INVALID_TX_HASH", fmt.Sprintf("交易哈希格式无效: %q", hash))
	}

	endpoint := fmt.Sprintf("%s/transaction/%s?withResults=true", c.baseURL, url.PathEscape(hash))
	start := time.Now()

	body, err := retry.Do(ctx, c.retrier, "fetch_transaction", func() ([]byte, error) {
		return c.get(ctx, endpoint)
	})

	entry := logging.NewGatewayLogger(c.logger, http.MethodGet, endpoint).WithField("tx_hash", hash)
	logging.LogOperation(entry, "fetch_transaction", start, err)
	if err != nil {
		var se *errors.ScanError
		if stderrors.As(err, &se) {
			se.WithTxHash(hash)
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeInternal, errors.SeverityHigh,
			"GATEWAY_REQUEST_INVALID", "构造网关请求失败")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeNetwork, errors.SeverityMedium,
			"GATEWAY_READ_FAILED", "读取网关响应失败")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, statusError(resp.StatusCode, body)
}

// statusError 将非2xx状态码映射为错误，5xx和429可重试
func statusError(status int, body []byte) *errors.ScanError {
	detail := strings.TrimSpace(string(body))
	if len(detail) > 256 {
		detail = detail[:256]
	}

	var se *errors.ScanError
	switch {
	case status == http.StatusNotFound:
		se = errors.NewScanError(errors.ErrorTypeNetwork, errors.SeverityLow,
			"TRANSACTION_NOT_FOUND", "网关未找到交易")
	case status == http.StatusTooManyRequests:
		se = errors.NewScanError(errors.ErrorTypeRateLimit, errors.SeverityMedium,
			"GATEWAY_RATE_LIMITED", "网关限流")
	case status >= 500:
		se = errors.NewScanError(errors.ErrorTypeNetwork, errors.SeverityMedium,
			"GATEWAY_UNAVAILABLE", fmt.Sprintf("网关返回%d", status))
	default:
		se = errors.NewScanError(errors.ErrorTypeNetwork, errors.SeverityMedium,
			"GATEWAY_CLIENT_ERROR", fmt.Sprintf("网关返回%d", status))
	}
	return se.WithContext("http_status", status).WithContext("body", detail)
}

func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.WrapError(err, errors.ErrorTypeTimeout, errors.SeverityMedium,
			"GATEWAY_TIMEOUT", "网关请求超时")
	}
	return errors.WrapError(err, errors.ErrorTypeNetwork, errors.SeverityMedium,
		"GATEWAY_REQUEST_FAILED", "网关请求失败")
}
