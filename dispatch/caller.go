package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/retry"
)

// 传播到下游的请求头.
const (
	HeaderTenantID       = "X-Tenant-Id"
	HeaderBusinessUnitID = "X-Business-Unit-Id"
	HeaderCorrelationID  = "X-Correlation-Id"
)

// CallContext 一次下游调用的租户与链路上下文.
type CallContext struct {
	TenantID       string
	BusinessUnitID string
	CorrelationID  string
}

// Caller 下游调用客户端.
//
// 请求体和响应体均为 JSON 对象；租户、业务单元和链路标识
// 通过请求头传播.
type Caller struct {
	client  *http.Client
	backoff retry.BackoffFunc
	logger  logger.Logger
}

// CallerOption Caller 配置选项.
type CallerOption func(*Caller)

// WithHTTPClient 设置底层 HTTP 客户端.
func WithHTTPClient(client *http.Client) CallerOption {
	return func(c *Caller) {
		c.client = client
	}
}

// WithCallerLogger 设置日志记录器.
func WithCallerLogger(log logger.Logger) CallerOption {
	return func(c *Caller) {
		c.logger = log
	}
}

// WithBackoff 设置传输层重试的退避策略.
func WithBackoff(backoff retry.BackoffFunc) CallerOption {
	return func(c *Caller) {
		c.backoff = backoff
	}
}

// NewCaller 创建下游调用客户端.
func NewCaller(opts ...CallerOption) *Caller {
	c := &Caller{
		client:  http.DefaultClient,
		backoff: retry.ExponentialBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call 按目标配置调用下游端点.
//
// endpoint 拼接到目标的 BaseURL 上；payload 序列化为 JSON 请求体；
// 成功时返回解析后的 JSON 响应体. 非 2xx 响应返回包装了
// ErrCallFailed 的错误；超时与连接失败原样返回.
func (c *Caller) Call(ctx context.Context, target Target, endpoint string, callCtx CallContext, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := target.BaseURL + endpoint

	ctx, cancel := context.WithTimeout(ctx, target.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTenantID, callCtx.TenantID)
	req.Header.Set(HeaderBusinessUnitID, callCtx.BusinessUnitID)
	req.Header.Set(HeaderCorrelationID, callCtx.CorrelationID)

	httpClient := retry.NewHTTPClient(c.client, &retry.Config{
		MaxAttempts: target.MaxAttempts,
		Delay:       retry.DefaultDelay,
		Backoff:     c.backoff,
	})

	resp, err := httpClient.DoWithContext(ctx, req)
	if err != nil {
		if c.logger != nil {
			c.logger.WithContext(ctx).With(
				logger.String("url", url),
				logger.Err(err),
			).Warn("[Dispatch] 下游调用失败")
		}
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.logger != nil {
			c.logger.WithContext(ctx).With(
				logger.String("url", url),
				logger.Int("status", resp.StatusCode),
			).Warn("[Dispatch] 下游返回错误响应")
		}
		return nil, fmt.Errorf("%w: %s 返回 %d", ErrCallFailed, url, resp.StatusCode)
	}

	if len(respBody) == 0 {
		return nil, nil
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}
	return result, nil
}
