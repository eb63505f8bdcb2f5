package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/optionsdesk/pkg/config"
	"github.com/betbot/optionsdesk/pkg/ratelimit"
	sdkhttp "github.com/betbot/optionsdesk/pkg/sdk/http"
)

var log = logrus.WithField("component", "bybit")

// 请求头
const (
	HeaderAPIKey     = "X-BAPI-API-KEY"
	HeaderTimestamp  = "X-BAPI-TIMESTAMP"
	HeaderRecvWindow = "X-BAPI-RECV-WINDOW"
	HeaderSign       = "X-BAPI-SIGN"
)

// Credentials API 凭证
type Credentials struct {
	APIKey    string
	APISecret string
}

// Options 客户端选项，零值字段使用默认值
type Options struct {
	BaseURL    string
	RecvWindow string
	Timeout    time.Duration
	Limiter    *ratelimit.RateLimitManager
	Clock      func() time.Time
	HTTPClient *http.Client
}

// Client Bybit V5 REST 客户端
// 每次调用只发一次请求，不做重试
type Client struct {
	http       *sdkhttp.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow string
	limiter    *ratelimit.RateLimitManager
	now        func() time.Time
}

// NewClient 创建客户端；凭证缺失时返回 *config.ConfigError
func NewClient(creds Credentials, opts Options) (*Client, error) {
	if err := config.RequireCredentials(creds.APIKey, creds.APISecret); err != nil {
		return nil, err
	}
	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultBaseURL
	}
	if opts.RecvWindow == "" {
		opts.RecvWindow = config.DefaultRecvWindow
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultTimeout
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewRateLimitManager()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Client{
		http: sdkhttp.NewClient(opts.BaseURL, sdkhttp.Options{
			Timeout:    opts.Timeout,
			RetryCount: 0,
			HTTPClient: opts.HTTPClient,
		}),
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:     creds.APIKey,
		apiSecret:  creds.APISecret,
		recvWindow: opts.RecvWindow,
		limiter:    opts.Limiter,
		now:        opts.Clock,
	}, nil
}

// BaseURL 返回 REST 根地址
func (c *Client) BaseURL() string { return c.baseURL }

// limiterKey 按端点归类限流分组
func limiterKey(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "/v5/market/"):
		return ratelimit.KeyMarket
	case strings.HasPrefix(endpoint, "/v5/account/"):
		return ratelimit.KeyAccount
	case endpoint == "/v5/order/create":
		return ratelimit.KeyOrderCreate
	case strings.HasPrefix(endpoint, "/v5/order/"):
		return ratelimit.KeyOrderHistory
	default:
		return ratelimit.KeyGeneral
	}
}

// Request 发送签名请求并返回解析后的响应外壳（不检查 retCode）
// GET 签名编码后的 query string，POST 签名 JSON body
func (c *Client) Request(ctx context.Context, method, endpoint string, query url.Values, body any) (*Envelope, error) {
	method = strings.ToUpper(method)

	var (
		payload string
		raw     []byte
	)
	switch method {
	case http.MethodGet, http.MethodDelete:
		payload = query.Encode()
	default:
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("序列化请求体失败: %w", err)
			}
			raw = b
			payload = string(b)
		}
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	headers := map[string]string{
		HeaderAPIKey:     c.apiKey,
		HeaderTimestamp:  ts,
		HeaderRecvWindow: c.recvWindow,
		HeaderSign:       Sign(c.apiSecret, c.apiKey, ts, c.recvWindow, payload),
		"Content-Type":   "application/json",
	}

	if err := c.limiter.Wait(ctx, limiterKey(endpoint)); err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}

	log.Debugf("%s %s %s", method, endpoint, payload)
	resp, err := c.http.DoRequest(ctx, method, endpoint, &sdkhttp.RequestOptions{
		Headers: headers,
		Query:   query,
		Body:    raw,
	})
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: sdkhttp.ParseHTTPError(resp, err)}
	}
	if !resp.IsSuccess() {
		log.Warnf("%s %s 返回 HTTP %d", method, endpoint, resp.StatusCode())
		return nil, &TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
			Err:        sdkhttp.ParseHTTPError(resp, nil),
		}
	}

	var env Envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, &TransportError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
			Err:        fmt.Errorf("解析响应失败: %w", err),
		}
	}
	return &env, nil
}

// call 发送请求，检查 retCode 并把 result 解到 out
func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, body any, out any) error {
	env, err := c.Request(ctx, method, endpoint, query, body)
	if err != nil {
		return err
	}
	if env.RetCode != 0 {
		return &UpstreamRejection{Endpoint: endpoint, RetCode: env.RetCode, RetMsg: env.RetMsg}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("解析 %s 结果失败: %w", endpoint, err)
	}
	return nil
}
