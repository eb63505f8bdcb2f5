package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Options 客户端选项
type Options struct {
	Timeout    time.Duration
	RetryCount int // 0 表示每个请求只发一次
	UserAgent  string
	HTTPClient *http.Client // 测试时可注入
}

type Client struct {
	client    *resty.Client
	userAgent string
}

// NewClient 创建 resty 客户端
// resty 会自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
func NewClient(host string, opts Options) *Client {
	host = strings.TrimSuffix(host, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "optionsdesk/1.0"
	}

	var client *resty.Client
	if opts.HTTPClient != nil {
		client = resty.NewWithClient(opts.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetBaseURL(host).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount)
	if opts.RetryCount > 0 {
		client.SetRetryWaitTime(1 * time.Second).
			SetRetryMaxWaitTime(10 * time.Second)
	}

	return &Client{client: client, userAgent: opts.UserAgent}
}

type RequestOptions struct {
	Headers map[string]string
	Query   url.Values
	Body    []byte // 原样发送，调用方负责序列化（签名依赖原始字节）
}

// 仅设置本次请求的默认 Header（不要再改 client 级 Header）
func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", c.userAgent)
	return r
}

// DoRequest 发送请求；响应体通过 resp.Body() 读取，不做任何解析
func (c *Client) DoRequest(ctx context.Context, method, endpoint string, opt *RequestOptions) (*resty.Response, error) {
	rc := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if len(opt.Query) > 0 {
			rc.SetQueryParamsFromValues(opt.Query)
		}
		if opt.Body != nil {
			rc.SetHeader("Content-Type", "application/json")
			rc.SetBody(opt.Body)
		}
	}

	switch strings.ToUpper(method) {
	case http.MethodGet:
		return rc.Get(endpoint)
	case http.MethodPost:
		return rc.Post(endpoint)
	case http.MethodDelete:
		return rc.Delete(endpoint)
	case http.MethodPut:
		return rc.Put(endpoint)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

// ParseHTTPError 把网络错误与非 2xx 响应统一成 error
func ParseHTTPError(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "http request failed")
	}
	if resp.IsSuccess() {
		return nil
	}
	var body any
	b := resp.Body()
	if json.Unmarshal(b, &body) != nil || body == nil {
		body = string(b)
	}
	return errors.Errorf("http non-2xx: %d %v", resp.StatusCode(), body)
}
