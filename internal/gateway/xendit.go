// Package gateway 支付网关（Xendit 风格发票接口）客户端
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"coursepay/internal/config"
)

var (
	ErrInvoiceNotFound = errors.New("网关未找到发票")
)

// maxBodySize 网关响应体读取上限
const maxBodySize = 1 << 20

const (
	InvoiceStatusPending = "PENDING"
	InvoiceStatusPaid    = "PAID"
	InvoiceStatusSettled = "SETTLED"
	InvoiceStatusExpired = "EXPIRED"
)

type Customer struct {
	Email      string `json:"email"`
	GivenNames string `json:"given_names"`
}

type CreateInvoiceRequest struct {
	ExternalID  string   `json:"external_id"`
	Amount      int64    `json:"amount"`
	Description string   `json:"description"`
	Customer    Customer `json:"customer"`
}

// Invoice 网关返回的发票，只解析用到的字段
type Invoice struct {
	ID         string  `json:"id"`
	ExternalID string  `json:"external_id"`
	Status     string  `json:"status"`
	Amount     float64 `json:"amount"`
	InvoiceURL string  `json:"invoice_url"`
}

// StatusError 网关返回非 2xx
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("网关返回异常状态 %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(cfg *config.GatewayConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// CreateInvoice 创建发票。POST 不做重试，重试可能在网关侧生成重复发票。
func (c *Client) CreateInvoice(ctx context.Context, req *CreateInvoiceRequest) (*Invoice, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	var invoice Invoice
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v2/invoices", bytes.NewReader(body), &invoice); err != nil {
		return nil, err
	}
	if invoice.InvoiceURL == "" {
		return nil, errors.New("网关响应缺少 invoice_url")
	}
	return &invoice, nil
}

// GetInvoice 按 external_id 查询发票，空数组返回 ErrInvoiceNotFound
func (c *Client) GetInvoice(ctx context.Context, externalID string) (*Invoice, error) {
	endpoint := c.baseURL + "/v2/invoices?" + url.Values{"external_id": {externalID}}.Encode()

	var invoices []Invoice
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &invoices); err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, ErrInvoiceNotFound
	}
	return &invoices[0], nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	// 密钥作为用户名，密码为空
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
