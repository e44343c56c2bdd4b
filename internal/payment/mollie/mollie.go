package mollie

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
	"time"

	"github.com/payrecon/internal/constants"
	"github.com/payrecon/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

var (
	ErrConfigInvalid     = errors.New("mollie config invalid")
	ErrResourceIDInvalid = errors.New("mollie resource id invalid")
	ErrRequestFailed     = errors.New("mollie request failed")
	ErrRequestRejected   = errors.New("mollie request rejected")
	ErrResourceNotFound  = errors.New("mollie resource not found")
	ErrResponseInvalid   = errors.New("mollie response invalid")
	ErrCircuitOpen       = errors.New("mollie circuit open")
	ErrKindUnsupported   = errors.New("mollie operation unsupported for resource kind")
)

const (
	defaultBaseURL = "https://api.mollie.com"
	defaultTimeout = 12 * time.Second
	apiVersionPath = "/v2"
)

// Config Mollie 客户端配置。
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Breaker BreakerConfig
}

// BreakerConfig 熔断参数。
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// Resource 远端支付/订单资源。
type Resource struct {
	ID             string
	Kind           string
	Status         string
	Amount         decimal.Decimal
	Currency       string
	AmountRefunded decimal.Decimal
	Lines          []Line
	Refunds        []Refund
	Raw            map[string]interface{}
}

// Line 订单行项目。
type Line struct {
	ID               string
	Status           string
	Name             string
	Quantity         int
	QuantityRefunded int
	QuantityCanceled int
}

// Refund 退款记录。
type Refund struct {
	ID      string
	Status  string
	Amount  decimal.Decimal
	LineIDs []string
}

// RefundInput 退款输入，订单类型按行退款，支付类型按金额退款。
type RefundInput struct {
	LineIDs     []string
	Amount      decimal.Decimal
	Currency    string
	Description string
}

// Client Mollie REST 客户端。
type Client struct {
	cfg        Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*apiResponse]
}

type apiResponse struct {
	status int
	body   []byte
}

// NewClient 创建客户端。
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	cfg.normalize()
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	settings := gobreaker.Settings{
		Name:        "mollie",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Breaker.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// 4xx 属于调用方问题，不计入熔断统计
			return err == nil || errors.Is(err, ErrResourceNotFound) || errors.Is(err, ErrRequestRejected)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warnw("mollie_breaker_state_changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		breaker:    gobreaker.NewCircuitBreaker[*apiResponse](settings),
	}, nil
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: api_key is required", ErrConfigInvalid)
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%w: base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// KindOf 根据资源 ID 前缀判断资源类型，无法识别时返回空字符串。
func KindOf(resourceID string) string {
	resourceID = strings.TrimSpace(resourceID)
	switch {
	case strings.HasPrefix(resourceID, constants.RemotePaymentIDPrefix):
		return constants.RemoteKindPayment
	case strings.HasPrefix(resourceID, constants.RemoteOrderIDPrefix):
		return constants.RemoteKindOrder
	default:
		return ""
	}
}

// BreakerState 返回当前熔断状态。
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Get 读取远端资源（包含退款记录）。
func (c *Client) Get(ctx context.Context, resourceID string) (*Resource, error) {
	kind, err := resolveKind(resourceID)
	if err != nil {
		return nil, err
	}
	endpoint := resourceEndpoint(kind, resourceID) + "?embed=refunds"
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode resource failed", ErrResponseInvalid)
	}
	resource, err := parseResource(raw)
	if err != nil {
		return nil, err
	}
	if resource.Kind != kind {
		return nil, fmt.Errorf("%w: expected %s resource, got %s", ErrResponseInvalid, kind, resource.Kind)
	}
	return resource, nil
}

// Cancel 取消远端资源。
func (c *Client) Cancel(ctx context.Context, resourceID string) error {
	kind, err := resolveKind(resourceID)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodDelete, resourceEndpoint(kind, resourceID), nil)
	return err
}

// ShipAll 发货全部行项目，同时触发资金捕获，仅订单类型支持。
func (c *Client) ShipAll(ctx context.Context, resourceID string) error {
	kind, err := resolveKind(resourceID)
	if err != nil {
		return err
	}
	if kind != constants.RemoteKindOrder {
		return fmt.Errorf("%w: ship requires order resource", ErrKindUnsupported)
	}
	_, err = c.do(ctx, http.MethodPost, resourceEndpoint(kind, resourceID)+"/shipments", map[string]interface{}{
		"lines": []interface{}{},
	})
	return err
}

// Refund 发起退款。
func (c *Client) Refund(ctx context.Context, resourceID string, input RefundInput) error {
	kind, err := resolveKind(resourceID)
	if err != nil {
		return err
	}
	body := map[string]interface{}{}
	if strings.TrimSpace(input.Description) != "" {
		body["description"] = strings.TrimSpace(input.Description)
	}
	if kind == constants.RemoteKindOrder {
		body["lines"] = lineRefs(input.LineIDs)
	} else {
		if !input.Amount.IsPositive() {
			return fmt.Errorf("%w: refund amount must be positive", ErrRequestRejected)
		}
		body["amount"] = map[string]interface{}{
			"currency": strings.ToUpper(strings.TrimSpace(input.Currency)),
			"value":    input.Amount.StringFixed(2),
		}
	}
	_, err = c.do(ctx, http.MethodPost, resourceEndpoint(kind, resourceID)+"/refunds", body)
	return err
}

// CancelLines 取消订单中的指定行项目，仅订单类型支持。
func (c *Client) CancelLines(ctx context.Context, resourceID string, lineIDs []string) error {
	kind, err := resolveKind(resourceID)
	if err != nil {
		return err
	}
	if kind != constants.RemoteKindOrder {
		return fmt.Errorf("%w: cancel lines requires order resource", ErrKindUnsupported)
	}
	if len(lineIDs) == 0 {
		return fmt.Errorf("%w: no lines to cancel", ErrRequestRejected)
	}
	_, err = c.do(ctx, http.MethodDelete, resourceEndpoint(kind, resourceID)+"/lines", map[string]interface{}{
		"lines": lineRefs(lineIDs),
	})
	return err
}

// RefundedLineIDs 返回已产生退款的行ID；支付类型没有行项目时返回退款记录ID。
func (r *Resource) RefundedLineIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0)
	if r.Kind == constants.RemoteKindOrder {
		for _, line := range r.Lines {
			if line.QuantityRefunded > 0 || strings.EqualFold(line.Status, constants.RemoteStatusRefunded) {
				ids = append(ids, line.ID)
			}
		}
		return ids
	}
	for _, refund := range r.Refunds {
		switch strings.ToLower(refund.Status) {
		case "failed", "canceled":
			continue
		}
		ids = append(ids, refund.ID)
	}
	return ids
}

// CanceledLineIDs 返回已取消的行ID。
func (r *Resource) CanceledLineIDs() []string {
	if r == nil || r.Kind != constants.RemoteKindOrder {
		return nil
	}
	ids := make([]string, 0)
	for _, line := range r.Lines {
		if line.QuantityCanceled > 0 || strings.EqualFold(line.Status, constants.RemoteStatusCanceled) {
			ids = append(ids, line.ID)
		}
	}
	return ids
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload interface{}) (*apiResponse, error) {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encode request failed", ErrRequestFailed)
		}
		body = encoded
	}
	resp, err := c.breaker.Execute(func() (*apiResponse, error) {
		return c.doJSONRequest(ctx, method, endpoint, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) doJSONRequest(ctx context.Context, method, endpoint string, body []byte) (*apiResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := c.withDefaultTimeout(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+apiVersionPath+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Accept", "application/hal+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request failed: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: status=%d", ErrResourceNotFound, resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("%w: status=%d detail=%s", ErrRequestRejected, resp.StatusCode, readErrorDetail(respBody))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status=%d", ErrRequestFailed, resp.StatusCode)
	}
	return &apiResponse{status: resp.StatusCode, body: respBody}, nil
}

func (c *Client) withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func (c *Config) normalize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.BaseURL = strings.TrimSuffix(c.BaseURL, apiVersionPath)
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Breaker.MaxRequests == 0 {
		c.Breaker.MaxRequests = 1
	}
	if c.Breaker.Interval <= 0 {
		c.Breaker.Interval = 60 * time.Second
	}
	if c.Breaker.Timeout <= 0 {
		c.Breaker.Timeout = 30 * time.Second
	}
	if c.Breaker.ConsecutiveFailures == 0 {
		c.Breaker.ConsecutiveFailures = 5
	}
}

func resolveKind(resourceID string) (string, error) {
	kind := KindOf(resourceID)
	if kind == "" {
		return "", fmt.Errorf("%w: %q", ErrResourceIDInvalid, resourceID)
	}
	return kind, nil
}

func resourceEndpoint(kind, resourceID string) string {
	escaped := url.PathEscape(strings.TrimSpace(resourceID))
	if kind == constants.RemoteKindOrder {
		return "/orders/" + escaped
	}
	return "/payments/" + escaped
}

func lineRefs(lineIDs []string) []interface{} {
	refs := make([]interface{}, 0, len(lineIDs))
	for _, id := range lineIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		refs = append(refs, map[string]interface{}{"id": id})
	}
	return refs
}

func readErrorDetail(body []byte) string {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return ""
	}
	return readString(raw, "detail")
}
