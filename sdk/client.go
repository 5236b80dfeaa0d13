package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// Client is the SDK client for the seller chat API
type Client struct {
	baseURL    string
	httpClient *client.Client
	token      string
	userId     string
}

// ClientOption is a function to configure the client
type ClientOption func(*Client)

// WithHertzClient sets a custom Hertz client
func WithHertzClient(httpClient *client.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sets the authentication token
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithUserId sets the user the token was issued to. The realtime handshake
// sends it as send_id.
func WithUserId(userId string) ClientOption {
	return func(c *Client) {
		c.userId = userId
	}
}

// NewClient creates a new SDK client
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	httpClient, err := client.NewClient(
		client.WithDialTimeout(10*time.Second),
		client.WithClientReadTimeout(30*time.Second),
		client.WithWriteTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// MustNewClient creates a new SDK client and panics on error
func MustNewClient(baseURL string, opts ...ClientOption) *Client {
	c, err := NewClient(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// SetToken sets the authentication token
func (c *Client) SetToken(token string) {
	c.token = token
}

// GetToken returns the current token
func (c *Client) GetToken() string {
	return c.token
}

// UserId returns the user configured with WithUserId
func (c *Client) UserId() string {
	return c.userId
}

// request makes an HTTP request and decodes the response
func (c *Client) request(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	req := &protocol.Request{}
	resp := &protocol.Response{}

	req.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Content-Type", "application/json")

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		req.SetBody(jsonBody)
	}

	if err := c.httpClient.Do(ctx, req, resp); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	return decodeResponse(resp.Body(), result)
}

// get makes a GET request with query parameters
func (c *Client) get(ctx context.Context, path string, params map[string]string, result interface{}) error {
	if len(params) > 0 {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		path += "?" + query.Encode()
	}
	return c.request(ctx, consts.MethodGet, path, nil, result)
}

// post makes a POST request
func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.request(ctx, consts.MethodPost, path, body, result)
}

// decodeResponse unwraps the {code,msg,data} envelope into result
func decodeResponse(body []byte, result interface{}) error {
	var apiResp Response
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.Code != CodeSuccess {
		return &Error{Code: apiResp.Code, Msg: apiResp.Msg}
	}

	if result != nil && len(apiResp.Data) > 0 && string(apiResp.Data) != "null" {
		if err := json.Unmarshal(apiResp.Data, result); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}

// wsURL derives the realtime endpoint from the base URL
func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	query := url.Values{}
	query.Set(queryToken, c.token)
	if c.userId != "" {
		query.Set(querySendId, c.userId)
	}
	query.Set(querySDKType, sdkTypeGo)
	u.RawQuery = query.Encode()
	return u.String(), nil
}
