// Package catalog resolves product names for conversation titles. The
// catalog itself is owned by another service; only the item name is read.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/sellerchat/internal/config"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
)

// Resolver looks up the display name of a catalog item. Implementations
// return errcode.ErrCatalogItemNotFound for unknown items and an
// errcode.ErrTransient for an unreachable catalog.
type Resolver interface {
	ItemName(ctx context.Context, itemId string) (string, error)
}

// New returns an HTTP resolver when a base URL is configured, otherwise a
// static table
func New(cfg config.CatalogConfig) (Resolver, error) {
	if cfg.BaseURL == "" {
		return NewStaticResolver(cfg.StaticNames), nil
	}
	return NewHTTPResolver(cfg.BaseURL, cfg.Timeout)
}

// StaticResolver serves names from a fixed table
type StaticResolver struct {
	names map[string]string
}

// NewStaticResolver creates a StaticResolver
func NewStaticResolver(names map[string]string) *StaticResolver {
	copied := make(map[string]string, len(names))
	for k, v := range names {
		copied[k] = v
	}
	return &StaticResolver{names: copied}
}

// ItemName returns the configured name of itemId
func (r *StaticResolver) ItemName(ctx context.Context, itemId string) (string, error) {
	name, ok := r.names[itemId]
	if !ok {
		return "", errcode.ErrCatalogItemNotFound
	}
	return name, nil
}

// HTTPResolver reads items from the catalog service's GET /items/{id}
type HTTPResolver struct {
	baseURL    string
	httpClient *client.Client
	timeout    time.Duration
}

type itemResponse struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// NewHTTPResolver creates an HTTPResolver
func NewHTTPResolver(baseURL string, timeout time.Duration) (*HTTPResolver, error) {
	httpClient, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
		client.WithWriteTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	return &HTTPResolver{baseURL: baseURL, httpClient: httpClient, timeout: timeout}, nil
}

// ItemName fetches the name of itemId
func (r *HTTPResolver) ItemName(ctx context.Context, itemId string) (string, error) {
	req := &protocol.Request{}
	resp := &protocol.Response{}

	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(r.baseURL + "/items/" + url.PathEscape(itemId))

	if err := r.httpClient.DoTimeout(ctx, req, resp, r.timeout); err != nil {
		log.CtxWarn(ctx, "catalog request failed: item_id=%s, error=%v", itemId, err)
		return "", errcode.ErrTransient.Wrap(err)
	}

	switch status := resp.StatusCode(); {
	case status == consts.StatusNotFound:
		return "", errcode.ErrCatalogItemNotFound
	case status != consts.StatusOK:
		log.CtxWarn(ctx, "catalog returned unexpected status: item_id=%s, status=%d", itemId, status)
		return "", errcode.ErrTransient.Wrap(fmt.Errorf("catalog status %d", status))
	}

	var item itemResponse
	if err := json.Unmarshal(resp.Body(), &item); err != nil {
		return "", errcode.ErrTransient.Wrap(fmt.Errorf("decode catalog item: %w", err))
	}
	if item.Name == "" {
		return "", errcode.ErrCatalogItemNotFound
	}
	return item.Name, nil
}
