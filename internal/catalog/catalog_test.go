package catalog

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/sellerchat/internal/config"
	"github.com/mbeoliero/sellerchat/pkg/errcode"
)

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(map[string]string{"101": "Blue Mug"})

	name, err := r.ItemName(context.Background(), "101")
	require.NoError(t, err)
	assert.Equal(t, "Blue Mug", name)

	_, err = r.ItemName(context.Background(), "404")
	assert.ErrorIs(t, err, errcode.ErrCatalogItemNotFound)
}

func TestHTTPResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/items/101":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"101","name":"Blue Mug"}`))
		case "/items/500":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	r, err := NewHTTPResolver(srv.URL, time.Second)
	require.NoError(t, err)
	ctx := context.Background()

	name, err := r.ItemName(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, "Blue Mug", name)

	_, err = r.ItemName(ctx, "999")
	assert.ErrorIs(t, err, errcode.ErrCatalogItemNotFound)

	_, err = r.ItemName(ctx, "500")
	assert.Equal(t, errcode.KindTransient, errcode.KindOf(err))
}

func TestHTTPResolverUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	r, err := NewHTTPResolver("http://"+addr, 200*time.Millisecond)
	require.NoError(t, err)

	_, err = r.ItemName(context.Background(), "101")
	assert.Equal(t, errcode.KindTransient, errcode.KindOf(err))
}

func TestNewPicksResolver(t *testing.T) {
	r, err := New(config.CatalogConfig{StaticNames: map[string]string{"1": "x"}})
	require.NoError(t, err)
	assert.IsType(t, &StaticResolver{}, r)

	r, err = New(config.CatalogConfig{BaseURL: "http://catalog.internal", Timeout: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &HTTPResolver{}, r)
}
