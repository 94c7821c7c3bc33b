package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) config.InstagramConfig {
	return config.InstagramConfig{
		AppID:        "app-1",
		AppSecret:    "secret",
		RedirectURL:  "http://localhost/callback",
		AuthorizeURL: "https://www.instagram.com/oauth/authorize",
		APIURL:       baseURL,
		GraphURL:     baseURL,
		Timeout:      2 * time.Second,
	}
}

func TestInstagramClient_AuthorizeURL(t *testing.T) {
	c := NewInstagramClient(testConfig("http://unused"))
	raw, err := c.AuthorizeURL("st-1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "app-1", q.Get("client_id"))
	assert.Equal(t, "st-1", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Contains(t, q.Get("scope"), "instagram_business_manage_messages")

	unconfigured := NewInstagramClient(config.InstagramConfig{})
	_, err = unconfigured.AuthorizeURL("x")
	assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
}

func TestInstagramClient_ExchangeCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error_type":"OAuthException","error_message":"bad code"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"short","user_id":1789}`))
	})
	mux.HandleFunc("/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"long","expires_in":5184000}`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "long", r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_id":"1789","username":"acme_studio"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewInstagramClient(testConfig(srv.URL))

	t.Run("success", func(t *testing.T) {
		acct, err := c.ExchangeCode(context.Background(), "good")
		require.NoError(t, err)
		assert.Equal(t, "1789", acct.ExternalAccountID)
		assert.Equal(t, "acme_studio", acct.Username)
		assert.Equal(t, "long", acct.AccessToken)
	})

	t.Run("rejected code", func(t *testing.T) {
		_, err := c.ExchangeCode(context.Background(), "bad")
		assert.ErrorIs(t, err, domain.ErrChannelUnavailable)
	})
}

func TestInstagramClient_Revoke(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := NewInstagramClient(testConfig(srv.URL))
	assert.NoError(t, c.Revoke(context.Background(), "tok"))
	assert.NoError(t, c.Revoke(context.Background(), ""))

	status = http.StatusUnauthorized
	assert.NoError(t, c.Revoke(context.Background(), "expired"))

	status = http.StatusBadGateway
	assert.ErrorIs(t, c.Revoke(context.Background(), "tok"), domain.ErrChannelUnavailable)
}
