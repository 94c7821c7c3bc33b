package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/pkg/config"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"go.uber.org/zap"
)

// Scopes requested for DM automation
var instagramScopes = []string{
	"instagram_business_basic",
	"instagram_business_manage_messages",
}

// ChannelClient is the messaging platform handshake collaborator
type ChannelClient interface {
	// AuthorizeURL builds the consent page URL carrying state
	AuthorizeURL(state string) (string, error)
	// ExchangeCode turns an authorization code into account credentials
	ExchangeCode(ctx context.Context, code string) (*domain.ChannelAccount, error)
	// Revoke invalidates an access token at the provider
	Revoke(ctx context.Context, accessToken string) error
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	UserID      json.Number `json:"user_id"`
	ExpiresIn   int64       `json:"expires_in"`
}

type accountResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type errorResponse struct {
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
	Error        struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (e *errorResponse) message() string {
	if e.ErrorMessage != "" {
		return e.ErrorMessage
	}
	return e.Error.Message
}

// InstagramClient implements ChannelClient against the Instagram Login API
type InstagramClient struct {
	cfg   config.InstagramConfig
	api   *resty.Client
	graph *resty.Client
}

// NewInstagramClient creates a new Instagram client
func NewInstagramClient(cfg config.InstagramConfig) *InstagramClient {
	newClient := func(baseURL string) *resty.Client {
		return resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetRetryCount(2).
			SetHeader("Accept", "application/json")
	}
	return &InstagramClient{
		cfg:   cfg,
		api:   newClient(cfg.APIURL),
		graph: newClient(cfg.GraphURL),
	}
}

func (c *InstagramClient) configured() error {
	if c.cfg.AppID == "" || c.cfg.AppSecret == "" {
		return fmt.Errorf("%w: instagram app credentials are not configured", domain.ErrChannelUnavailable)
	}
	return nil
}

// AuthorizeURL builds the consent URL for the configured app
func (c *InstagramClient) AuthorizeURL(state string) (string, error) {
	if err := c.configured(); err != nil {
		return "", err
	}
	params := url.Values{}
	params.Set("client_id", c.cfg.AppID)
	params.Set("redirect_uri", c.cfg.RedirectURL)
	params.Set("scope", strings.Join(instagramScopes, ","))
	params.Set("response_type", "code")
	params.Set("state", state)
	params.Set("enable_fb_login", "0")
	return c.cfg.AuthorizeURL + "?" + params.Encode(), nil
}

// ExchangeCode swaps the code for a short-lived token, upgrades it to a
// long-lived one when possible, then reads the account identity
func (c *InstagramClient) ExchangeCode(ctx context.Context, code string) (*domain.ChannelAccount, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	log := logger.WithContext(ctx)

	var short tokenResponse
	var apiErr errorResponse
	resp, err := c.api.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     c.cfg.AppID,
			"client_secret": c.cfg.AppSecret,
			"grant_type":    "authorization_code",
			"redirect_uri":  c.cfg.RedirectURL,
			"code":          code,
		}).
		SetResult(&short).
		SetError(&apiErr).
		Post("/oauth/access_token")
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", domain.ErrChannelUnavailable, err)
	}
	if resp.IsError() || short.AccessToken == "" {
		log.Warn("Instagram token exchange rejected",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", apiErr.message()),
		)
		return nil, fmt.Errorf("%w: token exchange rejected (status %d)", domain.ErrChannelUnavailable, resp.StatusCode())
	}

	accessToken := short.AccessToken
	var long tokenResponse
	resp, err = c.graph.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type":    "ig_exchange_token",
			"client_secret": c.cfg.AppSecret,
			"access_token":  short.AccessToken,
		}).
		SetResult(&long).
		Get("/access_token")
	if err == nil && !resp.IsError() && long.AccessToken != "" {
		accessToken = long.AccessToken
	} else {
		log.Warn("Long-lived token exchange failed, keeping short-lived token")
	}

	var account accountResponse
	resp, err = c.graph.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"fields":       "user_id,username,name",
			"access_token": accessToken,
		}).
		SetResult(&account).
		SetError(&apiErr).
		Get("/me")
	if err != nil {
		return nil, fmt.Errorf("%w: account lookup: %v", domain.ErrChannelUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: account lookup rejected (status %d)", domain.ErrChannelUnavailable, resp.StatusCode())
	}

	accountID := account.UserID
	if accountID == "" {
		accountID = short.UserID.String()
	}
	return &domain.ChannelAccount{
		ExternalAccountID: accountID,
		Username:          account.Username,
		AccessToken:       accessToken,
	}, nil
}

// Revoke removes the app's permissions for the token's account
func (c *InstagramClient) Revoke(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	resp, err := c.graph.R().
		SetContext(ctx).
		SetQueryParam("access_token", accessToken).
		Delete("/me/permissions")
	if err != nil {
		return fmt.Errorf("%w: revoke: %v", domain.ErrChannelUnavailable, err)
	}
	// an already invalid token has nothing left to revoke
	if resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized {
		return nil
	}
	if resp.IsError() {
		return fmt.Errorf("%w: revoke rejected (status %d)", domain.ErrChannelUnavailable, resp.StatusCode())
	}
	return nil
}
