/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package slack

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mobgames/site/httpclient"
	"github.com/mobgames/site/httpserver/middleware"
	"github.com/mobgames/site/restapi"
)

// Web API methods.
const (
	MethodOAuthAccess   = "oauth.v2.access"
	MethodUsersInfo     = "users.info"
	MethodUsersIdentity = "users.identity"
)

// APIError is returned when Slack responds with "ok": false.
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

// OAuthAccess is a result of the OAuth code exchange.
type OAuthAccess struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
	AuthedUser  struct {
		ID          string `json:"id"`
		AccessToken string `json:"access_token"`
	} `json:"authed_user"`
}

// Token returns the token to call the Web API on behalf of the user.
func (a *OAuthAccess) Token() string {
	if a.AccessToken != "" {
		return a.AccessToken
	}
	return a.AuthedUser.AccessToken
}

// Profile is a part of users.info response.
type Profile struct {
	RealName string `json:"real_name"`
	Email    string `json:"email"`
	Image72  string `json:"image_72"`
	Image192 string `json:"image_192"`
}

// User is a workspace member as returned by users.info.
type User struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	RealName string  `json:"real_name"`
	Profile  Profile `json:"profile"`
}

// DisplayName returns the real name of the user falling back to the handle.
func (u *User) DisplayName() string {
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

// Avatar returns the largest available avatar.
func (u *User) Avatar() string {
	if u.Profile.Image192 != "" {
		return u.Profile.Image192
	}
	return u.Profile.Image72
}

// Identity is the user as returned by users.identity ("Sign in with Slack").
type Identity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Image72  string `json:"image_72"`
	Image192 string `json:"image_192"`
}

// Avatar returns the largest available avatar.
func (i *Identity) Avatar() string {
	if i.Image192 != "" {
		return i.Image192
	}
	return i.Image72
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// Client calls the Slack Web API.
// The passed http.Client is expected to be built by httpclient.NewWithOpts (retries, logging, metrics).
type Client struct {
	httpClient   *http.Client
	apiURL       string
	clientID     string
	clientSecret string
}

// NewClient creates a new Client.
func NewClient(cfg *Config, httpClient *http.Client) *Client {
	return &Client{
		httpClient:   httpClient,
		apiURL:       strings.TrimSuffix(cfg.APIURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
	}
}

// ExchangeCode exchanges the OAuth authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*OAuthAccess, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	}
	var resp struct {
		apiResponse
		OAuthAccess
	}
	// The code is single-use, so the request must not be repeated on server errors.
	if err := c.call(ctx, http.MethodPost, MethodOAuthAccess, "", form, false, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &APIError{Method: MethodOAuthAccess, Code: resp.Error}
	}
	return &resp.OAuthAccess, nil
}

// UserInfo returns the workspace member by its ID.
func (c *Client) UserInfo(ctx context.Context, token, userID string) (*User, error) {
	var resp struct {
		apiResponse
		User *User `json:"user"`
	}
	if err := c.call(ctx, http.MethodPost, MethodUsersInfo, token, url.Values{"user": {userID}}, true, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &APIError{Method: MethodUsersInfo, Code: resp.Error}
	}
	if resp.User == nil {
		return nil, &APIError{Method: MethodUsersInfo, Code: "empty_user"}
	}
	return resp.User, nil
}

// UserIdentity returns the user the token belongs to.
func (c *Client) UserIdentity(ctx context.Context, token string) (*Identity, error) {
	var resp struct {
		apiResponse
		User *Identity `json:"user"`
	}
	if err := c.call(ctx, http.MethodGet, MethodUsersIdentity, token, nil, true, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &APIError{Method: MethodUsersIdentity, Code: resp.Error}
	}
	if resp.User == nil {
		return nil, &APIError{Method: MethodUsersIdentity, Code: "empty_user"}
	}
	return resp.User, nil
}

func (c *Client) call(
	ctx context.Context, httpMethod, apiMethod, token string, form url.Values, idempotent bool, result interface{},
) error {
	ctx = httpclient.NewContextWithOperation(ctx, apiMethod)
	ctx = httpclient.NewContextWithIdempotentHint(ctx, idempotent)

	var req *http.Request
	var err error
	if form != nil {
		req, err = http.NewRequestWithContext(ctx, httpMethod, c.apiURL+"/"+apiMethod, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, httpMethod, c.apiURL+"/"+apiMethod, http.NoBody)
	}
	if err != nil {
		return fmt.Errorf("create %s request: %w", apiMethod, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return restapi.DoRequestAndUnmarshalJSON(c.httpClient, req, result, middleware.GetLoggerFromContextOrDisabled(ctx))
}
