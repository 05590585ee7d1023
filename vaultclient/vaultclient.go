// Copyright (C) 2025 vagent-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package vaultclient implements the HTTP calls the core depends on:
// prelogin, password/API-key login, sync, refresh-token exchange, and
// folder listing/creation, plus the bearer-token auto-refresh wrapper and
// login-error classification described in section 4.6.
package vaultclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/vagent-project/vagent/errkind"
	"github.com/vagent-project/vagent/vaultmodel"
)

// TwoFactorProvider enumerates the recognized two-factor provider tags.
type TwoFactorProvider int

const (
	TwoFactorAuthenticator    TwoFactorProvider = 0
	TwoFactorEmail            TwoFactorProvider = 1
	TwoFactorDuo              TwoFactorProvider = 2
	TwoFactorYubikey          TwoFactorProvider = 3
	TwoFactorU2f              TwoFactorProvider = 4
	TwoFactorRemember         TwoFactorProvider = 5
	TwoFactorOrganizationDuo  TwoFactorProvider = 6
	TwoFactorWebAuthn         TwoFactorProvider = 7
)

// Client is the vault-server HTTP client.
type Client struct {
	BaseURL          string
	IdentityURL      string
	NotificationsURL string
	DeviceID         string

	httpClient *http.Client
	limiter    *rate.Limiter
}

// New returns a client with the teacher-style http.Client{Timeout: ...}
// construction, and a client-side rate limiter guarding retried calls.
func New(baseURL, identityURL, notificationsURL, deviceID string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:          baseURL,
		IdentityURL:      identityURL,
		NotificationsURL: notificationsURL,
		DeviceID:         deviceID,
		httpClient:       &http.Client{Timeout: timeout},
		limiter:          rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// KdfDescriptor is the result of a Prelogin call.
type KdfDescriptor = vaultmodel.KdfDescriptor

type preloginReq struct {
	Email string `json:"email"`
}

type preloginRes struct {
	Kdf           uint32 `json:"Kdf"`
	KdfIterations uint32 `json:"KdfIterations"`
}

// Prelogin fetches the KDF descriptor the server expects for email.
func (c *Client) Prelogin(ctx context.Context, email string) (KdfDescriptor, error) {
	var res preloginRes
	if err := c.postJSON(ctx, c.BaseURL+"/accounts/prelogin", preloginReq{Email: email}, &res, ""); err != nil {
		return KdfDescriptor{}, err
	}
	algo := "pbkdf2"
	if res.Kdf == 1 {
		algo = "argon2id"
	}
	return KdfDescriptor{Algorithm: algo, Iterations: res.KdfIterations}, nil
}

// LoginResult is the outcome of a successful password or API-key login.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ProtectedKey string
}

type connectErrorRes struct {
	Error             string `json:"error"`
	ErrorDescription  string `json:"error_description"`
	ErrorModel        *struct {
		Message string `json:"Message"`
	} `json:"ErrorModel"`
	TwoFactorProviders []uint32 `json:"TwoFactorProviders"`
}

// TwoFactorRequiredError carries the provider list from a 2FA challenge.
type TwoFactorRequiredError struct {
	Providers       []TwoFactorProvider
	SsoSessionToken string
}

func (e *TwoFactorRequiredError) Error() string { return "two-factor authentication required" }

// classifyLoginError inspects a non-2xx connect/token response body and
// distinguishes wrong-password, two-factor-required, and generic failure.
func classifyLoginError(status int, body []byte) error {
	var er connectErrorRes
	if err := json.Unmarshal(body, &er); err != nil {
		return errkind.Newf(errkind.KindRequestFailed, "request failed with status %d", status).WithField("status", status)
	}

	if len(er.TwoFactorProviders) > 0 {
		providers := make([]TwoFactorProvider, 0, len(er.TwoFactorProviders))
		for _, p := range er.TwoFactorProviders {
			providers = append(providers, TwoFactorProvider(p))
		}
		return &TwoFactorRequiredError{Providers: providers}
	}

	message := er.ErrorDescription
	if er.ErrorModel != nil && er.ErrorModel.Message != "" {
		message = er.ErrorModel.Message
	}
	if er.Error == "invalid_grant" {
		return errkind.New(errkind.KindIncorrectPassword, message)
	}

	return errkind.Newf(errkind.KindRequestFailed, "request failed with status %d: %s", status, message).WithField("status", status)
}

// LoginPassword performs the password grant.
func (c *Client) LoginPassword(ctx context.Context, email, passwordHashB64, deviceName string, twoFactorToken *string, twoFactorProvider *TwoFactorProvider) (*LoginResult, error) {
	form := map[string]string{
		"grant_type":        "password",
		"username":          email,
		"password":          passwordHashB64,
		"scope":             "api offline_access",
		"client_id":         "desktop",
		"deviceType":        "8",
		"deviceIdentifier":  c.DeviceID,
		"deviceName":        deviceName,
		"devicePushToken":   "",
	}
	if twoFactorToken != nil {
		form["twoFactorToken"] = *twoFactorToken
	}
	if twoFactorProvider != nil {
		form["twoFactorProvider"] = fmt.Sprintf("%d", *twoFactorProvider)
	}
	return c.connectToken(ctx, form)
}

// LoginAPIKey performs the client_credentials grant (supplemented feature).
func (c *Client) LoginAPIKey(ctx context.Context, clientID, clientSecret, deviceName string) (*LoginResult, error) {
	form := map[string]string{
		"grant_type":       "client_credentials",
		"client_id":        clientID,
		"client_secret":    clientSecret,
		"scope":            "api.secrets",
		"deviceType":       "8",
		"deviceIdentifier": c.DeviceID,
		"deviceName":       deviceName,
	}
	return c.connectToken(ctx, form)
}

func (c *Client) connectToken(ctx context.Context, form map[string]string) (*LoginResult, error) {
	values := make(url.Values)
	for k, v := range form {
		values.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.IdentityURL+"/connect/token", bytes.NewReader([]byte(values.Encode())))
	if err != nil {
		return nil, errkind.Wrap(errkind.KindNetwork, err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindNetwork, err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindNetwork, err, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyLoginError(resp.StatusCode, body)
	}

	var res struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		Key          string `json:"Key"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, errkind.Wrap(errkind.KindRequestFailed, err, "failed to parse login response")
	}

	return &LoginResult{AccessToken: res.AccessToken, RefreshToken: res.RefreshToken, ProtectedKey: res.Key}, nil
}

// ExchangeRefreshToken exchanges a refresh token for a new access token.
func (c *Client) ExchangeRefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	values := make(url.Values)
	values.Set("grant_type", "refresh_token")
	values.Set("client_id", "desktop")
	values.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.IdentityURL+"/connect/token", bytes.NewReader([]byte(values.Encode())))
	if err != nil {
		return "", "", errkind.Wrap(errkind.KindNetwork, err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if err != nil {
		return "", "", errkind.Wrap(errkind.KindNetwork, err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", "", errkind.New(errkind.KindRequestUnauthorized, "refresh token rejected")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", errkind.Newf(errkind.KindRequestFailed, "refresh failed with status %d", resp.StatusCode).WithField("status", resp.StatusCode)
	}

	var res struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", "", errkind.Wrap(errkind.KindRequestFailed, err, "failed to parse refresh response")
	}
	return res.AccessToken, res.RefreshToken, nil
}

// SyncResult is what Sync returns to the dispatcher.
type SyncResult struct {
	ProtectedMasterKey  string
	ProtectedPrivateKey string
	ProtectedOrgKeys    map[string]string
	Entries             []vaultmodel.Entry
	Folders             []vaultmodel.Folder
}

// Sync fetches the full vault state.
func (c *Client) Sync(ctx context.Context, accessToken string) (*SyncResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/sync", nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindNetwork, err, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindNetwork, err, "request failed")
	}
	defer resp.Body.Close()

	if err := statusToErr(resp.StatusCode); err != nil {
		return nil, err
	}

	var res struct {
		Profile struct {
			Key             string            `json:"Key"`
			PrivateKey      string            `json:"PrivateKey"`
			Organizations   []struct {
				ID  string `json:"Id"`
				Key string `json:"Key"`
			} `json:"Organizations"`
		} `json:"Profile"`
		Ciphers []vaultmodel.Entry  `json:"Ciphers"`
		Folders []vaultmodel.Folder `json:"Folders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, errkind.Wrap(errkind.KindRequestFailed, err, "failed to parse sync response")
	}

	orgKeys := make(map[string]string, len(res.Profile.Organizations))
	for _, o := range res.Profile.Organizations {
		orgKeys[o.ID] = o.Key
	}

	return &SyncResult{
		ProtectedMasterKey:  res.Profile.Key,
		ProtectedPrivateKey: res.Profile.PrivateKey,
		ProtectedOrgKeys:    orgKeys,
		Entries:             res.Ciphers,
		Folders:             res.Folders,
	}, nil
}

// CreateFolder and ListFolders supplement the core with folder CRUD
// (SPEC_FULL.md supplemented feature 4); only the shapes the core needs to
// resolve Entry.FolderID are implemented.
func (c *Client) ListFolders(ctx context.Context, accessToken string) ([]vaultmodel.Folder, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/folders", nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindNetwork, err, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindNetwork, err, "request failed")
	}
	defer resp.Body.Close()

	if err := statusToErr(resp.StatusCode); err != nil {
		return nil, err
	}

	var res struct {
		Data []vaultmodel.Folder `json:"Data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, errkind.Wrap(errkind.KindRequestFailed, err, "failed to parse folders response")
	}
	return res.Data, nil
}

func (c *Client) CreateFolder(ctx context.Context, accessToken string, folder vaultmodel.Folder) (*vaultmodel.Folder, error) {
	var res vaultmodel.Folder
	if err := c.postJSON(ctx, c.BaseURL+"/folders", folder, &res, accessToken); err != nil {
		return nil, err
	}
	return &res, nil
}

// WithRefresh runs call with accessToken; on RequestUnauthorized it
// exchanges refreshToken for a new access token, invokes onNewAccessToken,
// and retries call exactly once.
func (c *Client) WithRefresh(ctx context.Context, accessToken, refreshToken string, onNewAccessToken func(access, refresh string), call func(accessToken string) error) error {
	err := call(accessToken)
	if err == nil {
		return nil
	}
	if !errkind.Is(err, errkind.KindRequestUnauthorized) {
		return err
	}

	newAccess, newRefresh, rerr := c.ExchangeRefreshToken(ctx, refreshToken)
	if rerr != nil {
		return rerr
	}
	if onNewAccessToken != nil {
		onNewAccessToken(newAccess, newRefresh)
	}
	return call(newAccess)
}

func statusToErr(status int) error {
	if status == http.StatusUnauthorized {
		return errkind.New(errkind.KindRequestUnauthorized, "request unauthorized")
	}
	if status < 200 || status >= 300 {
		return errkind.Newf(errkind.KindRequestFailed, "request failed with status %d", status).WithField("status", status)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, body any, out any, accessToken string) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return errkind.Wrap(errkind.KindRequestFailed, err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return errkind.Wrap(errkind.KindNetwork, err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.do(req)
	if err != nil {
		return errkind.Wrap(errkind.KindNetwork, err, "request failed")
	}
	defer resp.Body.Close()

	if err := statusToErr(resp.StatusCode); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errkind.Wrap(errkind.KindRequestFailed, err, "failed to parse response")
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	return c.httpClient.Do(req)
}

