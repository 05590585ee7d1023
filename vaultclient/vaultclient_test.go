package vaultclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vagent-project/vagent/errkind"
)

func TestPrelogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/prelogin", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"Kdf": 0, "KdfIterations": 600000})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.URL, srv.URL, "device-1", 5*time.Second)
	kdf, err := c.Prelogin(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, "pbkdf2", kdf.Algorithm)
	assert.Equal(t, uint32(600000), kdf.Iterations)
}

func TestLoginPasswordWrongPasswordClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "username or password is incorrect",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.URL, srv.URL, "device-1", 5*time.Second)
	_, err := c.LoginPassword(context.Background(), "user@example.com", "hash", "agent", nil, nil)
	require.Error(t, err)
	assert.True(t, errkind.Is(err, errkind.KindIncorrectPassword))
}

func TestLoginPasswordTwoFactorRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":              "invalid_grant",
			"error_description":  "Two factor required.",
			"TwoFactorProviders": []int{0, 1},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.URL, srv.URL, "device-1", 5*time.Second)
	_, err := c.LoginPassword(context.Background(), "user@example.com", "hash", "agent", nil, nil)
	require.Error(t, err)

	var tfErr *TwoFactorRequiredError
	require.ErrorAs(t, err, &tfErr)
	assert.Equal(t, []TwoFactorProvider{TwoFactorAuthenticator, TwoFactorEmail}, tfErr.Providers)
}

func TestWithRefreshRetriesOnceOnUnauthorized(t *testing.T) {
	refreshCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls++
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, srv.URL, srv.URL, "device-1", 5*time.Second)

	attempts := 0
	var sawNewToken string
	err := c.WithRefresh(context.Background(), "old-access", "old-refresh",
		func(access, refresh string) { sawNewToken = access },
		func(accessToken string) error {
			attempts++
			if accessToken == "old-access" {
				return errkind.New(errkind.KindRequestUnauthorized, "unauthorized")
			}
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1, refreshCalls)
	assert.Equal(t, "new-access", sawNewToken)
}

func TestWithRefreshDoesNotRetryOnOtherErrors(t *testing.T) {
	c := New("http://unused", "http://unused", "http://unused", "device-1", 5*time.Second)

	attempts := 0
	err := c.WithRefresh(context.Background(), "access", "refresh", nil, func(accessToken string) error {
		attempts++
		return errkind.New(errkind.KindRequestFailed, "boom")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
