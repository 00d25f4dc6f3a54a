package validation

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotob/curia-sub002/internal/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

func TestParseRequiredServices(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"postgres", []string{"postgres"}},
		{" Redis , CHAIN ", []string{"redis", "chain"}},
		{"postgres,,redis", []string{"postgres", "redis"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, parseRequiredServices(tc.in), "input %q", tc.in)
	}
}

func TestValidateServicesNothingRequired(t *testing.T) {
	t.Setenv("REQUIRED_SERVICES", "")

	sv := NewServiceValidator()
	require.NoError(t, sv.ValidateServices(context.Background()))
}

func TestValidateServicesUnknownServiceSkipped(t *testing.T) {
	t.Setenv("REQUIRED_SERVICES", "frobnicator")

	sv := NewServiceValidator()
	require.NoError(t, sv.ValidateServices(context.Background()))
}

func TestValidateTelegram(t *testing.T) {
	const token = "123456:test-token"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot"+token+"/getMe", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"username":"curia_notify_bot"}}`)
	}))
	defer srv.Close()

	t.Setenv("TELEGRAM_BOT_TOKEN", token)
	t.Setenv("TELEGRAM_API_BASE_URL", srv.URL)
	t.Setenv("REQUIRED_SERVICES", "telegram")

	sv := NewServiceValidator()
	require.NoError(t, sv.ValidateServices(context.Background()))
}

func TestValidateTelegramRejectedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	t.Setenv("TELEGRAM_BOT_TOKEN", "bad-token")
	t.Setenv("TELEGRAM_API_BASE_URL", srv.URL)
	t.Setenv("REQUIRED_SERVICES", "telegram")

	sv := NewServiceValidator()
	err := sv.ValidateServices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
}

func TestValidateTelegramWithoutToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("REQUIRED_SERVICES", "telegram")

	sv := NewServiceValidator()
	err := sv.ValidateServices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_BOT_TOKEN")
}

func TestValidateChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`)
	}))
	defer srv.Close()

	t.Setenv("ETH_RPC_URL", srv.URL)
	t.Setenv("LUKSO_RPC_URL", "")
	t.Setenv("REQUIRED_SERVICES", "chain")

	sv := NewServiceValidator()
	require.NoError(t, sv.ValidateServices(context.Background()))
}

func TestValidateChainUnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	t.Setenv("ETH_RPC_URL", srv.URL)
	t.Setenv("LUKSO_RPC_URL", "")
	t.Setenv("REQUIRED_SERVICES", "chain")

	sv := NewServiceValidator()
	err := sv.ValidateServices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ethereum")
}

func TestValidateChainWithoutEndpoints(t *testing.T) {
	t.Setenv("ETH_RPC_URL", "")
	t.Setenv("LUKSO_RPC_URL", "")
	t.Setenv("REQUIRED_SERVICES", "chain")

	sv := NewServiceValidator()
	err := sv.ValidateServices(context.Background())
	require.Error(t, err)
}
