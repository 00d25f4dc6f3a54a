package validation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flotob/curia-sub002/internal/cache"
	"github.com/flotob/curia-sub002/internal/chain"
	"github.com/flotob/curia-sub002/internal/database"
	"github.com/flotob/curia-sub002/internal/logger"
	"github.com/flotob/curia-sub002/internal/storage"
)

// checkTimeout bounds each individual service probe.
const checkTimeout = 10 * time.Second

// ServiceValidator verifies that the services named in REQUIRED_SERVICES
// are reachable before the server finishes booting. Services not listed
// stay optional and degrade at runtime instead.
type ServiceValidator struct {
	requiredServices []string
}

// NewServiceValidator reads REQUIRED_SERVICES, a comma-separated subset
// of: postgres, redis, telegram, chain, s3.
func NewServiceValidator() *ServiceValidator {
	return &ServiceValidator{
		requiredServices: parseRequiredServices(os.Getenv("REQUIRED_SERVICES")),
	}
}

// ValidateServices runs every required check in order. The first failure
// returns an error the caller is expected to treat as fatal.
func (sv *ServiceValidator) ValidateServices(ctx context.Context) error {
	if len(sv.requiredServices) == 0 {
		logger.Log.Info("No required services configured for validation")
		return nil
	}

	logger.Log.Info("🔍 Validating required services",
		zap.Strings("services", sv.requiredServices),
	)

	checks := serviceChecks()

	for _, name := range sv.requiredServices {
		check, ok := checks[name]
		if !ok {
			logger.Log.Warn("Unknown service in REQUIRED_SERVICES",
				zap.String("service", name),
			)
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(checkCtx)
		cancel()
		if err != nil {
			logger.Log.Error("❌ Required service validation failed",
				zap.String("service", name),
				zap.Error(err),
			)
			return fmt.Errorf("required service %q validation failed: %w", name, err)
		}

		logger.Log.Info("✅ Service validated",
			zap.String("service", name),
		)
	}

	return nil
}

func serviceChecks() map[string]func(ctx context.Context) error {
	return map[string]func(ctx context.Context) error{
		"postgres": validatePostgres,
		"redis":    validateRedis,
		"telegram": validateTelegram,
		"chain":    validateChain,
		"s3":       validateS3,
	}
}

// validatePostgres pings the configured database over a throwaway
// connection; the pooled connection comes later in boot.
func validatePostgres(ctx context.Context) error {
	db, err := sql.Open("postgres", database.PostgresDSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// validateRedis connects and pings through the client constructor.
func validateRedis(ctx context.Context) error {
	client, err := cache.NewRedisClient(
		os.Getenv("REDIS_HOST"),
		os.Getenv("REDIS_PORT"),
		os.Getenv("REDIS_PASSWORD"),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client.Close()
}

// validateTelegram calls getMe with the configured bot token.
func validateTelegram(ctx context.Context) error {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}

	base := os.Getenv("TELEGRAM_API_BASE_URL")
	if base == "" {
		base = "https://api.telegram.org"
	}

	url := fmt.Sprintf("%s/bot%s/getMe", strings.TrimSuffix(base, "/"), token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build getMe request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach the Bot API: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode getMe response: %w", err)
	}
	if !body.OK {
		return fmt.Errorf("the Bot API rejected the token (status %d)", resp.StatusCode)
	}
	return nil
}

// validateChain probes eth_chainId on every configured RPC endpoint.
func validateChain(ctx context.Context) error {
	endpoints := []struct {
		name string
		url  string
	}{
		{"ethereum", os.Getenv("ETH_RPC_URL")},
		{"lukso", os.Getenv("LUKSO_RPC_URL")},
	}

	probed := 0
	for _, endpoint := range endpoints {
		if endpoint.url == "" {
			continue
		}
		client := chain.NewClient(endpoint.name, endpoint.url)
		if _, err := client.ChainID(ctx); err != nil {
			return fmt.Errorf("%s RPC check failed: %w", endpoint.name, err)
		}
		probed++
	}
	if probed == 0 {
		return fmt.Errorf("neither ETH_RPC_URL nor LUKSO_RPC_URL is set")
	}
	return nil
}

// validateS3 checks bucket reachability with the upload client.
func validateS3(ctx context.Context) error {
	bucket := os.Getenv("AWS_BUCKET")
	if bucket == "" {
		return fmt.Errorf("AWS_BUCKET is not set")
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	uploader, err := storage.NewS3Uploader(region, bucket, os.Getenv("CDN_BASE_URL"), os.Getenv("S3_ACL"))
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}
	return uploader.CheckBucketAccess(ctx)
}

// parseRequiredServices splits the comma-separated service list.
func parseRequiredServices(raw string) []string {
	var required []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			required = append(required, name)
		}
	}
	return required
}
