package config

import (
	"context"
	"log/slog"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	infisical "github.com/infisical/go-sdk"
)

type Config struct {
	Port           string
	DatabaseURL    string
	TelegramToken  string
	TelegramChats  []int64
	FrontendOrigin string
	RedisURL       string
	RedisPassword  string

	EthRPCURL     string
	WalletAddress string
	VenuesFile    string
	Assets        []string

	CycleSchedule       string
	CacheTTL            time.Duration
	NativeUSDPrice      string
	MaxRiskExposure     float64
	MinYieldImprovement float64
	ExecutionPolicy     string
	// DecisionGasPriceWei is the fixed price behind decision gas estimates.
	// It is never refreshed from the chain.
	DecisionGasPriceWei *big.Int
}

func Load() Config {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChats:  chatIDs(os.Getenv("TELEGRAM_CHAT_IDS")),
		FrontendOrigin: envOr("FRONTEND_ORIGIN", "*"),
		RedisURL:       os.Getenv("REDIS_URL"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),

		EthRPCURL:     os.Getenv("ETH_RPC_URL"),
		WalletAddress: os.Getenv("WALLET_ADDRESS"),
		VenuesFile:    os.Getenv("VENUES_FILE"),
		Assets:        list(envOr("ASSETS", "USDC")),

		CycleSchedule:       envOr("CYCLE_SCHEDULE", "@every 30s"),
		CacheTTL:            durationOr("CACHE_TTL", 300*time.Second),
		NativeUSDPrice:      envOr("NATIVE_USD_PRICE", "2000"),
		MaxRiskExposure:     floatOr("MAX_RISK_EXPOSURE", 0.8),
		MinYieldImprovement: floatOr("MIN_YIELD_IMPROVEMENT", 0.005),
		ExecutionPolicy:     envOr("EXECUTION_POLICY", "lenient"),
		DecisionGasPriceWei: weiOr("DECISION_GAS_PRICE_WEI", big.NewInt(20_000_000_000)),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"TELEGRAM_BOT_TOKEN": &cfg.TelegramToken,
		"REDIS_PASSWORD":     &cfg.RedisPassword,
		"DATABASE_URL":       &cfg.DatabaseURL,
		"ETH_RPC_URL":        &cfg.EthRPCURL,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func floatOr(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("invalid duration, using default", "key", key, "value", v)
	return fallback
}

func weiOr(key string, fallback *big.Int) *big.Int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	wei, ok := new(big.Int).SetString(v, 10)
	if !ok || wei.Sign() < 0 {
		slog.Warn("invalid wei amount, using default", "key", key, "value", v)
		return fallback
	}
	return wei
}

func list(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func chatIDs(v string) []int64 {
	var out []int64
	for _, s := range list(v) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			slog.Warn("ignoring invalid telegram chat id", "value", s)
			continue
		}
		out = append(out, id)
	}
	return out
}
