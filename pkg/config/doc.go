// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	PAGESMITH_HOST="0.0.0.0"
//	PAGESMITH_PORT="8080"
//	PAGESMITH_HEALTH_PORT="9090"
//	PAGESMITH_READ_TIMEOUT="15s"
//	PAGESMITH_WRITE_TIMEOUT="60s"
//
// Database settings:
//
//	PAGESMITH_POSTGRES_URL="postgres://localhost/pagesmith"
//	PAGESMITH_POSTGRES_REPLICA_URLS="postgres://replica1/pagesmith"
//	PAGESMITH_POSTGRES_MAX_CONNS="25"
//
// Billing settings:
//
//	PAGESMITH_BILLING_WEBHOOK_SECRET="whsec_..."
//	PAGESMITH_BILLING_PROVIDER_URL="https://api.stripe.com"
//	PAGESMITH_BILLING_PROVIDER_API_KEY="sk_..."
//	PAGESMITH_PLAN_CATALOG_PATH="/etc/pagesmith/plans.yaml"
//
// Renderer and quota settings:
//
//	PAGESMITH_RENDERER_URL="http://renderer.internal"
//	PAGESMITH_RENDERER_INTERNAL_KEY="..."
//	PAGESMITH_QUOTA_LIMIT="5"
//	PAGESMITH_QUOTA_WINDOW="24h"
//	PAGESMITH_TURNSTILE_SECRET="..."
//	PAGESMITH_TURNSTILE_REQUIRED="true"
//
// Observability settings:
//
//	PAGESMITH_LOG_LEVEL="info"  # debug, info, warn, error
//	PAGESMITH_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
package config
