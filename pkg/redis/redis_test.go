package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

// getTestConfig returns config for testing
func getTestConfig() *Config {
	cfg := DefaultConfig()

	if host := os.Getenv("TEST_REDIS_HOST"); host != "" {
		cfg.Host = host
	}
	if password := os.Getenv("TEST_REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}

	return cfg
}

func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Host != "localhost" {
		t.Errorf("Expected host 'localhost', got '%s'", cfg.Host)
	}
	if cfg.Port != 6379 {
		t.Errorf("Expected port 6379, got %d", cfg.Port)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected max retries 3, got %d", cfg.MaxRetries)
	}
}

func TestConfig_Addr(t *testing.T) {
	cfg := &Config{Host: "redis.example.com", Port: 6380}

	if cfg.Addr() != "redis.example.com:6380" {
		t.Errorf("Expected addr 'redis.example.com:6380', got '%s'", cfg.Addr())
	}
}

func TestNewClient_InvalidConfig(t *testing.T) {
	cfg := &Config{
		Host:          "invalid-host-that-does-not-exist",
		Port:          9999,
		MaxRetries:    0,
		RetryInterval: 100 * time.Millisecond,
		DialTimeout:   500 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := NewClient(ctx, cfg); err == nil {
		t.Error("Expected error for invalid config, got nil")
	}
}

func TestComputeSHA1(t *testing.T) {
	sha := computeSHA1("return 1")
	if len(sha) != 40 {
		t.Errorf("Expected SHA1 length 40, got %d", len(sha))
	}
	if sha != computeSHA1("return 1") {
		t.Error("Same script should produce same SHA")
	}
	if sha == computeSHA1("return 2") {
		t.Error("Different scripts should produce different SHAs")
	}
}

func TestIsNoScriptError(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{fmt.Errorf("some error"), false},
		{fmt.Errorf("NOSCRIPT No matching script. Please use EVAL."), true},
	}

	for _, tt := range tests {
		if got := isNoScriptError(tt.err); got != tt.expected {
			t.Errorf("isNoScriptError(%v) = %v, want %v", tt.err, got, tt.expected)
		}
	}
}

func TestLockKey(t *testing.T) {
	if got := LockKey("send-approval-reminders"); got != "job:lock:send-approval-reminders" {
		t.Errorf("unexpected lock key %q", got)
	}
}

func TestLock_ReleaseNil(t *testing.T) {
	var l *Lock
	if err := l.Release(context.Background()); err != nil {
		t.Errorf("nil lock release should be a no-op, got %v", err)
	}
}

func TestClient_Lock_Integration(t *testing.T) {
	skipIfNoIntegration(t)

	ctx := context.Background()
	client, err := NewClient(ctx, getTestConfig())
	if err != nil {
		t.Fatalf("Failed to connect to redis: %v", err)
	}
	defer client.Close()

	key := LockKey("test-" + time.Now().Format("20060102150405.000"))
	defer client.Del(ctx, key)

	first, err := client.AcquireLock(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	if _, err := client.AcquireLock(ctx, key, time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Errorf("Expected ErrLockHeld, got %v", err)
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	second, err := client.AcquireLock(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock after release failed: %v", err)
	}

	// releasing a stale handle must not drop the new holder's lock
	if err := first.Release(ctx); err != nil {
		t.Fatalf("stale Release failed: %v", err)
	}
	if n, _ := client.Client().Exists(ctx, key).Result(); n != 1 {
		t.Error("stale release removed another holder's lock")
	}
	_ = second.Release(ctx)
}

func TestClient_EvalWithFallback_Integration(t *testing.T) {
	skipIfNoIntegration(t)

	ctx := context.Background()
	client, err := NewClient(ctx, getTestConfig())
	if err != nil {
		t.Fatalf("Failed to connect to redis: %v", err)
	}
	defer client.Close()

	script := `return tonumber(ARGV[1]) * 2`

	result, err := client.EvalWithFallback(ctx, "test_double", script, nil, 7).Int()
	if err != nil {
		t.Errorf("EvalWithFallback failed: %v", err)
	}
	if result != 14 {
		t.Errorf("Expected result 14, got %d", result)
	}

	result, err = client.EvalWithFallback(ctx, "test_double", script, nil, 10).Int()
	if err != nil {
		t.Errorf("Second EvalWithFallback failed: %v", err)
	}
	if result != 20 {
		t.Errorf("Expected result 20, got %d", result)
	}
}
