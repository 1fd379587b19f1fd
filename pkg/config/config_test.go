package config

import (
	"os"
	"testing"
)

func clearPBSEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		_ = os.Unsetenv(key)
	}
}

func TestLoadRequiresHostAddressAndPort(t *testing.T) {
	clearPBSEnv(t)
	if _, err := Load(); err == nil {
		t.Fatal("expected error when host address/port are unset")
	}
}

func TestLoadAppliesDefaultsAndRequiredFields(t *testing.T) {
	clearPBSEnv(t)
	os.Setenv(keyHostAddress, "0.0.0.0")
	os.Setenv(keyHostPort, "8080")
	defer clearPBSEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AsyncExecutorThreads != defaultAsyncExecutorThreads {
		t.Fatalf("expected default thread count %d, got %d", defaultAsyncExecutorThreads, cfg.AsyncExecutorThreads)
	}
	if cfg.AsyncExecutorQueueSize != defaultAsyncExecutorQueueSize {
		t.Fatalf("expected default queue size %d, got %d", defaultAsyncExecutorQueueSize, cfg.AsyncExecutorQueueSize)
	}
}

func TestLoadRequiresHealthPortForComputeEngine(t *testing.T) {
	clearPBSEnv(t)
	os.Setenv(keyHostAddress, "0.0.0.0")
	os.Setenv(keyHostPort, "8080")
	os.Setenv(keyContainerType, string(ComputeEngine))
	defer clearPBSEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when ComputeEngine is missing a health port")
	}

	os.Setenv(keyHealthPort, "8081")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error with health port set: %v", err)
	}
	if cfg.HealthPort != "8081" {
		t.Fatalf("expected health port 8081, got %q", cfg.HealthPort)
	}
}

func TestLoadRequiresTLSPathsWhenEnabled(t *testing.T) {
	clearPBSEnv(t)
	os.Setenv(keyHostAddress, "0.0.0.0")
	os.Setenv(keyHostPort, "8080")
	os.Setenv(keyUseTLS, "true")
	defer clearPBSEnv(t)

	if _, err := Load(); err == nil {
		t.Fatal("expected error when TLS is enabled without cert/key paths")
	}

	os.Setenv(keyPrivateKey, "/tmp/key.pem")
	os.Setenv(keyCertificate, "/tmp/cert.pem")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error with TLS paths set: %v", err)
	}
	if !cfg.UseTLS {
		t.Fatal("expected UseTLS to be true")
	}
}
