// Package config loads PBSConfig from the process environment (and an
// optional .env file), following the google_scp_pbs_* table of spec
// section 6.
//
// Version: v0.1.0
package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/privacysandbox/pbs/pkg/pbserrors"
	"github.com/privacysandbox/pbs/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// ContainerType selects the deployment shape a PBS instance is running
// under. ComputeEngine requires a standalone health port; other values
// fold health checks into the main server.
type ContainerType string

const (
	ComputeEngine ContainerType = "ComputeEngine"
	Serverless    ContainerType = "Serverless"
)

// PBSConfig is the unified runtime configuration for a PBS instance,
// spec section 4.14.
type PBSConfig struct {
	HostAddress string `mapstructure:"google_scp_pbs_host_address"`
	HostPort    string `mapstructure:"google_scp_pbs_host_port"`
	HealthPort  string `mapstructure:"google_scp_pbs_health_port"`

	UseTLS                 bool   `mapstructure:"google_scp_pbs_http2_server_use_tls"`
	TLSPrivateKeyFilePath  string `mapstructure:"google_scp_pbs_http2_server_private_key_file_path"`
	TLSCertificateFilePath string `mapstructure:"google_scp_pbs_http2_server_certificate_file_path"`

	AsyncExecutorThreads   int `mapstructure:"google_scp_pbs_async_executor_threads_count"`
	AsyncExecutorQueueSize int `mapstructure:"google_scp_pbs_async_executor_queue_size"`

	RemoteClaimedIdentity string        `mapstructure:"google_scp_pbs_remote_claimed_identity"`
	ContainerType         ContainerType `mapstructure:"google_scp_pbs_container_type"`
	OtelEnabled           bool          `mapstructure:"otel_enabled"`
}

const (
	keyHostAddress   = "google_scp_pbs_host_address"
	keyHostPort      = "google_scp_pbs_host_port"
	keyHealthPort    = "google_scp_pbs_health_port"
	keyUseTLS        = "google_scp_pbs_http2_server_use_tls"
	keyPrivateKey    = "google_scp_pbs_http2_server_private_key_file_path"
	keyCertificate   = "google_scp_pbs_http2_server_certificate_file_path"
	keyExecThreads   = "google_scp_pbs_async_executor_threads_count"
	keyExecQueueSize = "google_scp_pbs_async_executor_queue_size"
	keyRemoteID      = "google_scp_pbs_remote_claimed_identity"
	keyContainerType = "google_scp_pbs_container_type"
	keyOtelEnabled   = "otel_enabled"

	defaultAsyncExecutorThreads   = 16
	defaultAsyncExecutorQueueSize = 100000
)

var allKeys = []string{
	keyHostAddress, keyHostPort, keyHealthPort, keyUseTLS, keyPrivateKey,
	keyCertificate, keyExecThreads, keyExecQueueSize, keyRemoteID,
	keyContainerType, keyOtelEnabled,
}

// Load reads an optional .env file into the process environment (a missing
// file is not an error — it mirrors how a container deployment supplies
// these variables directly), binds the google_scp_pbs_* table to viper's
// environment source, and unmarshals it into a PBSConfig. Required keys
// missing or empty return pbserrors.MissingConfigKey; an enabled-but-
// incomplete TLS configuration returns pbserrors.InvalidCertPath or
// pbserrors.InvalidKeyPath, matching the exit-code-1 startup failure of
// spec section 6.
func Load() (*PBSConfig, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetDefault(keyExecThreads, defaultAsyncExecutorThreads)
	v.SetDefault(keyExecQueueSize, defaultAsyncExecutorQueueSize)
	for _, key := range allKeys {
		_ = v.BindEnv(key, key)
	}

	var cfg PBSConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, pbserrors.New(pbserrors.MissingConfigKey, "%v", utils.Wrap(err, "unmarshal environment"))
	}

	if cfg.HostAddress == "" {
		return nil, pbserrors.New(pbserrors.MissingConfigKey, "%s is required", keyHostAddress)
	}
	if cfg.HostPort == "" {
		return nil, pbserrors.New(pbserrors.MissingConfigKey, "%s is required", keyHostPort)
	}
	if cfg.ContainerType == ComputeEngine && cfg.HealthPort == "" {
		return nil, pbserrors.New(pbserrors.MissingConfigKey, "%s is required when %s=%s", keyHealthPort, keyContainerType, ComputeEngine)
	}
	if cfg.UseTLS {
		if cfg.TLSPrivateKeyFilePath == "" {
			return nil, pbserrors.New(pbserrors.InvalidKeyPath, "%s is required when %s=true", keyPrivateKey, keyUseTLS)
		}
		if cfg.TLSCertificateFilePath == "" {
			return nil, pbserrors.New(pbserrors.InvalidCertPath, "%s is required when %s=true", keyCertificate, keyUseTLS)
		}
	}

	return &cfg, nil
}
