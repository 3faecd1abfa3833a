package temporalx

import (
	"strings"
	"time"

	"github.com/yungbote/northstar-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	DialTimeout     time.Duration
	DialMaxWait     time.Duration
	KeepAliveTime   time.Duration
	AutoRegister    bool
	RetentionPeriod time.Duration
}

func LoadConfig() Config {
	return Config{
		Address:   strings.TrimSpace(envutil.String("TEMPORAL_ADDRESS", "")),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "northstar"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "attribution"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		DialTimeout:     envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second),
		DialMaxWait:     envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", time.Minute),
		KeepAliveTime:   envutil.Duration("TEMPORAL_KEEPALIVE", 30*time.Second),
		AutoRegister:    envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		RetentionPeriod: envutil.Duration("TEMPORAL_NAMESPACE_RETENTION", 7*24*time.Hour),
	}
}

// Enabled reports whether a Temporal frontend is configured.
func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) mTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
