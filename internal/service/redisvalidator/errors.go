package redisvalidator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DependentFeatures lists what stops working while Redis is broken.
var DependentFeatures = []string{
	"Pattern alerts (real-time pattern notifications)",
	"Backtesting job flow (progress and results)",
	"Health monitoring (system status updates)",
}

// ConfigurationError reports malformed or incomplete connection parameters.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "redis configuration: " + e.Reason
	if e.Field != "" {
		msg = fmt.Sprintf("redis configuration: %s: %s", e.Field, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Troubleshooting() string {
	return report("REDIS CONFIGURATION ERROR", e.Error(), []string{
		"Set REDIS_URL (redis://[:password@]host:port/db) or REDIS_HOST, REDIS_PORT and REDIS_DB",
		"Check that the port is between 1 and 65535",
		"Check that the database index is between 0 and 15",
		"Check the URL scheme is redis://, rediss:// or unix://",
	})
}

// ConnectionError reports an unreachable server or a failed ping.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("redis connection to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

func (e *ConnectionError) Troubleshooting() string {
	return report("REDIS CONNECTION FAILED", e.Error(), []string{
		"Check the Redis server is running (redis-cli -h <host> -p <port> ping)",
		"Check network reachability and firewall rules between this host and Redis",
		"Check the password and ACL user match the server configuration",
		"Check the server is not refusing clients (maxclients, protected-mode)",
	})
}

// ChannelError reports broken pub-sub mechanics or inaccessible channels.
type ChannelError struct {
	Channels []string
	Reason   string
	Err      error
}

func (e *ChannelError) Error() string {
	msg := "redis pub-sub: " + e.Reason
	if len(e.Channels) > 0 {
		msg += " [" + strings.Join(e.Channels, ", ") + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ChannelError) Unwrap() error { return e.Err }

func (e *ChannelError) Troubleshooting() string {
	return report("REDIS PUB-SUB VALIDATION FAILED", e.Error(), []string{
		"Check the ACL user may PUBLISH and SUBSCRIBE on tickstock.* channels (ACL GETUSER <user>)",
		"Check maxmemory-policy is not rejecting writes (INFO memory)",
		"Check pub-sub commands are not renamed or disabled (rename-command)",
		"Check client-output-buffer-limit for pubsub clients",
	})
}

// PerformanceError reports a working connection that is too slow.
type PerformanceError struct {
	Operation   string
	Latency     time.Duration
	Limit       time.Duration
	Environment Environment
}

func (e *PerformanceError) Error() string {
	return fmt.Sprintf("redis %s latency %.2fms exceeds %.0fms limit for %s",
		e.Operation, ms(e.Latency), ms(e.Limit), e.Environment.label())
}

func (e *PerformanceError) Troubleshooting() string {
	return report("REDIS PERFORMANCE BELOW REQUIREMENTS", e.Error(), []string{
		"Check server load (INFO stats, SLOWLOG GET)",
		"Check network latency between this host and Redis (redis-cli --latency)",
		"Check memory pressure and swapping on the Redis host",
		"Review hardware or move Redis closer to the application",
	})
}

type troubleshooter interface {
	Troubleshooting() string
}

// Troubleshooting returns the operator report carried by err, if any.
func Troubleshooting(err error) (string, bool) {
	var t troubleshooter
	if errors.As(err, &t) {
		return t.Troubleshooting(), true
	}
	return "", false
}

func report(title, cause string, checklist []string) string {
	var b strings.Builder
	line := strings.Repeat("=", 60)
	b.WriteString(line + "\n")
	b.WriteString(title + "\n")
	b.WriteString(line + "\n")
	b.WriteString("Cause: " + cause + "\n\n")
	b.WriteString("Troubleshooting:\n")
	for i, item := range checklist {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, item)
	}
	b.WriteString("\nRedis is mandatory. These features depend on it:\n")
	for _, f := range DependentFeatures {
		b.WriteString("  - " + f + "\n")
	}
	b.WriteString(line + "\n")
	return b.String()
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
