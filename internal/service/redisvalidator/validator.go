package redisvalidator

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	domrepo "TickStockApp/internal/domain/repository"
	"TickStockApp/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Channels the app depends on.
const (
	ChannelPatterns            = "tickstock.events.patterns"
	ChannelBacktestingProgress = "tickstock.events.backtesting.progress"
	ChannelBacktestingResults  = "tickstock.events.backtesting.results"
	ChannelHealth              = "tickstock.health.status"
)

// RequiredChannels must accept publishes before the app may start.
var RequiredChannels = []string{
	ChannelPatterns,
	ChannelBacktestingProgress,
	ChannelBacktestingResults,
	ChannelHealth,
}

// Client is the subset of go-redis the validator drives.
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Info(ctx context.Context, section ...string) *redis.StringCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// ConnectionConfig holds either a URL or a host/port/db triple. URL wins when set.
type ConnectionConfig struct {
	URL      string
	Host     string
	Port     int
	DB       int
	Password string
}

type tripleForm struct {
	Host string `validate:"required"`
	Port int    `validate:"gte=1,lte=65535"`
	DB   int    `validate:"gte=0,lte=15"`
}

func (c ConnectionConfig) addr() string {
	if c.URL != "" {
		if opt, err := redis.ParseURL(c.URL); err == nil {
			return opt.Addr
		}
		return c.URL
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Option configures Validator.
type Option func(*ValidatorConfig)

// ValidatorConfig holds validator configuration.
type ValidatorConfig struct {
	SocketTimeout       time.Duration
	PingTimeout         time.Duration
	SubscribeTimeout    time.Duration
	HealthCheckInterval time.Duration
	PerfSamples         int
	RequiredChannels    []string
	Logger              *logger.Logger
	Metrics             domrepo.Metrics
}

// WithSubscribeTimeout bounds the wait for the subscribe acknowledgement.
func WithSubscribeTimeout(d time.Duration) Option {
	return func(c *ValidatorConfig) {
		if d > 0 {
			c.SubscribeTimeout = d
		}
	}
}

// WithPerfSamples sets the number of sequential pings in the performance step.
func WithPerfSamples(n int) Option {
	return func(c *ValidatorConfig) {
		if n > 0 {
			c.PerfSamples = n
		}
	}
}

// WithRequiredChannels replaces the probed channel set.
func WithRequiredChannels(channels []string) Option {
	return func(c *ValidatorConfig) {
		c.RequiredChannels = channels
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *ValidatorConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m domrepo.Metrics) Option {
	return func(c *ValidatorConfig) {
		if m != nil {
			c.Metrics = m
		}
	}
}

// Validator gates startup on a working, fast, pub-sub capable Redis.
type Validator struct {
	cfg      *ValidatorConfig
	validate *validator.Validate
	log      *logger.Logger

	mu   sync.RWMutex
	last *ValidationReport
}

// New creates a Validator.
func New(opts ...Option) *Validator {
	cfg := &ValidatorConfig{
		SocketTimeout:       5 * time.Second,
		PingTimeout:         5 * time.Second,
		SubscribeTimeout:    2 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		PerfSamples:         5,
		RequiredChannels:    RequiredChannels,
		Logger:              logger.Nop(),
		Metrics:             domrepo.NopMetrics{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Validator{
		cfg:      cfg,
		validate: validator.New(),
		log:      cfg.Logger.With(logger.String("component", "redis_validator")),
	}
}

// ValidateConfig checks cfg without any I/O.
func (v *Validator) ValidateConfig(cfg ConnectionConfig) error {
	if cfg.URL != "" {
		triple, err := tripleFromURL(cfg.URL)
		if err != nil {
			return err
		}
		return v.validateTriple(triple)
	}
	if cfg.Host == "" && cfg.Port == 0 {
		return &ConfigurationError{Reason: "neither url nor host/port/db is set"}
	}
	return v.validateTriple(tripleForm{Host: cfg.Host, Port: cfg.Port, DB: cfg.DB})
}

// tripleFromURL applies the same range rules to the URL form.
func tripleFromURL(raw string) (tripleForm, error) {
	opt, err := redis.ParseURL(raw)
	if err != nil {
		return tripleForm{}, &ConfigurationError{Field: "url", Reason: "malformed redis url", Err: err}
	}
	host, portStr, err := net.SplitHostPort(opt.Addr)
	if err != nil {
		return tripleForm{}, &ConfigurationError{Field: "url", Reason: "malformed redis address", Err: err}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return tripleForm{}, &ConfigurationError{Field: "port", Reason: "port is not a number", Err: err}
	}
	return tripleForm{Host: host, Port: port, DB: opt.DB}, nil
}

func (v *Validator) validateTriple(t tripleForm) error {
	err := v.validate.Struct(t)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason = fmt.Sprintf("%v must be %s %s", fe.Value(), fe.Tag(), fe.Param())
		}
		return &ConfigurationError{Field: strings.ToLower(fe.Field()), Reason: reason}
	}
	return &ConfigurationError{Reason: "invalid connection parameters", Err: err}
}

// CreateClient builds a client with short socket timeouts.
func (v *Validator) CreateClient(cfg ConnectionConfig) (*redis.Client, error) {
	var opt *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, &ConfigurationError{Field: "url", Reason: "malformed redis url", Err: err}
		}
		opt = parsed
	} else {
		opt = &redis.Options{
			Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			DB:       cfg.DB,
			Password: cfg.Password,
		}
	}
	opt.DialTimeout = v.cfg.SocketTimeout
	opt.ReadTimeout = v.cfg.SocketTimeout
	opt.WriteTimeout = v.cfg.SocketTimeout
	// idle connections are re-checked after this long
	opt.ConnMaxIdleTime = v.cfg.HealthCheckInterval
	return redis.NewClient(opt), nil
}

// TestConnectivity pings the server and enforces the environment latency ceiling.
func (v *Validator) TestConnectivity(ctx context.Context, client Client, env Environment) (*ConnectivityReport, error) {
	th := ThresholdsFor(env)

	pctx, cancel := context.WithTimeout(ctx, v.cfg.PingTimeout)
	defer cancel()

	start := time.Now()
	err := client.Ping(pctx).Err()
	latency := time.Since(start)
	if err != nil {
		return nil, &ConnectionError{Addr: clientAddr(client), Err: fmt.Errorf("redis ping: %w", err)}
	}
	if latency > th.MaxLatency {
		return nil, &PerformanceError{Operation: "ping", Latency: latency, Limit: th.MaxLatency, Environment: env}
	}

	rep := &ConnectivityReport{PingOK: true, LatencyMS: ms(latency)}
	info, err := client.Info(pctx, "server").Result()
	if err != nil {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("server info unavailable: %v", err))
	} else {
		rep.ServerVersion, rep.UptimeSeconds = parseServerInfo(info)
	}

	v.log.Info("redis connectivity ok",
		logger.Float64("latency_ms", rep.LatencyMS),
		logger.String("server_version", rep.ServerVersion),
	)
	return rep, nil
}

// ValidatePubSub checks subscribe, publish and write access to every required channel.
func (v *Validator) ValidatePubSub(ctx context.Context, client Client) (*PubSubReport, error) {
	channel := "tickstock.validation." + uuid.NewString()
	rep := &PubSubReport{TestChannel: channel}

	start := time.Now()
	pubsub := client.Subscribe(ctx, channel)
	defer pubsub.Close()

	msg, err := pubsub.ReceiveTimeout(ctx, v.cfg.SubscribeTimeout)
	if err != nil {
		return nil, &ChannelError{
			Channels: []string{channel},
			Reason:   fmt.Sprintf("subscription not confirmed within %s", v.cfg.SubscribeTimeout),
			Err:      err,
		}
	}
	sub, ok := msg.(*redis.Subscription)
	if !ok || sub.Kind != "subscribe" || sub.Channel != channel {
		return nil, &ChannelError{
			Channels: []string{channel},
			Reason:   fmt.Sprintf("unexpected subscribe reply %T", msg),
		}
	}
	rep.SubscribeLatencyMS = ms(time.Since(start))

	payload, _ := json.Marshal(map[string]interface{}{
		"type":      "validation",
		"timestamp": float64(time.Now().UnixNano()) / 1e9,
	})
	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		return nil, &ChannelError{Channels: []string{channel}, Reason: "test publish failed", Err: err}
	}

	var failed []string
	var lastErr error
	for _, ch := range v.cfg.RequiredChannels {
		probe, _ := json.Marshal(map[string]interface{}{"type": "channel_probe", "channel": ch})
		if err := client.Publish(ctx, ch, probe).Err(); err != nil {
			failed = append(failed, ch)
			lastErr = err
			v.log.Warn("channel probe failed", logger.String("channel", ch), logger.Error(err))
			continue
		}
		rep.ChannelsProbed = append(rep.ChannelsProbed, ch)
	}
	if len(failed) > 0 {
		return nil, &ChannelError{Channels: failed, Reason: "required channels rejected publish", Err: lastErr}
	}

	v.log.Info("redis pub-sub ok",
		logger.Float64("subscribe_latency_ms", rep.SubscribeLatencyMS),
		logger.Int("channels", len(rep.ChannelsProbed)),
	)
	return rep, nil
}

// ValidatePerformance runs samples sequential pings and checks the latency distribution.
func (v *Validator) ValidatePerformance(ctx context.Context, client Client, samples int, env Environment) (*PerformanceReport, error) {
	if samples <= 0 {
		samples = v.cfg.PerfSamples
	}
	th := ThresholdsFor(env)

	var total, minLat, maxLat time.Duration
	for i := 0; i < samples; i++ {
		pctx, cancel := context.WithTimeout(ctx, v.cfg.PingTimeout)
		start := time.Now()
		err := client.Ping(pctx).Err()
		lat := time.Since(start)
		cancel()
		if err != nil {
			return nil, &ConnectionError{Addr: clientAddr(client), Err: fmt.Errorf("redis ping sample %d: %w", i+1, err)}
		}
		total += lat
		if i == 0 || lat < minLat {
			minLat = lat
		}
		if lat > maxLat {
			maxLat = lat
		}
	}
	avg := total / time.Duration(samples)

	if maxLat > th.MaxLatency {
		return nil, &PerformanceError{Operation: "max ping", Latency: maxLat, Limit: th.MaxLatency, Environment: env}
	}

	rep := &PerformanceReport{Samples: samples, AvgMS: ms(avg), MinMS: ms(minLat), MaxMS: ms(maxLat)}
	if avg > th.AvgWarn {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("average latency %.2fms above %.0fms", ms(avg), ms(th.AvgWarn)))
	}
	if maxLat > th.MaxWarn {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("max latency %.2fms above %.0fms", ms(maxLat), ms(th.MaxWarn)))
	}
	for _, w := range rep.Warnings {
		v.log.Warn("redis performance warning", logger.String("detail", w), logger.String("environment", env.label()))
	}
	return rep, nil
}

// InitializeMandatory runs every step in order and returns a client only if all pass.
func (v *Validator) InitializeMandatory(ctx context.Context, cfg ConnectionConfig, env Environment) (*redis.Client, error) {
	rep := &ValidationReport{Environment: env, StartedAt: time.Now()}
	defer func() {
		rep.DurationMS = ms(time.Since(rep.StartedAt))
		v.mu.Lock()
		v.last = rep
		v.mu.Unlock()
	}()

	fail := func(step string, err error) error {
		rep.FailedStep = step
		rep.Error = err.Error()
		v.log.Error("redis validation failed", logger.String("step", step), logger.Error(err))
		return err
	}

	if err := v.timed("config", func() error { return v.ValidateConfig(cfg) }); err != nil {
		return nil, fail("config", err)
	}

	var client *redis.Client
	if err := v.timed("client", func() (err error) {
		client, err = v.CreateClient(cfg)
		return err
	}); err != nil {
		return nil, fail("client", err)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"connectivity", func() (err error) {
			rep.Connectivity, err = v.TestConnectivity(ctx, client, env)
			return err
		}},
		{"pubsub", func() (err error) {
			rep.PubSub, err = v.ValidatePubSub(ctx, client)
			return err
		}},
		{"performance", func() (err error) {
			rep.Performance, err = v.ValidatePerformance(ctx, client, v.cfg.PerfSamples, env)
			return err
		}},
	}
	for _, s := range steps {
		if err := v.timed(s.name, s.run); err != nil {
			_ = client.Close()
			return nil, fail(s.name, err)
		}
	}

	rep.Success = true
	v.log.Info("redis validation passed",
		logger.String("addr", cfg.addr()),
		logger.String("environment", env.label()),
	)
	return client, nil
}

// LastReport returns the report of the most recent InitializeMandatory run.
func (v *Validator) LastReport() *ValidationReport {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last
}

func (v *Validator) timed(step string, fn func() error) error {
	start := time.Now()
	err := fn()
	v.cfg.Metrics.RecordValidationStep(step, time.Since(start).Seconds(), err == nil)
	return err
}

func parseServerInfo(info string) (version string, uptime int64) {
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok {
			continue
		}
		switch key {
		case "redis_version":
			version = val
		case "uptime_in_seconds":
			uptime, _ = strconv.ParseInt(val, 10, 64)
		}
	}
	return version, uptime
}

func clientAddr(c Client) string {
	if o, ok := c.(interface{ Options() *redis.Options }); ok {
		return o.Options().Addr
	}
	return "redis"
}
