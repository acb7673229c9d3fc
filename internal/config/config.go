package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"alertmanager/internal/routing"
	"alertmanager/internal/schedule"
	"alertmanager/internal/templatefmt"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultServiceName        = "alertmanager"
	defaultTickIntervalMS     = 1000
	defaultExpirySec          = 600
	defaultShutdownSec        = 10
	defaultHTTPListen         = ":8080"
	defaultAPIBasePath        = "/api/v1"
	defaultHealthPath         = "/healthz"
	defaultReadyPath          = "/readyz"
	defaultMetricsPath        = "/metrics"
	defaultMaxBodyBytes       = 2 << 20
	defaultNATSURL            = "nats://127.0.0.1:4222"
	defaultNATSSubject        = "alertmanager.alerts"
	defaultNATSIngestStream   = "ALERTMANAGER_ALERTS"
	defaultNATSIngestConsumer = "alertmanager-ingest"
	defaultNATSIngestGroup    = "alertmanager-workers"
	defaultNATSIngestWorkers  = 1
	defaultNATSAckWaitSec     = 30
	defaultNATSNackDelayMS    = 1000
	defaultNATSMaxDeliver     = -1
	defaultNATSMaxAckPending  = 2048
	defaultAggregateMinutes   = 15
	defaultThrottleSec        = 60
	defaultThrottleHits       = 15
	defaultHoldDownSec        = 1800
	defaultTransportTimeout   = 10
	defaultLogMaxSizeMB       = 100
	defaultLogMaxBackups      = 3
	defaultLogMaxAgeDays      = 7
	defaultTracingSampleRatio = 1.0

	// AuthNone accepts every API request.
	AuthNone = "none"
	// AuthBasic checks HTTP basic credentials against configured users.
	AuthBasic = "basic"

	// TransportSlack identifies Slack direct-message transport.
	TransportSlack = "slack"
	// TransportTeams identifies Microsoft Teams webhook transport.
	TransportTeams = "teams"
	// TransportEmail identifies email child-process transport.
	TransportEmail = "email"
	// TransportTelegram identifies Telegram bot transport.
	TransportTelegram = "telegram"
	// TransportWebhook identifies generic JSON webhook transport.
	TransportWebhook = "webhook"
	// TransportMattermost identifies Mattermost API transport.
	TransportMattermost = "mattermost"
	// TransportShoutrrr identifies shoutrrr service URL transport.
	TransportShoutrrr = "shoutrrr"
	// TransportMQTT identifies MQTT publish transport.
	TransportMQTT = "mqtt"
	// TransportNATS identifies NATS publish transport.
	TransportNATS = "nats"
	// TransportLog only writes notifications to the service log.
	TransportLog = "log"
)

// Config holds service runtime settings, receivers and the routing tree.
// Params: TOML sections from file or merged directory snapshot.
// Returns: validated runtime configuration.
type Config struct {
	Service   ServiceConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Ingest    IngestConfig
	Metrics   MetricsConfig
	Tracing   TracingConfig
	Schedules []ScheduleConfig
	Templates []TemplateConfig
	Receivers []ReceiverConfig
	Routes    []RouteConfig
}

// rawConfig mirrors TOML model before runtime normalization.
// Params: decoded sections from one TOML source.
// Returns: named tables keyed by table name.
type rawConfig struct {
	Service  ServiceConfig             `toml:"service"`
	Log      LogConfig                 `toml:"log"`
	HTTP     HTTPConfig                `toml:"http"`
	Ingest   IngestConfig              `toml:"ingest"`
	Metrics  MetricsConfig             `toml:"metrics"`
	Tracing  TracingConfig             `toml:"tracing"`
	Schedule map[string]ScheduleConfig `toml:"schedule"`
	Template map[string]TemplateConfig `toml:"template"`
	Receiver map[string]ReceiverConfig `toml:"receiver"`
	Route    []RouteConfig             `toml:"route"`
}

// ServiceConfig contains process-level settings.
// Params: name, processor tick interval, default alert expiry and shutdown grace.
// Returns: service behavior defaults.
type ServiceConfig struct {
	Name               string `toml:"name"`
	TickIntervalMS     int    `toml:"tick_interval_ms"`
	DefaultExpirySec   int    `toml:"default_expiry_sec"`
	ShutdownTimeoutSec int    `toml:"shutdown_timeout_sec"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, path and file rotation limits.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled    bool   `toml:"enabled"`
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// HTTPConfig configures the API listener.
// Params: listen address, mount paths, body limit and auth.
// Returns: HTTP server behavior.
type HTTPConfig struct {
	Listen       string         `toml:"listen"`
	BasePath     string         `toml:"base_path"`
	HealthPath   string         `toml:"health_path"`
	ReadyPath    string         `toml:"ready_path"`
	MaxBodyBytes int64          `toml:"max_body_bytes"`
	Auth         HTTPAuthConfig `toml:"auth"`
}

// HTTPAuthConfig selects API authorizer.
// Params: auth type and user->password map for basic auth.
type HTTPAuthConfig struct {
	Type  string            `toml:"type"`
	Users map[string]string `toml:"users"`
}

// IngestConfig defines inbound interfaces besides HTTP.
type IngestConfig struct {
	NATS NATSIngestConfig `toml:"nats"`
}

// NATSIngestConfig configures JetStream queue-consumer ingestion.
// Params: connection, stream routing and worker/ack/redelivery policy.
// Returns: NATS ingest behavior.
type NATSIngestConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"subject"`
	Stream        string   `toml:"stream"`
	ConsumerName  string   `toml:"consumer_name"`
	DeliverGroup  string   `toml:"deliver_group"`
	Workers       int      `toml:"workers"`
	AckWaitSec    int      `toml:"ack_wait_sec"`
	NackDelayMS   int      `toml:"nack_delay_ms"`
	MaxDeliver    int      `toml:"max_deliver"`
	MaxAckPending int      `toml:"max_ack_pending"`
}

// MetricsConfig toggles Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Path      string `toml:"path"`
	Namespace string `toml:"namespace"`
}

// TracingConfig configures OTLP HTTP trace export.
// Params: endpoint host:port, insecure transport, service name and sample ratio.
type TracingConfig struct {
	Enabled     bool    `toml:"enabled"`
	Endpoint    string  `toml:"endpoint"`
	Insecure    bool    `toml:"insecure"`
	ServiceName string  `toml:"service_name"`
	SampleRatio float64 `toml:"sample_ratio"`
}

// ScheduleConfig is one named activity window.
// Params: local start/end datetimes in timezone, repeat frequency and interval.
// Returns: schedule referenced by receivers.
type ScheduleConfig struct {
	Name     string `toml:"-"`
	Start    string `toml:"start"`
	End      string `toml:"end"`
	Timezone string `toml:"timezone"`
	Repeat   string `toml:"repeat"`
	Interval int    `toml:"interval"`
}

// TemplateConfig is one named brief/detail alert template.
type TemplateConfig struct {
	Name   string `toml:"-"`
	Brief  string `toml:"brief"`
	Detail string `toml:"detail"`
}

// DefaultRetryMaxAttempts bounds delivery attempts when max_attempts is unset.
const DefaultRetryMaxAttempts = 3

// NotifyRetry configures outbound delivery retries.
// Params: retry toggle, backoff, attempt limits, and logging.
// Returns: retry policy for notifications.
type NotifyRetry struct {
	Enabled        bool   `toml:"enabled"`
	Backoff        string `toml:"backoff"`
	InitialMS      int    `toml:"initial_ms"`
	MaxMS          int    `toml:"max_ms"`
	MaxAttempts    int    `toml:"max_attempts"`
	LogEachAttempt bool   `toml:"log_each_attempt"`
}

// ReceiverConfig describes one receiver: transport, gating policy and decorators.
// Params: exactly one transport table plus optional aggregate/throttle/retry/filter.
// Returns: receiver definition referenced by routes.
type ReceiverConfig struct {
	ID                 string           `toml:"-"`
	Template           string           `toml:"template"`
	Schedules          []string         `toml:"schedules"`
	ExclusionSchedules []string         `toml:"exclusion_schedules"`
	RepeatIntervalSec  int              `toml:"repeat_interval_sec"`
	ReceiveRecoveries  *bool            `toml:"receive_recoveries"`
	AlertDelaySec      int              `toml:"alert_delay_sec"`
	DelayUntilUpdated  bool             `toml:"delay_until_updated"`
	Filters            []CriteriaConfig `toml:"filter"`
	Retry              NotifyRetry      `toml:"retry"`
	Aggregate          *AggregateConfig `toml:"aggregate"`
	Throttle           *ThrottleConfig  `toml:"throttle"`

	Slack      *SlackConfig      `toml:"slack"`
	Teams      *TeamsConfig      `toml:"teams"`
	Email      *EmailConfig      `toml:"email"`
	Telegram   *TelegramConfig   `toml:"telegram"`
	Webhook    *WebhookConfig    `toml:"webhook"`
	Mattermost *MattermostConfig `toml:"mattermost"`
	Shoutrrr   *ShoutrrrConfig   `toml:"shoutrrr"`
	MQTT       *MQTTConfig       `toml:"mqtt"`
	NATS       *NATSNotifyConfig `toml:"nats"`
	Log        *LogNotifyConfig  `toml:"log"`
}

// Transports lists names of configured transport tables.
func (r ReceiverConfig) Transports() []string {
	var out []string
	if r.Slack != nil {
		out = append(out, TransportSlack)
	}
	if r.Teams != nil {
		out = append(out, TransportTeams)
	}
	if r.Email != nil {
		out = append(out, TransportEmail)
	}
	if r.Telegram != nil {
		out = append(out, TransportTelegram)
	}
	if r.Webhook != nil {
		out = append(out, TransportWebhook)
	}
	if r.Mattermost != nil {
		out = append(out, TransportMattermost)
	}
	if r.Shoutrrr != nil {
		out = append(out, TransportShoutrrr)
	}
	if r.MQTT != nil {
		out = append(out, TransportMQTT)
	}
	if r.NATS != nil {
		out = append(out, TransportNATS)
	}
	if r.Log != nil {
		out = append(out, TransportLog)
	}
	return out
}

// Transport returns the single configured transport name.
func (r ReceiverConfig) Transport() string {
	transports := r.Transports()
	if len(transports) != 1 {
		return ""
	}
	return transports[0]
}

// AggregateConfig enables alert batching in front of the receiver.
// Params: window length in minutes, individual dispatch threshold, background flush toggle.
type AggregateConfig struct {
	IntervalMin     int  `toml:"interval_min"`
	Minimum         int  `toml:"minimum"`
	BackgroundFlush bool `toml:"background_flush"`
}

// ThrottleConfig enables hit-rate hold-down in front of the receiver.
// Params: window, hit threshold, hold-down length and optional notice receiver id.
type ThrottleConfig struct {
	IntervalSec    int    `toml:"interval_sec"`
	HitThreshold   int    `toml:"hit_threshold"`
	HoldDownSec    int    `toml:"hold_down_sec"`
	NotifyReceiver string `toml:"notify_receiver"`
}

// SlackConfig defines Slack direct-message settings.
type SlackConfig struct {
	APIToken   string `toml:"api_token"`
	MemberID   string `toml:"member_id"`
	APIBase    string `toml:"api_base"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// TeamsConfig defines Microsoft Teams webhook settings.
type TeamsConfig struct {
	WebhookURL string `toml:"webhook_url"`
	Title      string `toml:"title"`
	ImageURL   string `toml:"image_url"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// EmailConfig defines email child-process settings.
// Params: SMTP server, recipients and optional command override (defaults to this binary's send-email).
type EmailConfig struct {
	Server     string   `toml:"server"`
	Port       int      `toml:"port"`
	From       string   `toml:"from"`
	To         []string `toml:"to"`
	Username   string   `toml:"username"`
	Password   string   `toml:"password"`
	Command    []string `toml:"command"`
	TimeoutSec int      `toml:"timeout_sec"`
}

// TelegramConfig defines Telegram bot settings.
type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	APIBase  string `toml:"api_base"`
}

// WebhookConfig defines generic outbound HTTP endpoint.
// Params: URL, method, timeout, and optional static headers.
type WebhookConfig struct {
	URL        string            `toml:"url"`
	Method     string            `toml:"method"`
	TimeoutSec int               `toml:"timeout_sec"`
	Headers    map[string]string `toml:"headers"`
}

// MattermostConfig defines Mattermost API channel settings.
type MattermostConfig struct {
	BaseURL    string `toml:"base_url"`
	BotToken   string `toml:"bot_token"`
	ChannelID  string `toml:"channel_id"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// ShoutrrrConfig lists shoutrrr service URLs.
type ShoutrrrConfig struct {
	URL []string `toml:"url"`
}

// MQTTConfig defines MQTT broker publish settings.
type MQTTConfig struct {
	Broker     string `toml:"broker"`
	ClientID   string `toml:"client_id"`
	Topic      string `toml:"topic"`
	QoS        int    `toml:"qos"`
	Retain     bool   `toml:"retain"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// NATSNotifyConfig defines NATS publish settings; Stream switches to JetStream publish.
type NATSNotifyConfig struct {
	URL     []string `toml:"url"`
	Subject string   `toml:"subject"`
	Stream  string   `toml:"stream"`
}

// LogNotifyConfig writes notifications to the service log at Level.
type LogNotifyConfig struct {
	Level string `toml:"level"`
}

// RouteConfig is one routing tree node.
// Params: action, exactly one destination (receiver, receivers, drop or nested routes), optional criteria.
// Returns: route definition compiled into the router.
type RouteConfig struct {
	Name      string          `toml:"name"`
	Action    string          `toml:"action"`
	Group     bool            `toml:"group"`
	Receiver  string          `toml:"receiver"`
	Receivers []string        `toml:"receivers"`
	Drop      bool            `toml:"drop"`
	When      *CriteriaConfig `toml:"when"`
	Routes    []RouteConfig   `toml:"route"`
}

// CriteriaConfig is one criteria node.
// Params: logic (and|or), attribute match map (scalar or array values, "regex:" key prefix),
// all=true for a catch-all term, nested groups.
type CriteriaConfig struct {
	Logic string           `toml:"logic"`
	All   bool             `toml:"all"`
	Match map[string]any   `toml:"match"`
	Group []CriteriaConfig `toml:"group"`
}

// MatchKeys returns match keys in sorted order.
func (c CriteriaConfig) MatchKeys() []string {
	keys := make([]string, 0, len(c.Match))
	for key := range c.Match {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MatchValues normalizes one match entry to value list.
func (c CriteriaConfig) MatchValues(key string) []any {
	switch typed := c.Match[key].(type) {
	case nil:
		return nil
	case []any:
		return typed
	default:
		return []any{typed}
	}
}

// envOverrides holds deployment-specific values read from the environment.
type envOverrides struct {
	HTTPListen string `env:"ALERTMANAGER_HTTP_LISTEN"`
	NATSURL    string `env:"ALERTMANAGER_NATS_URL"`
	LogLevel   string `env:"ALERTMANAGER_LOG_LEVEL"`
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// LoadSnapshot loads and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes, defaults and validates one TOML document.
// Params: raw TOML body; environment overrides are not applied.
// Returns: validated config or decode/validation error.
func Parse(body []byte) (Config, error) {
	cfg, err := decode(body)
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReceiverByID finds receiver definition.
func (c Config) ReceiverByID(id string) (ReceiverConfig, bool) {
	for _, receiver := range c.Receivers {
		if receiver.ID == id {
			return receiver, true
		}
	}
	return ReceiverConfig{}, false
}

// decode parses TOML and flattens named tables.
func decode(body []byte) (Config, error) {
	var raw rawConfig
	if err := toml.Unmarshal(body, &raw); err != nil {
		return Config{}, err
	}
	return normalizeRawConfig(raw), nil
}

// normalizeRawConfig converts map-based named tables into name-sorted slices.
// Params: decoded raw TOML model.
// Returns: runtime config model.
func normalizeRawConfig(raw rawConfig) Config {
	cfg := Config{
		Service: raw.Service,
		Log:     raw.Log,
		HTTP:    raw.HTTP,
		Ingest:  raw.Ingest,
		Metrics: raw.Metrics,
		Tracing: raw.Tracing,
		Routes:  raw.Route,
	}
	for _, name := range sortedKeys(raw.Schedule) {
		item := raw.Schedule[name]
		item.Name = name
		cfg.Schedules = append(cfg.Schedules, item)
	}
	for _, name := range sortedKeys(raw.Template) {
		item := raw.Template[name]
		item.Name = name
		cfg.Templates = append(cfg.Templates, item)
	}
	for _, id := range sortedKeys(raw.Receiver) {
		item := raw.Receiver[id]
		item.ID = id
		cfg.Receivers = append(cfg.Receivers, item)
	}
	return cfg
}

func sortedKeys[V any](items map[string]V) []string {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// loadFile reads one TOML configuration file.
// Params: file path to config snapshot.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := decode(body)
	if err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML files from one directory.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.ToLower(filepath.Ext(name)) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays source onto destination.
// Sections replace when present; named tables and routes append, duplicates fail validation.
// Params: destination config and next fragment.
func mergeConfig(dst *Config, src Config) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if hasHTTPConfig(src.HTTP) {
		dst.HTTP = src.HTTP
	}
	if hasNATSIngestConfig(src.Ingest.NATS) {
		dst.Ingest = src.Ingest
	}
	if src.Metrics != (MetricsConfig{}) {
		dst.Metrics = src.Metrics
	}
	if src.Tracing != (TracingConfig{}) {
		dst.Tracing = src.Tracing
	}
	dst.Schedules = append(dst.Schedules, src.Schedules...)
	dst.Templates = append(dst.Templates, src.Templates...)
	dst.Receivers = append(dst.Receivers, src.Receivers...)
	dst.Routes = append(dst.Routes, src.Routes...)
}

func hasHTTPConfig(cfg HTTPConfig) bool {
	return cfg.Listen != "" ||
		cfg.BasePath != "" ||
		cfg.HealthPath != "" ||
		cfg.ReadyPath != "" ||
		cfg.MaxBodyBytes != 0 ||
		cfg.Auth.Type != "" ||
		len(cfg.Auth.Users) > 0
}

func hasNATSIngestConfig(cfg NATSIngestConfig) bool {
	return cfg.Enabled ||
		len(cfg.URL) > 0 ||
		cfg.Subject != "" ||
		cfg.Stream != "" ||
		cfg.Workers != 0 ||
		cfg.AckWaitSec != 0 ||
		cfg.NackDelayMS != 0 ||
		cfg.MaxDeliver != 0 ||
		cfg.MaxAckPending != 0
}

// applyEnv overlays ALERTMANAGER_* environment values.
// Params: decoded config.
// Returns: environment parse error.
func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := cleanenv.ReadEnv(&env); err != nil {
		return fmt.Errorf("read environment overrides: %w", err)
	}
	if listen := strings.TrimSpace(env.HTTPListen); listen != "" {
		cfg.HTTP.Listen = listen
	}
	if urls := splitList(env.NATSURL); len(urls) > 0 {
		cfg.Ingest.NATS.URL = urls
	}
	if level := strings.TrimSpace(env.LogLevel); level != "" {
		cfg.Log.Console.Level = level
		cfg.Log.File.Level = level
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyDefaults fills unset values.
// Params: cfg mutated in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service.Name) == "" {
		cfg.Service.Name = defaultServiceName
	}
	if cfg.Service.TickIntervalMS <= 0 {
		cfg.Service.TickIntervalMS = defaultTickIntervalMS
	}
	if cfg.Service.DefaultExpirySec <= 0 {
		cfg.Service.DefaultExpirySec = defaultExpirySec
	}
	if cfg.Service.ShutdownTimeoutSec <= 0 {
		cfg.Service.ShutdownTimeoutSec = defaultShutdownSec
	}

	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}
	if cfg.Log.File.MaxSizeMB <= 0 {
		cfg.Log.File.MaxSizeMB = defaultLogMaxSizeMB
	}
	if cfg.Log.File.MaxBackups <= 0 {
		cfg.Log.File.MaxBackups = defaultLogMaxBackups
	}
	if cfg.Log.File.MaxAgeDays <= 0 {
		cfg.Log.File.MaxAgeDays = defaultLogMaxAgeDays
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = defaultHTTPListen
	}
	if strings.TrimSpace(cfg.HTTP.BasePath) == "" {
		cfg.HTTP.BasePath = defaultAPIBasePath
	}
	cfg.HTTP.BasePath = "/" + strings.Trim(cfg.HTTP.BasePath, "/")
	if strings.TrimSpace(cfg.HTTP.HealthPath) == "" {
		cfg.HTTP.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(cfg.HTTP.ReadyPath) == "" {
		cfg.HTTP.ReadyPath = defaultReadyPath
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		cfg.HTTP.MaxBodyBytes = defaultMaxBodyBytes
	}
	cfg.HTTP.Auth.Type = strings.ToLower(strings.TrimSpace(cfg.HTTP.Auth.Type))
	if cfg.HTTP.Auth.Type == "" {
		cfg.HTTP.Auth.Type = AuthNone
	}

	natsCfg := &cfg.Ingest.NATS
	natsCfg.URL = normalizeNATSURLs(natsCfg.URL)
	if len(natsCfg.URL) == 0 {
		natsCfg.URL = []string{defaultNATSURL}
	}
	if natsCfg.Subject == "" {
		natsCfg.Subject = defaultNATSSubject
	}
	if natsCfg.Stream == "" {
		natsCfg.Stream = defaultNATSIngestStream
	}
	if natsCfg.ConsumerName == "" {
		natsCfg.ConsumerName = defaultNATSIngestConsumer
	}
	if natsCfg.DeliverGroup == "" {
		natsCfg.DeliverGroup = defaultNATSIngestGroup
	}
	if natsCfg.Workers <= 0 {
		natsCfg.Workers = defaultNATSIngestWorkers
	}
	if natsCfg.AckWaitSec <= 0 {
		natsCfg.AckWaitSec = defaultNATSAckWaitSec
	}
	if natsCfg.NackDelayMS <= 0 {
		natsCfg.NackDelayMS = defaultNATSNackDelayMS
	}
	if natsCfg.MaxDeliver == 0 {
		natsCfg.MaxDeliver = defaultNATSMaxDeliver
	}
	if natsCfg.MaxAckPending <= 0 {
		natsCfg.MaxAckPending = defaultNATSMaxAckPending
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaultServiceName
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = cfg.Service.Name
	}
	if cfg.Tracing.SampleRatio <= 0 {
		cfg.Tracing.SampleRatio = defaultTracingSampleRatio
	}

	for i := range cfg.Schedules {
		if cfg.Schedules[i].Timezone == "" {
			cfg.Schedules[i].Timezone = "UTC"
		}
		if cfg.Schedules[i].Repeat == "" {
			cfg.Schedules[i].Repeat = "none"
		}
	}
	for i := range cfg.Receivers {
		fillReceiverDefaults(&cfg.Receivers[i])
	}
	fillRouteDefaults(cfg.Routes)
}

func fillReceiverDefaults(receiver *ReceiverConfig) {
	if receiver.ReceiveRecoveries == nil {
		enabled := true
		receiver.ReceiveRecoveries = &enabled
	}
	fillNotifyRetryDefaults(&receiver.Retry)
	if receiver.Aggregate != nil && receiver.Aggregate.IntervalMin <= 0 {
		receiver.Aggregate.IntervalMin = defaultAggregateMinutes
	}
	if throttle := receiver.Throttle; throttle != nil {
		if throttle.IntervalSec <= 0 {
			throttle.IntervalSec = defaultThrottleSec
		}
		if throttle.HitThreshold <= 0 {
			throttle.HitThreshold = defaultThrottleHits
		}
		if throttle.HoldDownSec <= 0 {
			throttle.HoldDownSec = defaultHoldDownSec
		}
	}
	if slack := receiver.Slack; slack != nil {
		if slack.APIBase == "" {
			slack.APIBase = "https://slack.com/api"
		}
		fillTimeout(&slack.TimeoutSec)
	}
	if receiver.Teams != nil {
		fillTimeout(&receiver.Teams.TimeoutSec)
	}
	if email := receiver.Email; email != nil {
		if email.Port <= 0 {
			email.Port = 25
		}
		if email.From == "" {
			email.From = "no-reply@localhost.localdomain"
		}
		fillTimeout(&email.TimeoutSec)
	}
	if webhook := receiver.Webhook; webhook != nil {
		if webhook.Method == "" {
			webhook.Method = "POST"
		}
		webhook.Method = strings.ToUpper(webhook.Method)
		fillTimeout(&webhook.TimeoutSec)
	}
	if receiver.Mattermost != nil {
		fillTimeout(&receiver.Mattermost.TimeoutSec)
	}
	if mqtt := receiver.MQTT; mqtt != nil {
		if mqtt.ClientID == "" {
			mqtt.ClientID = defaultServiceName + "-" + receiver.ID
		}
		fillTimeout(&mqtt.TimeoutSec)
	}
	if natsCfg := receiver.NATS; natsCfg != nil {
		natsCfg.URL = normalizeNATSURLs(natsCfg.URL)
		if len(natsCfg.URL) == 0 {
			natsCfg.URL = []string{defaultNATSURL}
		}
	}
	if receiver.Log != nil && receiver.Log.Level == "" {
		receiver.Log.Level = "info"
	}
}

func fillTimeout(value *int) {
	if *value <= 0 {
		*value = defaultTransportTimeout
	}
}

func fillRouteDefaults(routes []RouteConfig) {
	for i := range routes {
		routes[i].Action = strings.ToLower(strings.TrimSpace(routes[i].Action))
		if routes[i].Action == "" {
			routes[i].Action = "end"
		}
		fillRouteDefaults(routes[i].Routes)
	}
}

func fillNotifyRetryDefaults(retry *NotifyRetry) {
	if retry == nil {
		return
	}
	if retry.Backoff == "" {
		retry.Backoff = "exponential"
	}
	if retry.InitialMS <= 0 {
		retry.InitialMS = 500
	}
	if retry.MaxMS <= 0 {
		retry.MaxMS = 60000
	}
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = DefaultRetryMaxAttempts
	}
}

// normalizeNATSURLs trims spaces around each configured NATS URL and drops empty entries.
// Params: raw URL list from config.
// Returns: normalized URL list.
func normalizeNATSURLs(urls []string) []string {
	if len(urls) == 0 {
		return nil
	}
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		if trimmed := strings.TrimSpace(url); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// validateConfig validates full runtime configuration.
// Params: cfg snapshot to validate.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	if len(cfg.Routes) == 0 {
		return errors.New("at least one route is required")
	}
	if cfg.Service.TickIntervalMS <= 0 {
		return errors.New("service.tick_interval_ms must be >0")
	}
	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		return errors.New("http.listen is required")
	}
	switch cfg.HTTP.Auth.Type {
	case AuthNone:
	case AuthBasic:
		if len(cfg.HTTP.Auth.Users) == 0 {
			return errors.New("http.auth.users is required for basic auth")
		}
	default:
		return fmt.Errorf("http.auth.type has unsupported value %q", cfg.HTTP.Auth.Type)
	}
	if cfg.Ingest.NATS.Enabled && cfg.Ingest.NATS.Workers <= 0 {
		return errors.New("ingest.nats.workers must be >0")
	}
	if cfg.Tracing.Enabled && strings.TrimSpace(cfg.Tracing.Endpoint) == "" {
		return errors.New("tracing.endpoint is required when tracing is enabled")
	}
	if cfg.Tracing.SampleRatio > 1 {
		return errors.New("tracing.sample_ratio must be <=1")
	}
	if err := validateLogSink("log.console", cfg.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("log.file", cfg.Log.File, true); err != nil {
		return err
	}

	schedules := make(map[string]struct{}, len(cfg.Schedules))
	for _, item := range cfg.Schedules {
		if _, exists := schedules[item.Name]; exists {
			return fmt.Errorf("schedule.%s is defined more than once", item.Name)
		}
		schedules[item.Name] = struct{}{}
		if err := validateSchedule(item); err != nil {
			return err
		}
	}

	templates := make(map[string]struct{}, len(cfg.Templates))
	for _, item := range cfg.Templates {
		if _, exists := templates[item.Name]; exists {
			return fmt.Errorf("template.%s is defined more than once", item.Name)
		}
		templates[item.Name] = struct{}{}
		if _, err := templatefmt.NewAlertTemplate(item.Name, item.Brief, item.Detail); err != nil {
			return fmt.Errorf("template.%s is invalid: %w", item.Name, err)
		}
	}

	receivers := make(map[string]struct{}, len(cfg.Receivers))
	for _, item := range cfg.Receivers {
		if _, exists := receivers[item.ID]; exists {
			return fmt.Errorf("receiver.%s is defined more than once", item.ID)
		}
		receivers[item.ID] = struct{}{}
	}
	for _, item := range cfg.Receivers {
		if err := validateReceiver(item, schedules, templates, receivers); err != nil {
			return err
		}
	}

	for i, route := range cfg.Routes {
		if err := validateRoute(fmt.Sprintf("route[%d]", i), route, receivers); err != nil {
			return err
		}
	}
	return nil
}

func validateSchedule(item ScheduleConfig) error {
	path := "schedule." + item.Name
	if strings.TrimSpace(item.Start) == "" || strings.TrimSpace(item.End) == "" {
		return fmt.Errorf("%s.start and %s.end are required", path, path)
	}
	frequency, err := schedule.ParseFrequency(item.Repeat)
	if err != nil {
		return fmt.Errorf("%s.repeat has unsupported value %q", path, item.Repeat)
	}
	start, err := schedule.ParseLocal(item.Start, item.Timezone)
	if err != nil {
		return fmt.Errorf("%s.start is invalid: %w", path, err)
	}
	end, err := schedule.ParseLocal(item.End, item.Timezone)
	if err != nil {
		return fmt.Errorf("%s.end is invalid: %w", path, err)
	}
	basic, err := schedule.NewBasic(start, end, item.Timezone)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", path, err)
	}
	if _, err := basic.WithRepeat(frequency, item.Interval); err != nil {
		return fmt.Errorf("%s.interval is invalid: %w", path, err)
	}
	return nil
}

func validateReceiver(item ReceiverConfig, schedules, templates, receivers map[string]struct{}) error {
	path := "receiver." + item.ID
	transports := item.Transports()
	if len(transports) == 0 {
		return fmt.Errorf("%s requires one transport table", path)
	}
	if len(transports) > 1 {
		return fmt.Errorf("%s has multiple transports: %s", path, strings.Join(transports, ", "))
	}
	if item.Template != "" {
		if _, ok := templates[item.Template]; !ok {
			return fmt.Errorf("%s.template references unknown template %q", path, item.Template)
		}
	}
	for _, name := range item.Schedules {
		if _, ok := schedules[name]; !ok {
			return fmt.Errorf("%s.schedules references unknown schedule %q", path, name)
		}
	}
	for _, name := range item.ExclusionSchedules {
		if _, ok := schedules[name]; !ok {
			return fmt.Errorf("%s.exclusion_schedules references unknown schedule %q", path, name)
		}
	}
	if item.RepeatIntervalSec < 0 {
		return fmt.Errorf("%s.repeat_interval_sec must be >=0", path)
	}
	if item.AlertDelaySec < 0 {
		return fmt.Errorf("%s.alert_delay_sec must be >=0", path)
	}
	if item.AlertDelaySec > 0 && item.DelayUntilUpdated {
		return fmt.Errorf("%s.alert_delay_sec and delay_until_updated are mutually exclusive", path)
	}
	for i, filter := range item.Filters {
		if err := validateCriteria(fmt.Sprintf("%s.filter[%d]", path, i), filter); err != nil {
			return err
		}
	}
	if err := validateRetry(path+".retry", item.Retry); err != nil {
		return err
	}
	if item.Aggregate != nil && item.Aggregate.Minimum < 0 {
		return fmt.Errorf("%s.aggregate.minimum must be >=0", path)
	}
	if throttle := item.Throttle; throttle != nil && throttle.NotifyReceiver != "" {
		if throttle.NotifyReceiver == item.ID {
			return fmt.Errorf("%s.throttle.notify_receiver must differ from the receiver itself", path)
		}
		if _, ok := receivers[throttle.NotifyReceiver]; !ok {
			return fmt.Errorf("%s.throttle.notify_receiver references unknown receiver %q", path, throttle.NotifyReceiver)
		}
	}
	return validateTransport(path, item)
}

func validateRetry(path string, retry NotifyRetry) error {
	if !retry.Enabled {
		return nil
	}
	switch retry.Backoff {
	case "exponential", "constant":
	default:
		return fmt.Errorf("%s.backoff has unsupported value %q", path, retry.Backoff)
	}
	if retry.MaxAttempts < 1 {
		return fmt.Errorf("%s.max_attempts must be >=1", path)
	}
	if retry.MaxMS < retry.InitialMS {
		return fmt.Errorf("%s.max_ms must be >= initial_ms", path)
	}
	return nil
}

func validateTransport(path string, item ReceiverConfig) error {
	switch {
	case item.Slack != nil:
		if item.Slack.APIToken == "" || item.Slack.MemberID == "" {
			return fmt.Errorf("%s.slack.api_token and member_id are required", path)
		}
	case item.Teams != nil:
		if item.Teams.WebhookURL == "" {
			return fmt.Errorf("%s.teams.webhook_url is required", path)
		}
	case item.Email != nil:
		if item.Email.Server == "" || len(item.Email.To) == 0 {
			return fmt.Errorf("%s.email.server and to are required", path)
		}
	case item.Telegram != nil:
		if item.Telegram.BotToken == "" || item.Telegram.ChatID == "" {
			return fmt.Errorf("%s.telegram.bot_token and chat_id are required", path)
		}
	case item.Webhook != nil:
		if item.Webhook.URL == "" {
			return fmt.Errorf("%s.webhook.url is required", path)
		}
	case item.Mattermost != nil:
		if item.Mattermost.BaseURL == "" || item.Mattermost.BotToken == "" || item.Mattermost.ChannelID == "" {
			return fmt.Errorf("%s.mattermost.base_url, bot_token and channel_id are required", path)
		}
	case item.Shoutrrr != nil:
		if len(item.Shoutrrr.URL) == 0 {
			return fmt.Errorf("%s.shoutrrr.url is required", path)
		}
	case item.MQTT != nil:
		if item.MQTT.Broker == "" || item.MQTT.Topic == "" {
			return fmt.Errorf("%s.mqtt.broker and topic are required", path)
		}
		if item.MQTT.QoS < 0 || item.MQTT.QoS > 2 {
			return fmt.Errorf("%s.mqtt.qos must be 0, 1 or 2", path)
		}
	case item.NATS != nil:
		if item.NATS.Subject == "" {
			return fmt.Errorf("%s.nats.subject is required", path)
		}
	case item.Log != nil:
		switch strings.ToLower(item.Log.Level) {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("%s.log.level has unsupported value %q", path, item.Log.Level)
		}
	}
	return nil
}

func validateRoute(path string, route RouteConfig, receivers map[string]struct{}) error {
	switch route.Action {
	case "end", "continue", "stop":
	default:
		return fmt.Errorf("%s.action has unsupported value %q", path, route.Action)
	}
	destinations := 0
	if route.Receiver != "" {
		destinations++
	}
	if len(route.Receivers) > 0 {
		destinations++
	}
	if route.Drop {
		destinations++
	}
	if len(route.Routes) > 0 {
		destinations++
	}
	if destinations != 1 {
		return fmt.Errorf("%s requires exactly one of receiver, receivers, drop or nested route", path)
	}
	if route.Group && len(route.Routes) == 0 {
		return fmt.Errorf("%s.group requires nested routes", path)
	}
	if route.Receiver != "" {
		if _, ok := receivers[route.Receiver]; !ok {
			return fmt.Errorf("%s.receiver references unknown receiver %q", path, route.Receiver)
		}
	}
	for _, id := range route.Receivers {
		if _, ok := receivers[id]; !ok {
			return fmt.Errorf("%s.receivers references unknown receiver %q", path, id)
		}
	}
	if route.When != nil {
		if err := validateCriteria(path+".when", *route.When); err != nil {
			return err
		}
	}
	for i, nested := range route.Routes {
		if err := validateRoute(fmt.Sprintf("%s.route[%d]", path, i), nested, receivers); err != nil {
			return err
		}
	}
	return nil
}

func validateCriteria(path string, criteria CriteriaConfig) error {
	switch strings.ToLower(strings.TrimSpace(criteria.Logic)) {
	case "", "and", "or":
	default:
		return fmt.Errorf("%s.logic has unsupported value %q", path, criteria.Logic)
	}
	if !criteria.All && len(criteria.Match) == 0 && len(criteria.Group) == 0 {
		return fmt.Errorf("%s requires match, group or all=true", path)
	}
	for key, value := range criteria.Match {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%s.match has empty key", path)
		}
		if list, ok := value.([]any); ok && len(list) == 0 {
			return fmt.Errorf("%s.match.%s has no values", path, key)
		}
		if strings.HasPrefix(key, routing.RegexPrefix) {
			for _, pattern := range criteria.MatchValues(key) {
				if _, err := routing.CompilePattern(routing.Canonical(pattern)); err != nil {
					return fmt.Errorf("%s.match.%s is invalid: %w", path, key, err)
				}
			}
		}
	}
	for i, group := range criteria.Group {
		if err := validateCriteria(fmt.Sprintf("%s.group[%d]", path, i), group); err != nil {
			return err
		}
	}
	return nil
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error", "panic":
	default:
		return fmt.Errorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return fmt.Errorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required", name)
	}

	return nil
}
