package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/nftmarket/marketd/internal/core/application"
	"github.com/nftmarket/marketd/internal/core/domain"
	"github.com/nftmarket/marketd/internal/core/ports"
	alertsmanager "github.com/nftmarket/marketd/internal/infrastructure/alertsmanager"
	"github.com/nftmarket/marketd/internal/infrastructure/db"
	watermillpublisher "github.com/nftmarket/marketd/internal/infrastructure/events/watermill"
	inmemorypayments "github.com/nftmarket/marketd/internal/infrastructure/payments/inmemory"
	redispayments "github.com/nftmarket/marketd/internal/infrastructure/payments/redis"
	timescheduler "github.com/nftmarket/marketd/internal/infrastructure/scheduler/gocron"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	supportedDbs = supportedType{
		"badger":   {},
		"sqlite":   {},
		"postgres": {},
	}
	supportedPaymentServices = supportedType{
		"inmemory": {},
		"redis":    {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
	}
)

type Config struct {
	Datadir  string
	Port     uint32
	LogLevel int

	DbType              string
	DbDir               string
	DbUrl               string
	DbAutoCreate        bool
	PaymentsType        string
	RedisUrl            string
	RedisTxNumOfRetries int
	SchedulerType       string
	NoLiveEvents        bool

	OperatorAddress      string
	RegistryOwnerAddress string
	MarketAddress        string
	DefaultFeeRateBps    uint32
	MaxPageSize          uint64
	StatsInterval        int64

	OtelCollectorEndpoint string
	OtelPushInterval      int64
	AlertManagerURL       string
	PyroscopeServerURL    string

	repo      ports.RepoManager
	svc       application.Service
	payments  ports.PaymentService
	publisher ports.EventPublisher
	scheduler ports.SchedulerService
	alerts    ports.Alerts
}

func (c *Config) String() string {
	clone := *c
	if clone.DbUrl != "" {
		clone.DbUrl = redactURL(clone.DbUrl)
	}
	if clone.RedisUrl != "" {
		clone.RedisUrl = redactURL(clone.RedisUrl)
	}
	json, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	defaultDatadir             = btcutil.AppDataDir("marketd", false)
	DefaultPort                = 7080
	defaultLogLevel            = 4
	defaultDbType              = "badger"
	defaultPaymentsType        = "inmemory"
	defaultSchedulerType       = "gocron"
	defaultRedisTxNumOfRetries = 10
	defaultFeeRateBps          = 250
	defaultMaxPageSize         = 100
	defaultStatsInterval       = 60 // seconds
	defaultOtelPushInterval    = 10 // seconds
)

// env returns a list of strings prefixed with `MARKETD_`.
// This is used as a syntax sugar for defining env vars.
func env(values ...string) []string {
	envs := make([]string, len(values))

	for i, value := range values {
		envs[i] = fmt.Sprintf("MARKETD_%s", value)
	}

	return envs
}

var (
	Datadir = &cli.StringFlag{
		Usage: "Directory to store data",
		Name:  "datadir", EnvVars: env("DATADIR"),
		Value: defaultDatadir,
	}

	Port = &cli.UintFlag{
		Usage: "Port to listen on",
		Name:  "port", EnvVars: env("PORT"),
		Value: uint(DefaultPort),
	}

	LogLevel = &cli.IntFlag{
		Usage: "Logging level (0-6, where 6 is trace)",
		Name:  "log-level", EnvVars: env("LOG_LEVEL"),
		Value: defaultLogLevel,
	}

	DbType = &cli.StringFlag{
		Usage: "Database type (postgres, sqlite, badger)",
		Name:  "db-type", EnvVars: env("DB_TYPE"),
		Value: defaultDbType,
	}

	DbUrl = &cli.StringFlag{
		Usage: "Postgres connection url if MARKETD_DB_TYPE is set to postgres",
		Name:  "pg-db-url", EnvVars: env("PG_DB_URL"),
	}

	DbAutoCreate = &cli.BoolFlag{
		Usage: "Create the postgres database if it doesn't exist",
		Name:  "pg-db-autocreate", EnvVars: env("PG_DB_AUTOCREATE"),
	}

	PaymentsType = &cli.StringFlag{
		Usage: "Payment service type (inmemory, redis)",
		Name:  "payments-type", EnvVars: env("PAYMENTS_TYPE"),
		Value: defaultPaymentsType,
	}

	RedisUrl = &cli.StringFlag{
		Usage: "Redis db connection url if MARKETD_PAYMENTS_TYPE is set to redis",
		Name:  "redis-url", EnvVars: env("REDIS_URL"),
	}

	RedisTxNumOfRetries = &cli.IntFlag{
		Usage: "Maximum number of retries for Redis write operations in case of conflicts",
		Name:  "redis-num-of-retries", EnvVars: env("REDIS_NUM_OF_RETRIES"),
		Value: defaultRedisTxNumOfRetries,
	}

	SchedulerType = &cli.StringFlag{
		Usage: "Scheduler type",
		Name:  "scheduler-type", EnvVars: env("SCHEDULER_TYPE"),
		Value: defaultSchedulerType,
	}

	NoLiveEvents = &cli.BoolFlag{
		Usage: "Disable the live event stream, events stay readable from the event log",
		Name:  "no-live-events", EnvVars: env("NO_LIVE_EVENTS"),
	}

	OperatorAddress = &cli.StringFlag{
		Usage: "Address allowed to change the fee rate and withdraw fees",
		Name:  "operator-address", EnvVars: env("OPERATOR_ADDRESS"),
	}

	RegistryOwnerAddress = &cli.StringFlag{
		Usage: "Address allowed to mint to any recipient",
		Name:  "registry-owner-address", EnvVars: env("REGISTRY_OWNER_ADDRESS"),
	}

	MarketAddress = &cli.StringFlag{
		Usage: "Settlement identity sellers approve before listing",
		Name:  "market-address", EnvVars: env("MARKET_ADDRESS"),
	}

	DefaultFeeRateBps = &cli.UintFlag{
		Usage: "Protocol fee rate in basis points used when the treasury is first created",
		Name:  "default-fee-rate-bps", EnvVars: env("DEFAULT_FEE_RATE_BPS"),
		Value: uint(defaultFeeRateBps),
	}

	MaxPageSize = &cli.Uint64Flag{
		Usage: "Max number of items returned by paginated reads",
		Name:  "max-page-size", EnvVars: env("MAX_PAGE_SIZE"),
		Value: uint64(defaultMaxPageSize),
	}

	StatsInterval = &cli.Int64Flag{
		Usage:       "How often market stats are logged (in seconds)",
		Name:        "stats-interval", EnvVars: env("STATS_INTERVAL"),
		Value:       int64(defaultStatsInterval),
		DefaultText: fmt.Sprintf("%d, 0 disabled", defaultStatsInterval),
	}

	OtelCollectorEndpoint = &cli.StringFlag{
		Usage: "OpenTelemetry collector endpoint (host:port)",
		Name:  "otel-collector-endpoint", EnvVars: env("OTEL_COLLECTOR_ENDPOINT"),
	}

	OtelPushInterval = &cli.Int64Flag{
		Usage: "OpenTelemetry metrics push interval in seconds",
		Name:  "otel-push-interval", EnvVars: env("OTEL_PUSH_INTERVAL"),
		Value: int64(defaultOtelPushInterval),
	}

	AlertManagerURL = &cli.StringFlag{
		Usage: "Alertmanager url, alerts are disabled if empty",
		Name:  "alert-manager-url", EnvVars: env("ALERT_MANAGER_URL"),
	}

	PyroscopeServerURL = &cli.StringFlag{
		Usage: "Pyroscope server url, continuous profiling is disabled if empty",
		Name:  "pyroscope-server-url", EnvVars: env("PYROSCOPE_SERVER_URL"),
	}
)

var Flags = []cli.Flag{
	Datadir,
	Port,
	LogLevel,
	DbType,
	DbUrl,
	DbAutoCreate,
	PaymentsType,
	RedisUrl,
	RedisTxNumOfRetries,
	SchedulerType,
	NoLiveEvents,
	OperatorAddress,
	RegistryOwnerAddress,
	MarketAddress,
	DefaultFeeRateBps,
	MaxPageSize,
	StatsInterval,
	OtelCollectorEndpoint,
	OtelPushInterval,
	AlertManagerURL,
	PyroscopeServerURL,
}

func LoadConfig(c *cli.Context) (*Config, error) {
	if err := initDatadir(c); err != nil {
		return nil, fmt.Errorf("failed to create datadir: %s", err)
	}

	dbPath := filepath.Join(c.String(Datadir.Name), "db")

	var dbUrl string
	if c.String(DbType.Name) == "postgres" {
		dbUrl = c.String(DbUrl.Name)
		if dbUrl == "" {
			return nil, fmt.Errorf("db type set to 'postgres' but db url is missing")
		}
	}

	var redisUrl string
	if c.String(PaymentsType.Name) == "redis" {
		redisUrl = c.String(RedisUrl.Name)
		if redisUrl == "" {
			return nil, fmt.Errorf("payments type set to 'redis' but redis url is missing")
		}
	}

	// The market can always mint on its own behalf, fallback to it as registry owner.
	registryOwner := c.String(RegistryOwnerAddress.Name)
	if registryOwner == "" {
		registryOwner = c.String(MarketAddress.Name)
	}

	return &Config{
		Datadir:               c.String(Datadir.Name),
		Port:                  uint32(c.Uint(Port.Name)),
		LogLevel:              c.Int(LogLevel.Name),
		DbType:                c.String(DbType.Name),
		DbDir:                 dbPath,
		DbUrl:                 dbUrl,
		DbAutoCreate:          c.Bool(DbAutoCreate.Name),
		PaymentsType:          c.String(PaymentsType.Name),
		RedisUrl:              redisUrl,
		RedisTxNumOfRetries:   c.Int(RedisTxNumOfRetries.Name),
		SchedulerType:         c.String(SchedulerType.Name),
		NoLiveEvents:          c.Bool(NoLiveEvents.Name),
		OperatorAddress:       c.String(OperatorAddress.Name),
		RegistryOwnerAddress:  registryOwner,
		MarketAddress:         c.String(MarketAddress.Name),
		DefaultFeeRateBps:     uint32(c.Uint(DefaultFeeRateBps.Name)),
		MaxPageSize:           c.Uint64(MaxPageSize.Name),
		StatsInterval:         c.Int64(StatsInterval.Name),
		OtelCollectorEndpoint: c.String(OtelCollectorEndpoint.Name),
		OtelPushInterval:      c.Int64(OtelPushInterval.Name),
		AlertManagerURL:       c.String(AlertManagerURL.Name),
		PyroscopeServerURL:    c.String(PyroscopeServerURL.Name),
	}, nil
}

func initDatadir(c *cli.Context) error {
	datadir := c.String(Datadir.Name)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0o755)
	}
	return nil
}

// Validate checks the config and wires every service but the app one, which is created
// lazily by AppService.
func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedPaymentServices.supports(c.PaymentsType) {
		return fmt.Errorf(
			"payments type not supported, please select one of: %s",
			supportedPaymentServices,
		)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf(
			"scheduler type not supported, please select one of: %s",
			supportedSchedulers,
		)
	}
	if domain.IsZeroAddress(c.OperatorAddress) {
		return fmt.Errorf("missing operator address")
	}
	if domain.IsZeroAddress(c.MarketAddress) {
		return fmt.Errorf("missing market address")
	}
	if c.DefaultFeeRateBps > domain.MaxFeeRateBps {
		return fmt.Errorf(
			"invalid default fee rate, must be at most %d bps", domain.MaxFeeRateBps,
		)
	}
	if c.MaxPageSize == 0 {
		return fmt.Errorf("invalid max page size, must be greater than 0")
	}
	if c.StatsInterval < 0 {
		return fmt.Errorf("invalid stats interval, must be greater or equal than 0")
	}
	if c.StatsInterval == 0 {
		log.Debugf("market stats report is disabled")
	}
	if c.OtelCollectorEndpoint != "" && c.OtelPushInterval <= 0 {
		return fmt.Errorf("invalid otel push interval, must be greater than 0")
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.paymentService(); err != nil {
		return err
	}
	if err := c.eventPublisher(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	if err := c.alertsService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) repoManager() error {
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		if err := makeDirectoryIfNotExists(c.DbDir); err != nil {
			return fmt.Errorf("failed to create db dir: %s", err)
		}
		dataStoreConfig = []interface{}{c.DbDir}
	case "postgres":
		dataStoreConfig = []interface{}{c.DbUrl, c.DbAutoCreate}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) paymentService() error {
	var svc ports.PaymentService
	switch c.PaymentsType {
	case "inmemory":
		svc = inmemorypayments.NewPaymentService()
	case "redis":
		redisOpts, err := redis.ParseURL(c.RedisUrl)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		svc = redispayments.NewPaymentService(rdb, c.RedisTxNumOfRetries)
	default:
		return fmt.Errorf("unknown payments type")
	}

	c.payments = svc
	return nil
}

func (c *Config) eventPublisher() error {
	if c.NoLiveEvents {
		return nil
	}
	c.publisher = watermillpublisher.NewEventPublisher()
	return nil
}

func (c *Config) schedulerService() error {
	var svc ports.SchedulerService
	switch c.SchedulerType {
	case "gocron":
		svc = timescheduler.NewScheduler()
	default:
		return fmt.Errorf("unknown scheduler type")
	}

	c.scheduler = svc
	return nil
}

func (c *Config) alertsService() error {
	if c.AlertManagerURL == "" {
		return nil
	}

	c.alerts = alertsmanager.NewService(c.AlertManagerURL)
	return nil
}

func (c *Config) appService() error {
	if c.repo == nil || c.payments == nil {
		return fmt.Errorf("config not validated")
	}

	svc, err := application.NewService(
		c.repo, c.payments, c.publisher, c.scheduler, c.alerts,
		application.Config{
			OperatorAddress:      c.OperatorAddress,
			RegistryOwnerAddress: c.RegistryOwnerAddress,
			MarketAddress:        c.MarketAddress,
			DefaultFeeRateBps:    c.DefaultFeeRateBps,
			MaxPageSize:          c.MaxPageSize,
			StatsInterval:        time.Duration(c.StatsInterval) * time.Second,
		},
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	sort.Strings(types)
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}

func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
