package config

import (
	"flag"
	"fmt"
	"io/ioutil"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
	"moff.io/wallet-bridge/internal/transport"
	"moff.io/wallet-bridge/pkg/errors"
)

// DBCredential struct
type DBCredential struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

func (c *DBCredential) Dsn() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		c.Address, c.Port, c.User, c.Password, c.Database)
}

func (c *DBCredential) Addr() string {
	return fmt.Sprintf("%v:%v", c.Address, c.Port)
}

// DB returns the numeric database index, 0 when unset or malformed.
func (c *DBCredential) DB() int {
	db, _ := strconv.ParseInt(c.Database, 10, 64)
	return int(db)
}

// Configuration struct
type Configuration struct {
	LogLevel  int       `yaml:"log_level"`
	HTTP      HTTP      `yaml:"http"`
	AppKit    AppKit    `yaml:"appkit"`
	Bridge    Bridge    `yaml:"bridge"`
	OnRamp    OnRamp    `yaml:"onramp"`
	Storage   Storage   `yaml:"storage"`
	DataBus   DataBus   `yaml:"databus"`
	Reporting Reporting `yaml:"reporting"`
}

type HTTP struct {
	Address         string        `yaml:"address"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	// OnRampPerMinute caps on-ramp requests per client ip. It needs the redis
	// storage driver; zero disables the limit.
	OnRampPerMinute int           `yaml:"onramp_per_minute"`
}

type Metadata struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	Icons       []string `yaml:"icons"`
}

// AppKit holds the modal options applied at start-up and the timing of the
// modal interactions.
type AppKit struct {
	ProjectID         string                   `yaml:"project_id"`
	Chains            []int64                  `yaml:"chains"`
	EnableAnalytics   bool                     `yaml:"enable_analytics"`
	EnableOnRamp      bool                     `yaml:"enable_onramp"`
	Metadata          Metadata                 `yaml:"metadata"`
	Email             bool                     `yaml:"email"`
	Socials           []string                 `yaml:"socials"`
	ShowWallets       bool                     `yaml:"show_wallets"`
	WalletFeatures    bool                     `yaml:"wallet_features"`
	Transports        map[int64]transport.Spec `yaml:"transports"`
	IncludeWalletIDs  []string                 `yaml:"include_wallet_ids"`
	FeaturedWalletIDs []string                 `yaml:"featured_wallet_ids"`
	ExcludeWalletIDs  []string                 `yaml:"exclude_wallet_ids"`

	OpenDelay         time.Duration `yaml:"open_delay"`
	PopupDelay        time.Duration `yaml:"popup_delay"`
	FocusPollInterval time.Duration `yaml:"focus_poll_interval"`
}

type Bridge struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// Empty allows any origin.
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type OnRamp struct {
	BaseURL   string `yaml:"base_url"`
	PublicKey string `yaml:"public_key"`
}

type Storage struct {
	Driver    string        `yaml:"driver"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
	Redis     DBCredential  `yaml:"redis"`
	Postgres  DBCredential  `yaml:"postgres"`
}

type DataBus struct {
	Driver       string `yaml:"driver"`
	KafkaServers string `yaml:"kafka_servers"`
	Topic        string `yaml:"topic"`
	QueueURL     string `yaml:"queue_url"`
	Region       string `yaml:"region"`
}

type Reporting struct {
	SentryDSN   string        `yaml:"sentry_dsn"`
	LarkWebhook string        `yaml:"lark_webhook"`
	LarkSilent  time.Duration `yaml:"lark_silent"`
}

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverLog      = "log"
	DriverKafka    = "kafka"
	DriverSQS      = "sqs"
)

// Default is the configuration every file is decoded over.
func Default() Configuration {
	return Configuration{
		LogLevel: 1,
		HTTP: HTTP{
			Address:        ":8080",
			RequestTimeout: 30 * time.Second,
		},
		AppKit: AppKit{
			Chains:            []int64{1},
			OpenDelay:         300 * time.Millisecond,
			PopupDelay:        300 * time.Millisecond,
			FocusPollInterval: 100 * time.Millisecond,
		},
		Bridge: Bridge{
			RequestTimeout: 10 * time.Second,
		},
		Storage: Storage{
			Driver:    DriverMemory,
			KeyPrefix: "wagmi",
		},
		DataBus: DataBus{
			Driver: DriverLog,
			Topic:  "wallet-bridge",
		},
		Reporting: Reporting{
			LarkSilent: time.Minute,
		},
	}
}

func (c *Configuration) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverRedis, DriverPostgres:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.DataBus.Driver {
	case DriverLog:
	case DriverKafka:
		if c.DataBus.KafkaServers == "" {
			return errors.New("databus.kafka_servers is required by the kafka driver")
		}
	case DriverSQS:
		if c.DataBus.QueueURL == "" || c.DataBus.Region == "" {
			return errors.New("databus.queue_url and databus.region are required by the sqs driver")
		}
	default:
		return errors.Errorf("unknown databus driver %q", c.DataBus.Driver)
	}
	if c.HTTP.OnRampPerMinute < 0 {
		return errors.New("http.onramp_per_minute must not be negative")
	}
	if c.HTTP.OnRampPerMinute > 0 && c.Storage.Driver != DriverRedis {
		return errors.New("http.onramp_per_minute needs the redis storage driver")
	}
	if c.OnRamp.BaseURL != "" {
		u, err := url.Parse(c.OnRamp.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.Errorf("onramp.base_url %q is not an absolute url", c.OnRamp.BaseURL)
		}
	}
	if _, err := transport.BuilderFromSpecs(c.AppKit.Transports); err != nil {
		return errors.Wrap(err, "appkit.transports")
	}
	return nil
}

// Parse decodes data over Default and validates the result.
func Parse(data []byte) (*Configuration, error) {
	conf := Default()
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func Load(path string) (*Configuration, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

var Global *Configuration

// Read loads the file named by -config-path into Global and exits the process
// when it cannot.
func Read() {
	configFilePath := flag.String("config-path", "internal/config/config.yml", "The path to the configuration file")
	flag.Parse()
	logrus.Infof("Loading configuration file from %s", *configFilePath)
	conf, err := Load(*configFilePath)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.Infof("Configuration loaded: %d chains, storage %s, databus %s",
		len(conf.AppKit.Chains), conf.Storage.Driver, conf.DataBus.Driver)
	Global = conf
}
