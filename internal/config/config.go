package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	PostgresHost            string `mapstructure:"postgres_host"              validate:"required"`
	PostgresUsername        string `mapstructure:"postgres_username"          validate:"required"`
	PostgresPassword        string `mapstructure:"postgres_password"`
	PostgresPort            string `mapstructure:"postgres_port"              validate:"required"`
	PostgresDatabase        string `mapstructure:"postgres_database"          validate:"required"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb"`

	KafkaBootstrapServer       string `mapstructure:"kafka_bootstrap_server"        validate:"required"`
	KafkaUsername              string `mapstructure:"kafka_username"`
	KafkaPassword              string `mapstructure:"kafka_password"`
	KafkaChangeFeedTopic       string `mapstructure:"kafka_change_feed_topic"       validate:"required"`
	KafkaHealthCheckTopic      string `mapstructure:"kafka_health_check_topic"      validate:"required"`
	KafkaGroupPrefix           string `mapstructure:"kafka_group_prefix"            validate:"required"`
	KafkaIntervalCB            uint32 `mapstructure:"kafka_interval_cb"`
	KafkaConsecutiveFailuresCB uint32 `mapstructure:"kafka_consecutive_failures_cb"`

	// RingTimeoutSeconds bounds how long an unanswered inbound attempt may
	// stay in Ringing before it is marked missed.
	RingTimeoutSeconds int `mapstructure:"ring_timeout_seconds" validate:"required,min=1"`

	LogLocateMaxAttempts uint `mapstructure:"log_locate_max_attempts" validate:"required,min=1"`
	LogLocateDelayMillis int  `mapstructure:"log_locate_delay_millis" validate:"required,min=1"`

	MediaAppID string `mapstructure:"media_app_id" validate:"required"`

	// UserID identifies this client instance on the change feed. Embedding
	// applications usually override it after sign-in.
	UserID string `mapstructure:"user_id" validate:"required"`

	PoolSize int `mapstructure:"pool_size" validate:"required,min=1"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	HealthCheckerMonitorInterval int `mapstructure:"health_checker_monitor_interval"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`
}

var Conf Config

func init() {
	err := loadEnvConfig(&Conf)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("error", err.Error()))
	}
}

func loadEnvConfig(cfg *Config) error {
	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	err = viper.Unmarshal(cfg)
	if err != nil {
		return err
	}

	err = validator.New().Struct(cfg)
	if err != nil {
		return err
	}

	return nil
}

func setupDefaults() {
	confType := reflect.TypeOf(Conf)
	for i := range confType.NumField() {
		field := confType.Field(i)
		viper.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_USERNAME", "postgres")
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("POSTGRES_DATABASE", "callsync")
	viper.SetDefault("DB_INTERVAL_CB", "60")
	viper.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "10")
	viper.SetDefault("KAFKA_BOOTSTRAP_SERVER", "localhost:9092")
	viper.SetDefault("KAFKA_CHANGE_FEED_TOPIC", "callsync-changes")
	viper.SetDefault("KAFKA_HEALTH_CHECK_TOPIC", "callsync-healthcheck")
	viper.SetDefault("KAFKA_GROUP_PREFIX", "callsync-client")
	viper.SetDefault("KAFKA_INTERVAL_CB", "30")
	viper.SetDefault("KAFKA_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("RING_TIMEOUT_SECONDS", "30")
	viper.SetDefault("LOG_LOCATE_MAX_ATTEMPTS", "5")
	viper.SetDefault("LOG_LOCATE_DELAY_MILLIS", "200")
	viper.SetDefault("MEDIA_APP_ID", "callsync-dev")
	viper.SetDefault("USER_ID", "local-dev")
	viper.SetDefault("POOL_SIZE", "10")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("LOG_FILE_PATH", "./access.log")
	viper.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "30")
	viper.SetDefault("PROMETHEUS_PORT", "2112")
	viper.SetDefault("PROMETHEUS_TIMEOUT", "60")
}
