package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/asaskevich/govalidator"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Data    DataCfg
	Export  ExportCfg
	Seed    SeedCfg
	Metrics MetricsCfg
	Logger  LoggerCfg
}

// DataCfg mirrors the `Data:DataConnection:ConnectionString` layout so existing appsettings files load as is.
type DataCfg struct {
	DataConnection DataConnectionCfg
}

type DataConnectionCfg struct {
	Driver           string `valid:"in(postgres|sqlite|snowflake)"`
	ConnectionString string `valid:"required"`
}

type ExportCfg struct {
	OutputDir string `valid:"required"`
}

type SeedCfg struct {
	Rows      int `valid:"required"`
	BatchSize int `valid:"required"`
}

type MetricsCfg struct {
	// PushGateway is the Pushgateway URL. Metrics are not pushed when empty.
	PushGateway string
	Job         string
}

type LoggerCfg struct {
	Level string
	JSON  bool
}

var DefaultConfig = Config{
	Data: DataCfg{
		DataConnection: DataConnectionCfg{
			Driver:           "postgres",
			ConnectionString: "",
		},
	},
	Export: ExportCfg{
		OutputDir: ".",
	},
	Seed: SeedCfg{
		Rows:      2100000,
		BatchSize: 1000,
	},
	Metrics: MetricsCfg{
		PushGateway: "",
		Job:         "exportbench",
	},
	Logger: LoggerCfg{
		Level: "info",
		JSON:  false,
	},
}

func (c *Config) Validate() error {
	_, err := govalidator.ValidateStruct(c)
	return err
}

// GetConf reads the YAML or JSON file at path over defaultCfg. Every field can be overridden from the
// environment, e.g. DATA_DATACONNECTION_CONNECTIONSTRING.
func GetConf(defaultCfg Config, path string) (*Config, error) {
	cfg := defaultCfg
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvs(v, cfg)
	err := v.ReadInConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	err = v.Unmarshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	return &cfg, nil
}

func WriteExampleConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	y := yaml.NewEncoder(f)
	if err := y.Encode(DefaultConfig); err != nil {
		return fmt.Errorf("could not encode config: %w", err)
	}
	return y.Close()
}

func bindEnvs(v *viper.Viper, iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		fieldv := ifv.Field(i)
		t := ift.Field(i)
		name := strings.ToLower(t.Name)
		tag, exists := t.Tag.Lookup("mapstructure")
		if exists {
			name = tag
		}
		path := append(append([]string{}, parts...), name)
		switch fieldv.Kind() {
		case reflect.Struct:
			bindEnvs(v, fieldv.Interface(), path...)
		default:
			_ = v.BindEnv(strings.Join(path, "."))
		}
	}
}
