// Package config loads the featureflow YAML configuration. Defaults come
// from a struct, the file overrides them and a missing file is not an
// error.
package config

import (
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/cast"
	yml "gopkg.in/yaml.v3"

	"github.com/warriorguo/featureflow/features"
	"github.com/warriorguo/featureflow/store/postgres"
	"github.com/warriorguo/featureflow/types"
)

// FileName is the configuration file looked up when none is given.
var FileName = "featureflow.yml"

type Engine struct {
	MaxConcurrentAcquisitions int `koanf:"MaxConcurrentAcquisitions" yaml:"MaxConcurrentAcquisitions"`
	// durations use time.ParseDuration syntax, "0" disables
	ResponseTimeout string `koanf:"ResponseTimeout" yaml:"ResponseTimeout"`
	DrainTimeout    string `koanf:"DrainTimeout" yaml:"DrainTimeout"`
	TickInterval    string `koanf:"TickInterval" yaml:"TickInterval"`
	RecordTrace     bool   `koanf:"RecordTrace" yaml:"RecordTrace"`
	// PostgresDSN selects the PostgreSQL record store, e.g.
	// "host=localhost port=5432 user=postgres dbname=featureflow sslmode=disable"
	PostgresDSN string `koanf:"PostgresDSN" yaml:"PostgresDSN"`
}

type Camera struct {
	Width  int     `koanf:"Width" yaml:"Width"`
	Height int     `koanf:"Height" yaml:"Height"`
	FPS    float64 `koanf:"FPS" yaml:"FPS"`
	// Slots is the capacity of the frame slot store
	Slots int `koanf:"Slots" yaml:"Slots"`
}

type Output struct {
	// Dir is where FITS files go; empty disables writing
	Dir    string `koanf:"Dir" yaml:"Dir"`
	Prefix string `koanf:"Prefix" yaml:"Prefix"`
}

type Detection struct {
	Window     int     `koanf:"Window" yaml:"Window"`
	Threshold  float64 `koanf:"Threshold" yaml:"Threshold"`
	FocusRange float64 `koanf:"FocusRange" yaml:"FocusRange"`
	FocusStep  float64 `koanf:"FocusStep" yaml:"FocusStep"`
}

type Config struct {
	Addr       string         `koanf:"Addr" yaml:"Addr"`
	Engine     Engine         `koanf:"Engine" yaml:"Engine"`
	Camera     Camera         `koanf:"Camera" yaml:"Camera"`
	Output     Output         `koanf:"Output" yaml:"Output"`
	Detection  Detection      `koanf:"Detection" yaml:"Detection"`
	Experiment map[string]any `koanf:"Experiment" yaml:"Experiment"`
}

func Default() Config {
	return Config{
		Addr: ":8000",
		Engine: Engine{
			MaxConcurrentAcquisitions: 1,
			ResponseTimeout:           "30s",
			DrainTimeout:              "2s",
			TickInterval:              "0s",
			RecordTrace:               true,
		},
		Camera: Camera{Width: 64, Height: 64, FPS: 50, Slots: 64},
		Output: Output{Prefix: "frame"},
		Detection: Detection{
			Window:     32,
			Threshold:  1000,
			FocusRange: 50,
			FocusStep:  5,
		},
		Experiment: map[string]any{
			"MicroscopeState": map[string]any{
				"selected_channels": []any{"488", "561", "640"},
			},
		},
	}
}

// Load reads path over the defaults. An empty path means FileName.
func Load(path string) (*Config, error) {
	if path == "" {
		path = FileName
	}
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errors.Trace(err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Annotatef(err, "load %s", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Trace(err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, errors.Annotatef(err, "decode %s", path)
	}
	return c, nil
}

// Write encodes c as YAML, the format Load reads.
func (c *Config) Write(w io.Writer) error {
	enc := yml.NewEncoder(w)
	defer enc.Close()
	return errors.Trace(enc.Encode(c))
}

func duration(name, value string) (types.EngineOption, error) {
	d, err := cast.ToDurationE(value)
	if err != nil {
		return nil, errors.NotValidf("Engine.%s %q", name, value)
	}
	switch name {
	case "ResponseTimeout":
		return types.SetResponseTimeout(d), nil
	case "DrainTimeout":
		return types.SetDrainTimeout(d), nil
	}
	return types.SetTickInterval(d), nil
}

func (c *Config) EngineOptions() ([]types.EngineOption, error) {
	opts := []types.EngineOption{}
	if c.Engine.MaxConcurrentAcquisitions > 0 {
		opts = append(opts, types.SetMaxConcurrentAcquisitions(c.Engine.MaxConcurrentAcquisitions))
	}
	for _, d := range []struct{ name, value string }{
		{"ResponseTimeout", c.Engine.ResponseTimeout},
		{"DrainTimeout", c.Engine.DrainTimeout},
		{"TickInterval", c.Engine.TickInterval},
	} {
		if d.value == "" {
			continue
		}
		opt, err := duration(d.name, d.value)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	if !c.Engine.RecordTrace {
		opts = append(opts, types.DisableRecordTrace())
	}

	if c.Engine.PostgresDSN == "" {
		return append(opts, types.EnableMemStore()), nil
	}
	pg, err := postgres.ParseDSN(c.Engine.PostgresDSN)
	if err != nil {
		return nil, errors.Annotate(err, "Engine.PostgresDSN")
	}
	return append(opts, types.WithPostgresConfig(&types.PostgresConfig{
		Host:     pg.Host,
		Port:     pg.Port,
		User:     pg.User,
		Password: pg.Password,
		Database: pg.Database,
		SSLMode:  pg.SSLMode,
	})), nil
}

func (c *Config) ListOptions() *features.ListOptions {
	opts := features.NewListOptions()
	if c.Detection.Window > 0 {
		opts.DetectionWindow = c.Detection.Window
	}
	if c.Detection.Threshold > 0 {
		opts.DetectionThreshold = c.Detection.Threshold
	}
	if c.Detection.FocusRange > 0 {
		opts.FocusRange = c.Detection.FocusRange
	}
	if c.Detection.FocusStep > 0 {
		opts.FocusStep = c.Detection.FocusStep
	}
	return opts
}

// NewExperiment builds a fresh experiment state from the Experiment
// section; runs never write back into the config.
func (c *Config) NewExperiment() *types.Experiment {
	if c.Experiment == nil {
		return types.NewExperiment(nil)
	}
	return types.NewExperiment(types.Data(maps.Copy(c.Experiment)))
}
