package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lookup-bench/internal/bench"
	"lookup-bench/internal/logger"
	"lookup-bench/internal/rpc"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Bench BenchConfig `yaml:"bench" json:"bench"`
	Log   LogConfig   `yaml:"log" json:"log"`
}

// BenchConfig はベンチマーク設定
// 0や空文字列の項目はデフォルト値のまま。
type BenchConfig struct {
	Role      string `yaml:"role" json:"role"`
	MachineID int    `yaml:"machine_id" json:"machine_id"`

	NumKeys   uint64 `yaml:"num_keys" json:"num_keys"`
	ReqWindow int    `yaml:"req_window" json:"req_window"`

	NumClientThreads   int `yaml:"num_client_threads" json:"num_client_threads"`
	NumServerFgThreads int `yaml:"num_server_fg_threads" json:"num_server_fg_threads"`
	NumServerBgThreads int `yaml:"num_server_bg_threads" json:"num_server_bg_threads"`

	HostPattern string `yaml:"host_pattern" json:"host_pattern"`
	ServerAddr  string `yaml:"server_addr" json:"server_addr"`
	BindHost    string `yaml:"bind_host" json:"bind_host"`
	Port        int    `yaml:"port" json:"port"`

	ReportInterval uint64 `yaml:"report_interval" json:"report_interval"`
	PinThreads     *bool  `yaml:"pin_threads" json:"pin_threads"`
	StatusAddr     string `yaml:"status_addr" json:"status_addr"`
	ConnectRetry   string `yaml:"connect_retry" json:"connect_retry"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := gojson.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// ToBenchConfig はFileConfigをbench.Configに変換する
func (f *FileConfig) ToBenchConfig() (bench.Config, error) {
	bc := f.Bench

	// デフォルト値の設定
	config := bench.DefaultConfig()

	if bc.Role != "" {
		role, err := bench.ParseRole(bc.Role)
		if err != nil {
			return config, err
		}
		config.Role = role
	}
	config.MachineID = bc.MachineID

	if bc.NumKeys > 0 {
		config.NumKeys = bc.NumKeys
	}
	if bc.ReqWindow > 0 {
		config.ReqWindow = bc.ReqWindow
	}

	// スレッド数
	if bc.NumClientThreads > 0 {
		config.NumClientThreads = bc.NumClientThreads
	}
	if bc.NumServerFgThreads > 0 {
		config.NumServerFgThreads = bc.NumServerFgThreads
	}
	if bc.NumServerBgThreads > 0 {
		config.NumServerBgThreads = bc.NumServerBgThreads
	}

	// 接続先
	if bc.HostPattern != "" {
		config.HostPattern = bc.HostPattern
	}
	config.ServerAddr = bc.ServerAddr
	config.BindHost = bc.BindHost
	if bc.Port > 0 {
		config.Port = bc.Port
	}

	if bc.ReportInterval > 0 {
		config.ReportInterval = bc.ReportInterval
	}
	if bc.PinThreads != nil {
		config.PinThreads = *bc.PinThreads
	}
	if bc.ConnectRetry != "" {
		d, err := time.ParseDuration(bc.ConnectRetry)
		if err != nil {
			return config, fmt.Errorf("invalid connect_retry: %w", err)
		}
		config.ConnectRetry = d
	}

	return config, nil
}

// LogSettings はログレベルと出力形式を返す
func (f *FileConfig) LogSettings() (logger.Level, logger.Format, error) {
	level := logger.LevelInfo
	format := logger.FormatText

	if f.Log.Level != "" {
		l, err := logger.ParseLevel(f.Log.Level)
		if err != nil {
			return level, format, err
		}
		level = l
	}
	if f.Log.Format != "" {
		fm, err := logger.ParseFormat(f.Log.Format)
		if err != nil {
			return level, format, err
		}
		format = fm
	}
	return level, format, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	bc := f.Bench
	var errs []error

	if bc.Role != "" {
		if _, err := bench.ParseRole(bc.Role); err != nil {
			errs = append(errs, err)
		}
	}
	if bc.MachineID < 0 {
		errs = append(errs, errors.New("machine_id must be non-negative"))
	}
	if bc.ReqWindow < 0 || bc.ReqWindow > rpc.MaxReqWindow {
		errs = append(errs, fmt.Errorf("req_window must be between 1 and %d", rpc.MaxReqWindow))
	}
	if bc.NumClientThreads < 0 {
		errs = append(errs, errors.New("num_client_threads must be non-negative"))
	}
	if bc.NumServerFgThreads < 0 {
		errs = append(errs, errors.New("num_server_fg_threads must be non-negative"))
	}
	if bc.NumServerBgThreads < 0 {
		errs = append(errs, errors.New("num_server_bg_threads must be non-negative"))
	}
	if bc.Port < 0 || bc.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", bc.Port))
	}
	if bc.ConnectRetry != "" {
		if d, err := time.ParseDuration(bc.ConnectRetry); err != nil {
			errs = append(errs, fmt.Errorf("invalid connect_retry: %w", err))
		} else if d <= 0 {
			errs = append(errs, errors.New("connect_retry must be positive"))
		}
	}
	if _, _, err := f.LogSettings(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
