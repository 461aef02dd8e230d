// Package main is the entry point for lookup-bench.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lookup-bench/internal/api"
	"lookup-bench/internal/bench"
	"lookup-bench/internal/config"
	"lookup-bench/internal/events"
	"lookup-bench/internal/logger"
	"lookup-bench/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	version = "dev"
)

// options はコマンドラインの指定内容
type options struct {
	configFile  string
	showVersion bool
	statusAddr  string
	logLevel    string
	logFormat   string

	role               string
	machineID          int
	numKeys            uint64
	reqWindow          int
	numClientThreads   int
	numServerFgThreads int
	numServerBgThreads int
	hostPattern        string
	serverAddr         string
	bindHost           string
	port               int
	reportInterval     uint64
	pinThreads         bool
	connectRetry       time.Duration

	// 明示的に指定されたフラグ
	set map[string]bool
}

// runtimeSettings はbench.Config以外の起動設定
type runtimeSettings struct {
	statusAddr string
	logLevel   logger.Level
	logFormat  logger.Format
}

func newFlagSet(opts *options, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("lookup-bench", flag.ContinueOnError)
	fs.SetOutput(out)

	def := bench.DefaultConfig()

	fs.StringVar(&opts.configFile, "config", "", "設定ファイルパス (YAML/JSON)")
	fs.BoolVar(&opts.showVersion, "version", false, "バージョンを表示")
	fs.StringVar(&opts.statusAddr, "status-addr", "", "ステータスAPIのアドレス (例: :8080、空なら無効)")
	fs.StringVar(&opts.logLevel, "log-level", "info", "ログレベル (debug, info, warn, error)")
	fs.StringVar(&opts.logFormat, "log-format", "text", "ログ形式 (text, json)")

	fs.StringVar(&opts.role, "role", string(def.Role), "役割 (server, client)")
	fs.IntVar(&opts.machineID, "machine-id", def.MachineID, "マシンID (サーバは0)")
	fs.Uint64Var(&opts.numKeys, "num-keys", def.NumKeys, "インデックスのキー数")
	fs.IntVar(&opts.reqWindow, "req-window", def.ReqWindow, "セッションあたりの同時リクエスト数 (1-8)")
	fs.IntVar(&opts.numClientThreads, "num-client-threads", def.NumClientThreads, "クライアントスレッド数")
	fs.IntVar(&opts.numServerFgThreads, "num-server-fg-threads", def.NumServerFgThreads, "サーバのフォアグラウンドスレッド数")
	fs.IntVar(&opts.numServerBgThreads, "num-server-bg-threads", def.NumServerBgThreads, "サーバのバックグラウンドスレッド数")
	fs.StringVar(&opts.hostPattern, "host-pattern", def.HostPattern, "マシンIDからホスト名を作る書式 (例: node-%d)")
	fs.StringVar(&opts.serverAddr, "server-addr", def.ServerAddr, "サーバのアドレス (host-patternより優先)")
	fs.StringVar(&opts.bindHost, "bind-host", def.BindHost, "サーバの待ち受けホスト")
	fs.IntVar(&opts.port, "port", def.Port, "サーバのポート")
	fs.Uint64Var(&opts.reportInterval, "report-interval", def.ReportInterval, "レポート間隔（完了数）")
	fs.BoolVar(&opts.pinThreads, "pin-threads", def.PinThreads, "ワーカーをCPUコアに固定")
	fs.DurationVar(&opts.connectRetry, "connect-retry", def.ConnectRetry, "セッション接続の再試行間隔")

	fs.Usage = func() {
		fmt.Fprintf(out, `lookup-bench - Closed-loop point/range lookup latency benchmark

Usage:
  lookup-bench [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(out, `
Examples:
  # サーバを起動（マシン0）
  lookup-bench --role server --num-server-fg-threads 2 --num-server-bg-threads 1

  # クライアントを起動（マシン1）
  lookup-bench --role client --machine-id 1 --num-client-threads 4 --host-pattern node-%%d

  # 設定ファイルから起動
  lookup-bench --config bench.yaml

  # ステータスAPI付きで起動
  lookup-bench --config bench.yaml --status-addr :8080
`)
	}
	return fs
}

// parseFlags はフラグを解析する
func parseFlags(args []string, out io.Writer) (*options, error) {
	opts := &options{set: make(map[string]bool)}
	fs := newFlagSet(opts, out)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})
	return opts, nil
}

// buildConfig は設定ファイルとフラグから設定を構築する
func buildConfig(opts *options) (bench.Config, runtimeSettings, error) {
	cfg := bench.DefaultConfig()
	rt := runtimeSettings{logLevel: logger.LevelInfo, logFormat: logger.FormatText}

	// 1. 設定ファイルから読み込み
	if opts.configFile != "" {
		fileConfig, err := config.LoadFile(opts.configFile)
		if err != nil {
			return cfg, rt, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
		if err := fileConfig.Validate(); err != nil {
			return cfg, rt, fmt.Errorf("設定検証エラー: %w", err)
		}
		cfg, err = fileConfig.ToBenchConfig()
		if err != nil {
			return cfg, rt, fmt.Errorf("設定変換エラー: %w", err)
		}
		rt.logLevel, rt.logFormat, _ = fileConfig.LogSettings()
		rt.statusAddr = fileConfig.Bench.StatusAddr
	}

	// 2. 明示的に指定されたフラグでオーバーライド
	if opts.set["role"] {
		role, err := bench.ParseRole(opts.role)
		if err != nil {
			return cfg, rt, err
		}
		cfg.Role = role
	}
	if opts.set["machine-id"] {
		cfg.MachineID = opts.machineID
	}
	if opts.set["num-keys"] {
		cfg.NumKeys = opts.numKeys
	}
	if opts.set["req-window"] {
		cfg.ReqWindow = opts.reqWindow
	}
	if opts.set["num-client-threads"] {
		cfg.NumClientThreads = opts.numClientThreads
	}
	if opts.set["num-server-fg-threads"] {
		cfg.NumServerFgThreads = opts.numServerFgThreads
	}
	if opts.set["num-server-bg-threads"] {
		cfg.NumServerBgThreads = opts.numServerBgThreads
	}
	if opts.set["host-pattern"] {
		cfg.HostPattern = opts.hostPattern
	}
	if opts.set["server-addr"] {
		cfg.ServerAddr = opts.serverAddr
	}
	if opts.set["bind-host"] {
		cfg.BindHost = opts.bindHost
	}
	if opts.set["port"] {
		cfg.Port = opts.port
	}
	if opts.set["report-interval"] {
		cfg.ReportInterval = opts.reportInterval
	}
	if opts.set["pin-threads"] {
		cfg.PinThreads = opts.pinThreads
	}
	if opts.set["connect-retry"] {
		cfg.ConnectRetry = opts.connectRetry
	}
	if opts.set["status-addr"] {
		rt.statusAddr = opts.statusAddr
	}
	if opts.set["log-level"] {
		l, err := logger.ParseLevel(opts.logLevel)
		if err != nil {
			return cfg, rt, err
		}
		rt.logLevel = l
	}
	if opts.set["log-format"] {
		f, err := logger.ParseFormat(opts.logFormat)
		if err != nil {
			return cfg, rt, err
		}
		rt.logFormat = f
	}

	if err := cfg.Validate(); err != nil {
		return cfg, rt, fmt.Errorf("設定検証エラー: %w", err)
	}
	return cfg, rt, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		os.Exit(2)
	}

	// バージョン表示
	if opts.showVersion {
		fmt.Printf("lookup-bench version %s\n", version)
		return
	}

	cfg, rt, err := buildConfig(opts)
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}
	logger.SetDefault(logger.NewWithFormat(os.Stdout, rt.logLevel, rt.logFormat))

	if err := run(cfg, rt); err != nil {
		logger.Error("", "実行エラー: %v", err)
		os.Exit(1)
	}
}

// run は役割に応じてサーバまたはクライアントを実行する
func run(cfg bench.Config, rt runtimeSettings) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("", "中断シグナルを受信、終了中...")
		cancel()
	}()

	bus := events.NewBus()
	defer bus.Close()
	m := metrics.New()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var statusSrv *api.Server
	if rt.statusAddr != "" {
		statusSrv = api.NewServer(rt.statusAddr, string(cfg.Role))
		statusSrv.SetMetrics(m)
		statusSrv.SetEventBus(bus)
		statusSrv.SetGatherer(reg)
	}

	startStatus := func() {
		if statusSrv == nil {
			return
		}
		go func() {
			if err := statusSrv.Start(ctx); err != nil {
				logger.Error("api", "ステータスAPIエラー: %v", err)
			}
		}()
	}

	switch cfg.Role {
	case bench.RoleServer:
		srv, err := bench.NewServer(cfg)
		if err != nil {
			return err
		}
		srv.SetEventBus(bus)
		srv.SetRegisterer(reg)
		if statusSrv != nil {
			statusSrv.SetServerStats(srv.Stats)
		}
		startStatus()
		return srv.Run(ctx)

	case bench.RoleClient:
		cl, err := bench.NewClient(cfg)
		if err != nil {
			return err
		}
		cl.SetEventBus(bus)
		cl.SetMetrics(m)
		cl.SetRegisterer(reg)
		startStatus()
		return cl.Run(ctx)

	default:
		return fmt.Errorf("unknown role: %q", cfg.Role)
	}
}
