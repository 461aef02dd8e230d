package bench

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"lookup-bench/internal/client"
	"lookup-bench/internal/rpc"
)

// Role はプロセスの役割
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// ParseRole は文字列から役割を解析する
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case RoleServer:
		return RoleServer, nil
	case RoleClient:
		return RoleClient, nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

const (
	// DefaultPort はサーバの待ち受けポート
	DefaultPort = 31850

	// DefaultNumKeys はサーバが投入するキー数
	DefaultNumKeys = 1_000_000

	eventLoopTimeout = 200 * time.Millisecond
	connectPoll      = 20 * time.Millisecond
)

// Config はベンチマークの設定
type Config struct {
	Role      Role
	MachineID int // 0がサーバ

	NumKeys   uint64 // インデックスのキー数
	ReqWindow int    // セッションあたりの同時リクエスト数

	NumClientThreads   int
	NumServerFgThreads int
	NumServerBgThreads int

	HostPattern string // マシンIDからホスト名を作る書式（例: node-%d）
	ServerAddr  string // 指定時はHostPatternより優先
	BindHost    string // サーバの待ち受けアドレス
	Port        int

	ReportInterval uint64        // レポート間隔（完了数）
	PinThreads     bool          // ワーカーをコアに固定する
	ConnectRetry   time.Duration // セッション接続の再試行間隔
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Role:               RoleServer,
		NumKeys:            DefaultNumKeys,
		ReqWindow:          rpc.MaxReqWindow,
		NumClientThreads:   1,
		NumServerFgThreads: 1,
		NumServerBgThreads: 1,
		HostPattern:        "localhost",
		Port:               DefaultPort,
		ReportInterval:     client.DefaultReportInterval,
		PinThreads:         true,
		ConnectRetry:       100 * time.Millisecond,
	}
}

// Validate は設定を検証する
func (c Config) Validate() error {
	var errs []error

	switch c.Role {
	case RoleServer:
		if c.MachineID != 0 {
			errs = append(errs, fmt.Errorf("server must run as machine_id 0, got %d", c.MachineID))
		}
		if c.NumServerBgThreads < 1 {
			errs = append(errs, errors.New("num_server_bg_threads must be at least 1 on the server"))
		}
	case RoleClient:
		if c.MachineID <= 0 {
			errs = append(errs, fmt.Errorf("client machine_id must be positive, got %d", c.MachineID))
		}
		if c.NumClientThreads < 1 {
			errs = append(errs, errors.New("num_client_threads must be at least 1"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown role: %q", c.Role))
	}

	if c.NumKeys < 1 {
		errs = append(errs, errors.New("num_keys must be at least 1"))
	}
	if c.ReqWindow < 1 || c.ReqWindow > rpc.MaxReqWindow {
		errs = append(errs, fmt.Errorf("req_window must be between 1 and %d, got %d", rpc.MaxReqWindow, c.ReqWindow))
	}
	if c.NumServerFgThreads < 1 {
		errs = append(errs, errors.New("num_server_fg_threads must be at least 1"))
	}
	if c.NumServerBgThreads < 0 {
		errs = append(errs, errors.New("num_server_bg_threads must be non-negative"))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.ServerAddr == "" && c.HostPattern == "" {
		errs = append(errs, errors.New("either server_addr or host_pattern is required"))
	}

	return errors.Join(errs...)
}

// HostForMachine はマシンIDに対応するホスト名を返す
func (c Config) HostForMachine(id int) string {
	if strings.Contains(c.HostPattern, "%") {
		return fmt.Sprintf(c.HostPattern, id)
	}
	return c.HostPattern
}

// ServerHostPort はクライアントが接続するサーバのアドレスを返す
func (c Config) ServerHostPort() string {
	host := c.ServerAddr
	if host == "" {
		host = c.HostForMachine(0)
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// ListenAddr はサーバの待ち受けアドレスを返す
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.BindHost, strconv.Itoa(c.Port))
}

// ServerThreadFor はクライアントスレッドが接続するサーバスレッドを返す
func (c Config) ServerThreadFor(clientThread int) int {
	return clientThread % c.NumServerFgThreads
}
