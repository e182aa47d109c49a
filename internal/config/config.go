// File: internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort                  = 9033
	DefaultBindAddress           = "localhost"
	DefaultHeadlessPath          = "speedtracerheadless"
	DefaultDocRoot               = "."
	DefaultRequestTimeoutSeconds = 10
	DefaultLaunchDelayMs         = 2000
	TestPagePath                 = "/breaky.html"

	envPort       = "BREAKY_PORT"
	envHostname   = "BREAKY_HOSTNAME"
	envChromePath = "BREAKY_CHROME_PATH"
)

// --- Struct Definitions ---

type ServerConfig struct {
	BindAddress    string
	Port           int
	Hostname       string
	DocRoot        string
	RequestTimeout time.Duration
}

type BrowserConfig struct {
	ChromePath   string
	HeadlessPath string
	LaunchDelay  time.Duration
	ExtraArgs    []string
	KillStale    bool
}

// RestartConfig bounds the hang-restart loop. MaxRestarts == 0 means unbounded.
type RestartConfig struct {
	MaxRestarts int
	MinInterval time.Duration
}

type DriverConfig struct {
	Server     ServerConfig
	Browser    BrowserConfig
	Restart    RestartConfig
	ManualMode bool

	loadedFromPath string
}

func (dc *DriverConfig) GetLoadedFromPath() string { return dc.loadedFromPath }

type ServerConfigJSON struct {
	BindAddress           string `json:"bindAddress"`
	Port                  int    `json:"port"`
	Hostname              string `json:"hostname,omitempty"`
	DocRoot               string `json:"docRoot,omitempty"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds"`
}

type BrowserConfigJSON struct {
	ChromePath    string   `json:"chromePath"`
	HeadlessPath  string   `json:"headlessPath"`
	LaunchDelayMs int      `json:"launchDelayMs"`
	ExtraArgs     []string `json:"extraArgs,omitempty"`
	KillStale     bool     `json:"killStale,omitempty"`
}

type RestartConfigJSON struct {
	MaxRestarts        int `json:"maxRestarts"`
	MinIntervalSeconds int `json:"minIntervalSeconds,omitempty"`
}

type DriverConfigJSON struct {
	Server     ServerConfigJSON  `json:"server"`
	Browser    BrowserConfigJSON `json:"browser"`
	Restart    RestartConfigJSON `json:"restart"`
	ManualMode bool              `json:"manualMode"`
}

// DefaultChromePath returns where Chrome is normally installed on this platform.
func DefaultChromePath() string {
	switch runtime.GOOS {
	case "linux":
		return "/opt/google/chrome/chrome"
	case "darwin":
		return "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "Google", "Chrome", "Application", "chrome.exe")
		}
		return `C:\Program Files\Google\Chrome\Application\chrome.exe`
	default:
		return "chrome"
	}
}

func DefaultDriverConfigJSON() DriverConfigJSON {
	return DriverConfigJSON{
		Server: ServerConfigJSON{
			BindAddress:           DefaultBindAddress,
			Port:                  DefaultPort,
			DocRoot:               DefaultDocRoot,
			RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		},
		Browser: BrowserConfigJSON{
			ChromePath:    DefaultChromePath(),
			HeadlessPath:  DefaultHeadlessPath,
			LaunchDelayMs: DefaultLaunchDelayMs,
		},
	}
}

func DefaultConfig() *DriverConfig { return ConvertJSONToDriverConfig(DefaultDriverConfigJSON()) }

func ConvertJSONToDriverConfig(jsonCfg DriverConfigJSON) *DriverConfig {
	cfg := &DriverConfig{
		Server: ServerConfig{
			BindAddress:    jsonCfg.Server.BindAddress,
			Port:           jsonCfg.Server.Port,
			Hostname:       jsonCfg.Server.Hostname,
			DocRoot:        jsonCfg.Server.DocRoot,
			RequestTimeout: time.Duration(jsonCfg.Server.RequestTimeoutSeconds) * time.Second,
		},
		Browser: BrowserConfig{
			ChromePath:   jsonCfg.Browser.ChromePath,
			HeadlessPath: jsonCfg.Browser.HeadlessPath,
			LaunchDelay:  time.Duration(jsonCfg.Browser.LaunchDelayMs) * time.Millisecond,
			ExtraArgs:    jsonCfg.Browser.ExtraArgs,
			KillStale:    jsonCfg.Browser.KillStale,
		},
		Restart: RestartConfig{
			MaxRestarts: jsonCfg.Restart.MaxRestarts,
			MinInterval: time.Duration(jsonCfg.Restart.MinIntervalSeconds) * time.Second,
		},
		ManualMode: jsonCfg.ManualMode,
	}
	if cfg.Server.DocRoot == "" {
		cfg.Server.DocRoot = DefaultDocRoot
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeoutSeconds * time.Second
	}
	if jsonCfg.Browser.LaunchDelayMs < 0 {
		cfg.Browser.LaunchDelay = DefaultLaunchDelayMs * time.Millisecond
	}
	return cfg
}

// Load reads a JSON config file layered over the defaults. A missing file is
// reported through the error but the defaults are still returned.
func Load(path string) (*DriverConfig, error) {
	cfgJSON := DefaultDriverConfigJSON()
	if path == "" {
		return ConvertJSONToDriverConfig(cfgJSON), nil
	}
	log.Printf("Config: Attempting to load driver config from: %s", path)

	var loadErr error
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("Config: Driver config file '%s' not found. Using defaults.", path)
		} else {
			log.Printf("Config: Error reading driver config '%s': %v. Using defaults.", path, err)
		}
		loadErr = fmt.Errorf("read config '%s': %w", path, err)
	} else if errUnmarshal := json.Unmarshal(data, &cfgJSON); errUnmarshal != nil {
		log.Printf("Config: Error unmarshalling driver config '%s': %v. Using defaults for unparsed fields.", path, errUnmarshal)
		loadErr = fmt.Errorf("parse config '%s': %w", path, errUnmarshal)
	}

	cfg := ConvertJSONToDriverConfig(cfgJSON)
	cfg.loadedFromPath = path
	return cfg, loadErr
}

// ApplyEnv overrides fields from BREAKY_* environment variables.
func ApplyEnv(cfg *DriverConfig) error {
	if portEnv := os.Getenv(envPort); portEnv != "" {
		port, err := strconv.Atoi(portEnv)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", envPort, portEnv, err)
		}
		cfg.Server.Port = port
		log.Printf("Config: Port overridden by %s environment variable: %d", envPort, port)
	}
	if hostEnv := os.Getenv(envHostname); hostEnv != "" {
		cfg.Server.Hostname = hostEnv
		log.Printf("Config: Hostname overridden by %s environment variable: %s", envHostname, hostEnv)
	}
	if chromeEnv := os.Getenv(envChromePath); chromeEnv != "" {
		cfg.Browser.ChromePath = chromeEnv
		log.Printf("Config: Chrome path overridden by %s environment variable: %s", envChromePath, chromeEnv)
	}
	return nil
}

func (dc *DriverConfig) Validate() error {
	if dc.Server.Port < 0 || dc.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range", dc.Server.Port)
	}
	if dc.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", dc.Server.RequestTimeout)
	}
	if dc.Restart.MaxRestarts < 0 {
		return fmt.Errorf("max restarts must not be negative, got %d", dc.Restart.MaxRestarts)
	}
	if !dc.ManualMode && strings.TrimSpace(dc.Browser.ChromePath) == "" {
		return errors.New("chrome path is required unless running in manual mode")
	}
	return nil
}

// ListenAddress is the host:port pair handed to net.Listen.
func (sc ServerConfig) ListenAddress() string {
	return net.JoinHostPort(sc.BindAddress, strconv.Itoa(sc.Port))
}

// ResolveHostname picks the host the browser should use: the explicit
// hostname, then a concrete bind address, then the machine name.
func (sc ServerConfig) ResolveHostname() string {
	if sc.Hostname != "" {
		return sc.Hostname
	}
	switch sc.BindAddress {
	case "", "0.0.0.0", "::":
	default:
		return sc.BindAddress
	}
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return DefaultBindAddress
}

// PageURL is the test page the browser is pointed at.
func PageURL(hostname string, port int) string {
	return "http://" + net.JoinHostPort(hostname, strconv.Itoa(port)) + TestPagePath
}
