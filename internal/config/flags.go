// File: internal/config/flags.go
package config

import (
	"flag"
	"fmt"
	"log"
	"time"
)

// Flags are the command-line overrides. Only flags the user actually set are
// applied, so a value from the config file or environment is not clobbered by
// a flag default.
type Flags struct {
	ConfigPath string

	port            int
	hostname        string
	bindAddress     string
	docRoot         string
	timeoutSeconds  int
	chromePath      string
	headlessPath    string
	launchDelay     time.Duration
	killStale       bool
	manualMode      bool
	maxRestarts     int
	restartInterval time.Duration

	fs *flag.FlagSet
}

func RegisterFlags(fs *flag.FlagSet) *Flags {
	d := DefaultConfig()
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigPath, "config", "", "optional JSON config file")
	fs.IntVar(&f.port, "port", d.Server.Port, fmt.Sprintf("http port to use (default: %d)", DefaultPort))
	fs.StringVar(&f.hostname, "hostname", "", "hostname for web server (default: bind address or system hostname)")
	fs.StringVar(&f.bindAddress, "bind_address", d.Server.BindAddress, "the address to pass to bind")
	fs.StringVar(&f.docRoot, "doc_root", d.Server.DocRoot, "directory served to the browser over GET")
	fs.IntVar(&f.timeoutSeconds, "timeout", int(d.Server.RequestTimeout/time.Second), "seconds without a request before chrome is considered hung")
	fs.StringVar(&f.chromePath, "chrome_path", d.Browser.ChromePath, "the path to launch chrome with")
	fs.StringVar(&f.headlessPath, "headless_path", d.Browser.HeadlessPath, "the path to the headless extension")
	fs.DurationVar(&f.launchDelay, "launch_delay", d.Browser.LaunchDelay, "delay between scheduling and spawning chrome")
	fs.BoolVar(&f.killStale, "kill_stale", false, "kill leftover processes of chrome_path before launching")
	fs.BoolVar(&f.manualMode, "manual_mode", false, "Run the server forever, let the user launch the test")
	fs.IntVar(&f.maxRestarts, "max_restarts", 0, "give up after this many hang restarts (0: never)")
	fs.DurationVar(&f.restartInterval, "restart_interval", 0, "minimum spacing between hang restarts")
	return f
}

// Apply copies every explicitly set flag into cfg.
func (f *Flags) Apply(cfg *DriverConfig) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port":
			cfg.Server.Port = f.port
		case "hostname":
			cfg.Server.Hostname = f.hostname
		case "bind_address":
			cfg.Server.BindAddress = f.bindAddress
		case "doc_root":
			cfg.Server.DocRoot = f.docRoot
		case "timeout":
			cfg.Server.RequestTimeout = time.Duration(f.timeoutSeconds) * time.Second
		case "chrome_path":
			cfg.Browser.ChromePath = f.chromePath
		case "headless_path":
			cfg.Browser.HeadlessPath = f.headlessPath
		case "launch_delay":
			cfg.Browser.LaunchDelay = f.launchDelay
		case "kill_stale":
			cfg.Browser.KillStale = f.killStale
		case "manual_mode":
			cfg.ManualMode = f.manualMode
		case "max_restarts":
			cfg.Restart.MaxRestarts = f.maxRestarts
		case "restart_interval":
			cfg.Restart.MinInterval = f.restartInterval
		}
	})
}

// Parse runs the whole layering: defaults, config file, environment, flags.
func Parse(fs *flag.FlagSet, args []string) (*DriverConfig, error) {
	f := RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		// An explicitly named config file has to be readable.
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	f.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.GetLoadedFromPath() != "" {
		log.Printf("Config: Loaded driver config from '%s'", cfg.GetLoadedFromPath())
	}
	return cfg, nil
}
