package config

import (
	"errors"
	"flag"
	"os"
	"strings"
)

// Load resolves the server configuration with precedence
// defaults < file < env < args. The config file path itself may come from
// CONFIG_FILE or --config. A missing config file is not an error.
func Load(fs *flag.FlagSet, args []string) (ServerConfig, error) {
	var cfg ServerConfig
	cfg.SetDefaults()
	cfg.ApplyEnv()
	if p, ok := configArg(args); ok {
		cfg.ConfigFile = p
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func configArg(args []string) (string, bool) {
	for i, a := range args {
		if (a == "--config" || a == "-config") && i+1 < len(args) {
			return args[i+1], true
		}
		if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v, true
		}
		if v, ok := strings.CutPrefix(a, "-config="); ok {
			return v, true
		}
	}
	return "", false
}
