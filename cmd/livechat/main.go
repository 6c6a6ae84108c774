package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/config"
	"github.com/venu21-dev/lb3-livechat-projektarbeit/internal/i18n"
)

var version = "dev"

var (
	configPath string
	envFile    string

	// Flag overrides, applied after the config file and environment.
	flagAPIURL   string
	flagWSURL    string
	flagDataDir  string
	flagLang     string
	flagLogLevel string
)

// cfg is loaded once in PersistentPreRunE.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "livechat",
	Short:         "Terminal client for the live chat backend",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath, envFile)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("api-url") {
			cfg.APIURL = flagAPIURL
		}
		if flags.Changed("ws-url") {
			cfg.WSURL = flagWSURL
		}
		if flags.Changed("data-dir") {
			cfg.DataDir = flagDataDir
		}
		if flags.Changed("lang") {
			cfg.Lang = flagLang
		}
		if flags.Changed("log-level") {
			cfg.LogLevel = flagLogLevel
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		setupLogging(cfg.LogLevel)
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")
	pf.StringVar(&envFile, "env-file", "", "dotenv file (default .env)")
	pf.StringVar(&flagAPIURL, "api-url", "", "backend base URL")
	pf.StringVar(&flagWSURL, "ws-url", "", "real-time endpoint base URL (default: api-url)")
	pf.StringVar(&flagDataDir, "data-dir", "", "directory for the local store")
	pf.StringVar(&flagLang, "lang", "", "language for messages (en, de)")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
}

func main() {
	// Quiet until the config says otherwise.
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, userMessage(err))
		os.Exit(1)
	}
}

// userMessage localizes errors that carry a condition. Anything else is a
// usage or local error and is shown as is.
func userMessage(err error) string {
	var k i18n.Keyed
	if errors.As(err, &k) {
		log.Debug().Err(err).Msg("[livechat] command failed")
		return i18n.ForError(cfg.Lang, err)
	}
	return "Error: " + err.Error()
}
