package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cfoust/skirmish/pkg/config"
	"github.com/cfoust/skirmish/pkg/version"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

var CLI struct {
	Version bool `help:"Print version information and exit." short:"v"`
	Debug   bool `help:"Whether to enable debug logging."`

	Serve struct {
		Configs []string `arg:"" optional:"" name:"configs" help:"Configuration files for the server." type:"file"`
	} `cmd:"" help:"Start a match server."`

	Config struct {
	} `cmd:"" help:"Write skirmish's default configuration to standard output."`

	Watch struct {
		URL string `arg:"" name:"url" help:"WebSocket address of a running server, e.g. ws://localhost:28785/ws/."`
	} `cmd:"" help:"Connect as a client and print the match as it replicates."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

// setupLogging sends human-readable logs to stdout and, when a file is
// configured, JSON logs to a rotated file.
func setupLogging(settings config.LogSettings) {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}

	var writer io.Writer = consoleWriter
	if settings.File != "" {
		writer = zerolog.MultiLevelWriter(consoleWriter, &lumberjack.Logger{
			Filename:   settings.File,
			MaxSize:    settings.MaxSizeMB,
			MaxBackups: settings.MaxBackups,
			MaxAge:     settings.MaxAgeDays,
		})
	}
	log.Logger = log.Output(writer)

	level, err := zerolog.ParseLevel(settings.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
	}
}

func main() {
	setupLogging(config.LogSettings{Level: "info"})

	if len(os.Args) == 1 {
		err := serve([]string{})
		if err != nil {
			writeError(err)
		}
		return
	}

	ctx := kong.Parse(&CLI,
		kong.Name("skirmish"),
		kong.Description("a server-authoritative team deathmatch server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if CLI.Version {
		fmt.Printf(
			"skirmish %s (commit %s)\n",
			version.Version,
			version.GitCommit,
		)
		fmt.Printf(
			"built %s\n",
			version.BuildTime,
		)
		os.Exit(0)
	}

	var err error
	switch ctx.Command() {
	case "serve":
		fallthrough
	case "serve <configs>":
		err = serve(CLI.Serve.Configs)
	case "config":
		_, err = os.Stdout.Write(config.DEFAULT)
	case "watch <url>":
		err = watch(CLI.Watch.URL)
	}

	if err != nil {
		writeError(err)
	}
}
