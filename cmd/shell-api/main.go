package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/replicate/go/must"
	"github.com/replicate/go/version"
	_ "go.uber.org/automaxprocs"

	"github.com/costaparas/shell-script-api/internal/config"
	"github.com/costaparas/shell-script-api/internal/logging"
	"github.com/costaparas/shell-script-api/internal/request"
	"github.com/costaparas/shell-script-api/internal/schema"
	"github.com/costaparas/shell-script-api/internal/server"
	"github.com/costaparas/shell-script-api/internal/service"
)

const envVarPrefix = "SHELL_API"

var logger = logging.New("shell-api")

type ServeConfig struct {
	Host                string        `ff:"long: host, default: 0.0.0.0, usage: TCP listen host"`
	Port                int           `ff:"long: port, default: 8080, usage: TCP listen port"`
	Framing             string        `ff:"long: framing, default: line, usage: body framing (line or exact)"`
	ReadTimeout         time.Duration `ff:"long: read-timeout, default: 0s, usage: per-connection read deadline (0 disables)"`
	ShutdownGracePeriod time.Duration `ff:"long: shutdown-grace-period, default: 5s, usage: time allowed for in-flight connections on SIGTERM"`
	RuntimeConfig       string        `ff:"long: runtime-config, nodefault, usage: YAML file with umask and PATH settings"`
}

type HandleConfig struct {
	Framing       string `ff:"long: framing, default: line, usage: body framing (line or exact)"`
	RuntimeConfig string `ff:"long: runtime-config, nodefault, usage: YAML file with umask and PATH settings"`
}

type CGIConfig struct {
	RuntimeConfig string `ff:"long: runtime-config, nodefault, usage: YAML file with umask and PATH settings"`
}

func parseFraming(s string) (request.Framing, error) {
	f, ok := request.ParseFraming(s)
	if !ok {
		return f, fmt.Errorf("%w: %q", config.ErrInvalidFraming, s)
	}
	return f, nil
}

// initRuntime applies process-wide settings before any request is read.
func initRuntime(path string) error {
	log := logger.Sugar()
	rt, err := config.ReadRuntime(path)
	if err != nil {
		return fmt.Errorf("failed to read runtime config: %w", err)
	}
	old, err := rt.Apply()
	if err != nil {
		return err
	}
	log.Debugw("runtime initialized",
		"umask", rt.Umask,
		"previous_umask", fmt.Sprintf("%04o", old),
		"path", rt.Path,
		"unset_env", rt.UnsetEnv,
	)
	return nil
}

func serveCommand() *ff.Command {
	log := logger.Sugar()

	var cfg ServeConfig
	flags := ff.NewFlagSet("serve")
	must.Do(flags.AddStruct(&cfg))

	return &ff.Command{
		Name:      "serve",
		Usage:     "shell-api serve [FLAGS]",
		ShortHelp: "listen on TCP and parse each request from the raw stream",
		Flags:     flags,
		Exec: func(ctx context.Context, args []string) error {
			framing, err := parseFraming(cfg.Framing)
			if err != nil {
				return err
			}
			if err := initRuntime(cfg.RuntimeConfig); err != nil {
				return err
			}
			svcCfg := config.Config{
				Host:                cfg.Host,
				Port:                cfg.Port,
				Framing:             framing,
				ReadTimeout:         cfg.ReadTimeout,
				ShutdownGracePeriod: cfg.ShutdownGracePeriod,
			}
			log.Infow("configuration",
				"addr", svcCfg.Addr(),
				"framing", framing.String(),
				"read-timeout", cfg.ReadTimeout,
				"shutdown-grace-period", cfg.ShutdownGracePeriod,
			)

			svc := service.New(svcCfg, logger)
			if err := svc.Initialize(ctx); err != nil {
				return err
			}
			if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			log.Info("shutdown completed normally")
			return nil
		},
	}
}

func handleCommand() *ff.Command {
	var cfg HandleConfig
	flags := ff.NewFlagSet("handle")
	must.Do(flags.AddStruct(&cfg))

	return &ff.Command{
		Name:      "handle",
		Usage:     "shell-api handle [FLAGS]",
		ShortHelp: "serve one raw HTTP request from stdin to stdout (inetd, socat EXEC)",
		Flags:     flags,
		Exec: func(ctx context.Context, args []string) error {
			framing, err := parseFraming(cfg.Framing)
			if err != nil {
				return err
			}
			if err := initRuntime(cfg.RuntimeConfig); err != nil {
				return err
			}
			h := server.NewHandler(framing, logger)
			return h.ServeStream(ctx, struct {
				io.Reader
				io.Writer
			}{os.Stdin, os.Stdout})
		},
	}
}

func cgiCommand() *ff.Command {
	var cfg CGIConfig
	flags := ff.NewFlagSet("cgi")
	must.Do(flags.AddStruct(&cfg))

	return &ff.Command{
		Name:      "cgi",
		Usage:     "shell-api cgi [FLAGS]",
		ShortHelp: "serve one request pre-parsed by a CGI front-end server",
		Flags:     flags,
		Exec: func(ctx context.Context, args []string) error {
			if err := initRuntime(cfg.RuntimeConfig); err != nil {
				return err
			}
			h := server.NewHandler(request.FramingLine, logger)
			return h.ServeCGI(ctx, os.LookupEnv, os.Stdin, os.Stdout)
		},
	}
}

func schemaCommand() *ff.Command {
	flags := ff.NewFlagSet("schema")

	return &ff.Command{
		Name:      "schema",
		Usage:     "shell-api schema",
		ShortHelp: "print the OpenAPI document for the response bodies",
		Flags:     flags,
		Exec: func(ctx context.Context, args []string) error {
			bs, err := schema.JSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(os.Stdout, string(bs))
			return err
		},
	}
}

func main() {
	log := logger.Sugar()
	flags := ff.NewFlagSet("shell-api")
	cmd := &ff.Command{
		Name:  "shell-api",
		Usage: "shell-api <COMMAND> [FLAGS]",
		Flags: flags,
		Exec: func(ctx context.Context, args []string) error {
			return ff.ErrHelp
		},
		Subcommands: []*ff.Command{
			serveCommand(),
			handleCommand(),
			cgiCommand(),
			schemaCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	log.Debugw("starting", "version", version.Version())
	err := cmd.ParseAndRun(ctx, os.Args[1:], ff.WithEnvVarPrefix(envVarPrefix))
	switch {
	case errors.Is(err, ff.ErrHelp):
		selected := cmd.GetSelected()
		if selected == nil {
			selected = cmd
		}
		must.Get(fmt.Fprintln(os.Stderr, ffhelp.Command(selected)))
		os.Exit(1)
	case err != nil:
		log.Error(err)
		os.Exit(1)
	}
}
