package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angora-org/angora/internal/bus"
	"github.com/angora-org/angora/internal/logger"
	"github.com/angora-org/angora/internal/web"
)

// CmdWeb starts a web component: the HTTP API or the operator HTML app.
func CmdWeb() *cobra.Command {
	return NewCommand(
		&cobra.Command{
			Use:       "web <api|app>",
			Short:     "Start a web component",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{"api", "app"},
		},
		[]commandLineFlag{hostFlag, portFlag, reloadFlag},
		runWeb,
	)
}

func runWeb(ctx *Context, args []string) error {
	switch args[0] {
	case "api":
		return runWebAPI(ctx)
	case "app":
		return runWebApp(ctx)
	default:
		return fmt.Errorf("unknown web component %q", args[0])
	}
}

func runWebAPI(ctx *Context) error {
	cfg := ctx.Config

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	cat, err := loadCatalog(ctx)
	if err != nil {
		return err
	}
	if reload, _ := ctx.Command.Flags().GetBool("reload"); reload {
		go func() {
			if err := cat.Watch(ctx); err != nil && ctx.Err() == nil {
				logger.Error(ctx, "Catalog watcher stopped", "err", err)
			}
		}()
	}

	api := web.NewAPI(cat, store, bus.New(busConfig(cfg)), cfg.Broker.Exchange)
	host, port := hostPort(ctx, cfg.API.Host, cfg.API.Port)
	return web.NewServer(host, port, cfg.Log.Format == "json").Serve(ctx, api.Routes)
}

func runWebApp(ctx *Context) error {
	cfg := ctx.Config

	reload, _ := ctx.Command.Flags().GetBool("reload")
	app, err := web.NewApp(cfg.App.APIBaseURL, reload)
	if err != nil {
		return err
	}

	host, port := hostPort(ctx, cfg.App.Host, cfg.App.Port)
	return web.NewServer(host, port, cfg.Log.Format == "json").Serve(ctx, app.Routes)
}

func hostPort(ctx *Context, host string, port int) (string, int) {
	flags := ctx.Command.Flags()
	if flags.Changed("host") {
		host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		port, _ = flags.GetInt("port")
	}
	return host, port
}
