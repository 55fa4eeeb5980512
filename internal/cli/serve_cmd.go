package cli

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/alexanderramin/treeline/internal/cache"
	"github.com/alexanderramin/treeline/internal/httpapi"
)

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the mutation ledger HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := echo.New()
			e.HideBanner = true
			e.Use(middleware.Recover())

			var ch *cache.Children
			if app.Config.RedisAddr != "" {
				rdb := redis.NewClient(&redis.Options{Addr: app.Config.RedisAddr})
				ch = cache.NewChildren(rdb, app.Config.CacheTTL, app.Logger)
				app.Logger.WithField("addr", app.Config.RedisAddr).Info("children cache enabled")
			}

			httpapi.Register(e, app.Ledger, ch, app.Logger, app.Config.RequestTimeout)

			app.Logger.WithField("addr", app.Config.ListenAddr).Info("treeline listening")
			e.Server.ReadHeaderTimeout = 5 * time.Second
			return e.Start(app.Config.ListenAddr)
		},
	}
}
