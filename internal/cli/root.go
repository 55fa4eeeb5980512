package cli

import (
	"database/sql"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alexanderramin/treeline/internal/config"
	"github.com/alexanderramin/treeline/internal/ledger"
	"github.com/alexanderramin/treeline/internal/repository"
)

// App holds the wired components CLI commands operate on.
type App struct {
	DB       *sql.DB
	Ledger   *ledger.Ledger
	Projects repository.ProjectRepo
	Config   config.Config
	Logger   *log.Logger
}

// NewRootCmd creates the top-level "treeline" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "treeline",
		Short: "Work-item tree ordering and sync server",
	}

	root.AddCommand(
		newServeCmd(app),
		newProjectCmd(app),
		newItemCmd(app),
		newTreeCmd(app),
	)

	return root
}
