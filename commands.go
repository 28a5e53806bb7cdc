package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"neo-import-export/auth"
	"neo-import-export/common"
	"neo-import-export/config"
	"neo-import-export/exports"
	"neo-import-export/imports"
	"neo-import-export/index"
	"neo-import-export/logger"
)

// cli holds the settings shared by every command
type cli struct {
	configPath string
	neoPath    string
	cadPath    string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	app := &cli{}

	root := &cobra.Command{
		Use:   "neo",
		Short: "Explore and export close approaches of near-Earth objects",
		Long: `neo loads a NEO feed (CSV) and a close-approach feed (JSON), links them,
and answers lookups and filtered queries from the command line or over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
	}
	root.PersistentFlags().StringVar(&app.configPath, "config", "", "Path to a YAML config file")
	root.PersistentFlags().StringVar(&app.neoPath, "neofile", "", "NEO feed (overrides feeds.neo_csv)")
	root.PersistentFlags().StringVar(&app.cadPath, "cadfile", "", "Close-approach feed (overrides feeds.cad_json)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "neo v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(app.inspectCmd(), app.queryCmd(), app.serveCmd())
	return root
}

func (app *cli) setup() error {
	cfg, err := config.Load(app.configPath)
	if err != nil {
		return err
	}
	if app.neoPath != "" {
		cfg.Feeds.NEOPath = app.neoPath
	}
	if app.cadPath != "" {
		cfg.Feeds.CADPath = app.cadPath
	}
	app.cfg = cfg
	return logger.Init(cfg.Log)
}

func (app *cli) load() (*index.NEODatabase, error) {
	return imports.Load(app.cfg.Feeds.NEOPath, app.cfg.Feeds.CADPath)
}

func (app *cli) inspectCmd() *cobra.Command {
	var pdes, name string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Look up a NEO by primary designation or name",
		Example: `  neo inspect --pdes 433
  neo inspect --name Halley --verbose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := app.load()
			if err != nil {
				return err
			}

			neo := db.GetNEOByDesignation(pdes)
			if name != "" {
				neo = db.GetNEOByName(name)
			}
			if neo == nil {
				return common.NewError(common.ErrorTypeNotFound, "no matching NEOs exist in the database")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, neo)
			if verbose {
				for _, approach := range neo.Approaches {
					fmt.Fprintf(out, "- %s\n", approach)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&pdes, "pdes", "p", "", "Primary designation of the NEO")
	cmd.Flags().StringVarP(&name, "name", "n", "", "IAU name of the NEO")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Also print the NEO's close approaches")
	cmd.MarkFlagsMutuallyExclusive("pdes", "name")
	cmd.MarkFlagsOneRequired("pdes", "name")
	return cmd
}

func (app *cli) queryCmd() *cobra.Command {
	var params index.QueryParams
	var hazardous, notHazardous bool
	var outfile string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print or export the close approaches matching a set of filters",
		Example: `  neo query --date 2020-01-01
  neo query --start-date 2020-01-01 --end-date 2020-12-31 --hazardous --limit 0 --outfile hazards.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case hazardous:
				params.Hazardous = "true"
			case notHazardous:
				params.Hazardous = "false"
			}
			filters, err := params.Filters()
			if err != nil {
				return err
			}

			db, err := app.load()
			if err != nil {
				return err
			}
			results := index.Limit(db.Query(filters...), params.Limit)

			if outfile == "" {
				out := cmd.OutOrStdout()
				for approach := range results {
					fmt.Fprintln(out, approach)
				}
				return nil
			}

			count, err := exports.Write(results, outfile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d close approaches to %s\n", count, outfile)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&params.Date, "date", "d", "", "Only approaches on this date (YYYY-MM-DD)")
	flags.StringVarP(&params.StartDate, "start-date", "s", "", "Only approaches on or after this date")
	flags.StringVarP(&params.EndDate, "end-date", "e", "", "Only approaches on or before this date")
	flags.StringVar(&params.DistanceMin, "min-distance", "", "Minimum approach distance in au")
	flags.StringVar(&params.DistanceMax, "max-distance", "", "Maximum approach distance in au")
	flags.StringVar(&params.VelocityMin, "min-velocity", "", "Minimum relative velocity in km/s")
	flags.StringVar(&params.VelocityMax, "max-velocity", "", "Maximum relative velocity in km/s")
	flags.StringVar(&params.DiameterMin, "min-diameter", "", "Minimum NEO diameter in km")
	flags.StringVar(&params.DiameterMax, "max-diameter", "", "Maximum NEO diameter in km")
	flags.BoolVar(&hazardous, "hazardous", false, "Only potentially hazardous NEOs")
	flags.BoolVar(&notHazardous, "not-hazardous", false, "Only NEOs that are not potentially hazardous")
	flags.IntVarP(&params.Limit, "limit", "l", 10, "Maximum number of results (0 for all)")
	flags.StringVarP(&outfile, "outfile", "o", "", "Write results to a .csv, .json or .ndjson file instead of stdout")
	cmd.MarkFlagsMutuallyExclusive("hazardous", "not-hazardous")
	return cmd
}

func (app *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve lookups, imports and exports over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.serve(ctx)
		},
	}
}

func (app *cli) serve(ctx context.Context) error {
	cfg := app.cfg

	db, err := common.Init(cfg.Database.Path)
	if err != nil {
		return err
	}
	if err := common.AutoMigrateJobs(db); err != nil {
		return common.WrapError(err, common.ErrorTypeIO, "migrate job tables")
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	catalog := index.NewCatalog(nil)
	if loaded, err := app.load(); err != nil {
		logger.Warn("starting without feeds; POST /api/v1/imports to load them", zap.Error(err))
	} else {
		catalog.Swap(loaded)
	}

	gin.SetMode(cfg.Server.GinMode)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(cfg, catalog),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter wires the HTTP API
func newRouter(cfg *config.Config, catalog *index.Catalog) *gin.Engine {
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.Use(gin.Recovery(), logger.GinMiddleware(), common.MetricsMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		response := gin.H{"status": "ok", "feeds_loaded": false}
		if db := catalog.Current(); db != nil {
			response["feeds_loaded"] = true
			response["neos"] = len(db.NEOs())
			response["approaches"] = len(db.Approaches())
			response["loaded_at"] = catalog.LoadedAt()
		}
		c.JSON(http.StatusOK, response)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	if cfg.Auth.Enabled() {
		secret := []byte(cfg.Auth.JWTSecret)
		v1.POST("/auth/token", auth.TokenHandler(secret, cfg.Auth.APIKeyHash, cfg.Auth.TokenTTL))
		v1 = v1.Group("", auth.Middleware(secret))
	}

	importHandler := &imports.Handler{
		Catalog:    catalog,
		UploadsDir: cfg.Storage.UploadsDir,
		NEOPath:    cfg.Feeds.NEOPath,
		CADPath:    cfg.Feeds.CADPath,
	}
	importHandler.RegisterRoutes(v1)

	exportHandler := &exports.Handler{Catalog: catalog, ExportsDir: cfg.Storage.ExportsDir}
	exportHandler.RegisterRoutes(v1)

	return r
}
