package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehi/projector/internal/clean"
	"github.com/ehi/projector/internal/config"
	"github.com/ehi/projector/internal/hydrate"
	"github.com/ehi/projector/internal/pipeline"
	"github.com/ehi/projector/internal/platform/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ehi-project",
		Short: "Epic EHI export projection engine",
	}

	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(tablesCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	return logger
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	st, err := store.OpenSQLite(cfg.EHIDB)
	if err != nil {
		return nil, fmt.Errorf("open export %s: %w", cfg.EHIDB, err)
	}
	return st, nil
}

func projectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "project [patient-id...]",
		Short: "Project patients from the export into chart and clean documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg)

			mode, err := clean.ParseMode(cfg.Mode)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := pipeline.NewRunner(st, cfg.OutDir, mode, logger).Run(args)
			if err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d of %d patients failed", res.Failed, res.Failed+res.Projected)
			}
			return nil
		},
	}
}

func tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the export's tables and row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			tables := st.Tables()
			sort.Strings(tables)
			for _, table := range tables {
				n, err := st.RowCount(table)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-32s %d\n", table, n)
			}
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve projections over a read-only HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info().Str("db", cfg.EHIDB).Int("tables", len(st.Tables())).Msg("export opened")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Each request is an independent projection with its own lookup
	// service; the store itself is safe for concurrent readers.
	e.GET("/api/v1/patients/:id/chart", func(c echo.Context) error {
		doc, err := hydrate.BuildChartDocument(st, c.Param("id"))
		if err != nil {
			return projectionError(c, err)
		}
		return c.JSON(http.StatusOK, doc)
	})

	e.GET("/api/v1/patients/:id/clean", func(c echo.Context) error {
		mode, err := clean.ParseMode(c.QueryParam("mode"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		_, doc, err := pipeline.ProjectPatient(st, c.Param("id"), mode)
		if err != nil {
			return projectionError(c, err)
		}
		return c.JSON(http.StatusOK, doc)
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}

func projectionError(c echo.Context, err error) error {
	if errors.Is(err, hydrate.ErrPatientNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
