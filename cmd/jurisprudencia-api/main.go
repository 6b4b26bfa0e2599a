package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/LimaLegalLab/jurisprudencia/backend/internal/analysis"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/config"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/database"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/favorites"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/fetcher"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/logging"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/rulings"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/server"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/similarity"
	"github.com/LimaLegalLab/jurisprudencia/backend/internal/updater"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const initialLoadPages = 3

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jurisprudencia-api",
		Short: "Jurisprudencia ingestion and search backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("source-url", defaults.GetString("source.url"), "Sentencia source API base URL")
	cmd.PersistentFlags().Duration("update-interval", defaults.GetDuration("update.interval"), "Background update interval")
	cmd.PersistentFlags().Int("max-pages-auto", defaults.GetInt("update.max_pages_auto"), "Page budget for automatic updates")
	cmd.PersistentFlags().Int("max-pages-manual", defaults.GetInt("update.max_pages_manual"), "Page budget for manual updates")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "source.url", "source-url")
	bindFlag(cmd, "update.interval", "update-interval")
	bindFlag(cmd, "update.max_pages_auto", "max-pages-auto")
	bindFlag(cmd, "update.max_pages_manual", "max-pages-manual")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	analyzer := analysis.NewAnalyzer(appConfig.MinWordLength, appConfig.MaxKeywords, appConfig.SummaryLength)

	rulingsService, err := rulings.NewService(rulings.ServiceConfig{
		Database: db,
		Analyzer: analyzer,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	favoritesService, err := favorites.NewService(favorites.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	fetchEngine, err := fetcher.NewFetcher(fetcher.Config{
		SourceURL:    appConfig.SourceURL,
		Timeout:      appConfig.SourceTimeout,
		PageDelay:    appConfig.PageDelay,
		RetryBudget:  appConfig.RetryBudget,
		RetryBackoff: appConfig.RetryBackoff,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	index := similarity.NewIndex(similarity.IndexConfig{
		Loader: func(loadCtx context.Context) ([]similarity.Document, error) {
			corpus, err := rulingsService.All(loadCtx)
			if err != nil {
				return nil, err
			}
			docs := make([]similarity.Document, 0, len(corpus))
			for _, ruling := range corpus {
				docs = append(docs, similarity.DocumentFromRuling(ruling))
			}
			return docs, nil
		},
		Logger: logger,
	})

	updateService, err := updater.NewUpdater(updater.Config{
		Fetcher:        fetchEngine,
		Store:          rulingsService,
		Index:          index,
		Interval:       appConfig.UpdateInterval,
		MaxPagesAuto:   appConfig.MaxPagesAuto,
		MaxPagesManual: appConfig.MaxPagesManual,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Rulings:   rulingsService,
		Index:     index,
		Updater:   updateService,
		Favorites: favoritesService,
		Options: server.Options{
			ItemsPerPage:        appConfig.ItemsPerPage,
			ExportLimit:         appConfig.ExportLimit,
			SimilarityThreshold: appConfig.SimilarityThreshold,
			SimilarityLimit:     appConfig.SimilarityLimit,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := seedIfEmpty(signalCtx, rulingsService, fetchEngine, logger); err != nil {
		logger.Warn("initial corpus load failed", zap.Error(err))
	}

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		updateService.Run(signalCtx)
	}()

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		background.Wait()
		return err
	case err := <-errCh:
		return err
	}
}

// seedIfEmpty performs a small initial fetch when the store has no rulings
// yet, so a fresh deployment serves data before the first scheduled cycle.
func seedIfEmpty(ctx context.Context, store *rulings.Service, fetchEngine *fetcher.Fetcher, logger *zap.Logger) error {
	total, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}

	logger.Info("empty corpus, fetching initial pages", zap.Int("pages", initialLoadPages))
	records, err := fetchEngine.Fetch(ctx, fetcher.Request{StartPage: 1, MaxPages: initialLoadPages})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	_, err = store.Save(ctx, records)
	return err
}
