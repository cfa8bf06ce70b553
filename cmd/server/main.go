package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"employee-manager/internal/config"
	"employee-manager/internal/crypto"
	"employee-manager/internal/reconcile"
	"employee-manager/internal/repository"
	"employee-manager/internal/server"
	"employee-manager/internal/service"
	"employee-manager/internal/sheets"
	"employee-manager/internal/syncer"
	"employee-manager/internal/token"
	"employee-manager/internal/workbook"
)

func main() {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yml"
	}
	cfgPath := flag.String("config", defaultConfig, "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		// no logger configured yet
		bootstrap, _ := zap.NewDevelopment()
		bootstrap.Fatal("Failed to load config", zap.Error(err))
	}

	logger, err := newLogger(cfg.Log.Mode)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync() // Flushes buffer, if any
	}()

	accessLog := logrus.New()
	accessLog.SetFormatter(&logrus.JSONFormatter{})
	accessLog.SetOutput(os.Stdout)

	// Database connection
	db, err := repository.NewDB(cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := repository.MigrateDB(db, cfg.Database.Driver, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize repositories and services
	tokens := token.NewManager([]byte(cfg.Auth.JWTSecret), cfg.TokenTTL())
	authService := service.NewAuthService(repository.NewAuthRepository(db, logger), tokens, logger)
	employees := repository.NewEmployeeRepository(db, logger)

	deps := server.Deps{
		AuthService: authService,
		Tokens:      tokens,
		Employees:   employees,
	}

	var flowOpts []reconcile.Option
	if cfg.SheetsEnabled() {
		var store sheets.TokenStore = sheets.NewMemoryTokenStore()
		if cfg.Sheets.TokenStore == "database" {
			sealer, err := crypto.NewSealer(cfg.Crypto.MasterKey)
			if err != nil {
				logger.Fatal("Failed to initialize token encryption", zap.Error(err))
			}
			store = repository.NewTokenRepository(db, sealer, logger)
		}

		httpClient := &http.Client{Timeout: cfg.SheetsTimeout()}
		sheetsClient, err := sheets.NewClient(ctx, sheets.Config{SpreadsheetID: cfg.Sheets.SpreadsheetID}, store, httpClient, logger)
		if err != nil {
			logger.Fatal("Failed to initialize sheets client", zap.Error(err))
		}

		oauthCfg := sheets.OAuthConfig(cfg.Sheets.ClientID, cfg.Sheets.ClientSecret, cfg.Sheets.RedirectURI)
		deps.Authorizer = sheets.NewAuthorizer(oauthCfg, store, httpClient, logger)
		flowOpts = append(flowOpts, reconcile.WithRemote(sheetsClient, cfg.Sheets.ReadRange, cfg.Sheets.AppendRange))

		logger.Info("Spreadsheet integration enabled",
			zap.String("spreadsheet_id", cfg.Sheets.SpreadsheetID),
			zap.String("token_store", cfg.Sheets.TokenStore))
	} else {
		logger.Info("Spreadsheet integration disabled, employees are served from the database")
	}

	deps.Flow = reconcile.NewFlow(employees, workbook.New(logger), logger, flowOpts...)

	// Run the sheet sync worker in a goroutine (if enabled)
	if interval := cfg.SyncInterval(); interval > 0 && deps.Flow.RemoteEnabled() {
		worker := syncer.NewWorker(deps.Flow, interval, cfg.SheetsTimeout(), logger)
		go worker.Run(ctx)
	}

	// Initialize and run the server
	srv := server.NewServer(cfg, deps, logger, accessLog)
	if err := srv.Run(ctx); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}

	logger.Info("Application stopped.")
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
