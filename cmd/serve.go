package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prestigewebb/twilio-manager/internal/auth"
	"github.com/prestigewebb/twilio-manager/internal/config"
	"github.com/prestigewebb/twilio-manager/internal/db"
	"github.com/prestigewebb/twilio-manager/internal/events"
	httpSrv "github.com/prestigewebb/twilio-manager/internal/http"
	"github.com/prestigewebb/twilio-manager/internal/logger"
	"github.com/prestigewebb/twilio-manager/internal/manager"
	"github.com/prestigewebb/twilio-manager/internal/metrics"
	"github.com/prestigewebb/twilio-manager/internal/store"
	"github.com/prestigewebb/twilio-manager/internal/twilio"
	"github.com/prometheus/client_golang/prometheus"
	rds "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level, cfg.Log.Path)
		defer func() { _ = logger.Log.Sync() }()
		log := logger.Log

		if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" {
			return fmt.Errorf("twilio credentials missing: set TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN")
		}

		metrics.MustRegister(prometheus.DefaultRegisterer)

		// redis (optional): subaccount cache + login rate limit
		var redisClient *rds.Client
		if cfg.Redis.Addr != "" {
			redisClient, err = db.NewRedisClient(db.RedisOpts{
				Addr:        cfg.Redis.Addr,
				Password:    cfg.Redis.Password,
				DB:          cfg.Redis.DB,
				DialTimeout: cfg.Redis.DialTimeout,
			})
			if err != nil {
				return fmt.Errorf("redis connect: %w", err)
			}
			defer func() { _ = redisClient.Close() }()
		}

		// sqlite audit trail (optional)
		var transfersRepo store.TransfersRepository
		if cfg.SQLite.Path != "" {
			sqlDB, err := store.Open(cfg.SQLite.Path)
			if err != nil {
				return fmt.Errorf("open audit store: %w", err)
			}
			defer func() { _ = sqlDB.Close() }()
			transfersRepo = store.NewTransfersRepository(sqlDB)
		} else {
			log.Warn("sqlite path empty, transfer audit trail disabled")
		}

		// kafka transfer events (optional)
		var publisher manager.EventPublisher
		if len(cfg.Kafka.Brokers) > 0 {
			kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			defer func() { _ = kp.Close() }()
			publisher = kp
		}

		client := twilio.NewClient(twilio.Options{
			AccountSID:     cfg.Twilio.AccountSID,
			AuthToken:      cfg.Twilio.AuthToken,
			APIBaseURL:     cfg.Twilio.APIBaseURL,
			NumbersBaseURL: cfg.Twilio.NumbersBaseURL,
			Timeout:        cfg.Twilio.Timeout,
			FailThreshold:  cfg.Twilio.Breaker.FailThreshold,
			OpenFor:        cfg.Twilio.Breaker.OpenFor,
		})

		mgr := manager.New(client, log, manager.Options{
			Cache:      redisClient,
			CacheTTL:   cfg.Redis.SubaccountTTL,
			Transfers:  transfersRepo,
			Events:     publisher,
			IsoCountry: cfg.Twilio.IsoCountry,
			DefaultAddress: twilio.CreateAddressParams{
				CustomerName: cfg.Twilio.DefaultAddress.CustomerName,
				FriendlyName: cfg.Twilio.DefaultAddress.FriendlyName,
				Street:       cfg.Twilio.DefaultAddress.Street,
				City:         cfg.Twilio.DefaultAddress.City,
				Region:       cfg.Twilio.DefaultAddress.Region,
				PostalCode:   cfg.Twilio.DefaultAddress.PostalCode,
				IsoCountry:   cfg.Twilio.DefaultAddress.IsoCountry,
			},
		})

		if len(cfg.Auth.Credentials) == 0 {
			log.Warn("no operator credentials configured, nobody can log in; add auth.credentials entries (see hashpass)")
		}
		jwtSecret := cfg.Auth.JWTSecret
		if jwtSecret == "" {
			buf := make([]byte, 32)
			if _, err := rand.Read(buf); err != nil {
				return fmt.Errorf("generate session secret: %w", err)
			}
			jwtSecret = hex.EncodeToString(buf)
			log.Warn("auth.jwt_secret not set, generated an ephemeral one; sessions will not survive restarts")
		}
		authn := auth.New(cfg.Auth.Credentials, jwtSecret, cfg.Auth.SessionTTL)

		server := httpSrv.NewServer(cfg, mgr, authn, redisClient, transfersRepo)

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting http", zap.String("addr", cfg.HTTP.Addr), zap.String("base_path", cfg.HTTP.BasePath))
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil {
				log.Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)

		return nil
	},
}
