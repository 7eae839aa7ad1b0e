package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarkoPoloResearchLab/electroshop/internal/appdb"
	"github.com/MarkoPoloResearchLab/electroshop/internal/eventbus"
	"github.com/MarkoPoloResearchLab/electroshop/internal/httpapi"
	"github.com/MarkoPoloResearchLab/electroshop/internal/payment"
	"github.com/MarkoPoloResearchLab/electroshop/internal/store/gormstore"
)

const (
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagKafkaBrokers    = "kafka-brokers"
	flagWebhookSecret   = "webhook-secret"
	configDatabaseURL   = "database_url"
	configListenAddr    = "listen_addr"
	configKafkaBrokers  = "kafka_brokers"
	configWebhookSecret = "webhook_secret"

	defaultDatabaseURL = "sqlite:///tmp/electroshop-payments.db"
	defaultListenAddr  = ":8084"
	consumerGroupID    = "paymentd"
)

type runtimeConfig struct {
	DatabaseURL   string
	ListenAddr    string
	KafkaBrokers  []string
	WebhookSecret string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "paymentd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "paymentd",
		Short:         "Payment intent and webhook service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagKafkaBrokers, "", "comma-separated Kafka brokers")
	cmd.Flags().String(flagWebhookSecret, "", "shared secret verifying gateway webhook tokens")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configDatabaseURL:   flagDatabaseURL,
		configListenAddr:    flagListenAddr,
		configKafkaBrokers:  flagKafkaBrokers,
		configWebhookSecret: flagWebhookSecret,
	}
	for configKey, flagName := range bindings {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configDatabaseURL)
	cfg.ListenAddr = viper.GetString(configListenAddr)
	if brokers := viper.GetString(configKafkaBrokers); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.WebhookSecret = viper.GetString(configWebhookSecret)

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if cfg.WebhookSecret == "" {
		return fmt.Errorf("webhook secret is required")
	}
	return nil
}

func run(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := appdb.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()
	if driver == appdb.DriverSQLite {
		if err := gormDB.AutoMigrate(&gormstore.PaymentRecord{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	publisher := eventbus.NewKafkaPublisher(cfg.KafkaBrokers)
	defer publisher.Close()

	service, err := payment.NewService(
		gormstore.NewPaymentStore(gormDB),
		payment.NewSimulatedGateway(),
		payment.NewJWTVerifier([]byte(cfg.WebhookSecret)),
		publisher,
		logger)
	if err != nil {
		return fmt.Errorf("payment service init: %w", err)
	}

	router := httpapi.NewRouter(nil, httpapi.NewPaymentHandler(service, logger))
	kafkaConsumer := eventbus.NewKafkaConsumer(cfg.KafkaBrokers, consumerGroupID, service.Registry(), logger)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpapi.Serve(groupCtx, cfg.ListenAddr, router, logger)
	})
	group.Go(func() error {
		err := kafkaConsumer.Run(groupCtx)
		if groupCtx.Err() != nil {
			return nil
		}
		return err
	})

	return group.Wait()
}
