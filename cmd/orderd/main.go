package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarkoPoloResearchLab/electroshop/internal/appdb"
	"github.com/MarkoPoloResearchLab/electroshop/internal/eventbus"
	"github.com/MarkoPoloResearchLab/electroshop/internal/httpapi"
	"github.com/MarkoPoloResearchLab/electroshop/internal/order"
	"github.com/MarkoPoloResearchLab/electroshop/internal/store/gormstore"
)

const (
	flagDatabaseURL      = "database-url"
	flagListenAddr       = "listen-addr"
	flagKafkaBrokers     = "kafka-brokers"
	flagUserServiceURL   = "user-service-url"
	flagAddressTimeout   = "address-timeout"
	configDatabaseURL    = "database_url"
	configListenAddr     = "listen_addr"
	configKafkaBrokers   = "kafka_brokers"
	configUserServiceURL = "user_service_url"
	configAddressTimeout = "address_timeout"

	defaultDatabaseURL    = "sqlite:///tmp/electroshop-orders.db"
	defaultListenAddr     = ":8083"
	defaultUserServiceURL = "http://localhost:8086"
	defaultAddressTimeout = 3 * time.Second
	consumerGroupID       = "orderd"
)

type runtimeConfig struct {
	DatabaseURL    string
	ListenAddr     string
	KafkaBrokers   []string
	UserServiceURL string
	AddressTimeout time.Duration
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "orderd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "orderd",
		Short:         "Order lifecycle service",
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
	cmd.Flags().String(flagUserServiceURL, defaultUserServiceURL, "base URL of the user service for address lookups")
	cmd.Flags().Duration(flagAddressTimeout, defaultAddressTimeout, "address lookup deadline during checkout")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configDatabaseURL:    flagDatabaseURL,
		configListenAddr:     flagListenAddr,
		configKafkaBrokers:   flagKafkaBrokers,
		configUserServiceURL: flagUserServiceURL,
		configAddressTimeout: flagAddressTimeout,
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
	cfg.UserServiceURL = viper.GetString(configUserServiceURL)
	cfg.AddressTimeout = viper.GetDuration(configAddressTimeout)

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if cfg.UserServiceURL == "" {
		return fmt.Errorf("user service url is required")
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
		if err := gormDB.AutoMigrate(&gormstore.OrderRecord{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	publisher := eventbus.NewKafkaPublisher(cfg.KafkaBrokers)
	defer publisher.Close()

	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := order.NewService(
		gormstore.NewOrderStore(gormDB),
		httpapi.NewAddressBookClient(cfg.UserServiceURL),
		publisher,
		clock,
		logger,
		order.WithAddressTimeout(cfg.AddressTimeout))
	if err != nil {
		return fmt.Errorf("order service init: %w", err)
	}

	router := httpapi.NewRouter(nil, httpapi.NewOrderHandler(service, logger))
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
