package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarkoPoloResearchLab/electroshop/internal/cart"
	"github.com/MarkoPoloResearchLab/electroshop/internal/eventbus"
	"github.com/MarkoPoloResearchLab/electroshop/internal/httpapi"
	"github.com/MarkoPoloResearchLab/electroshop/internal/store/redisstore"
)

const (
	flagListenAddr     = "listen-addr"
	flagRedisAddr      = "redis-addr"
	flagKafkaBrokers   = "kafka-brokers"
	flagInventoryURL   = "inventory-url"
	flagCatalogURL     = "catalog-url"
	configListenAddr   = "listen_addr"
	configRedisAddr    = "redis_addr"
	configKafkaBrokers = "kafka_brokers"
	configInventoryURL = "inventory_url"
	configCatalogURL   = "catalog_url"

	defaultListenAddr   = ":8082"
	defaultRedisAddr    = "localhost:6379"
	defaultInventoryURL = "http://localhost:8081"
	defaultCatalogURL   = "http://localhost:8085"
	consumerGroupID     = "cartd"
)

type runtimeConfig struct {
	ListenAddr   string
	RedisAddr    string
	KafkaBrokers []string
	InventoryURL string
	CatalogURL   string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cartd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "cartd",
		Short:         "Shopping cart service",
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

	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagRedisAddr, defaultRedisAddr, "Redis address for cart documents")
	cmd.Flags().String(flagKafkaBrokers, "", "comma-separated Kafka brokers")
	cmd.Flags().String(flagInventoryURL, defaultInventoryURL, "base URL of the inventory service")
	cmd.Flags().String(flagCatalogURL, defaultCatalogURL, "base URL of the product catalog service")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configListenAddr:   flagListenAddr,
		configRedisAddr:    flagRedisAddr,
		configKafkaBrokers: flagKafkaBrokers,
		configInventoryURL: flagInventoryURL,
		configCatalogURL:   flagCatalogURL,
	}
	for configKey, flagName := range bindings {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.ListenAddr = viper.GetString(configListenAddr)
	cfg.RedisAddr = viper.GetString(configRedisAddr)
	if brokers := viper.GetString(configKafkaBrokers); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.InventoryURL = viper.GetString(configInventoryURL)
	cfg.CatalogURL = viper.GetString(configCatalogURL)

	if cfg.RedisAddr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if cfg.InventoryURL == "" {
		return fmt.Errorf("inventory url is required")
	}
	if cfg.CatalogURL == "" {
		return fmt.Errorf("catalog url is required")
	}
	return nil
}

func run(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	publisher := eventbus.NewKafkaPublisher(cfg.KafkaBrokers)
	defer publisher.Close()

	clock := func() int64 { return time.Now().UTC().Unix() }
	service, err := cart.NewService(
		redisstore.NewCartStore(redisClient),
		httpapi.NewCatalogClient(cfg.CatalogURL),
		httpapi.NewInventoryClient(cfg.InventoryURL),
		publisher,
		clock,
		logger)
	if err != nil {
		return fmt.Errorf("cart service init: %w", err)
	}

	router := httpapi.NewRouter(nil, httpapi.NewCartHandler(service, logger))
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
