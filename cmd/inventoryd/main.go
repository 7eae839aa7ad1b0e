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

	"github.com/MarkoPoloResearchLab/electroshop/internal/appdb"
	"github.com/MarkoPoloResearchLab/electroshop/internal/eventbus"
	"github.com/MarkoPoloResearchLab/electroshop/internal/httpapi"
	"github.com/MarkoPoloResearchLab/electroshop/internal/inventory"
	"github.com/MarkoPoloResearchLab/electroshop/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/electroshop/internal/store/redisstore"
	"github.com/MarkoPoloResearchLab/electroshop/pkg/stockledger"
)

const (
	flagDatabaseURL      = "database-url"
	flagListenAddr       = "listen-addr"
	flagRedisAddr        = "redis-addr"
	flagKafkaBrokers     = "kafka-brokers"
	flagReservationTTL   = "reservation-ttl"
	flagSweepInterval    = "sweep-interval"
	configDatabaseURL    = "database_url"
	configListenAddr     = "listen_addr"
	configRedisAddr      = "redis_addr"
	configKafkaBrokers   = "kafka_brokers"
	configReservationTTL = "reservation_ttl"
	configSweepInterval  = "sweep_interval"

	defaultDatabaseURL = "sqlite:///tmp/electroshop-inventory.db"
	defaultListenAddr  = ":8081"
	defaultRedisAddr   = "localhost:6379"
	consumerGroupID    = "inventoryd"
)

type runtimeConfig struct {
	DatabaseURL    string
	ListenAddr     string
	RedisAddr      string
	KafkaBrokers   []string
	ReservationTTL time.Duration
	SweepInterval  time.Duration
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "inventoryd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "inventoryd",
		Short:         "Stock ledger and reservation service",
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
	cmd.Flags().String(flagRedisAddr, defaultRedisAddr, "Redis address for reservation holds")
	cmd.Flags().String(flagKafkaBrokers, "", "comma-separated Kafka brokers; empty disables the consumer")
	cmd.Flags().Duration(flagReservationTTL, stockledger.DefaultReservationTTL, "reservation hold time-to-live")
	cmd.Flags().Duration(flagSweepInterval, stockledger.DefaultSweepInterval, "orphaned hold reconciliation interval")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configDatabaseURL:    flagDatabaseURL,
		configListenAddr:     flagListenAddr,
		configRedisAddr:      flagRedisAddr,
		configKafkaBrokers:   flagKafkaBrokers,
		configReservationTTL: flagReservationTTL,
		configSweepInterval:  flagSweepInterval,
	}
	for configKey, flagName := range bindings {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configDatabaseURL)
	cfg.ListenAddr = viper.GetString(configListenAddr)
	cfg.RedisAddr = viper.GetString(configRedisAddr)
	if brokers := viper.GetString(configKafkaBrokers); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.ReservationTTL = viper.GetDuration(configReservationTTL)
	cfg.SweepInterval = viper.GetDuration(configSweepInterval)

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database url is required")
	}
	if cfg.RedisAddr == "" {
		return fmt.Errorf("redis addr is required")
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
		if err := gormDB.AutoMigrate(&gormstore.StockItem{}, &gormstore.ProcessedOrder{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	ledger := gormstore.New(gormDB)
	reservations := redisstore.NewReservationStore(redisClient)
	clock := func() int64 { return time.Now().UTC().Unix() }

	service, err := stockledger.NewService(ledger, reservations, clock,
		stockledger.WithReservationTTL(cfg.ReservationTTL),
		stockledger.WithOperationLogger(inventory.NewZapOperationLogger(logger)))
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}
	sweeper, err := stockledger.NewSweeper(ledger, reservations,
		stockledger.WithSweepInterval(cfg.SweepInterval),
		stockledger.WithSweepLogger(inventory.NewZapOperationLogger(logger)))
	if err != nil {
		return fmt.Errorf("sweeper init: %w", err)
	}
	consumer, err := inventory.NewConsumer(service, logger)
	if err != nil {
		return fmt.Errorf("consumer init: %w", err)
	}

	router := httpapi.NewRouter(nil, httpapi.NewInventoryHandler(service, logger))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return httpapi.Serve(groupCtx, cfg.ListenAddr, router, logger)
	})
	group.Go(func() error {
		err := sweeper.Run(groupCtx)
		if groupCtx.Err() != nil {
			return nil
		}
		return err
	})
	if len(cfg.KafkaBrokers) > 0 {
		kafkaConsumer := eventbus.NewKafkaConsumer(cfg.KafkaBrokers, consumerGroupID, consumer.Registry(), logger)
		group.Go(func() error {
			err := kafkaConsumer.Run(groupCtx)
			if groupCtx.Err() != nil {
				return nil
			}
			return err
		})
	} else {
		logger.Warn("kafka brokers not configured, event consumer disabled")
	}

	return group.Wait()
}
