package cmd

import (
	"context"
	"log"

	"cloud.google.com/go/pubsub"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fvm/config"
	dbt "fvm/db/db"
	"fvm/db/mem"
	"fvm/db/pg"
	"fvm/geocode"
	"fvm/ingest"
	"fvm/live"
	"fvm/mq/gcppubsub"
	"fvm/mq/goch"
	"fvm/mq/mq"
	"fvm/mq/rabbit"
	"fvm/notify"
	"fvm/statussync"
	"fvm/tracking"
	"fvm/web"
)

func serverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long:  `This command starts the visit tracking web server.`,
		Run: func(cmd *cobra.Command, args []string) {
			isDev, _ := cmd.Flags().GetBool("dev")
			port, _ := cmd.Flags().GetInt("port")
			mqMode, _ := cmd.Flags().GetString("mq")
			dbMode, _ := cmd.Flags().GetString("db")

			runServer(isDev, port, mq.Mode(mqMode), dbMode)
		},
	}

	cmd.Flags().Bool("dev", true, "Run in development mode")
	cmd.Flags().Int("port", 8080, "Port to run the web server on")
	cmd.Flags().String("mq", "go_chan", "Message queue mode (go_chan, rabbitmq, gcp_pub_sub)")
	cmd.Flags().String("db", "mem", "Database mode (mem, pg)")

	return cmd
}

func runServer(isDev bool, port int, mqMode mq.Mode, dbMode string) {
	logger := newLogger(isDev)
	defer logger.Sync()

	visits, bookings := newStores(dbMode, logger)
	queues := newQueues(mqMode, logger)
	liveStore := newLiveStore(logger)
	clock := clockwork.NewRealClock()
	notifier := notify.NewZapDispatcher(logger)
	geocoder := geocode.NewNominatimGeocoder(config.NominatimURL())

	var mqttClient *ingest.MQTTClient
	if broker := config.MQTTBroker(); broker != "" {
		client, err := ingest.NewMQTTClient(broker, config.AppName)
		if err != nil {
			logger.Fatal("mqtt connect failed", zap.String("broker", broker), zap.Error(err))
		}
		mqttClient = client
		defer mqttClient.Disconnect()
	}

	controller := tracking.NewController(config.TrackingFromEnv(), tracking.ControllerDeps{
		Visits:   visits,
		Bookings: bookings,
		Queues:   queues,
		Geocoder: geocoder,
		Live:     liveStore,
		Notifier: notifier,
		MQTT:     mqttClient,
		Clock:    clock,
		Logger:   logger,
	})
	defer controller.Shutdown()

	synchronizer := statussync.NewSynchronizer(visits, bookings, queues, notifier, clock, logger)
	syncCtx, syncCancel := context.WithCancel(context.Background())
	defer syncCancel()
	go func() {
		if err := synchronizer.Run(syncCtx); err != nil && syncCtx.Err() == nil {
			logger.Error("status synchronizer stopped", zap.Error(err))
		}
	}()

	if err := web.Serve(port, web.Deps{
		Controller: controller,
		Visits:     visits,
		Bookings:   bookings,
		Live:       liveStore,
		Queues:     queues,
		Clock:      clock,
		Logger:     logger,
	}); err != nil {
		logger.Fatal("web server exited", zap.Error(err))
	}
}

func newLogger(isDev bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if isDev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	return logger
}

func newStores(dbMode string, logger *zap.Logger) (dbt.VisitDBWrapper, dbt.BookingDBWrapper) {
	switch dbMode {
	case "pg":
		gormDB, err := pg.InitPostgresGORM(pg.CreateDSN())
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		return pg.NewGORMVisitDBWrapper(gormDB), pg.NewGORMBookingDBWrapper(gormDB)
	default:
		return mem.NewInMemoryVisitDBWrapper(), mem.NewInMemoryBookingDBWrapper()
	}
}

func newQueues(mode mq.Mode, logger *zap.Logger) mq.VisitMessageQueueWrapper {
	switch mode {
	case mq.ModeRabbitMQ:
		conn := rabbit.NewRabbitConnection(rabbit.CreateAmqpURL())
		wrapper, err := rabbit.NewRabbitVisitMessageQueueWrapper(conn)
		if err != nil {
			logger.Fatal("rabbitmq init failed", zap.Error(err))
		}
		return wrapper
	case mq.ModeGCPPubSub:
		ctx := context.Background()
		client, err := pubsub.NewClient(ctx, gcppubsub.GetGCPProjectID())
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		wrapper, err := gcppubsub.NewPubSubVisitMessageQueueWrapper(ctx, client)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		return wrapper
	default:
		return goch.NewGoChanVisitMessageQueueWrapper()
	}
}

func newLiveStore(logger *zap.Logger) live.Store {
	addr := config.RedisAddr()
	if addr == "" {
		return live.NewMemStore()
	}
	store := live.NewRedisStore(addr)
	if err := store.Ping(context.Background()); err != nil {
		logger.Fatal("redis ping failed", zap.String("addr", addr), zap.Error(err))
	}
	return store
}
