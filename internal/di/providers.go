package di

import (
	"context"
	"fmt"
	"log"

	"collabhub/internal/bus"
	"collabhub/internal/chat/handler"
	"collabhub/internal/chat/repository"
	"collabhub/internal/chat/service"
	"collabhub/internal/common"
	"collabhub/internal/config"
	"collabhub/internal/dbmongo"
	"collabhub/internal/dbmysql"
	"collabhub/internal/notif"
	"collabhub/internal/presence"
	"collabhub/internal/queue"
	"collabhub/internal/user"

	"github.com/nats-io/nats.go/jetstream"
)

// ChatApp is the API process: chat, message, presence and notification routes
// plus an in-process queue consumer so queued notifications reach live sockets.
type ChatApp struct {
	Config        *config.Config
	Mongo         *dbmongo.MongoClient
	Broker        *bus.Broker
	JetStream     jetstream.JetStream
	Chats         *handler.ChatHandler
	Notifications *notif.NotificationHandler
	Consumer      *queue.Consumer
	TokenParser   *common.TokenParser
}

// NotifApp is the headless notification worker. It replays the dead-letter
// ledger and only drains the queue when NOTIFY_WORKER_CONSUME is set.
type NotifApp struct {
	Config      *config.Config
	Mongo       *dbmongo.MongoClient
	JetStream   jetstream.JetStream
	Dispatcher  *notif.Dispatcher
	Consumer    *queue.Consumer
	Replayer    *queue.Replayer
	TokenParser *common.TokenParser
}

func ProvideConfig() (*config.Config, error) {
	return config.Load()
}

func ProvideMongo(cfg *config.Config) (*dbmongo.MongoClient, func(), error) {
	mc, err := dbmongo.NewMongoConnection(cfg)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoDB.ConnectTimeout)
	defer cancel()
	if err := dbmongo.EnsureIndexes(ctx, mc.Database, cfg.Notification.TTL); err != nil {
		_ = mc.Close(context.Background())
		return nil, nil, err
	}
	log.Printf("Connected to MongoDB database %s", cfg.MongoDB.Database)

	cleanup := func() {
		if err := mc.Close(context.Background()); err != nil {
			log.Printf("Failed to disconnect MongoDB: %v", err)
		}
	}
	return mc, cleanup, nil
}

func ProvideTxRunner(cfg *config.Config, mc *dbmongo.MongoClient) dbmongo.TxRunner {
	return dbmongo.NewTxRunner(mc, cfg.MongoDB.Transactions)
}

func ProvideBroker(cfg *config.Config) (*bus.Broker, func()) {
	b := bus.NewBroker(cfg.Notification.BusBuffer)
	return b, b.Shutdown
}

// ProvideJetStream connects to NATS and makes sure the work-queue stream exists.
func ProvideJetStream(cfg *config.Config) (jetstream.JetStream, func(), error) {
	nc, js, err := queue.Connect(cfg.NATS)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoDB.ConnectTimeout)
	defer cancel()
	if _, err := queue.EnsureStream(ctx, js, cfg.NATS); err != nil {
		nc.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := nc.Drain(); err != nil {
			log.Printf("Failed to drain NATS connection: %v", err)
		}
	}
	return js, cleanup, nil
}

func ProvideProducer(cfg *config.Config, js jetstream.JetStream) *queue.Producer {
	return queue.NewProducer(js, cfg.NATS)
}

// ProvideDeadLetters opens the MySQL ledger when a DSN is configured and
// returns a nil repository otherwise.
func ProvideDeadLetters(cfg *config.Config) (dbmysql.DeadLetterRepository, func(), error) {
	if !cfg.MySQL.Enabled() {
		log.Println("MYSQL_DSN not set, dead letters are only logged")
		return nil, func() {}, nil
	}

	db, err := dbmysql.NewMySQL(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("dead letter ledger: %w", err)
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return dbmysql.NewDeadLetterRepository(db), cleanup, nil
}

func ProvideTracker(users user.UserRepository, b *bus.Broker) *presence.Tracker {
	return presence.NewTracker(users, b)
}

func ProvideDispatcher(
	cfg *config.Config,
	repo notif.NotificationRepository,
	users user.UserRepository,
	content notif.ContentStore,
	tracker *presence.Tracker,
	b *bus.Broker,
) *notif.Dispatcher {
	return notif.NewDispatcher(cfg, repo, users, content, tracker, b)
}

// ProvideConsumer registers every queued event the services understand.
func ProvideConsumer(cfg *config.Config, dispatcher *notif.Dispatcher, deadLetters dbmysql.DeadLetterRepository) *queue.Consumer {
	var recorder queue.DeadLetterRecorder
	if deadLetters != nil {
		recorder = deadLetters
	}
	c := queue.NewConsumer(cfg.Notification, recorder)
	c.Handle(common.EventCreateNotification, dispatcher.HandleCreateEvent)
	return c
}

// ProvideReplayer is nil when there is no ledger to replay from.
func ProvideReplayer(cfg *config.Config, deadLetters dbmysql.DeadLetterRepository, producer *queue.Producer) *queue.Replayer {
	if deadLetters == nil {
		return nil
	}
	return queue.NewReplayer(deadLetters, producer, cfg.Notification.ReplayLimit)
}

func ProvideChatService(chats repository.ChatRepository, users user.UserRepository) service.ChatService {
	return service.NewChatService(chats, users)
}

func ProvideMessageService(
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	media repository.MediaRepository,
	users user.UserRepository,
	tracker *presence.Tracker,
	dispatcher *notif.Dispatcher,
	b *bus.Broker,
	tx dbmongo.TxRunner,
) service.MessageService {
	return service.NewMessageService(chats, messages, media, users, tracker, dispatcher, b, tx)
}

func ProvideChatHandler(chats service.ChatService, messages service.MessageService, tracker *presence.Tracker, b *bus.Broker) *handler.ChatHandler {
	return handler.NewChatHandler(chats, messages, tracker, b)
}

func ProvideNotificationHandler(dispatcher *notif.Dispatcher, producer *queue.Producer, b *bus.Broker) *notif.NotificationHandler {
	return notif.NewNotificationHandler(dispatcher, producer, b)
}

func ProvideTokenParser(cfg *config.Config) *common.TokenParser {
	return common.NewTokenParser(cfg.Auth.JWTSecret)
}
