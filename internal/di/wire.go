//go:build wireinject
// +build wireinject

package di

import (
	"collabhub/internal/chat/repository"
	"collabhub/internal/notif"
	"collabhub/internal/user"

	"github.com/google/wire"
)

var storageSet = wire.NewSet(
	ProvideMongo,
	ProvideTxRunner,
	user.NewUserRepository,
	notif.NewNotificationRepository,
	notif.NewContentRepository,
)

var notificationSet = wire.NewSet(
	ProvideBroker,
	ProvideTracker,
	ProvideDispatcher,
	ProvideJetStream,
	ProvideDeadLetters,
	ProvideConsumer,
)

func InitializeChatApp() (*ChatApp, func(), error) {
	wire.Build(
		ProvideConfig,
		ProvideTokenParser,
		storageSet,
		notificationSet,
		repository.NewChatRepository,
		repository.NewMessageRepository,
		repository.NewMediaRepository,
		ProvideChatService,
		ProvideMessageService,
		ProvideChatHandler,
		ProvideProducer,
		ProvideNotificationHandler,
		wire.Struct(new(ChatApp), "*"),
	)
	return nil, nil, nil
}

func InitializeNotifApp() (*NotifApp, func(), error) {
	wire.Build(
		ProvideConfig,
		ProvideTokenParser,
		storageSet,
		notificationSet,
		ProvideProducer,
		ProvideReplayer,
		wire.Struct(new(NotifApp), "*"),
	)
	return nil, nil, nil
}
