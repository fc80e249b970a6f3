package service

import (
	"context"

	"collabhub/internal/dbmongo"
	"collabhub/internal/notif"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

//go:generate mockgen -destination=mocks/mock_repositories.go -package=mocks collabhub/internal/chat/repository ChatRepository,MessageRepository,MediaRepository
//go:generate mockgen -destination=mocks/mock_collaborators.go -package=mocks collabhub/internal/chat/service UserDirectory,Notifier

// UserDirectory is the read side of the user store the chat services need.
type UserDirectory interface {
	FindByID(ctx context.Context, userID primitive.ObjectID) (*dbmongo.User, error)
	FindPublicByIDs(ctx context.Context, userIDs []primitive.ObjectID) ([]dbmongo.PublicUser, error)
	CountExisting(ctx context.Context, userIDs []primitive.ObjectID) (int64, error)
}

// Notifier is the in-process entry point of the notification dispatcher.
type Notifier interface {
	CreateNotification(ctx context.Context, in notif.CreateInput) (*dbmongo.Notification, error)
}
