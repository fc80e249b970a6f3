package repository

import (
	"context"
	"fmt"

	"collabhub/internal/dbmongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MediaRepository stores media references. The bytes live elsewhere; a
// MediaContent is only a URL plus descriptive fields.
type MediaRepository interface {
	Create(ctx context.Context, media *dbmongo.MediaContent) error
	Delete(ctx context.Context, mediaID primitive.ObjectID) error
	FindByIDs(ctx context.Context, mediaIDs []primitive.ObjectID) (map[primitive.ObjectID]dbmongo.MediaContent, error)
}

type mediaRepo struct {
	media *mongo.Collection
}

func NewMediaRepository(mc *dbmongo.MongoClient) MediaRepository {
	return &mediaRepo{media: mc.Collection(dbmongo.MediaCollection)}
}

func (r *mediaRepo) Create(ctx context.Context, media *dbmongo.MediaContent) error {
	if media.ID.IsZero() {
		media.ID = primitive.NewObjectID()
	}
	if _, err := r.media.InsertOne(ctx, media); err != nil {
		return fmt.Errorf("failed to create media content: %w", err)
	}
	return nil
}

func (r *mediaRepo) Delete(ctx context.Context, mediaID primitive.ObjectID) error {
	if _, err := r.media.DeleteOne(ctx, bson.M{"_id": mediaID}); err != nil {
		return fmt.Errorf("failed to delete media %s: %w", mediaID.Hex(), err)
	}
	return nil
}

func (r *mediaRepo) FindByIDs(ctx context.Context, mediaIDs []primitive.ObjectID) (map[primitive.ObjectID]dbmongo.MediaContent, error) {
	out := make(map[primitive.ObjectID]dbmongo.MediaContent, len(mediaIDs))
	if len(mediaIDs) == 0 {
		return out, nil
	}
	cursor, err := r.media.Find(ctx, bson.M{"_id": bson.M{"$in": mediaIDs}})
	if err != nil {
		return nil, fmt.Errorf("failed to find media: %w", err)
	}
	var items []dbmongo.MediaContent
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode media: %w", err)
	}
	for _, m := range items {
		out[m.ID] = m
	}
	return out, nil
}
