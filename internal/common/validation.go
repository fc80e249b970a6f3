package common

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MinChatParticipants = 1
	MaxChatParticipants = 50
	MaxChatNameLength   = 100
)

// ParseObjectID parses a hex id, reporting BadRequest naming the field.
func ParseObjectID(field, hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(hex))
	if err != nil {
		return primitive.NilObjectID, BadRequest("invalid " + field + ": " + hex)
	}
	return id, nil
}

func ParseObjectIDs(field string, hexes []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(hexes))
	for _, h := range hexes {
		id, err := ParseObjectID(field, h)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// UniqueIDs returns ids without duplicates, keeping first-seen order.
func UniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func ContainsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func RemoveID(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func ValidateChatName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", BadRequest("chat name cannot be empty")
	}
	if len(name) > MaxChatNameLength {
		return "", BadRequest("chat name is too long")
	}
	return name, nil
}
