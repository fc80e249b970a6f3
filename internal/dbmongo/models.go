package dbmongo

import (
	"time"

	"collabhub/internal/common"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	UsersCollection         = "users"
	ChatsCollection         = "chats"
	MessagesCollection      = "messages"
	MediaCollection         = "mediacontents"
	NotificationsCollection = "notifications"
	TasksCollection         = "tasks"
	ProjectsCollection      = "projects"
	CompaniesCollection     = "companies"
)

// User is owned by the identity collaborator; this core only reads it
// and writes Status on behalf of the session layer.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	FirstName    string             `bson:"firstName" json:"firstName"`
	LastName     string             `bson:"lastName" json:"lastName"`
	UserName     string             `bson:"userName" json:"userName"`
	Email        string             `bson:"email" json:"email"`
	ProfilePhoto string             `bson:"profilePhoto,omitempty" json:"profilePhoto,omitempty"`
	Roles        []string           `bson:"roles" json:"roles"`
	Status       common.UserStatus  `bson:"status" json:"status"`
	IsDeleted    bool               `bson:"isDeleted" json:"isDeleted"`
}

// PublicUser is the projection of a user that other users may see.
type PublicUser struct {
	ID           primitive.ObjectID `bson:"_id" json:"_id"`
	UserName     string             `bson:"userName" json:"userName"`
	FirstName    string             `bson:"firstName,omitempty" json:"firstName,omitempty"`
	LastName     string             `bson:"lastName,omitempty" json:"lastName,omitempty"`
	ProfilePhoto string             `bson:"profilePhoto,omitempty" json:"profilePhoto,omitempty"`
	Status       common.UserStatus  `bson:"status,omitempty" json:"status,omitempty"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:           u.ID,
		UserName:     u.UserName,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		ProfilePhoto: u.ProfilePhoto,
		Status:       u.Status,
	}
}

type ChatMetadata struct {
	CreatedAt        time.Time       `bson:"createdAt" json:"createdAt"`
	LastActivity     time.Time       `bson:"lastActivity" json:"lastActivity"`
	ParticipantCount int             `bson:"participantCount" json:"participantCount"`
	Type             common.ChatKind `bson:"type" json:"type"`
}

type Chat struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Participants []primitive.ObjectID `bson:"participants" json:"participants"`
	Admins       []primitive.ObjectID `bson:"admins" json:"admins"`
	Messages     []primitive.ObjectID `bson:"messages" json:"messages"`
	Name         string               `bson:"name,omitempty" json:"name,omitempty"`
	IsDeleted    bool                 `bson:"isDeleted" json:"isDeleted"`
	DeletedAt    *time.Time           `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	CreatedBy    primitive.ObjectID   `bson:"createdBy" json:"createdBy"`
	Metadata     ChatMetadata         `bson:"metadata" json:"metadata"`
}

func (c *Chat) IsParticipant(userID primitive.ObjectID) bool {
	return common.ContainsID(c.Participants, userID)
}

func (c *Chat) IsAdmin(userID primitive.ObjectID) bool {
	return common.ContainsID(c.Admins, userID)
}

type MediaContent struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Type      common.MediaType   `bson:"type" json:"type"`
	URL       string             `bson:"url" json:"url"`
	Thumbnail string             `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
	Duration  float64            `bson:"duration,omitempty" json:"duration,omitempty"`
	Size      int64              `bson:"size,omitempty" json:"size,omitempty"`
	MimeType  string             `bson:"mimeType,omitempty" json:"mimeType,omitempty"`
	FileName  string             `bson:"fileName,omitempty" json:"fileName,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

type Message struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Sender    primitive.ObjectID   `bson:"sender" json:"sender"`
	Chat      primitive.ObjectID   `bson:"chat" json:"chat"`
	Type      common.MessageKind   `bson:"type" json:"type"`
	Content   string               `bson:"content,omitempty" json:"content,omitempty"`
	Media     *primitive.ObjectID  `bson:"media,omitempty" json:"media,omitempty"`
	ReadBy    []primitive.ObjectID `bson:"readBy" json:"readBy"`
	IsDeleted bool                 `bson:"isDeleted" json:"isDeleted"`
	DeletedAt *time.Time           `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	CreatedAt time.Time            `bson:"createdAt" json:"createdAt"`
}

func (m *Message) IsReadBy(userID primitive.ObjectID) bool {
	return common.ContainsID(m.ReadBy, userID)
}

// Notification documents are removed by the TTL index on CreatedAt.
type Notification struct {
	ID          primitive.ObjectID      `bson:"_id,omitempty" json:"_id"`
	Recipients  []primitive.ObjectID    `bson:"recipients" json:"recipients"`
	Sender      primitive.ObjectID      `bson:"sender" json:"sender"`
	Type        common.NotificationType `bson:"type" json:"type"`
	Content     primitive.ObjectID      `bson:"content" json:"content"`
	ContentType common.ContentType      `bson:"contentType" json:"contentType"`
	Message     string                  `bson:"message" json:"message"`
	IsRead      bool                    `bson:"isRead" json:"isRead"`
	CreatedAt   time.Time               `bson:"createdAt" json:"createdAt"`
}

func (n *Notification) HasRecipient(userID primitive.ObjectID) bool {
	return common.ContainsID(n.Recipients, userID)
}

// Task, Project and Company are owned by other collaborators and only read here
// to resolve notification content.
type Task struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"_id"`
	Title       string              `bson:"title" json:"title"`
	Description string              `bson:"description,omitempty" json:"description,omitempty"`
	Project     primitive.ObjectID  `bson:"project" json:"project"`
	Assignee    *primitive.ObjectID `bson:"assignee,omitempty" json:"assignee,omitempty"`
	Status      string              `bson:"status" json:"status"`
	Priority    string              `bson:"priority,omitempty" json:"priority,omitempty"`
	DueDate     *time.Time          `bson:"dueDate,omitempty" json:"dueDate,omitempty"`
}

type Project struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Name           string               `bson:"name" json:"name"`
	Description    string               `bson:"description,omitempty" json:"description,omitempty"`
	Company        primitive.ObjectID   `bson:"company" json:"company"`
	ProjectManager primitive.ObjectID   `bson:"projectManager" json:"projectManager"`
	Team           []primitive.ObjectID `bson:"team" json:"team"`
	Status         string               `bson:"status" json:"status"`
}

type Company struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name        string             `bson:"name" json:"name"`
	Address     string             `bson:"address,omitempty" json:"address,omitempty"`
	PhoneNumber string             `bson:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
	Website     string             `bson:"website,omitempty" json:"website,omitempty"`
}
