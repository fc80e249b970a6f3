package common

// NotificationType classifies what a notification is about.
type NotificationType string

const (
	NotificationTask          NotificationType = "task"
	NotificationProject       NotificationType = "project"
	NotificationCompany       NotificationType = "company"
	NotificationVideoCall     NotificationType = "video_call"
	NotificationDirectMessage NotificationType = "direct_message"
)

func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTask, NotificationProject, NotificationCompany, NotificationVideoCall, NotificationDirectMessage:
		return true
	}
	return false
}

// ContentType tags the document a notification's content id points at.
// The set is closed.
type ContentType string

const (
	ContentTask    ContentType = "Task"
	ContentProject ContentType = "Project"
	ContentCompany ContentType = "Company"
	ContentUser    ContentType = "User"
)

func (t ContentType) IsValid() bool {
	switch t {
	case ContentTask, ContentProject, ContentCompany, ContentUser:
		return true
	}
	return false
}

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
	// StatusUnknown is never stored; it is what presence reports for unresolvable users.
	StatusUnknown UserStatus = "unknown"
)

func (s UserStatus) IsValid() bool {
	return s == StatusOnline || s == StatusOffline
}

type ChatKind string

const (
	ChatDirect ChatKind = "direct"
	ChatGroup  ChatKind = "group"
)

// KindFor returns direct for up to two unique participants, group otherwise.
func KindFor(participantCount int) ChatKind {
	if participantCount <= 2 {
		return ChatDirect
	}
	return ChatGroup
}

type MessageKind string

const (
	MessageText  MessageKind = "TEXT"
	MessageMedia MessageKind = "MEDIA"
)

func (k MessageKind) IsValid() bool {
	return k == MessageText || k == MessageMedia
}

// Live Delivery Bus topics.
const (
	TopicChatMessage        = "addMessageToChat"
	TopicNotification       = "newNotification"
	TopicUserStatus         = "changeUserStatus"
	EventCreateNotification = "create_notification"
)
