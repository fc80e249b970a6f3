package notif

import (
	"context"
	"sort"
	"sync"
	"time"

	"collabhub/internal/common"
	"collabhub/internal/dbmongo"
	"collabhub/internal/user"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memoryRepo mirrors the Mongo query semantics of notificationRepo.
type memoryRepo struct {
	mu    sync.Mutex
	items []dbmongo.Notification
	err   error
}

func (r *memoryRepo) Create(_ context.Context, n *dbmongo.Notification) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	r.items = append(r.items, *n)
	return nil
}

func (r *memoryRepo) FindForUser(_ context.Context, userID primitive.ObjectID, createdAfter, readVisibleSince time.Time) ([]dbmongo.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []dbmongo.Notification{}
	for _, n := range r.items {
		if !n.HasRecipient(userID) || !n.CreatedAt.After(createdAfter) {
			continue
		}
		if n.IsRead && n.CreatedAt.Before(readVisibleSince) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepo) MarkRead(_ context.Context, notificationID, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == notificationID && r.items[i].HasRecipient(userID) {
			r.items[i].IsRead = true
			return nil
		}
	}
	return ErrNotFound
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) FindByID(ctx context.Context, userID primitive.ObjectID) (*dbmongo.User, error) {
	args := m.Called(ctx, userID)
	if u := args.Get(0); u != nil {
		return u.(*dbmongo.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUsers) FindPublicByIDs(ctx context.Context, userIDs []primitive.ObjectID) ([]dbmongo.PublicUser, error) {
	args := m.Called(ctx, userIDs)
	if u := args.Get(0); u != nil {
		return u.([]dbmongo.PublicUser), args.Error(1)
	}
	return nil, args.Error(1)
}

// userTable answers directory lookups from a fixed set of users.
type userTable map[primitive.ObjectID]*dbmongo.User

func (t userTable) FindByID(_ context.Context, id primitive.ObjectID) (*dbmongo.User, error) {
	if u, ok := t[id]; ok {
		return u, nil
	}
	return nil, user.ErrUserNotFound
}

func (t userTable) FindPublicByIDs(_ context.Context, ids []primitive.ObjectID) ([]dbmongo.PublicUser, error) {
	out := []dbmongo.PublicUser{}
	for _, id := range ids {
		if u, ok := t[id]; ok {
			out = append(out, u.Public())
		}
	}
	return out, nil
}

type stubContent struct {
	tasks     map[primitive.ObjectID]dbmongo.Task
	projects  map[primitive.ObjectID]dbmongo.Project
	companies map[primitive.ObjectID]dbmongo.Company
	users     map[primitive.ObjectID]dbmongo.PublicUser
	err       error
}

func newStubContent() *stubContent {
	return &stubContent{
		tasks:     map[primitive.ObjectID]dbmongo.Task{},
		projects:  map[primitive.ObjectID]dbmongo.Project{},
		companies: map[primitive.ObjectID]dbmongo.Company{},
		users:     map[primitive.ObjectID]dbmongo.PublicUser{},
	}
}

func (s *stubContent) FindTask(_ context.Context, id primitive.ObjectID) (*dbmongo.Task, error) {
	if s.err != nil {
		return nil, s.err
	}
	if t, ok := s.tasks[id]; ok {
		return &t, nil
	}
	return nil, ErrNotFound
}

func (s *stubContent) FindProject(_ context.Context, id primitive.ObjectID) (*dbmongo.Project, error) {
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.projects[id]; ok {
		return &p, nil
	}
	return nil, ErrNotFound
}

func (s *stubContent) FindCompany(_ context.Context, id primitive.ObjectID) (*dbmongo.Company, error) {
	if s.err != nil {
		return nil, s.err
	}
	if c, ok := s.companies[id]; ok {
		return &c, nil
	}
	return nil, ErrNotFound
}

func (s *stubContent) FindUser(_ context.Context, id primitive.ObjectID) (*dbmongo.PublicUser, error) {
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[id]; ok {
		return &u, nil
	}
	return nil, ErrNotFound
}

type presenceMap map[primitive.ObjectID]common.UserStatus

func (p presenceMap) StatusOf(_ context.Context, id primitive.ObjectID) common.UserStatus {
	if s, ok := p[id]; ok {
		return s
	}
	return common.StatusUnknown
}

type published struct {
	topic   string
	payload interface{}
}

type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) Publish(topic string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{topic: topic, payload: payload})
}

func (b *recordingBus) all() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]published(nil), b.events...)
}
