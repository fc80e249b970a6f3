package notif

import (
	"context"
	"errors"
	"fmt"

	"collabhub/internal/common"
	"collabhub/internal/dbmongo"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Content is the resolved document a notification points at. The set of
// implementations is closed: task, project, company and user.
type Content interface {
	ContentType() common.ContentType
	isContent()
}

type TaskContent struct{ dbmongo.Task }
type ProjectContent struct{ dbmongo.Project }
type CompanyContent struct{ dbmongo.Company }
type UserContent struct{ dbmongo.PublicUser }

func (TaskContent) ContentType() common.ContentType    { return common.ContentTask }
func (ProjectContent) ContentType() common.ContentType { return common.ContentProject }
func (CompanyContent) ContentType() common.ContentType { return common.ContentCompany }
func (UserContent) ContentType() common.ContentType    { return common.ContentUser }

func (TaskContent) isContent()    {}
func (ProjectContent) isContent() {}
func (CompanyContent) isContent() {}
func (UserContent) isContent()    {}

// ContentStore reads the documents notifications can reference.
type ContentStore interface {
	FindTask(ctx context.Context, id primitive.ObjectID) (*dbmongo.Task, error)
	FindProject(ctx context.Context, id primitive.ObjectID) (*dbmongo.Project, error)
	FindCompany(ctx context.Context, id primitive.ObjectID) (*dbmongo.Company, error)
	FindUser(ctx context.Context, id primitive.ObjectID) (*dbmongo.PublicUser, error)
}

// Loader resolves one content id into its concrete shape.
type Loader func(ctx context.Context, store ContentStore, id primitive.ObjectID) (Content, error)

// ErrUnknownContentType is returned for tags outside the closed set.
var ErrUnknownContentType = errors.New("unknown content type")

// LoaderFor picks the loader for a content tag.
func LoaderFor(tag common.ContentType) (Loader, error) {
	switch tag {
	case common.ContentTask:
		return loadTask, nil
	case common.ContentProject:
		return loadProject, nil
	case common.ContentCompany:
		return loadCompany, nil
	case common.ContentUser:
		return loadUser, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownContentType, tag)
}

func loadTask(ctx context.Context, store ContentStore, id primitive.ObjectID) (Content, error) {
	t, err := store.FindTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return TaskContent{*t}, nil
}

func loadProject(ctx context.Context, store ContentStore, id primitive.ObjectID) (Content, error) {
	p, err := store.FindProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return ProjectContent{*p}, nil
}

func loadCompany(ctx context.Context, store ContentStore, id primitive.ObjectID) (Content, error) {
	c, err := store.FindCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	return CompanyContent{*c}, nil
}

func loadUser(ctx context.Context, store ContentStore, id primitive.ObjectID) (Content, error) {
	u, err := store.FindUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return UserContent{*u}, nil
}

// ResolveContent looks up the loader for tag and runs it.
func ResolveContent(ctx context.Context, store ContentStore, tag common.ContentType, id primitive.ObjectID) (Content, error) {
	load, err := LoaderFor(tag)
	if err != nil {
		return nil, err
	}
	return load(ctx, store, id)
}
