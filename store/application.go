package store

import "context"

// Application is a product that bug reports are filed against.
type Application struct {
	ID             int32
	OrganizationID int32
	Name           string
	CreatedTs      int64
}

// FindApplication is the find condition for applications.
type FindApplication struct {
	ID             *int32
	IDs            []int32
	OrganizationID *int32
}

func (s *Store) CreateApplication(ctx context.Context, create *Application) (*Application, error) {
	return s.driver.CreateApplication(ctx, create)
}

func (s *Store) GetApplication(ctx context.Context, find *FindApplication) (*Application, error) {
	list, err := s.driver.ListApplications(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) ListApplications(ctx context.Context, find *FindApplication) ([]*Application, error) {
	return s.driver.ListApplications(ctx, find)
}

// GetApplicationNames resolves display names for a batch of application ids in a
// single query. Unknown ids are simply absent from the returned map.
func (s *Store) GetApplicationNames(ctx context.Context, ids []int32) (map[int32]string, error) {
	if len(ids) == 0 {
		return map[int32]string{}, nil
	}
	list, err := s.driver.ListApplications(ctx, &FindApplication{IDs: ids})
	if err != nil {
		return nil, err
	}
	names := make(map[int32]string, len(list))
	for _, app := range list {
		names[app.ID] = app.Name
	}
	return names, nil
}
