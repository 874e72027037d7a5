package store

import "context"

// Organization is the tenant boundary. Every bug report, application and user
// belongs to exactly one organization.
type Organization struct {
	ID        int32
	Name      string
	CreatedTs int64
}

// FindOrganization is the find condition for organizations.
type FindOrganization struct {
	ID *int32
}

func (s *Store) CreateOrganization(ctx context.Context, create *Organization) (*Organization, error) {
	return s.driver.CreateOrganization(ctx, create)
}

func (s *Store) GetOrganization(ctx context.Context, find *FindOrganization) (*Organization, error) {
	list, err := s.driver.ListOrganizations(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) ListOrganizations(ctx context.Context, find *FindOrganization) ([]*Organization, error) {
	return s.driver.ListOrganizations(ctx, find)
}
