package session

import (
	"context"

	"github.com/utafrali/freshcart/internal/domain"
	"github.com/utafrali/freshcart/pkg/apiclient"
	"github.com/utafrali/freshcart/pkg/query"
)

// Categories returns the category list, from cache while fresh.
func (s *Context) Categories(ctx context.Context) ([]domain.Category, error) {
	return query.Fetch(ctx, s.Cache, CategoryKeys.List(), s.Query, s.fetchCategories)
}

func (s *Context) fetchCategories(ctx context.Context) ([]domain.Category, error) {
	raw, err := s.API.Get(ctx, "/categories", apiclient.WithoutAuth())
	if err != nil {
		return nil, err
	}
	return NormalizeCategories(raw)
}
