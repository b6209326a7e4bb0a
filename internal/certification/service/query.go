package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
	"github.com/jmerrifield20/agriledger/internal/certification/store"
)

// QueryFacade is the read boundary over the record store. Callers outside
// the certification packages read records only through it.
type QueryFacade struct {
	store *store.Store
}

// NewQueryFacade returns a façade over st.
func NewQueryFacade(st *store.Store) *QueryFacade {
	return &QueryFacade{store: st}
}

// ParseFilter converts raw query-string values into a Filter. Empty values
// match everything.
func ParseFilter(category, status string) (model.Filter, error) {
	var f model.Filter
	ve := &model.ValidationError{}
	if strings.TrimSpace(category) != "" {
		c, err := model.ParseCategory(category)
		if err != nil {
			ve.Add("category", err.Error())
		}
		f.Category = c
	}
	if strings.TrimSpace(status) != "" {
		s, err := model.ParseStatus(status)
		if err != nil {
			ve.Add("status", err.Error())
		}
		f.Status = s
	}
	if err := ve.OrNil(); err != nil {
		return model.Filter{}, err
	}
	return f, nil
}

// List returns the records matching filter in creation order.
func (q *QueryFacade) List(ctx context.Context, filter model.Filter) ([]model.Record, error) {
	f, err := ParseFilter(string(filter.Category), string(filter.Status))
	if err != nil {
		return nil, err
	}
	return q.store.List(ctx, f), nil
}

// FindByCategory returns the records of one category.
func (q *QueryFacade) FindByCategory(ctx context.Context, category string) ([]model.Record, error) {
	c, err := model.ParseCategory(category)
	if err != nil {
		return nil, model.NewValidationError("category", err.Error())
	}
	return q.store.List(ctx, model.Filter{Category: c}), nil
}

// FindByStatus returns the records in one status.
func (q *QueryFacade) FindByStatus(ctx context.Context, status string) ([]model.Record, error) {
	s, err := model.ParseStatus(status)
	if err != nil {
		return nil, model.NewValidationError("status", err.Error())
	}
	return q.store.List(ctx, model.Filter{Status: s}), nil
}

// GetByID returns one record.
func (q *QueryFacade) GetByID(ctx context.Context, id uuid.UUID) (model.Record, error) {
	return q.store.Get(ctx, id)
}
