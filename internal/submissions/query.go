package submissions

import (
	"context"
	"errors"
)

// Query reads stored submissions.
type Query struct {
	Repo Repo
}

// List returns every submission ordered by submitted_at DESC, id DESC.
func (q *Query) List(ctx context.Context) ([]Submission, error) {
	subs, err := q.Repo.List(ctx)
	if err != nil {
		return nil, storageError("list", err)
	}
	return subs, nil
}

// Get returns one submission or ErrNotFound.
func (q *Query) Get(ctx context.Context, id int64) (Submission, error) {
	sub, err := q.Repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Submission{}, ErrNotFound
	}
	if err != nil {
		return Submission{}, storageError("get", err)
	}
	return sub, nil
}
