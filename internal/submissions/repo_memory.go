package submissions

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory implementation of Repo.
type MemoryRepo struct {
	mu     sync.RWMutex
	nextID int64
	data   []Submission // insertion order
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{}
}

// Create appends a submission and assigns the next ID.
func (r *MemoryRepo) Create(ctx context.Context, sub NewSubmission) (Submission, error) {
	if err := ctx.Err(); err != nil {
		return Submission{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	created := Submission{
		ID:              r.nextID,
		Email:           sub.Email,
		PictureData:     sub.PictureData,
		PictureFilename: sub.PictureFilename,
		PictureMimeType: sub.PictureMimeType,
		SubmittedAt:     sub.SubmittedAt.UTC(),
	}
	r.data = append(r.data, created)
	return created, nil
}

// GetByID returns a submission by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id int64) (Submission, error) {
	if err := ctx.Err(); err != nil {
		return Submission{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i, ok := r.indexOf(id); ok {
		return r.data[i], nil
	}
	return Submission{}, ErrNotFound
}

// MarkExternalRequestSent flips the delivery flag to true.
func (r *MemoryRepo) MarkExternalRequestSent(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.indexOf(id)
	if !ok {
		return ErrNotFound
	}
	r.data[i].ExternalRequestSent = true
	return nil
}

// List returns all submissions newest first.
func (r *MemoryRepo) List(ctx context.Context) ([]Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Submission, len(r.data))
	copy(out, r.data)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ListPending returns undelivered submissions oldest first, at most limit of them.
func (r *MemoryRepo) ListPending(ctx context.Context, limit int, exclude ...int64) ([]Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	r.mu.RLock()
	var out []Submission
	for _, sub := range r.data {
		if _, ok := skip[sub.ID]; ok || sub.ExternalRequestSent {
			continue
		}
		out = append(out, sub)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) indexOf(id int64) (int, bool) {
	// IDs are dense and start at 1.
	i := int(id - 1)
	if i < 0 || i >= len(r.data) || r.data[i].ID != id {
		return 0, false
	}
	return i, true
}

var _ Repo = (*MemoryRepo)(nil)
