package submissions

import "context"

// Repo defines persistence operations for submissions.
type Repo interface {
	Create(ctx context.Context, sub NewSubmission) (Submission, error)
	GetByID(ctx context.Context, id int64) (Submission, error)
	// MarkExternalRequestSent sets external_request_sent to true. Repeating it is harmless.
	MarkExternalRequestSent(ctx context.Context, id int64) error
	// List returns every submission, newest first (submitted_at DESC, id DESC).
	List(ctx context.Context) ([]Submission, error)
	// ListPending returns undelivered submissions, oldest first, leaving out exclude.
	ListPending(ctx context.Context, limit int, exclude ...int64) ([]Submission, error)
}

// defaultPendingLimit caps ListPending when the caller passes no limit.
const defaultPendingLimit = 100
