package submissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"picture-backend/internal/shared/storage/db"
)

const submissionsTable = "user_submissions"

// sqliteTimeLayout is fixed-width so that lexical order matches time order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

var submissionColumns = []string{
	"id",
	"email",
	"picture_data",
	"picture_filename",
	"picture_mime_type",
	"submitted_at",
	"processed",
	"external_request_sent",
}

// SQLRepo implements Repo on database/sql for Postgres and SQLite.
type SQLRepo struct {
	DB      *sql.DB
	Dialect db.Dialect
	sb      sq.StatementBuilderType
}

// NewSQLRepo constructs a SQLRepo for the given dialect.
func NewSQLRepo(sqlDB *sql.DB, dialect db.Dialect) *SQLRepo {
	format := sq.PlaceholderFormat(sq.Dollar)
	if dialect == db.DialectSQLite {
		format = sq.Question
	}
	return &SQLRepo{
		DB:      sqlDB,
		Dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Create inserts a submission and returns the stored row.
func (r *SQLRepo) Create(ctx context.Context, sub NewSubmission) (Submission, error) {
	q := r.sb.
		Insert(submissionsTable).
		Columns("email", "picture_data", "picture_filename", "picture_mime_type", "submitted_at").
		Values(sub.Email, sub.PictureData, sub.PictureFilename, sub.PictureMimeType, r.timeArg(sub.SubmittedAt)).
		Suffix("RETURNING id, processed, external_request_sent")

	query, args, err := q.ToSql()
	if err != nil {
		return Submission{}, fmt.Errorf("build submission insert: %w", err)
	}

	created := Submission{
		Email:           sub.Email,
		PictureData:     sub.PictureData,
		PictureFilename: sub.PictureFilename,
		PictureMimeType: sub.PictureMimeType,
		SubmittedAt:     sub.SubmittedAt.UTC(),
	}
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&created.ID, &created.Processed, &created.ExternalRequestSent); err != nil {
		return Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	return created, nil
}

// GetByID returns a submission by ID.
func (r *SQLRepo) GetByID(ctx context.Context, id int64) (Submission, error) {
	query, args, err := r.sb.
		Select(submissionColumns...).
		From(submissionsTable).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return Submission{}, fmt.Errorf("build submission select: %w", err)
	}

	sub, err := scanSubmission(r.DB.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, ErrNotFound
	}
	if err != nil {
		return Submission{}, fmt.Errorf("select submission %d: %w", id, err)
	}
	return sub, nil
}

// MarkExternalRequestSent sets external_request_sent for the given ID.
func (r *SQLRepo) MarkExternalRequestSent(ctx context.Context, id int64) error {
	query, args, err := r.sb.
		Update(submissionsTable).
		Set("external_request_sent", true).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build submission update: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark submission %d sent: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark submission %d sent: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all submissions ordered newest first.
func (r *SQLRepo) List(ctx context.Context) ([]Submission, error) {
	q := r.sb.
		Select(submissionColumns...).
		From(submissionsTable).
		OrderBy("submitted_at DESC", "id DESC")
	return r.query(ctx, q, "list submissions")
}

// ListPending returns undelivered submissions oldest first.
func (r *SQLRepo) ListPending(ctx context.Context, limit int, exclude ...int64) ([]Submission, error) {
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	q := r.sb.
		Select(submissionColumns...).
		From(submissionsTable).
		Where(sq.Eq{"external_request_sent": false})
	if len(exclude) > 0 {
		q = q.Where(sq.NotEq{"id": exclude})
	}
	q = q.OrderBy("submitted_at ASC", "id ASC").
		Limit(uint64(limit))
	return r.query(ctx, q, "list pending submissions")
}

func (r *SQLRepo) query(ctx context.Context, q sq.SelectBuilder, op string) ([]Submission, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", op, err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (r *SQLRepo) timeArg(t time.Time) any {
	if r.Dialect == db.DialectSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (Submission, error) {
	var (
		sub         Submission
		submittedAt timestamp
	)
	if err := row.Scan(
		&sub.ID,
		&sub.Email,
		&sub.PictureData,
		&sub.PictureFilename,
		&sub.PictureMimeType,
		&submittedAt,
		&sub.Processed,
		&sub.ExternalRequestSent,
	); err != nil {
		return Submission{}, err
	}
	sub.SubmittedAt = time.Time(submittedAt)
	return sub, nil
}

// timestamp scans a column that may come back as time.Time or as text.
type timestamp time.Time

var timestampLayouts = []string{
	sqliteTimeLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
}

func (ts *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*ts = timestamp(v.UTC())
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	case nil:
		return errors.New("submitted_at is null")
	default:
		return fmt.Errorf("unsupported submitted_at type %T", src)
	}
}

func (ts *timestamp) parse(s string) error {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*ts = timestamp(t.UTC())
			return nil
		}
	}
	return fmt.Errorf("parse submitted_at %q", s)
}

var _ Repo = (*SQLRepo)(nil)
