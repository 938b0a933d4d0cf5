package submissions

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingRepo struct {
	Repo
	err error
}

func (f failingRepo) Create(ctx context.Context, sub NewSubmission) (Submission, error) {
	return Submission{}, f.err
}

func TestIntakeCreateStoresFieldsVerbatim(t *testing.T) {
	repo := NewMemoryRepo()
	intake := NewIntake(repo)

	before := time.Now().UTC()
	sub, err := intake.Create(context.Background(), validCandidate())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.ID <= 0 {
		t.Fatalf("expected positive id, got %d", sub.ID)
	}
	c := validCandidate()
	if sub.Email != c.Email || sub.PictureData != c.PictureData ||
		sub.PictureFilename != c.PictureFilename || sub.PictureMimeType != c.PictureMimeType {
		t.Fatalf("fields differ from input: %+v", sub)
	}
	if sub.Processed || sub.ExternalRequestSent {
		t.Fatalf("flags must start false: %+v", sub)
	}
	if d := sub.SubmittedAt.Sub(before); d < -time.Millisecond || d > 5*time.Second {
		t.Fatalf("submitted_at %s not near call time %s", sub.SubmittedAt, before)
	}
}

func TestIntakeCreateUsesClock(t *testing.T) {
	intake := NewIntake(NewMemoryRepo())
	intake.Now = func() time.Time { return time.Date(2026, 10, 18, 11, 0, 0, 123456789, time.FixedZone("CEST", 2*3600)) }

	sub, err := intake.Create(context.Background(), validCandidate())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := time.Date(2026, 10, 18, 9, 0, 0, 123456000, time.UTC)
	if !sub.SubmittedAt.Equal(want) || sub.SubmittedAt.Location() != time.UTC {
		t.Fatalf("submitted_at = %v, want %v", sub.SubmittedAt, want)
	}
}

func TestIntakeValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Candidate)
		field  string
		msg    string
	}{
		{name: "missing email", mutate: func(c *Candidate) { c.Email = "" }, field: "email", msg: "is required"},
		{name: "blank email", mutate: func(c *Candidate) { c.Email = "   " }, field: "email", msg: "must be a valid email address"},
		{name: "padded email", mutate: func(c *Candidate) { c.Email = " test@example.com " }, field: "email", msg: "must be a valid email address"},
		{name: "uppercase mime", mutate: func(c *Candidate) { c.PictureMimeType = "IMAGE/PNG" }, field: "picture_mime_type", msg: "must be an image MIME type"},
		{name: "bad email", mutate: func(c *Candidate) { c.Email = "not-an-email" }, field: "email", msg: "must be a valid email address"},
		{name: "missing picture", mutate: func(c *Candidate) { c.PictureData = "" }, field: "picture_data", msg: "is required"},
		{name: "missing filename", mutate: func(c *Candidate) { c.PictureFilename = "" }, field: "picture_filename", msg: "is required"},
		{name: "missing mime", mutate: func(c *Candidate) { c.PictureMimeType = "" }, field: "picture_mime_type", msg: "is required"},
		{name: "non-image mime", mutate: func(c *Candidate) { c.PictureMimeType = "application/pdf" }, field: "picture_mime_type", msg: "must be an image MIME type"},
		{name: "bare image prefix", mutate: func(c *Candidate) { c.PictureMimeType = "image/" }, field: "picture_mime_type", msg: "must be an image MIME type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewMemoryRepo()
			c := validCandidate()
			tt.mutate(&c)

			_, err := NewIntake(repo).Create(context.Background(), c)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if got := verr.Fields[tt.field]; got != tt.msg {
				t.Fatalf("field %s: got %q, want %q (all: %v)", tt.field, got, tt.msg, verr.Fields)
			}

			rows, _ := repo.List(context.Background())
			if len(rows) != 0 {
				t.Fatalf("no row may be written on validation failure, got %d", len(rows))
			}
		})
	}
}

func TestIntakeDoesNotRewriteFields(t *testing.T) {
	c := validCandidate()
	c.PictureFilename = " photo 1.PNG "
	c.PictureMimeType = "image/PNG"
	sub, err := NewIntake(NewMemoryRepo()).Create(context.Background(), c)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.PictureFilename != c.PictureFilename || sub.PictureMimeType != c.PictureMimeType {
		t.Fatalf("expected fields stored as given, got filename=%q mime=%q", sub.PictureFilename, sub.PictureMimeType)
	}
}

func TestIntakeWrapsStorageErrors(t *testing.T) {
	cause := errors.New("disk full")
	_, err := NewIntake(failingRepo{err: cause}).Create(context.Background(), validCandidate())
	if !errors.Is(err, ErrStorage) || !errors.Is(err, cause) {
		t.Fatalf("expected storage error wrapping cause, got %v", err)
	}
	var serr *StorageError
	if !errors.As(err, &serr) || serr.Op != "create" {
		t.Fatalf("expected *StorageError for create, got %#v", err)
	}
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"picture_data": "is required", "email": "is required"}}
	want := "invalid submission: email is required; picture_data is required"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}
