package submissions

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Intake validates candidates and persists them.
type Intake struct {
	Repo     Repo
	Now      func() time.Time
	validate *validator.Validate
}

// NewIntake constructs an Intake backed by repo.
func NewIntake(repo Repo) *Intake {
	return &Intake{
		Repo:     repo,
		Now:      time.Now,
		validate: newValidator(),
	}
}

// Create validates candidate, stamps it with the current time and stores it.
// Fields are stored exactly as given. Validation failures return a *ValidationError
// and nothing is written.
func (i *Intake) Create(ctx context.Context, candidate Candidate) (Submission, error) {
	if err := i.Validate(candidate); err != nil {
		return Submission{}, err
	}

	now := time.Now
	if i.Now != nil {
		now = i.Now
	}
	sub := NewSubmission{
		Email:           candidate.Email,
		PictureData:     candidate.PictureData,
		PictureFilename: candidate.PictureFilename,
		PictureMimeType: candidate.PictureMimeType,
		// Postgres keeps microseconds; match it everywhere.
		SubmittedAt: now().UTC().Truncate(time.Microsecond),
	}

	created, err := i.Repo.Create(ctx, sub)
	if err != nil {
		return Submission{}, storageError("create", err)
	}
	return created, nil
}

// Validate checks candidate without touching the store.
func (i *Intake) Validate(candidate Candidate) error {
	v := i.validate
	if v == nil {
		v = newValidator()
	}
	err := v.Struct(candidate)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Fields: map[string]string{"submission": err.Error()}}
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = validationMessage(fe.Tag())
	}
	return &ValidationError{Fields: fields}
}

func validationMessage(tag string) string {
	switch tag {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "image_mime":
		return "must be an image MIME type"
	default:
		return "is invalid"
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("image_mime", func(fl validator.FieldLevel) bool {
		mime := fl.Field().String()
		return strings.HasPrefix(mime, "image/") && len(mime) > len("image/")
	})
	return v
}
