package submissions

import (
	"time"

	"picture-backend/internal/delivery"
)

// Submission is one user's email and photo plus its delivery status.
type Submission struct {
	ID                  int64     `json:"id"`
	Email               string    `json:"email"`
	PictureData         string    `json:"picture_data"`
	PictureFilename     string    `json:"picture_filename"`
	PictureMimeType     string    `json:"picture_mime_type"`
	SubmittedAt         time.Time `json:"submitted_at"`
	Processed           bool      `json:"processed"`
	ExternalRequestSent bool      `json:"external_request_sent"`
}

// DeliveryRequest returns the view of s that the delivery service forwards.
func (s Submission) DeliveryRequest() delivery.Request {
	return delivery.Request{
		SubmissionID:    s.ID,
		Email:           s.Email,
		PictureData:     s.PictureData,
		PictureFilename: s.PictureFilename,
		PictureMimeType: s.PictureMimeType,
		SubmittedAt:     s.SubmittedAt,
	}
}

// Candidate is an incoming, not yet validated submission.
type Candidate struct {
	Email           string `json:"email" validate:"required,email"`
	PictureData     string `json:"picture_data" validate:"required"`
	PictureFilename string `json:"picture_filename" validate:"required"`
	PictureMimeType string `json:"picture_mime_type" validate:"required,image_mime"`
}

// NewSubmission is the row Intake asks the store to insert.
type NewSubmission struct {
	Email           string
	PictureData     string
	PictureFilename string
	PictureMimeType string
	SubmittedAt     time.Time
}

// SubmissionResponse is returned to the caller of the pipeline.
type SubmissionResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SubmissionID int64  `json:"submission_id"`
}
