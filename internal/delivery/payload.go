package delivery

import "time"

// isoLayout matches JavaScript's Date.toISOString output.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Request is what Deliver needs to know about a stored submission.
type Request struct {
	SubmissionID    int64
	Email           string
	PictureData     string
	PictureFilename string
	PictureMimeType string
	SubmittedAt     time.Time
}

// Payload is the flat JSON body posted to the external endpoint.
type Payload struct {
	Email           string `json:"email"`
	PictureData     string `json:"picture_data"`
	PictureFilename string `json:"picture_filename"`
	PictureMimeType string `json:"picture_mime_type"`
	SubmittedAt     string `json:"submitted_at"`
}

// NewPayload builds the outbound body for a request.
func NewPayload(req Request) Payload {
	return Payload{
		Email:           req.Email,
		PictureData:     req.PictureData,
		PictureFilename: req.PictureFilename,
		PictureMimeType: req.PictureMimeType,
		SubmittedAt:     FormatTimestamp(req.SubmittedAt),
	}
}

// FormatTimestamp renders t as an ISO-8601 UTC timestamp with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(isoLayout)
}
