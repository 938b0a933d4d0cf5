package submissions

import "picture-backend/internal/delivery"

type submissionResponse struct {
	ID                  int64  `json:"id"`
	Email               string `json:"email"`
	PictureData         string `json:"picture_data,omitempty"`
	PictureFilename     string `json:"picture_filename"`
	PictureMimeType     string `json:"picture_mime_type"`
	SubmittedAt         string `json:"submitted_at"`
	Processed           bool   `json:"processed"`
	ExternalRequestSent bool   `json:"external_request_sent"`
}

type listResponse struct {
	Items []submissionResponse `json:"items"`
	Total int                  `json:"total"`
}

func toResponse(sub Submission, includePicture bool) submissionResponse {
	resp := submissionResponse{
		ID:                  sub.ID,
		Email:               sub.Email,
		PictureFilename:     sub.PictureFilename,
		PictureMimeType:     sub.PictureMimeType,
		SubmittedAt:         delivery.FormatTimestamp(sub.SubmittedAt),
		Processed:           sub.Processed,
		ExternalRequestSent: sub.ExternalRequestSent,
	}
	if includePicture {
		resp.PictureData = sub.PictureData
	}
	return resp
}
