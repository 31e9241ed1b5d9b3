package dto

import "github.com/garystafford/product-video-generator-app/entities"

// GenerationRequest is the submission contract shared by the HTTP layer,
// the queue consumer, and batch mode.
type GenerationRequest struct {
	ProductName string                 `json:"product_name"`
	Prompt      string                 `json:"prompt"`
	S3Bucket    string                 `json:"s3_bucket"`
	Settings    entities.VideoSettings `json:"settings"`
}

// GenerationMessage is the queue form of a generation request.
type GenerationMessage struct {
	ProductName string                 `json:"productName"`
	Prompt      string                 `json:"prompt"`
	S3Bucket    string                 `json:"s3Bucket"`
	Settings    entities.VideoSettings `json:"settings"`
}

// JobStatusResponse is what polling clients see.
type JobStatusResponse struct {
	JobID       string `json:"job_id"`
	ProductName string `json:"product_name"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	VideoURL    string `json:"video_url,omitempty"`
	Error       string `json:"error,omitempty"`
}
