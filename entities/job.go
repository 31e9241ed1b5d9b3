package entities

import (
	"time"

	"github.com/garystafford/product-video-generator-app/constant"
)

// VideoSettings mirror the options accepted by the generation service.
type VideoSettings struct {
	AspectRatio string `json:"aspect_ratio"`
	Duration    string `json:"duration"`
	Resolution  string `json:"resolution"`
	Loop        bool   `json:"loop"`
	Region      string `json:"region"`
}

// Job tracks one video generation request through its lifecycle. The id is
// assigned at creation and never changes; all later mutation goes through
// the repository so status and progress stay forward-only.
type Job struct {
	ID           string             `json:"job_id"`
	ProductName  string             `json:"product_name"`
	Prompt       string             `json:"prompt"`
	TargetBucket string             `json:"target_bucket"`
	Settings     VideoSettings      `json:"settings"`
	Status       constant.JobStatus `json:"status"`
	Progress     int                `json:"progress"`
	Message      string             `json:"message"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Error        string             `json:"error,omitempty"`

	// InvocationARN is the opaque handle returned by the generation
	// service once the request has been submitted.
	InvocationARN string `json:"invocation_arn,omitempty"`
	// OutputLocation is the remote location of the raw generated clip.
	OutputLocation string `json:"output_location,omitempty"`
	// VideoID is set once the catalog entry has been created.
	VideoID string `json:"video_id,omitempty"`
}
