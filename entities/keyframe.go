package entities

import "time"

// Keyframe is the pair of still images anchoring a product's video. The end
// frame is optional; generation with only a start frame is valid.
type Keyframe struct {
	ProductName string    `json:"product_name"`
	StartFrame  string    `json:"start_frame"`
	EndFrame    string    `json:"end_frame,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
