package entities

import "time"

// Video is a completed, downloadable product clip. The catalog keys entries
// by product name; a later job for the same product replaces the entry.
type Video struct {
	ID             string        `json:"video_id"`
	ProductName    string        `json:"product_name"`
	Prompt         string        `json:"prompt"`
	Settings       VideoSettings `json:"settings"`
	StartKeyframe  string        `json:"start_keyframe"`
	EndKeyframe    string        `json:"end_keyframe,omitempty"`
	OutputLocation string        `json:"output_location"`
	OriginalPath   string        `json:"original_path"`
	FinalPath      string        `json:"final_path"`
	RemoteURI      string        `json:"remote_uri,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}
