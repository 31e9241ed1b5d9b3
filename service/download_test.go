package service

import (
	"errors"
	"testing"

	"github.com/garystafford/product-video-generator-app/pkg/apperr"
)

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{uri: "s3://my-bucket/product-videos/watch/out.mp4", wantBucket: "my-bucket", wantKey: "product-videos/watch/out.mp4"},
		{uri: "s3://my-bucket/product-videos/watch/20250101_120000/", wantBucket: "my-bucket", wantKey: "product-videos/watch/20250101_120000/"},
		{uri: "https://example.com/video.mp4", wantErr: true},
		{uri: "s3://", wantErr: true},
		{uri: "not a uri", wantErr: true},
	}

	for _, tt := range tests {
		bucket, key, err := parseS3URI(tt.uri)
		if tt.wantErr {
			if !errors.Is(err, &apperr.Error{Code: apperr.CodeDownload}) {
				t.Errorf("parseS3URI(%q): expected DOWNLOAD error, got %v", tt.uri, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseS3URI(%q): %v", tt.uri, err)
			continue
		}
		if bucket != tt.wantBucket || key != tt.wantKey {
			t.Errorf("parseS3URI(%q) = (%q, %q), want (%q, %q)", tt.uri, bucket, key, tt.wantBucket, tt.wantKey)
		}
	}
}
