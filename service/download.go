package service

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"

	"github.com/garystafford/product-video-generator-app/pkg/apperr"
)

// Downloader moves the generated artifact between blob storage and the
// local working directory.
type Downloader interface {
	// Fetch downloads the clip at outputLocation (an s3:// uri, possibly a
	// prefix) to destPath. The file appears under destPath only once it is
	// fully written.
	Fetch(ctx context.Context, outputLocation, destPath string) error
	// Upload copies a local file to the bucket and returns its uri.
	Upload(ctx context.Context, localPath, bucket, key string) (string, error)
}

type downloader struct {
	storage *minio.Client
}

func NewDownloader(storage *minio.Client) Downloader {
	return &downloader{storage: storage}
}

func (d *downloader) Fetch(ctx context.Context, outputLocation, destPath string) error {
	bucket, key, err := parseS3URI(outputLocation)
	if err != nil {
		return err
	}

	// The generation service writes into a prefix; resolve it to the
	// actual object when the uri does not point at a file directly.
	if !strings.HasSuffix(key, ".mp4") {
		key, err = d.findVideoObject(ctx, bucket, key)
		if err != nil {
			return err
		}
	}

	zerolog.Ctx(ctx).Info().Str("bucket", bucket).Str("key", key).Str("dest", destPath).Msg("downloading generated video")

	partPath := destPath + ".part"
	if err := d.storage.FGetObject(ctx, bucket, key, partPath, minio.GetObjectOptions{}); err != nil {
		os.Remove(partPath)
		return apperr.Wrap(err, apperr.CodeDownload, "failed to download generated video")
	}
	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return apperr.Wrap(err, apperr.CodeDownload, "failed to finalize downloaded video")
	}
	return nil
}

func (d *downloader) Upload(ctx context.Context, localPath, bucket, key string) (string, error) {
	_, err := d.storage.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "video/mp4",
	})
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeStorage, "failed to upload final video")
	}
	return fmt.Sprintf("s3://%s/%s", bucket, key), nil
}

func (d *downloader) findVideoObject(ctx context.Context, bucket, prefix string) (string, error) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	for object := range d.storage.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return "", apperr.Wrap(object.Err, apperr.CodeDownload, "failed to list generated output")
		}
		if strings.HasSuffix(object.Key, ".mp4") {
			return object.Key, nil
		}
	}
	return "", apperr.Newf(apperr.CodeDownload, "no video found at prefix: %s", prefix)
}

func parseS3URI(uri string) (bucket, key string, err error) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme != "s3" || parsed.Host == "" {
		return "", "", apperr.Newf(apperr.CodeDownload, "invalid output location: %s", uri)
	}
	return parsed.Host, strings.TrimPrefix(parsed.Path, "/"), nil
}
