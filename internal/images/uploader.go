package images

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/webclient"
)

// Uploader copies a vehicle's source images to durable storage and returns
// the hosted URLs in source order.
type Uploader interface {
	Upload(ctx context.Context, vehicleID string, urls []string) ([]string, error)
}

// LocalUploader downloads images through a WebClient into a BlobStore,
// at most MaxConcurrency at a time.
type LocalUploader struct {
	MaxConcurrency int

	client  webclient.WebClient
	blobs   *BlobStore
	baseURL string
	logger  logging.Logger
}

// NewLocalUploader returns an uploader that serves images under baseURL,
// e.g. "/images" or "https://cdn.example.com/images".
func NewLocalUploader(client webclient.WebClient, blobs *BlobStore, baseURL string, logger logging.Logger) *LocalUploader {
	return &LocalUploader{
		MaxConcurrency: 4,
		client:         client,
		blobs:          blobs,
		baseURL:        strings.TrimRight(baseURL, "/"),
		logger:         logger.With(logging.Field{Key: "component", Value: "images"}),
	}
}

// Upload stores every image it can. It returns the hosted URLs of the
// images that succeeded, in source order, and a joined error for the rest.
func (u *LocalUploader) Upload(ctx context.Context, vehicleID string, urls []string) ([]string, error) {
	limit := u.MaxConcurrency
	if limit <= 0 {
		limit = 1
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, limit)
	ids := make([]string, len(urls))
	errs := make([]error, len(urls))

	for i, src := range urls {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(i int, src string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			id, err := u.fetch(ctx, src)
			if err != nil {
				u.logger.Warn("image upload failed",
					logging.Field{Key: "vehicle_id", Value: vehicleID},
					logging.Field{Key: "url", Value: src},
					logging.Field{Key: "error", Value: err})
				errs[i] = fmt.Errorf("%s: %w", src, err)
				return
			}
			ids[i] = id
		}(i, src)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return collect(u.baseURL, ids), err
	}

	hosted := collect(u.baseURL, ids)
	err := errors.Join(errs...)
	u.logger.Debug("images uploaded",
		logging.Field{Key: "vehicle_id", Value: vehicleID},
		logging.Field{Key: "hosted", Value: len(hosted)},
		logging.Field{Key: "failed", Value: len(urls) - len(hosted)})
	return hosted, err
}

func collect(baseURL string, ids []string) []string {
	hosted := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			hosted = append(hosted, baseURL+"/"+RelPath(id))
		}
	}
	return hosted
}

func (u *LocalUploader) fetch(ctx context.Context, src string) (string, error) {
	resp, err := u.client.Get(ctx, src)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	if len(resp.Body) == 0 {
		return "", errors.New("empty body")
	}
	if ct := http.DetectContentType(resp.Body); !strings.HasPrefix(ct, "image/") {
		return "", fmt.Errorf("not an image: %s", ct)
	}
	return u.blobs.Put(resp.Body)
}
