package photostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"taja/config"
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
)

// Store keeps photo blobs under object keys and resolves their public URLs.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// New returns the backend selected by cfg.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.PhotoBackend {
	case config.PhotoBackendGCS:
		return NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
	case config.PhotoBackendLocal, "":
		return NewLocalStore(cfg.MediaRoot, cfg.MediaURL)
	default:
		return nil, fmt.Errorf("unknown photo backend %q", cfg.PhotoBackend)
	}
}

// Photo is a validated upload held in memory.
type Photo struct {
	Data        []byte
	ContentType string
	Ext         string
}

func (p Photo) Size() int64 { return int64(len(p.Data)) }

// ReadPhoto reads an upload and accepts it only if its sniffed type is JPEG
// or PNG and it is no larger than maxBytes.
func ReadPhoto(r io.Reader, maxBytes int64) (Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return Photo{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return Photo{}, ErrTooLarge
	}

	p := Photo{Data: data, ContentType: http.DetectContentType(data)}
	switch p.ContentType {
	case "image/jpeg":
		p.Ext = ".jpg"
	case "image/png":
		p.Ext = ".png"
	default:
		return Photo{}, ErrUnsupportedType
	}
	return p, nil
}

// NewKey names a new photo of shopID: shop_photos/<shop_id>/<uuid><ext>.
func NewKey(shopID int64, ext string) string {
	return fmt.Sprintf("shop_photos/%d/%s%s", shopID, uuid.NewString(), ext)
}

// PutPhoto stores p under a fresh key for shopID and returns the key.
func PutPhoto(ctx context.Context, s Store, shopID int64, p Photo) (string, error) {
	key := NewKey(shopID, p.Ext)
	if err := s.Put(ctx, key, p.ContentType, bytes.NewReader(p.Data)); err != nil {
		return "", err
	}
	return key, nil
}
