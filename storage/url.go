package storage

import (
	"context"
	"fmt"
	"net/url"

	"google.golang.org/api/option"
)

// Dial opens the store named by rawURL: file:///dir, mem:// or gs://bucket/prefix.
// opts are only used for gs.
func Dial(ctx context.Context, rawURL string, opts ...option.ClientOption) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing store url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "file", "":
		return NewOSStore(u.Path), nil
	case "mem":
		return NewMemStore(), nil
	case "gs":
		if u.Host == "" {
			return nil, fmt.Errorf("store url %q: missing bucket", rawURL)
		}
		return NewGCSStore(ctx, u.Host, u.Path, opts...)
	default:
		return nil, fmt.Errorf("store url %q: unsupported scheme %q", rawURL, u.Scheme)
	}
}
