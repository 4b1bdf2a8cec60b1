// Package storage fetches images referenced by URL: HTTP(S) downloads,
// Azure Blob Storage objects and local files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"strings"

	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
)

// ErrUnsupportedScheme is returned for references no fetcher handles.
var ErrUnsupportedScheme = errors.New("unsupported image reference scheme")

// Fetcher loads and decodes a referenced image.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (image.Image, error)
}

// Router dispatches a reference to the fetcher registered for its scheme.
// References without a scheme, or with "file", are read from disk through
// Files.
type Router struct {
	HTTP  Fetcher
	Azure Fetcher
	Files *imaging.ImageCache
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, ref string) (image.Image, error) {
	scheme, rest := splitScheme(ref)
	switch scheme {
	case "http", "https":
		if r.HTTP == nil {
			return nil, fmt.Errorf("%w: %s (HTTP fetching disabled)", ErrUnsupportedScheme, scheme)
		}
		return r.HTTP.Fetch(ctx, ref)
	case AzureScheme:
		if r.Azure == nil {
			return nil, fmt.Errorf("%w: %s (Azure credentials not configured)", ErrUnsupportedScheme, scheme)
		}
		return r.Azure.Fetch(ctx, ref)
	case "", "file":
		if r.Files == nil {
			return nil, fmt.Errorf("%w: local files disabled", ErrUnsupportedScheme)
		}
		return r.Files.Load(rest)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
}

// Release drops a local reference from the file cache once its caller is
// done with the image. Remote references are never cached.
func (r *Router) Release(ref string) {
	scheme, rest := splitScheme(ref)
	if (scheme == "" || scheme == "file") && r.Files != nil {
		r.Files.Evict(rest)
	}
}

// IsRemote reports whether ref names something other than a local file.
func IsRemote(ref string) bool {
	scheme, _ := splitScheme(ref)
	return scheme != "" && scheme != "file"
}

// splitScheme returns the lower-cased scheme of ref and, for local files,
// the path. Windows drive letters ("C:\...") are treated as paths.
func splitScheme(ref string) (string, string) {
	i := strings.Index(ref, "://")
	if i <= 1 {
		return "", ref
	}
	scheme := strings.ToLower(ref[:i])
	if scheme == "file" {
		u, err := url.Parse(ref)
		if err == nil {
			return scheme, u.Path
		}
		return scheme, ref[i+3:]
	}
	return scheme, ref
}
