package storage

import (
	"context"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/ironsheep/barcode-tools-mcp/internal/imaging"
)

// AzureScheme prefixes blob references: azblob://<container>/<blob path>.
const AzureScheme = "azblob"

// AzureFetcher downloads images from Azure Blob Storage.
type AzureFetcher struct {
	client   *azblob.Client
	MaxBytes int64
}

// NewAzureFetcher authenticates with a storage account shared key.
func NewAzureFetcher(accountName, accountKey string) (*AzureFetcher, error) {
	return NewAzureFetcherForService(fmt.Sprintf("https://%s.blob.core.windows.net/", accountName), accountName, accountKey)
}

// NewAzureFetcherForService is NewAzureFetcher against an explicit service
// URL, such as an Azurite emulator.
func NewAzureFetcherForService(serviceURL, accountName, accountKey string) (*AzureFetcher, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("invalid azure credentials: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure client: %w", err)
	}
	return &AzureFetcher{client: client, MaxBytes: DefaultMaxImageBytes}, nil
}

// Fetch downloads and decodes the blob named by ref.
func (a *AzureFetcher) Fetch(ctx context.Context, ref string) (image.Image, error) {
	container, blob, err := ParseBlobRef(ref)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	body := resp.Body
	defer body.Close()

	maxBytes := a.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	data, err := io.ReadAll(io.LimitReader(body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("blob exceeds %d bytes", maxBytes)
	}
	return imaging.DecodeBytes(data)
}

// ParseBlobRef splits "azblob://container/path/to/blob" into container and
// blob name.
func ParseBlobRef(ref string) (container, blob string, err error) {
	prefix := AzureScheme + "://"
	if !strings.HasPrefix(strings.ToLower(ref), prefix) {
		return "", "", fmt.Errorf("invalid blob reference %q: want %s<container>/<blob>", ref, prefix)
	}
	rest := ref[len(prefix):]
	container, blob, ok := strings.Cut(rest, "/")
	if !ok || container == "" || blob == "" {
		return "", "", fmt.Errorf("invalid blob reference %q: want %s<container>/<blob>", ref, prefix)
	}
	return container, blob, nil
}
