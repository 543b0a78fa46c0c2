package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/tendant/simple-doc-converter/internal/sasurl"
)

// AzureOptions tunes the shared transport. Zero values pick the defaults
// below.
type AzureOptions struct {
	PoolSize   int           // max connections per host
	MaxRetries int           // transport-level retries per request
	TryTimeout time.Duration // per-attempt deadline
}

// Azure is the production Store backed by Azure Blob Storage with SAS
// authentication. Clients are created lazily, one per endpoint+token, and
// shared across goroutines; the SDK client is safe for concurrent use.
type Azure struct {
	opts      AzureOptions
	transport *http.Client

	mu      sync.RWMutex
	clients map[string]*azblob.Client
}

func NewAzure(opts AzureOptions) *Azure {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.TryTimeout <= 0 {
		opts.TryTimeout = 30 * time.Second
	}
	return &Azure{
		opts: opts,
		transport: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        opts.PoolSize,
				MaxIdleConnsPerHost: opts.PoolSize,
				MaxConnsPerHost:     opts.PoolSize,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		clients: make(map[string]*azblob.Client),
	}
}

func (a *Azure) client(loc sasurl.Location) (*azblob.Client, error) {
	key := loc.Endpoint + "?" + loc.SAS

	a.mu.RLock()
	c, ok := a.clients[key]
	a.mu.RUnlock()
	if ok {
		return c, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.clients[key]; ok {
		return c, nil
	}

	serviceURL := loc.Endpoint + "/"
	if loc.SAS != "" {
		serviceURL += "?" + loc.SAS
	}
	c, err := azblob.NewClientWithNoCredential(serviceURL, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries: int32(a.opts.MaxRetries),
				TryTimeout: a.opts.TryTimeout,
			},
			Transport: a.transport,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build blob client for %s: %w", loc.Redacted(), err)
	}
	a.clients[key] = c
	return c, nil
}

func (a *Azure) List(ctx context.Context, loc sasurl.Location, folder string) ([]ObjectInfo, error) {
	c, err := a.client(loc)
	if err != nil {
		return nil, err
	}

	prefix := loc.FolderPath(folder) + "/"
	pager := c.NewListBlobsFlatPager(loc.Container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(prefix),
	})

	var objs []ObjectInfo
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, classify("list "+folder, err)
		}
		for _, b := range page.Segment.BlobItems {
			if b.Name == nil {
				continue
			}
			name := strings.TrimPrefix(*b.Name, prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			var size int64
			if b.Properties != nil && b.Properties.ContentLength != nil {
				size = *b.Properties.ContentLength
			}
			objs = append(objs, ObjectInfo{Name: name, Size: size})
		}
	}
	return objs, nil
}

func (a *Azure) Download(ctx context.Context, loc sasurl.Location, folder, name string) ([]byte, error) {
	c, err := a.client(loc)
	if err != nil {
		return nil, err
	}

	op := "download " + folder + "/" + name
	resp, err := c.DownloadStream(ctx, loc.Container, loc.BlobPath(folder, name), nil)
	if err != nil {
		return nil, classify(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: op, Err: err}
	}
	return data, nil
}

func (a *Azure) Upload(ctx context.Context, loc sasurl.Location, folder, name string, data []byte) error {
	c, err := a.client(loc)
	if err != nil {
		return err
	}
	if _, err := c.UploadBuffer(ctx, loc.Container, loc.BlobPath(folder, name), data, nil); err != nil {
		return classify("upload "+folder+"/"+name, err)
	}
	return nil
}

func (a *Azure) Delete(ctx context.Context, loc sasurl.Location, folder, name string) error {
	c, err := a.client(loc)
	if err != nil {
		return err
	}
	if _, err := c.DeleteBlob(ctx, loc.Container, loc.BlobPath(folder, name), nil); err != nil {
		return classify("delete "+folder+"/"+name, err)
	}
	return nil
}

// classify maps service errors onto the package's error model: missing blobs
// become ErrNotFound, throttling and server faults become TransientError,
// everything else is wrapped as-is.
func classify(op string, err error) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == http.StatusTooManyRequests || respErr.StatusCode >= 500 {
			return &TransientError{Op: op, Err: err}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
