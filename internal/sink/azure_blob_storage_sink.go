package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

type AzureBlobSink struct {
	account          string
	container        string
	prefix           string
	key              string
	connectionString string

	mu     sync.Mutex
	client *azblob.Client
}

func NewAzureBlobSink(opts map[string]interface{}) (Sink, error) {
	account := optString(opts, "account")
	container := optString(opts, "container")
	connStr := optString(opts, "connection_string")
	if container == "" || (account == "" && connStr == "") {
		return nil, fmt.Errorf("azureblob sink requires 'container' and 'account' or 'connection_string' options")
	}
	key := optString(opts, "key")
	if key == "" {
		key = os.Getenv("AZURE_STORAGE_KEY")
	}
	return &AzureBlobSink{
		account:          account,
		container:        container,
		prefix:           optString(opts, "prefix"),
		key:              key,
		connectionString: connStr,
	}, nil
}

func (a *AzureBlobSink) getClient() (*azblob.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	if a.connectionString != "" {
		client, err := azblob.NewClientFromConnectionString(a.connectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("azure blob client init error: %w", err)
		}
		a.client = client
		return client, nil
	}
	if a.key == "" {
		return nil, fmt.Errorf("azureblob sink: no storage key (set 'key' or AZURE_STORAGE_KEY)")
	}
	cred, err := azblob.NewSharedKeyCredential(a.account, a.key)
	if err != nil {
		return nil, fmt.Errorf("azure shared key credential error: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", a.account)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob client init error: %w", err)
	}
	a.client = client
	return client, nil
}

func (a *AzureBlobSink) Open(ctx context.Context, name string) (SinkWriter, error) {
	client, err := a.getClient()
	if err != nil {
		return nil, err
	}
	blobName := a.prefix + name
	return startUpload(func(r io.Reader) error {
		if _, err := client.UploadStream(ctx, a.container, blobName, r, nil); err != nil {
			return fmt.Errorf("azure upload %s: %w", blobName, err)
		}
		return nil
	}), nil
}

func (a *AzureBlobSink) List(ctx context.Context, prefix string) ([]string, error) {
	client, err := a.getClient()
	if err != nil {
		return nil, err
	}
	full := a.prefix + prefix
	pager := client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{Prefix: &full})
	var out []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure list %s: %w", full, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				out = append(out, strings.TrimPrefix(*item.Name, a.prefix))
			}
		}
	}
	return out, nil
}

func init() {
	Register("azureblob", NewAzureBlobSink)
}
