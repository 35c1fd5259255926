package google

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/boblangley/meeting-optimizer/internal/document"
	"github.com/boblangley/meeting-optimizer/internal/types"
)

// DefaultDocsEndpoint is the Docs API base URL.
const DefaultDocsEndpoint = "https://docs.googleapis.com/"

// DocsConfig configures a DocsClient.
type DocsConfig struct {
	HTTPClient *http.Client
	Endpoint   string
	Retrier    *Retrier
	Logger     *slog.Logger
}

// DocsClient reads Google Docs documents as Blocks.
type DocsClient struct {
	http     *http.Client
	endpoint string
	retry    *Retrier
	logger   *slog.Logger
}

// NewDocsClient creates a Docs client.
func NewDocsClient(cfg DocsConfig) *DocsClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := cfg.Retrier
	if retry == nil {
		retry = NewRetrier(RetryConfig{Logger: logger})
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultDocsEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &DocsClient{http: client, endpoint: endpoint, retry: retry, logger: logger}
}

// FetchDocument downloads a document and normalizes it into Blocks.
func (d *DocsClient) FetchDocument(ctx context.Context, id string) ([]types.Block, error) {
	u := d.endpoint + "v1/documents/" + url.PathEscape(id)

	var body []byte
	err := d.retry.Do(ctx, "documents.get", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := d.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if err := googleapi.CheckResponse(resp); err != nil {
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}

	blocks := document.ParseDocsJSON(body)
	d.logger.Debug("fetched document", "id", id, "blocks", len(blocks))
	return blocks, nil
}
