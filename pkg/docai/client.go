package docai

import (
	"context"
	"fmt"
	"os"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
)

// Config identifies the Document AI processor to call.
type Config struct {
	ProjectID   string `yaml:"project_id"`
	Location    string `yaml:"location"`
	ProcessorID string `yaml:"processor_id"`
}

// Validate checks that the processor is fully identified.
func (c Config) Validate() error {
	if c.ProjectID == "" || c.Location == "" || c.ProcessorID == "" {
		return fmt.Errorf("project_id, location and processor_id are all required")
	}
	return nil
}

func (c Config) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		c.ProjectID, c.Location, c.ProcessorID)
}

// Client wraps a Document AI processor client bound to one processor.
type Client struct {
	cfg   Config
	inner *documentai.DocumentProcessorClient
}

// NewClient connects to the regional Document AI endpoint. Extra options
// are passed through, so tests and alternative credential setups can
// override the defaults.
func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	clientOpts := []option.ClientOption{option.WithEndpoint(endpoint)}
	if creds := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); creds != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(creds))
	}
	clientOpts = append(clientOpts, opts...)

	inner, err := documentai.NewDocumentProcessorClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating Document AI client: %w", err)
	}
	return &Client{cfg: cfg, inner: inner}, nil
}

// Process sends raw document bytes to the processor and returns the
// Document proto from the response.
func (c *Client) Process(ctx context.Context, data []byte, mimeType string) (*documentaipb.Document, error) {
	req := &documentaipb.ProcessRequest{
		Name: c.cfg.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
		SkipHumanReview: true,
	}
	resp, err := c.inner.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("processing document: %w", err)
	}
	return resp.Document, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.inner.Close()
}
