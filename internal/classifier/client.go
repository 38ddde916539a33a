// Package classifier submits cough audio to the external TB classification
// service. The service answers asynchronously through the detection
// callback endpoint, so a submission carries the record id it should
// report back for.
package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"github.com/swarahealth/coughwatch-go/internal/errors"
	"github.com/swarahealth/coughwatch-go/internal/logging"
)

const (
	// DefaultTimeout bounds a single submission round trip.
	DefaultTimeout = 30 * time.Second

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultDialTimeout         = 30 * time.Second
	defaultDialKeepAlive       = 30 * time.Second

	defaultUserAgent = "CoughWatch-Go"

	// multipart field names expected by the classification service
	fieldAudio    = "audio"
	fieldName     = "name"
	fieldRecordID = "record_id"
)

// Config holds configuration for the classifier client.
type Config struct {
	// Endpoint is the URL of the external classification service.
	Endpoint string

	// Timeout bounds each submission (default 30s).
	Timeout time.Duration

	// UserAgent overrides the default User-Agent header.
	UserAgent string
}

// Client is an HTTP client for the external classification service with
// connection pooling and a bounded per-request timeout. Thread-safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
	logger     *slog.Logger
}

// NewClient creates a classifier client from the given configuration.
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, errors.Newf("classifier endpoint not configured").
			Component("classifier").
			Category(errors.CategoryConfiguration).
			Build()
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultDialKeepAlive,
		}).DialContext,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		endpoint:  config.Endpoint,
		userAgent: userAgent,
		logger:    logging.ForService("classifier"),
	}, nil
}

// Submission identifies one audio blob to classify.
type Submission struct {
	RecordID      string    // cough event id the service reports back for
	SubmitterName string    // display name of the submitting user or device
	Filename      string    // original filename, carried for its extension
	Audio         io.Reader // audio payload
}

// Submit posts the audio and its metadata as multipart form data. A non-2xx
// response is an error; the caller decides whether to surface it.
func (c *Client) Submit(ctx context.Context, sub Submission) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile(fieldAudio, sub.Filename)
	if err != nil {
		return errors.New(err).
			Component("classifier").
			Category(errors.CategoryNetwork).
			Context("operation", "build_multipart").
			Build()
	}
	if _, err := io.Copy(part, sub.Audio); err != nil {
		return errors.New(err).
			Component("classifier").
			Category(errors.CategoryFileIO).
			Context("operation", "read_audio").
			Build()
	}
	if err := writer.WriteField(fieldName, sub.SubmitterName); err != nil {
		return errors.New(err).Component("classifier").Category(errors.CategoryNetwork).Build()
	}
	if err := writer.WriteField(fieldRecordID, sub.RecordID); err != nil {
		return errors.New(err).Component("classifier").Category(errors.CategoryNetwork).Build()
	}
	if err := writer.Close(); err != nil {
		return errors.New(err).Component("classifier").Category(errors.CategoryNetwork).Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return errors.New(err).
			Component("classifier").
			Category(errors.CategoryNetwork).
			Context("endpoint", c.endpoint).
			Build()
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.New(err).
			Component("classifier").
			Category(errors.CategoryNetwork).
			Context("record_id", sub.RecordID).
			Build()
	}
	defer func() {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.New(fmt.Errorf("classifier returned status %d", resp.StatusCode)).
			Component("classifier").
			Category(errors.CategoryHTTP).
			Context("record_id", sub.RecordID).
			Context("status_code", resp.StatusCode).
			Build()
	}

	c.logger.Debug("submission accepted by classifier",
		"record_id", sub.RecordID,
		"status_code", resp.StatusCode)
	return nil
}
