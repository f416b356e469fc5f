package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// GatewayClient talks to the message gateway over HTTP. The gateway wraps
// the actual messaging protocol; this client only sees channels, messages,
// and opaque media refs.
type GatewayClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type GatewayClientOptions struct {
	BaseURL string
	Token   string
}

func NewGatewayClient(opts GatewayClientOptions) *GatewayClient {
	return &GatewayClient{
		baseURL: opts.BaseURL,
		token:   opts.Token,
		// Per-call deadlines come from the caller's context; this is a
		// backstop for calls made without one.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

type gatewayMessage struct {
	ID    int64  `json:"id"`
	Date  int64  `json:"date"`
	Text  string `json:"text"`
	Media *struct {
		Type      string `json:"type"`
		Ref       string `json:"ref"`
		Filename  string `json:"filename"`
		MimeType  string `json:"mime_type"`
		SizeBytes int64  `json:"size_bytes"`
	} `json:"media"`
}

func (c *GatewayClient) ListMessages(ctx context.Context, channelID string, limit int, offsetID int64) ([]Message, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if offsetID > 0 {
		query.Set("offset_id", strconv.FormatInt(offsetID, 10))
	}
	endpoint := fmt.Sprintf("%s/channels/%s/messages?%s", c.baseURL, url.PathEscape(channelID), query.Encode())

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	raw := []gatewayMessage{}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, errors.WithStack(err)
	}

	messages := make([]Message, 0, len(raw))
	for _, rm := range raw {
		msg := Message{
			ID:   rm.ID,
			Date: time.Unix(rm.Date, 0).UTC(),
			Text: rm.Text,
		}
		if rm.Media != nil {
			msg.Media = &Media{
				Kind:      classifyMedia(rm.Media.Type, rm.Media.MimeType),
				Ref:       rm.Media.Ref,
				Filename:  rm.Media.Filename,
				MimeType:  rm.Media.MimeType,
				SizeBytes: rm.Media.SizeBytes,
			}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (c *GatewayClient) DownloadMedia(ctx context.Context, ref string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/media/%s", c.baseURL, url.PathEscape(ref))

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

func (c *GatewayClient) get(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, errors.Errorf("gateway returned status %d for %s", resp.StatusCode, endpoint)
	}
	return resp.Body, nil
}
