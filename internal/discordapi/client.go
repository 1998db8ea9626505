// Package discordapi implements the MessageStore capability against the
// Discord REST API.
package discordapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/soapboxlabs/soapbox/internal/suggestions"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://discord.com/api/v10"

var errMissingBotToken = errors.New("discordapi: bot token is required")

// ClientConfig configures the REST client.
type ClientConfig struct {
	BotToken   string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the Discord channel message routes. It maps HTTP 404 to
// suggestions.ErrArtifactNotFound and every other failure to
// suggestions.ErrTransport, which the engine treats as caller-retryable.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a Client with sane defaults.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BotToken == "" {
		return nil, errMissingBotToken
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		token:      cfg.BotToken,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type messageReference struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// Create posts a new message and returns its reference.
func (c *Client) Create(ctx context.Context, channelID string, content suggestions.RenderedContent) (suggestions.ArtifactRef, error) {
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	body, err := c.do(ctx, http.MethodPost, path, content)
	if err != nil {
		return suggestions.ArtifactRef{}, err
	}

	var reference messageReference
	if err := json.Unmarshal(body, &reference); err != nil {
		return suggestions.ArtifactRef{}, fmt.Errorf("%w: decode create response: %v", suggestions.ErrTransport, err)
	}
	return suggestions.ArtifactRef{ChannelID: reference.ChannelID, MessageID: reference.ID}, nil
}

// Update edits an existing message in place.
func (c *Client) Update(ctx context.Context, ref suggestions.ArtifactRef, content suggestions.RenderedContent) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(ref.ChannelID), url.PathEscape(ref.MessageID))
	_, err := c.do(ctx, http.MethodPatch, path, content)
	return err
}

// Fetch returns the current message payload.
func (c *Client) Fetch(ctx context.Context, ref suggestions.ArtifactRef) (suggestions.RenderedContent, error) {
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(ref.ChannelID), url.PathEscape(ref.MessageID))
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return suggestions.RenderedContent(body), nil
}

// React adds the bot's reaction to a message.
func (c *Client) React(ctx context.Context, ref suggestions.ArtifactRef, emoji string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s/reactions/%s/@me",
		url.PathEscape(ref.ChannelID), url.PathEscape(ref.MessageID), url.PathEscape(emoji))
	_, err := c.do(ctx, http.MethodPut, path, nil)
	return err
}

// StartThread starts a thread anchored to a message.
func (c *Client) StartThread(ctx context.Context, ref suggestions.ArtifactRef, name string) error {
	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("%w: encode thread request: %v", suggestions.ErrTransport, err)
	}
	path := fmt.Sprintf("/channels/%s/messages/%s/threads", url.PathEscape(ref.ChannelID), url.PathEscape(ref.MessageID))
	_, err = c.do(ctx, http.MethodPost, path, payload)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", suggestions.ErrTransport, err)
	}
	request.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", suggestions.ErrTransport, method, path, err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", suggestions.ErrTransport, err)
	}

	switch {
	case response.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s", suggestions.ErrArtifactNotFound, method, path)
	case response.StatusCode >= 300:
		c.logger.Warn("discord request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", response.StatusCode))
		return nil, fmt.Errorf("%w: %s %s: status %d", suggestions.ErrTransport, method, path, response.StatusCode)
	}
	return payload, nil
}
