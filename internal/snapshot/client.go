// Package snapshot talks to the snapshot hub that collects signed off-chain votes.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
)

const (
	messageVersion  = "0.1.3"
	messageTypeVote = "vote"
	messagePath     = "/api/message"

	defaultRequestTimeout = 15 * time.Second
	maxErrorBodyBytes     = 4096
)

// Config configures the hub client.
type Config struct {
	HubURL     string
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client implements governance.SnapshotClient over the hub HTTP API.
type Client struct {
	messageURL string
	httpClient *http.Client
	now        func() time.Time
}

type voteMessage struct {
	Version   string      `json:"version"`
	Timestamp string      `json:"timestamp"`
	Space     string      `json:"space"`
	Type      string      `json:"type"`
	Payload   votePayload `json:"payload"`
}

type votePayload struct {
	Proposal string         `json:"proposal"`
	Choice   int            `json:"choice"`
	Metadata map[string]any `json:"metadata"`
}

type envelope struct {
	Address   string `json:"address"`
	Message   string `json:"msg"`
	Signature string `json:"sig"`
}

type hubError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// NewClient validates the hub URL.
func NewClient(config Config) (*Client, error) {
	hubURL := strings.TrimRight(strings.TrimSpace(config.HubURL), "/")
	parsed, err := url.Parse(hubURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: snapshot hub url %q", governance.ErrInvalidServiceConfig, config.HubURL)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Client{messageURL: hubURL + messagePath, httpClient: httpClient, now: now}, nil
}

// CreateVoteMessage returns the canonical JSON payload that the voter signs.
func (client *Client) CreateVoteMessage(_ context.Context, space string, proposalID string, choice int) (string, error) {
	if strings.TrimSpace(space) == "" || strings.TrimSpace(proposalID) == "" {
		return "", &governance.ValidationError{Field: "snapshot", Message: "space and proposal id are required"}
	}
	encoded, err := json.Marshal(voteMessage{
		Version:   messageVersion,
		Timestamp: strconv.FormatInt(client.now().Unix(), 10),
		Space:     space,
		Type:      messageTypeVote,
		Payload: votePayload{
			Proposal: proposalID,
			Choice:   choice,
			Metadata: map[string]any{},
		},
	})
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// Send posts the signed message to the hub. Refusals surface as SubmitError.
func (client *Client) Send(ctx context.Context, account governance.Account, message string, signature string) error {
	body, err := json.Marshal(envelope{Address: account.String(), Message: message, Signature: signature})
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, client.messageURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	response, err := client.httpClient.Do(request)
	if err != nil {
		return &governance.SubmitError{Message: err.Error(), Err: err}
	}
	defer response.Body.Close()
	if response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	return &governance.SubmitError{Message: readHubError(response)}
}

func readHubError(response *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	var decoded hubError
	if err := json.Unmarshal(raw, &decoded); err == nil {
		switch {
		case decoded.Description != "":
			return decoded.Description
		case decoded.Error != "":
			return decoded.Error
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return response.Status
}
