// Package governanceapi is the HTTP client for the governance backend that stores
// proposals, subscriptions, committee membership and grant updates.
package governanceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultTokenTTL       = 5 * time.Minute
	maxErrorBodyBytes     = 4096
)

var (
	// ErrRequestFailed reports a non-success envelope or status.
	ErrRequestFailed = errors.New("governance api request failed")
)

// Config configures the API client.
type Config struct {
	BaseURL    string
	SigningKey string
	Issuer     string
	TokenTTL   time.Duration
	HTTPClient *http.Client
	Accounts   governance.AccountSource
	Now        func() time.Time
}

// Client implements governance.GovernanceAPI.
type Client struct {
	baseURL    string
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
	httpClient *http.Client
	accounts   governance.AccountSource
	now        func() time.Time
}

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

type statusUpdateRequest struct {
	Status         governance.ProposalStatus `json:"status"`
	VestingAddress *string                   `json:"vesting_address,omitempty"`
	Description    string                    `json:"description"`
}

// NewClient validates configuration and builds a client.
func NewClient(config Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: governance api url %q", governance.ErrInvalidServiceConfig, config.BaseURL)
	}
	if strings.TrimSpace(config.SigningKey) == "" {
		return nil, fmt.Errorf("%w: governance api signing key is required", governance.ErrInvalidServiceConfig)
	}
	if config.Accounts == nil {
		return nil, fmt.Errorf("%w: account source is required", governance.ErrInvalidServiceConfig)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	tokenTTL := config.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:    baseURL,
		signingKey: []byte(config.SigningKey),
		issuer:     config.Issuer,
		tokenTTL:   tokenTTL,
		httpClient: httpClient,
		accounts:   config.Accounts,
		now:        now,
	}, nil
}

// GetProposal fetches one proposal; unknown ids return governance.ErrProposalNotFound.
func (client *Client) GetProposal(ctx context.Context, proposalID string) (governance.Proposal, error) {
	var proposal governance.Proposal
	err := client.do(ctx, http.MethodGet, proposalPath(proposalID), nil, &proposal)
	return proposal, err
}

// GetProposalVotes fetches the snapshot votes recorded for a proposal.
func (client *Client) GetProposalVotes(ctx context.Context, proposalID string) (governance.Votes, error) {
	votes := governance.Votes{}
	err := client.do(ctx, http.MethodGet, proposalPath(proposalID)+"/votes", nil, &votes)
	return votes, err
}

// GetSubscriptions lists the subscribers of a proposal.
func (client *Client) GetSubscriptions(ctx context.Context, proposalID string) ([]governance.Subscription, error) {
	var subscriptions []governance.Subscription
	err := client.do(ctx, http.MethodGet, proposalPath(proposalID)+"/subscriptions", nil, &subscriptions)
	return subscriptions, err
}

// Subscribe subscribes the session account.
func (client *Client) Subscribe(ctx context.Context, proposalID string) (governance.Subscription, error) {
	var subscription governance.Subscription
	err := client.do(ctx, http.MethodPost, proposalPath(proposalID)+"/subscriptions", nil, &subscription)
	return subscription, err
}

// Unsubscribe removes the session account's subscription.
func (client *Client) Unsubscribe(ctx context.Context, proposalID string) error {
	return client.do(ctx, http.MethodDelete, proposalPath(proposalID)+"/subscriptions", nil, nil)
}

// UpdateProposalStatus changes the proposal status and returns the updated proposal.
func (client *Client) UpdateProposalStatus(ctx context.Context, proposalID string, status governance.ProposalStatus, vestingAddress *string, description string) (governance.Proposal, error) {
	var proposal governance.Proposal
	request := statusUpdateRequest{Status: status, VestingAddress: vestingAddress, Description: description}
	err := client.do(ctx, http.MethodPatch, proposalPath(proposalID), request, &proposal)
	return proposal, err
}

// DeleteProposal removes a proposal.
func (client *Client) DeleteProposal(ctx context.Context, proposalID string) error {
	return client.do(ctx, http.MethodDelete, proposalPath(proposalID), nil, nil)
}

// GetCommittee lists committee member addresses.
func (client *Client) GetCommittee(ctx context.Context) ([]string, error) {
	var committee []string
	err := client.do(ctx, http.MethodGet, "/committee", nil, &committee)
	return committee, err
}

// GetProposalUpdates fetches grant updates of a proposal.
func (client *Client) GetProposalUpdates(ctx context.Context, proposalID string) (governance.ProposalUpdates, error) {
	var updates governance.ProposalUpdates
	err := client.do(ctx, http.MethodGet, proposalPath(proposalID)+"/updates", nil, &updates)
	return updates, err
}

func proposalPath(proposalID string) string {
	return "/proposals/" + url.PathEscape(proposalID)
}

func (client *Client) do(ctx context.Context, method string, path string, payload any, target any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, body)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if err := client.authorize(request); err != nil {
		return err
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/proposals/") {
		return governance.ErrProposalNotFound
	}
	if response.StatusCode == http.StatusNoContent {
		return nil
	}

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
	}
	var decoded envelope
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrRequestFailed, method, path, response.StatusCode, truncate(raw))
	}
	if response.StatusCode >= http.StatusMultipleChoices || !decoded.OK {
		message := decoded.Error
		if message == "" {
			message = response.Status
		}
		return fmt.Errorf("%w: %s %s: %s", ErrRequestFailed, method, path, message)
	}
	if target == nil || len(decoded.Data) == 0 || string(decoded.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(decoded.Data, target); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrRequestFailed, path, err)
	}
	return nil
}

// authorize signs a short-lived bearer token for the session account.
// Requests without a connected account go out anonymous.
func (client *Client) authorize(request *http.Request) error {
	account, ok := client.accounts.CurrentAccount()
	if !ok || account.IsZero() {
		return nil
	}
	issuedAt := client.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   account.String(),
		Issuer:    client.issuer,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(client.tokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(client.signingKey)
	if err != nil {
		return fmt.Errorf("sign governance api token: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+signed)
	return nil
}

func truncate(raw []byte) string {
	if len(raw) > maxErrorBodyBytes {
		raw = raw[:maxErrorBodyBytes]
	}
	return strings.TrimSpace(string(raw))
}
