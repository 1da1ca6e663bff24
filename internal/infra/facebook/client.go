package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Wittle-South-LLC/olsnet/internal/core/port"
	"github.com/Wittle-South-LLC/olsnet/internal/infra/config"
)

// ErrProfileUnavailable means the Graph API rejected the access token or the
// profile could not be fetched.
var ErrProfileUnavailable = errors.New("facebook profile unavailable")

// Client resolves Facebook access tokens into profile identities through the
// Graph API /me endpoint.
type Client struct {
	endpoint string
	client   *http.Client
}

func NewClient(cfg config.FacebookSettings) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type meResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (c *Client) Resolve(ctx context.Context, accessToken string) (port.ExternalIdentity, error) {
	query := url.Values{}
	query.Set("fields", "id,name,email")
	query.Set("access_token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/me?"+query.Encode(), nil)
	if err != nil {
		return port.ExternalIdentity{}, fmt.Errorf("build graph request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return port.ExternalIdentity{}, fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return port.ExternalIdentity{}, fmt.Errorf("%w: status %d", ErrProfileUnavailable, resp.StatusCode)
	}

	var me meResponse
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return port.ExternalIdentity{}, fmt.Errorf("decode graph response: %w", err)
	}

	if me.ID == "" {
		return port.ExternalIdentity{}, ErrProfileUnavailable
	}

	// Email may be absent when the token lacks the email permission. The
	// account service decides how to respond.
	return port.ExternalIdentity{
		ID:    me.ID,
		Email: me.Email,
		Name:  me.Name,
	}, nil
}

var _ port.IdentityProvider = (*Client)(nil)
