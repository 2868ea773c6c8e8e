// Package paramstore reads provider credentials from AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// TokenSource resolves a provider API token by parameter name. Provider
// clients depend on this rather than *Client.
type TokenSource interface {
	Token(ctx context.Context, name string) (string, error)
}

// Client wraps an AWS SSM API. Decoded tokens are cached for the life of the
// process; failed lookups are not.
type Client struct {
	api ssmAPI

	mu     sync.Mutex
	tokens map[string]string
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api, tokens: make(map[string]string)}, nil
}

// GetParameter returns the decrypted raw value of name.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// Token reads name and decodes it as {"token":"..."}.
func (c *Client) Token(ctx context.Context, name string) (string, error) {
	key := strings.TrimSpace(name)
	if c != nil {
		c.mu.Lock()
		tok, ok := c.tokens[key]
		c.mu.Unlock()
		if ok {
			return tok, nil
		}
	}

	raw, err := c.GetParameter(ctx, key)
	if err != nil {
		return "", err
	}
	tok, err := decodeToken(raw)
	if err != nil {
		return "", fmt.Errorf("paramstore: %q: %w", key, err)
	}

	c.mu.Lock()
	c.tokens[key] = tok
	c.mu.Unlock()
	return tok, nil
}

func decodeToken(raw string) (string, error) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", fmt.Errorf("decode token payload: %w", err)
	}
	token := strings.TrimSpace(payload.Token)
	if token == "" {
		return "", errors.New("token payload missing token")
	}
	return token, nil
}
