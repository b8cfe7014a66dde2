// Package ebay places proxy bids through the eBay Buy Offer API on behalf of connected users.
package ebay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"slabtrack/internal/domain"
)

const bidScope = "https://api.ebay.com/oauth/api_scope/buy.offer.auction"

var ErrNotConnected = errors.New("marketplace account not connected")

// TokenStore persists per-user OAuth grants.
type TokenStore interface {
	Get(ctx context.Context, userID string) (domain.MarketplaceToken, error)
	Save(ctx context.Context, t domain.MarketplaceToken) error
}

type Options struct {
	APIURL       string
	AuthURL      string
	ClientID     string
	ClientSecret string
	RuName       string
	Marketplace  string
	Currency     string
	Timeout      time.Duration
}

type Client struct {
	http   *resty.Client
	opts   Options
	tokens TokenStore
	Now    func() time.Time
}

func New(opts Options, tokens TokenStore) *Client {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	client := resty.New()
	client.SetBaseURL(opts.APIURL)
	client.SetTimeout(opts.Timeout)
	client.SetHeader("Accept", "application/json")
	return &Client{http: client, opts: opts, tokens: tokens, Now: time.Now}
}

// APIError carries the first message of an eBay error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Unwrap() error { return domain.ErrUpstream }

type errorEnvelope struct {
	Errors []struct {
		ErrorID int    `json:"errorId"`
		Message string `json:"message"`
	} `json:"errors"`
	OAuthError       string `json:"error"`
	OAuthDescription string `json:"error_description"`
}

func apiError(resp *resty.Response) error {
	var env errorEnvelope
	msg := http.StatusText(resp.StatusCode())
	if err := json.Unmarshal(resp.Body(), &env); err == nil {
		switch {
		case len(env.Errors) > 0 && env.Errors[0].Message != "":
			msg = env.Errors[0].Message
		case env.OAuthDescription != "":
			msg = env.OAuthDescription
		case env.OAuthError != "":
			msg = env.OAuthError
		}
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}

// ConsentURL is where a user grants bidding rights; state is echoed back to the callback.
func (c *Client) ConsentURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.opts.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", c.opts.RuName)
	q.Set("scope", bidScope)
	q.Set("state", state)
	return c.opts.AuthURL + "?" + q.Encode()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) requestToken(ctx context.Context, form map[string]string) (tokenResponse, error) {
	var tr tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.opts.ClientID, c.opts.ClientSecret).
		SetFormData(form).
		SetResult(&tr).
		Post("/identity/v1/oauth2/token")
	if err != nil {
		return tokenResponse{}, fmt.Errorf("%w: ebay token: %v", domain.ErrUpstream, err)
	}
	if resp.IsError() {
		return tokenResponse{}, apiError(resp)
	}
	if tr.AccessToken == "" {
		return tokenResponse{}, &APIError{Status: resp.StatusCode(), Message: "empty access token"}
	}
	return tr, nil
}

// Exchange trades an authorization code for tokens and stores them for userID.
func (c *Client) Exchange(ctx context.Context, userID, code string) error {
	tr, err := c.requestToken(ctx, map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": c.opts.RuName,
	})
	if err != nil {
		return err
	}
	return c.tokens.Save(ctx, domain.MarketplaceToken{
		UserID:       userID,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    c.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	})
}

func (c *Client) accessToken(ctx context.Context, userID string) (string, error) {
	tok, err := c.tokens.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", err
	}
	if tok.ValidAt(c.Now()) {
		return tok.AccessToken, nil
	}
	if tok.RefreshToken == "" {
		return "", ErrNotConnected
	}
	tr, err := c.requestToken(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": tok.RefreshToken,
		"scope":         bidScope,
	})
	if err != nil {
		return "", err
	}
	tok.AccessToken = tr.AccessToken
	tok.RefreshToken = tr.RefreshToken
	tok.ExpiresAt = c.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if err := c.tokens.Save(ctx, tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

type amount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type proxyBidRequest struct {
	MaxAmount   amount `json:"maxAmount"`
	UserConsent struct {
		AdultOnlyItem bool `json:"adultOnlyItem"`
	} `json:"userConsent"`
}

// PlaceBid submits a proxy bid up to maxBid and returns eBay's response body.
func (c *Client) PlaceBid(ctx context.Context, userID, itemID string, maxBid decimal.Decimal) (json.RawMessage, error) {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	body := proxyBidRequest{MaxAmount: amount{Currency: c.opts.Currency, Value: maxBid.StringFixed(2)}}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("X-EBAY-C-MARKETPLACE-ID", c.opts.Marketplace).
		SetPathParam("item", itemID).
		SetBody(body).
		Post("/buy/offer/v1_beta/bidding/{item}/place_proxy_bid")
	if err != nil {
		return nil, fmt.Errorf("%w: ebay bid: %v", domain.ErrUpstream, err)
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	raw := resp.Body()
	if !json.Valid(raw) {
		return nil, &APIError{Status: resp.StatusCode(), Message: "malformed bid response"}
	}
	return json.RawMessage(raw), nil
}
