// Package psa is a small client for the PSA public certification API.
package psa

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"slabtrack/internal/domain"
)

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// RPS caps outbound requests per second; zero or less disables the cap.
	RPS float64
}

type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

func New(opts Options) *Client {
	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(opts.Timeout)
	client.SetHeader("Accept", "application/json")
	if opts.Token != "" {
		client.SetAuthScheme("bearer")
		client.SetAuthToken(opts.Token)
	}

	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	return &Client{http: client, limiter: rate.NewLimiter(limit, 1)}
}

// Cert mirrors the PSACert object returned by GetByCertNumber.
type Cert struct {
	CertNumber       string `json:"CertNumber"`
	SpecID           int64  `json:"SpecID"`
	SpecNumber       string `json:"SpecNumber"`
	LabelType        string `json:"LabelType"`
	Year             string `json:"Year"`
	Brand            string `json:"Brand"`
	Category         string `json:"Category"`
	CardNumber       string `json:"CardNumber"`
	Subject          string `json:"Subject"`
	Variety          string `json:"Variety"`
	GradeDescription string `json:"GradeDescription"`
	CardGrade        string `json:"CardGrade"`
	TotalPopulation  int    `json:"TotalPopulation"`
	PopulationHigher int    `json:"PopulationHigher"`
}

// Population is the per-grade breakdown for a spec.
type Population struct {
	SpecID  int64 `json:"SpecID"`
	Total   int   `json:"Total"`
	Grade10 int   `json:"Grade10"`
	Grade9  int   `json:"Grade9"`
	Grade8  int   `json:"Grade8"`
}

type Certification struct {
	Cert Cert
	// Population is nil unless requested and available.
	Population *Population
}

type certEnvelope struct {
	PSACert       *Cert  `json:"PSACert"`
	ServerMessage string `json:"ServerMessage"`
}

type popEnvelope struct {
	PSAPop *Population `json:"PSAPop"`
}

func (c *Client) GetCertificationByCertNumber(ctx context.Context, certNumber string) (Certification, error) {
	var env certEnvelope
	if err := c.get(ctx, "/cert/GetByCertNumber/{id}", certNumber, &env); err != nil {
		return Certification{}, err
	}
	if env.PSACert == nil || env.PSACert.CertNumber == "" {
		return Certification{}, fmt.Errorf("psa cert %s: %w", certNumber, domain.ErrNotFound)
	}
	return Certification{Cert: *env.PSACert}, nil
}

// GetCertificationWithPopulation fetches the cert and then its spec population.
// A failed population lookup still returns the cert with a nil Population.
func (c *Client) GetCertificationWithPopulation(ctx context.Context, certNumber string) (Certification, error) {
	cert, err := c.GetCertificationByCertNumber(ctx, certNumber)
	if err != nil {
		return Certification{}, err
	}
	if cert.Cert.SpecID == 0 {
		return cert, nil
	}
	var env popEnvelope
	if err := c.get(ctx, "/pop/GetPSASpecPopulation/{id}", strconv.FormatInt(cert.Cert.SpecID, 10), &env); err != nil {
		if ctx.Err() != nil {
			return Certification{}, err
		}
		return cert, nil
	}
	cert.Population = env.PSAPop
	return cert, nil
}

func (c *Client) get(ctx context.Context, path, id string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: psa rate wait: %v", domain.ErrUpstream, err)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("%w: psa %s: %v", domain.ErrUpstream, id, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("psa %s: %w", id, domain.ErrNotFound)
	case resp.IsError():
		return fmt.Errorf("%w: psa %s: status %d", domain.ErrUpstream, id, resp.StatusCode())
	}
	return nil
}
