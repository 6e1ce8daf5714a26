// Package upload submits event files to the HunchLab data service and
// follows the resulting import job until the service finishes with it.
package upload

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"incident-pipeline/internal/config"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// dataServicePath is appended to the configured base URL.
const dataServicePath = "/api/dataservice/"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 2048

// ErrNoCertificates is returned when the CA bundle holds no PEM certificates.
var ErrNoCertificates = errors.New("no certificates found in certificate authority bundle")

// Client talks to the data service over TLS verified against a pinned CA
// bundle, authenticating every request with a token.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient builds a client from validated server settings.
func NewClient(cfg config.Server) (*Client, error) {
	pool, err := LoadCertPool(cfg.CertificateAuthority)
	if err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}

	return &Client{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + dataServicePath,
		http: &http.Client{
			Transport: &tokenTransport{token: cfg.Token, base: transport},
			Timeout:   cfg.Timeout,
		},
	}, nil
}

// LoadCertPool reads a PEM bundle into a pool holding only those roots.
func LoadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read certificate authority: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%w: %s", ErrNoCertificates, path)
	}
	return pool, nil
}

// Endpoint returns the upload URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// tokenTransport sets the Authorization header HunchLab expects.
type tokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Token "+t.token)
	return t.base.RoundTrip(r)
}

type submitResponse struct {
	ImportJobID string `json:"import_job_id"`
}

// Submit posts the file at path as multipart field "file" and returns the
// import job id. A 401 yields ErrUnauthorized; any other status except 202
// yields a *SubmissionError.
func (c *Client) Submit(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	defer pr.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
	case http.StatusUnauthorized:
		return "", ErrUnauthorized
	default:
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: readSnippet(resp.Body)}
	}

	var body submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrSubmissionFailed, err)
	}
	if body.ImportJobID == "" {
		return "", fmt.Errorf("%w: response has no import_job_id", ErrSubmissionFailed)
	}
	return body.ImportJobID, nil
}

// StatusResponse is one poll of an import job.
type StatusResponse struct {
	HTTPStatus       int
	ProcessingStatus string
	Log              string
	// DecodeErr is set when the body was not the expected JSON object.
	DecodeErr error
}

// flexString accepts a JSON string, number or null.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

type statusBody struct {
	ProcessingStatus flexString `json:"processing_status"`
	Log              flexString `json:"log"`
}

// Status fetches the current state of an import job. Only transport
// failures are returned as errors; HTTP status interpretation belongs to
// the poller.
func (c *Client) Status(ctx context.Context, jobID string) (StatusResponse, error) {
	jobURL := c.endpoint + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL, nil)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("get %s: %w", jobURL, err)
	}
	defer resp.Body.Close()

	out := StatusResponse{HTTPStatus: resp.StatusCode}
	var body statusBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		out.DecodeErr = fmt.Errorf("decode status body: %w", err)
		return out, nil
	}
	out.ProcessingStatus = string(body.ProcessingStatus)
	out.Log = string(body.Log)
	return out, nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(b))
}
