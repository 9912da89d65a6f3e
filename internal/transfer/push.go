// Package transfer uploads local files to storage through presigned URLs.
package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"tld/internal/retryhttp"

	"github.com/spf13/afero"
)

// Signer issues write signatures. *signing.Client implements it.
type Signer interface {
	SignURLPut(ctx context.Context, rawURL string) (string, error)
}

// Pusher uploads files with PUT requests, retried per the client policy.
type Pusher struct {
	fs     afero.Fs
	signer Signer
	http   *retryhttp.Client
	logger *slog.Logger
}

// Option configures a Pusher.
type Option func(*Pusher)

// WithFs sets the filesystem local paths are read from.
func WithFs(fs afero.Fs) Option {
	return func(p *Pusher) {
		p.fs = fs
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pusher) {
		p.logger = logger
	}
}

// NewPusher creates a Pusher.
func NewPusher(signer Signer, httpClient *retryhttp.Client, opts ...Option) *Pusher {
	p := &Pusher{
		fs:     afero.NewOsFs(),
		signer: signer,
		http:   httpClient,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push uploads localPath to targetURL and returns the presigned URL used.
func (p *Pusher) Push(ctx context.Context, localPath, targetURL string) (string, error) {
	f, err := p.fs.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", localPath)
	}

	signedURL, err := p.signer.SignURLPut(ctx, targetURL)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s for upload: %w", targetURL, err)
	}

	// The file is rewound before each attempt.
	var body io.ReadSeeker = f
	req, err := p.http.NewRequest(ctx, http.MethodPut, signedURL, body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = info.Size()

	p.logger.Debug("Uploading file",
		"path", localPath,
		"target", targetURL,
		"bytes", info.Size(),
	)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload of %s failed: %w", localPath, err)
	}
	defer resp.Body.Close()

	if err := retryhttp.CheckResponse(resp); err != nil {
		return "", err
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	p.logger.Info("Uploaded file", "path", localPath, "target", targetURL)
	return signedURL, nil
}
