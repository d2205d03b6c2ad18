// Package attachment downloads and opens encrypted chat attachments.
// Servers are untrusted: sizes are enforced while streaming and nothing is
// returned unless the authentication tag verifies.
package attachment

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"p2p_trade/internal/cryptographic/encryption"
	"p2p_trade/internal/model"
	"p2p_trade/internal/utils/log"

	"go.uber.org/zap"
)

const (
	DefaultMaxBytes = 25 << 20
	DefaultTimeout  = 30 * time.Second

	KeySize = 32
)

var (
	ErrScheme    = errors.New("unsupported attachment url scheme")
	ErrTooLarge  = errors.New("attachment exceeds size limit")
	ErrShortBlob = errors.New("attachment shorter than nonce and tag")
	ErrAuth      = errors.New("attachment authentication failed")
	ErrKey       = errors.New("attachment key must be 32 bytes")
)

// StatusError is a non-200 answer from the blob server.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("attachment server answered %d", e.Code)
}

type Fetcher struct {
	client *http.Client

	MaxBytes int64
	Timeout  time.Duration
}

const maxRedirects = 10

// NewFetcher uses a copy of client for requests; nil means http.DefaultClient.
// Redirects are followed only to https.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	c := *client
	next := client.CheckRedirect
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if req.URL.Scheme != "https" {
			return fmt.Errorf("%w: redirect to %q", ErrScheme, req.URL.Scheme)
		}
		if next != nil {
			return next(req, via)
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	return &Fetcher{client: &c, MaxBytes: DefaultMaxBytes, Timeout: DefaultTimeout}
}

// ResolveURL maps blossom:// to https://. Only those two schemes are allowed.
func ResolveURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("attachment url: %w", err)
	}
	switch u.Scheme {
	case "blossom":
		u.Scheme = "https"
	case "https":
	default:
		return "", fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("attachment url %q has no host", raw)
	}
	return u.String(), nil
}

// Fetch downloads at most f.MaxBytes from rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := ResolveURL(rawURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	if resp.ContentLength > f.MaxBytes {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.MaxBytes)
	}
	return data, nil
}

// Decrypt opens nonce(12) || ciphertext || tag(16) with ChaCha20-Poly1305.
func Decrypt(key, blob []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, ErrKey
	}
	if len(blob) < encryption.NonceSize+encryption.TagSize {
		return nil, ErrShortBlob
	}
	plain, err := encryption.AEADDecrypt(key, blob, nil)
	if err != nil {
		return nil, ErrAuth
	}
	return plain, nil
}

// ParseKey decodes the hex key carried in an attachment message.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil || len(key) != KeySize {
		return nil, ErrKey
	}
	return key, nil
}

// Download fetches a, decrypts it when it carries a key and saves it under dir.
// It returns the saved path.
func (f *Fetcher) Download(ctx context.Context, a *model.Attachment, dir string) (string, error) {
	blob, err := f.Fetch(ctx, a.URL)
	if err != nil {
		return "", err
	}
	if a.EncryptedSize > 0 && int64(len(blob)) != a.EncryptedSize {
		log.Warn("attachment size differs from announced",
			zap.Int64("announced", a.EncryptedSize), zap.Int("got", len(blob)))
	}

	data := blob
	if a.Key != "" {
		key, err := ParseKey(a.Key)
		if err != nil {
			return "", err
		}
		if data, err = Decrypt(key, blob); err != nil {
			return "", err
		}
	}
	return Save(dir, a.Filename, data)
}
