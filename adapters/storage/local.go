// Package storage provides ObjectStore implementations: a local filesystem
// store for offline deployments and tests, and an S3 wire client for the
// hosted deployment.
package storage

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/hankolab/sealpress/errors"
	"github.com/hankolab/sealpress/utils"
)

// LocalOptions configures the local filesystem store.
type LocalOptions struct {
	RootDir string
	// Secret keys the HMAC capability URLs.  Empty generates an ephemeral
	// secret at construction, so links die on restart.
	Secret []byte
	// BaseURL is the public prefix capability URLs are minted under,
	// e.g. "http://localhost:8080".
	BaseURL     string
	Permissions os.FileMode
	// MaxBytes caps a fetched object; 0 = no limit.
	MaxBytes int64
}

// Local stores objects on the local filesystem and mints HMAC-signed
// capability URLs served back through the HTTP adapter's /artifacts route.
type Local struct {
	rootDir  string
	perm     os.FileMode
	secret   []byte
	baseURL  string
	maxBytes int64
	now      func() time.Time
}

// NewLocal creates a Local store rooted at opts.RootDir.
func NewLocal(opts LocalOptions) (*Local, error) {
	if opts.RootDir == "" {
		return nil, fmt.Errorf("local storage: root dir must be set")
	}
	perm := opts.Permissions
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(opts.RootDir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: mkdir %s: %w", opts.RootDir, err)
	}
	secret := opts.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("local storage: generate url secret: %w", err)
		}
	}
	return &Local{
		rootDir:  opts.RootDir,
		perm:     perm,
		secret:   secret,
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		maxBytes: opts.MaxBytes,
		now:      time.Now,
	}, nil
}

// cleanKey normalizes a storage key and rejects path escapes.
func cleanKey(key string) (string, error) {
	k := path.Clean(strings.TrimPrefix(key, "/"))
	if k == "." || k == ".." || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return k, nil
}

func (l *Local) absPath(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.rootDir, filepath.FromSlash(k)), nil
}

func (l *Local) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.fetch", err)
	}
	p, err := l.absPath(key)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, "local.fetch", err)
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.WithStatus(apperrors.CategoryAsset, "local.fetch", 404,
				fmt.Errorf("%w: %s", apperrors.ErrNotFound, key))
		}
		return nil, apperrors.New(apperrors.CategoryStorage, "local.fetch",
			fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err))
	}
	defer f.Close()

	src := io.Reader(f)
	if l.maxBytes > 0 {
		src = &utils.LimitedReader{R: f, Max: l.maxBytes}
	}
	pooled, err := utils.DrainReader(ctx, src, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.fetch.drain", err)
	}
	data := utils.CloneBytes(pooled.Bytes())
	utils.ReleaseBuffer(pooled)
	return data, nil
}

func (l *Local) Publish(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.publish", err)
	}
	p, err := l.absPath(key)
	if err != nil {
		return apperrors.New(apperrors.CategoryStorage, "local.publish", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.publish.mkdir", err)
	}
	if err := os.WriteFile(p, data, l.perm); err != nil {
		return apperrors.New(apperrors.CategoryStorage, "local.publish",
			fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err))
	}
	// Persist the content type as a side-car JSON file.
	if contentType != "" {
		meta, _ := json.Marshal(map[string]string{"content-type": contentType})
		_ = os.WriteFile(p+".meta.json", meta, l.perm)
	}
	return nil
}

// SignedURL mints an HMAC capability URL for key, valid for ttl.  Existence
// is not validated: a missing key is a deferred 404 at access time.
func (l *Local) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", apperrors.New(apperrors.CategoryStorage, "local.signed_url", err)
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	exp := l.now().Add(ttl).Unix()
	sig := l.sign(k, exp)
	return fmt.Sprintf("%s/artifacts/%s?exp=%d&sig=%s", l.baseURL, k, exp, url.QueryEscape(sig)), nil
}

func (l *Local) sign(key string, exp int64) string {
	mac := hmac.New(sha256.New, l.secret)
	fmt.Fprintf(mac, "%s\n%d", key, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a capability URL's signature and expiry for key.  Used by
// the HTTP adapter before serving /artifacts requests.
func (l *Local) Verify(key, expStr, sig string) error {
	k, err := cleanKey(key)
	if err != nil {
		return fmt.Errorf("invalid key")
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expiry")
	}
	if l.now().Unix() > exp {
		return fmt.Errorf("link expired")
	}
	want := l.sign(k, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return fmt.Errorf("invalid signature")
	}
	return nil
}
