package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	apperrors "github.com/hankolab/sealpress/errors"
	"github.com/hankolab/sealpress/utils"
)

// emptyPayloadHash is the SHA-256 of the empty string, used for GET requests.
const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// S3Options configures the S3 wire client.
type S3Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the default https://s3.<region>.amazonaws.com,
	// for S3-compatible stores and test servers.
	Endpoint string
	// UsePathStyle addresses the bucket in the path instead of the host.
	// Custom endpoints almost always want this.
	UsePathStyle bool
	// MaxBytes caps a fetched object; 0 = no limit.
	MaxBytes int64
}

// S3 talks the S3 REST API directly, signing requests with Signature
// Version 4.  Requests are never retried; a failed call surfaces
// immediately to the pipeline.
type S3 struct {
	opts     S3Options
	client   *retryablehttp.Client
	endpoint *url.URL
	now      func() time.Time
}

// NewS3 creates an S3 client for opts.Bucket.
func NewS3(opts S3Options) (*S3, error) {
	if opts.Bucket == "" || opts.Region == "" {
		return nil, fmt.Errorf("s3 storage: bucket and region must be set")
	}
	raw := opts.Endpoint
	if raw == "" {
		raw = fmt.Sprintf("https://s3.%s.amazonaws.com", opts.Region)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("s3 storage: parse endpoint %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("s3 storage: endpoint %q must include scheme and host", raw)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil
	client.HTTPClient.Timeout = 30 * time.Second

	return &S3{opts: opts, client: client, endpoint: u, now: time.Now}, nil
}

// objectURL builds the request URL for key under the configured
// addressing style.
func (s *S3) objectURL(key string) *url.URL {
	u := *s.endpoint
	if s.opts.UsePathStyle {
		u.Path = "/" + s.opts.Bucket + "/" + key
	} else {
		u.Host = s.opts.Bucket + "." + u.Host
		u.Path = "/" + key
	}
	return &u
}

func (s *S3) Fetch(ctx context.Context, key string) ([]byte, error) {
	u := s.objectURL(key)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "s3.fetch", err)
	}
	s.authorize(http.MethodGet, u, req.Header, emptyPayloadHash, s.now().UTC())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryStorage, "s3.fetch",
			fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		drain(resp)
		return nil, apperrors.WithStatus(apperrors.CategoryAsset, "s3.fetch", 404,
			fmt.Errorf("%w: %s", apperrors.ErrNotFound, key))
	}
	if resp.StatusCode != http.StatusOK {
		drain(resp)
		return nil, apperrors.WithStatus(apperrors.CategoryStorage, "s3.fetch", resp.StatusCode,
			fmt.Errorf("%w: unexpected status %d for %s", apperrors.ErrStoreUnavailable, resp.StatusCode, key))
	}

	src := io.Reader(resp.Body)
	if s.opts.MaxBytes > 0 {
		src = &utils.LimitedReader{R: resp.Body, Max: s.opts.MaxBytes}
	}
	pooled, err := utils.DrainReader(ctx, src, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "s3.fetch.drain", err)
	}
	data := utils.CloneBytes(pooled.Bytes())
	utils.ReleaseBuffer(pooled)
	return data, nil
}

func (s *S3) Publish(ctx context.Context, key string, data []byte, contentType string) error {
	u := s.objectURL(key)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, u.String(), bytes.NewReader(data))
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryPublish, "s3.publish", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	sum := sha256.Sum256(data)
	s.authorize(http.MethodPut, u, req.Header, hex.EncodeToString(sum[:]), s.now().UTC())

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.New(apperrors.CategoryPublish, "s3.publish",
			fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err))
	}
	defer resp.Body.Close()
	drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return apperrors.WithStatus(apperrors.CategoryPublish, "s3.publish", resp.StatusCode,
			fmt.Errorf("%w: unexpected status %d for %s", apperrors.ErrStoreUnavailable, resp.StatusCode, key))
	}
	return nil
}

// SignedURL presigns a GET for key using SigV4 query parameters.
func (s *S3) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	u := s.objectURL(key)
	t := s.now().UTC()
	amzDate := t.Format("20060102T150405Z")
	scope := s.scope(t)

	q := url.Values{}
	q.Set("X-Amz-Algorithm", "AWS4-HMAC-SHA256")
	q.Set("X-Amz-Credential", s.opts.AccessKeyID+"/"+scope)
	q.Set("X-Amz-Date", amzDate)
	q.Set("X-Amz-Expires", fmt.Sprintf("%d", int64(ttl.Seconds())))
	q.Set("X-Amz-SignedHeaders", "host")

	canonical := strings.Join([]string{
		http.MethodGet,
		uriEncode(u.Path, false),
		q.Encode(),
		"host:" + u.Host + "\n",
		"host",
		"UNSIGNED-PAYLOAD",
	}, "\n")

	sig := s.signature(canonical, t, scope)
	q.Set("X-Amz-Signature", sig)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ── SigV4 signing ─────────────────────────────────────────────────────

// authorize signs the request headers in place.
func (s *S3) authorize(method string, u *url.URL, header http.Header, payloadHash string, t time.Time) {
	amzDate := t.Format("20060102T150405Z")
	header.Set("Host", u.Host)
	header.Set("X-Amz-Date", amzDate)
	header.Set("X-Amz-Content-Sha256", payloadHash)

	signed := []string{"host", "x-amz-content-sha256", "x-amz-date"}
	if header.Get("Content-Type") != "" {
		signed = append(signed, "content-type")
	}
	sort.Strings(signed)

	var canonHeaders strings.Builder
	for _, h := range signed {
		v := header.Get(h)
		if h == "host" {
			v = u.Host
		}
		canonHeaders.WriteString(h)
		canonHeaders.WriteByte(':')
		canonHeaders.WriteString(strings.TrimSpace(v))
		canonHeaders.WriteByte('\n')
	}

	canonical := strings.Join([]string{
		method,
		uriEncode(u.Path, false),
		canonicalQuery(u),
		canonHeaders.String(),
		strings.Join(signed, ";"),
		payloadHash,
	}, "\n")

	scope := s.scope(t)
	sig := s.signature(canonical, t, scope)
	header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		s.opts.AccessKeyID, scope, strings.Join(signed, ";"), sig))
}

func (s *S3) scope(t time.Time) string {
	return strings.Join([]string{t.Format("20060102"), s.opts.Region, "s3", "aws4_request"}, "/")
}

// signature derives the signing key and signs the canonical request.
func (s *S3) signature(canonical string, t time.Time, scope string) string {
	canonSum := sha256.Sum256([]byte(canonical))
	toSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		t.Format("20060102T150405Z"),
		scope,
		hex.EncodeToString(canonSum[:]),
	}, "\n")

	key := hmacSHA256([]byte("AWS4"+s.opts.SecretAccessKey), t.Format("20060102"))
	key = hmacSHA256(key, s.opts.Region)
	key = hmacSHA256(key, "s3")
	key = hmacSHA256(key, "aws4_request")
	return hex.EncodeToString(hmacSHA256(key, toSign))
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// canonicalQuery sorts and encodes the query string the way SigV4 expects.
func canonicalQuery(u *url.URL) string {
	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		vs := q[k]
		sort.Strings(vs)
		for j, v := range vs {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(uriEncode(k, true))
			b.WriteByte('=')
			b.WriteString(uriEncode(v, true))
		}
	}
	return b.String()
}

// uriEncode percent-encodes per the SigV4 rules: unreserved characters pass
// through, everything else becomes %XX, and '/' is kept literal in paths.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// drain fully consumes a response body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 8*1024))
}
