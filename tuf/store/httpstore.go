package store

import (
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// defaultMaxBytes caps a Fetch call that did not specify a size, the same
// fallback role notary.MaxDownloadSize plays for an HTTPStore.
const defaultMaxBytes = 100 << 20 // 100MB

// HTTPStore fetches role metadata from a plain static file server: a base
// URL joined with "<role>.json". This deliberately drops registry
// bearer/basic-auth challenge handling since this editor's metadata layout
// has no authentication boundary to negotiate — the trust server it talks
// to is assumed to already be reachable.
type HTTPStore struct {
	baseURL   url.URL
	extension string
	client    *http.Client
}

// NewHTTPStore builds a Fetcher against baseURL, which must be absolute.
func NewHTTPStore(baseURL, extension string, client *http.Client) (*HTTPStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing HTTPStore base URL")
	}
	if !u.IsAbs() {
		return nil, errors.New("tuf: HTTPStore requires an absolute base URL")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPStore{baseURL: *u, extension: extension, client: client}, nil
}

// Fetch downloads the named metadata file, refusing any response longer
// than maxBytes (or defaultMaxBytes if maxBytes <= 0).
func (s *HTTPStore) Fetch(name string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	ref, err := url.Parse(path.Join(s.baseURL.Path, fmt.Sprintf("%s.%s", name, s.extension)))
	if err != nil {
		return nil, errors.Wrap(err, "building metadata request URL")
	}
	target := s.baseURL.ResolveReference(ref)

	resp, err := s.client.Get(target.String())
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %s", name)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errors.WithStack(ErrMetaNotFound{Resource: name})
	default:
		logrus.Debugf("unexpected status %d fetching %s", resp.StatusCode, name)
		return nil, errors.Errorf("tuf: server returned %d fetching %s", resp.StatusCode, name)
	}

	if resp.ContentLength > maxBytes {
		return nil, errors.WithStack(ErrMaliciousServer{Resource: name})
	}
	body, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, errors.Wrapf(err, "reading response body for %s", name)
	}
	if int64(len(body)) > maxBytes {
		return nil, errors.WithStack(ErrMaliciousServer{Resource: name})
	}
	return body, nil
}

// NewFetcher resolves a base URL to the Fetcher appropriate for its
// scheme: "file" and no-scheme paths resolve to a FilesystemStore rooted
// at the path, everything else goes through HTTPStore. This is the
// transport polymorphism the loader's component design calls for.
func NewFetcher(baseURL string) (Fetcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing metadata base URL")
	}
	switch u.Scheme {
	case "", "file":
		return NewFilesystemStore(u.Path, "json")
	case "http", "https":
		return NewHTTPStore(baseURL, "json", nil)
	default:
		return nil, errors.Errorf("tuf: unsupported metadata URL scheme %q", u.Scheme)
	}
}
