package storage

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Locator canonicalizes blob keys reported by generation workers and derives
// public URLs for them. The blobs themselves live in an external object store.
type Locator struct {
	baseURL string
}

// NewLocator initializes a Locator serving keys under baseURL.
func NewLocator(baseURL string) (*Locator, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("storage: base url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("storage: invalid base url %q", baseURL)
	}
	return &Locator{baseURL: baseURL}, nil
}

// BaseURL returns the configured public prefix.
func (l *Locator) BaseURL() string {
	if l == nil {
		return ""
	}
	return l.baseURL
}

// Resolve validates the key/url pair of an artifact. A key is cleaned against
// traversal; when the payload carried no url one is derived from the key. An
// explicit url must be absolute http(s).
func (l *Locator) Resolve(key, rawURL string) (string, string, error) {
	key = strings.TrimSpace(key)
	rawURL = strings.TrimSpace(rawURL)
	if key == "" && rawURL == "" {
		return "", "", errors.New("storage: key or url is required")
	}

	var cleanKey string
	if key != "" {
		var err error
		cleanKey, err = sanitizeKey(key)
		if err != nil {
			return "", "", err
		}
	}

	if rawURL != "" {
		u, err := url.Parse(rawURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", "", fmt.Errorf("storage: invalid url %q", rawURL)
		}
		return cleanKey, rawURL, nil
	}
	if l == nil {
		return cleanKey, "", nil
	}
	return cleanKey, l.URLFor(cleanKey), nil
}

// URLFor joins the base url and an already sanitized key.
func (l *Locator) URLFor(cleanKey string) string {
	parts := strings.Split(cleanKey, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return l.baseURL + "/" + strings.Join(parts, "/")
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
