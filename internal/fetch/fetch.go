package fetch

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/providers/http/client"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("unexpected status")

// Result is a fetched document, decoded to UTF-8.
type Result struct {
	URL         string
	Status      int
	ContentType string
	Data        string
}

// Fetcher retrieves script text. The install pipeline depends on this.
type Fetcher interface {
	Request(ctx context.Context, rawURL string) (*Result, error)
}

// Client fetches http(s) URLs through the trusted client and file: URLs
// from the local filesystem.
type Client struct {
	http      *client.Client
	allowFile bool
	maxBody   int64
}

// Option configures a Client.
type Option func(*Client)

// WithFileScheme enables or disables file: URLs.
func WithFileScheme(enabled bool) Option {
	return func(c *Client) { c.allowFile = enabled }
}

// New creates a fetch client backed by hc.
func New(hc *client.Client, opts ...Option) *Client {
	c := &Client{http: hc, allowFile: true, maxBody: hc.MaxBody()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request fetches rawURL. Non-2xx responses, transport failures and
// unreadable files are errors.
func (c *Client) Request(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		return c.remote(ctx, rawURL)
	case "file":
		if !c.allowFile {
			return nil, fmt.Errorf("file scheme not requestable: %s", rawURL)
		}
		return c.local(u)
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func (c *Client) remote(ctx context.Context, rawURL string) (*Result, error) {
	resp, err := c.http.Do(ctx, client.Request{Method: "GET", URL: rawURL})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode(), rawURL)
	}
	body := resp.Body()
	if c.maxBody > 0 && int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("response exceeds %d bytes: %s", c.maxBody, rawURL)
	}
	ctype := resp.Header().Get("Content-Type")
	return &Result{
		URL:         rawURL,
		Status:      resp.StatusCode(),
		ContentType: ctype,
		Data:        Decode(body, ctype),
	}, nil
}

func (c *Client) local(u *url.URL) (*Result, error) {
	path := filepath.FromSlash(u.Path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if c.maxBody > 0 && info.Size() > c.maxBody {
		return nil, fmt.Errorf("file exceeds %d bytes: %s", c.maxBody, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &Result{URL: u.String(), Data: Decode(data, "")}, nil
}

// Decode converts body to UTF-8. The charset comes from contentType when it
// names one, otherwise from detection; valid UTF-8 without a declared
// charset is returned untouched.
func Decode(body []byte, contentType string) string {
	label := declaredCharset(contentType)
	if label == "" {
		if utf8.Valid(body) {
			return string(body)
		}
		label = DetectCharset(body)
	}
	enc, name := charset.Lookup(label)
	if enc == nil || name == "utf-8" {
		return string(body)
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return string(body)
	}
	return string(out)
}

// DetectCharset guesses the charset of data, defaulting to utf-8.
func DetectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}
