package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/imroc/req/v3"
	"golang.org/x/sync/errgroup"

	"github.com/openlocale/openlocale/internal/sync"
	"github.com/openlocale/openlocale/internal/version"
)

const (
	DefaultBaseURL = "https://api.github.com"

	defaultMaxConcurrent = 8
	blobCacheSize        = 2048
)

// Config holds the remote client configuration. The token is a server-wide
// PAT; per-user authorization is handled outside the sync core.
type Config struct {
	Token         string `yaml:"token" mapstructure:"token"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	MaxConcurrent int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// Client fetches translation file trees from the GitHub REST API. Blob
// contents are cached by SHA so unchanged files are not refetched across
// pulls.
type Client struct {
	http          *req.Client
	cache         *lru.Cache[string, []byte]
	maxConcurrent int
}

var _ sync.RemoteFetcher = (*Client)(nil)

func New(cfg *Config) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	client := req.C().
		SetBaseURL(baseURL).
		SetUserAgent(version.AppName+"/"+version.Version).
		SetCommonHeader("Accept", "application/vnd.github+json").
		SetCommonHeader("X-GitHub-Api-Version", "2022-11-28").
		SetTimeout(30*time.Second).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal).
		SetCommonRetryCount(3).
		SetCommonRetryBackoffInterval(1*time.Second, 10*time.Second).
		AddCommonRetryCondition(func(resp *req.Response, err error) bool {
			if err != nil {
				return true
			}
			return retryableStatus(resp)
		})

	if cfg.Token != "" {
		client.SetCommonBearerAuthToken(cfg.Token)
	}

	cache, err := lru.New[string, []byte](blobCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create blob cache: %w", err)
	}

	return &Client{
		http:          client,
		cache:         cache,
		maxConcurrent: maxConcurrent,
	}, nil
}

type branchResponse struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type treeItem struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`
}

type treeResponse struct {
	SHA       string     `json:"sha"`
	Tree      []treeItem `json:"tree"`
	Truncated bool       `json:"truncated"`
}

type blobResponse struct {
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// FetchTree gathers the complete translation file set for a source at one
// commit. The head SHA is resolved first and every subsequent request pins
// that SHA, so the merge never observes a partially updated remote tree.
func (c *Client) FetchTree(ctx context.Context, src sync.RemoteSource) (*sync.RemoteTree, error) {
	head, err := c.headSHA(ctx, src)
	if err != nil {
		return nil, err
	}

	items, err := c.listTree(ctx, src, head)
	if err != nil {
		return nil, err
	}

	files := make([]sync.RemoteFile, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)

	for i, item := range items {
		g.Go(func() error {
			content, err := c.fetchBlob(gctx, src, item.SHA)
			if err != nil {
				return err
			}
			files[i] = sync.RemoteFile{
				Path:    item.Path,
				SHA:     item.SHA,
				Content: content,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("fetched remote tree",
		"owner", src.Owner, "repo", src.Repo, "branch", src.Branch,
		"commit", head, "files", len(files))

	return &sync.RemoteTree{CommitSHA: head, Files: files}, nil
}

func (c *Client) headSHA(ctx context.Context, src sync.RemoteSource) (string, error) {
	var branch branchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&branch).
		Get(fmt.Sprintf("/repos/%s/%s/branches/%s", src.Owner, src.Repo, src.Branch))

	if err := c.handleError(resp, err, fmt.Sprintf("branch %s/%s@%s", src.Owner, src.Repo, src.Branch)); err != nil {
		return "", err
	}
	return branch.Commit.SHA, nil
}

func (c *Client) listTree(ctx context.Context, src sync.RemoteSource, commitSHA string) ([]treeItem, error) {
	var tree treeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("recursive", "1").
		SetSuccessResult(&tree).
		Get(fmt.Sprintf("/repos/%s/%s/git/trees/%s", src.Owner, src.Repo, commitSHA))

	if err := c.handleError(resp, err, fmt.Sprintf("tree %s/%s@%s", src.Owner, src.Repo, commitSHA)); err != nil {
		return nil, err
	}

	if tree.Truncated {
		slog.Warn("remote tree truncated by api", "owner", src.Owner, "repo", src.Repo, "commit", commitSHA)
	}

	items := make([]treeItem, 0, len(tree.Tree))
	for _, item := range tree.Tree {
		if item.Type != "blob" {
			continue
		}
		if !matchesSource(item.Path, src) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *Client) fetchBlob(ctx context.Context, src sync.RemoteSource, sha string) ([]byte, error) {
	if content, ok := c.cache.Get(sha); ok {
		return content, nil
	}

	var blob blobResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetSuccessResult(&blob).
		Get(fmt.Sprintf("/repos/%s/%s/git/blobs/%s", src.Owner, src.Repo, sha))

	if err := c.handleError(resp, err, "blob "+sha); err != nil {
		return nil, err
	}

	content, err := decodeBlob(&blob)
	if err != nil {
		return nil, err
	}

	c.cache.Add(sha, content)
	return content, nil
}

func decodeBlob(blob *blobResponse) ([]byte, error) {
	switch blob.Encoding {
	case "base64":
		content, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(blob.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decode blob %s: %w", blob.SHA, err)
		}
		return content, nil
	case "utf-8", "":
		return []byte(blob.Content), nil
	default:
		return nil, fmt.Errorf("blob %s: unsupported encoding %q", blob.SHA, blob.Encoding)
	}
}

// matchesSource reports whether a repository path belongs to the configured
// translation file set.
func matchesSource(filePath string, src sync.RemoteSource) bool {
	rel := filePath
	if src.Path != "" {
		prefix := strings.TrimSuffix(src.Path, "/") + "/"
		if !strings.HasPrefix(filePath, prefix) {
			return false
		}
		rel = strings.TrimPrefix(filePath, prefix)
	}

	if len(src.Globs) == 0 {
		return true
	}
	for _, glob := range src.Globs {
		if ok, err := doublestar.Match(glob, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func retryableStatus(resp *req.Response) bool {
	if resp.Response == nil {
		return false
	}
	code := resp.StatusCode
	return code == 429 || code >= 500 || rateLimited(resp)
}

// rateLimited detects GitHub's 403-with-exhausted-quota responses.
func rateLimited(resp *req.Response) bool {
	return resp.StatusCode == 403 && resp.Header.Get("X-RateLimit-Remaining") == "0"
}

// handleError maps a response into the error taxonomy. Retries have already
// been exhausted by the time this runs.
func (c *Client) handleError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return &TransientError{Message: fmt.Sprintf("%s: %v", operation, requestErr)}
	}

	if !resp.IsErrorState() {
		return nil
	}

	code := resp.StatusCode
	switch {
	case code == 404:
		return &NotFoundError{Resource: operation}
	case code == 429 || rateLimited(resp):
		return &TransientError{
			StatusCode: code,
			RetryAfter: retryAfterHint(resp),
			Message:    operation,
		}
	case code == 401 || code == 403:
		return &AuthorizationError{StatusCode: code, Message: operation}
	case code >= 500:
		return &TransientError{StatusCode: code, Message: operation}
	default:
		return fmt.Errorf("github: %s: unexpected status %d", operation, code)
	}
}

func retryAfterHint(resp *req.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	if v := resp.Header.Get("X-RateLimit-Reset"); v != "" {
		if reset, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(reset, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}
