// Package hub is a client for a HuggingFace-style dataset repository,
// treated as an opaque blob store with path semantics: repo and file
// existence checks, file download, directory download, and atomic
// directory upload as one commit.
package hub

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultEndpoint = "https://huggingface.co"

// Client talks to one dataset repository host with a bearer token.
type Client struct {
	Endpoint string
	Token    string
	client   *http.Client
}

// NewClient creates a hub client. The token may be empty for public reads.
func NewClient(token string) *Client {
	return &Client{
		Endpoint: defaultEndpoint,
		Token:    token,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.client.Do(req)
}

// RepoExists reports whether the dataset repository exists.
func (c *Client) RepoExists(ctx context.Context, repo string) (bool, error) {
	url := fmt.Sprintf("%s/api/datasets/%s", c.Endpoint, repo)
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return false, fmt.Errorf("failed to check repo %s: %w", repo, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("repo check for %s returned status %d", repo, resp.StatusCode)
	}
}

// CreateRepo creates a private dataset repository.
func (c *Client) CreateRepo(ctx context.Context, repo string) error {
	org, name := splitRepo(repo)
	payload, err := json.Marshal(map[string]any{
		"type":         "dataset",
		"name":         name,
		"organization": org,
		"private":      true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal create payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/repos/create", c.Endpoint)
	resp, err := c.do(ctx, http.MethodPost, url, bytes.NewReader(payload), "application/json")
	if err != nil {
		return fmt.Errorf("failed to create repo %s: %w", repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("repo create for %s returned status %d: %s", repo, resp.StatusCode, string(body))
	}
	return nil
}

// FileExists reports whether a file exists in the repository.
func (c *Client) FileExists(ctx context.Context, repo, path string) (bool, error) {
	url := c.resolveURL(repo, path)
	resp, err := c.do(ctx, http.MethodHead, url, nil, "")
	if err != nil {
		return false, fmt.Errorf("failed to check file %s in %s: %w", path, repo, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("file check for %s in %s returned status %d", path, repo, resp.StatusCode)
	}
}

// DownloadFile downloads one repository file to a local path.
func (c *Client) DownloadFile(ctx context.Context, repo, path, dest string) error {
	url := c.resolveURL(repo, path)
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return fmt.Errorf("failed to download %s from %s: %w", path, repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s from %s returned status %d", path, repo, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return f.Close()
}

// ReadText reads one repository file as text.
func (c *Client) ReadText(ctx context.Context, repo, path string) (string, error) {
	url := c.resolveURL(repo, path)
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to read %s from %s: %w", path, repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("read of %s from %s returned status %d", path, repo, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body of %s: %w", path, err)
	}
	return string(data), nil
}

// WriteText commits one text file to the repository.
func (c *Client) WriteText(ctx context.Context, repo, path, content, message string) error {
	files := []commitFile{{path: path, content: []byte(content)}}
	return c.commit(ctx, repo, files, message)
}

// treeEntry is one node of the repository file listing.
type treeEntry struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// DownloadDir mirrors one repository directory into a local directory.
// Files already present locally are overwritten.
func (c *Client) DownloadDir(ctx context.Context, repo, prefix, localDir string) error {
	url := fmt.Sprintf("%s/api/datasets/%s/tree/main/%s?recursive=true", c.Endpoint, repo, prefix)
	resp, err := c.do(ctx, http.MethodGet, url, nil, "")
	if err != nil {
		return fmt.Errorf("failed to list %s in %s: %w", prefix, repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Directory does not exist yet; nothing to mirror.
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("listing of %s in %s returned status %d", prefix, repo, resp.StatusCode)
	}

	var entries []treeEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode listing of %s: %w", prefix, err)
	}

	for _, entry := range entries {
		if entry.Type != "file" {
			continue
		}
		rel := strings.TrimPrefix(entry.Path, prefix)
		rel = strings.TrimPrefix(rel, "/")
		dest := filepath.Join(localDir, filepath.FromSlash(rel))
		if err := c.DownloadFile(ctx, repo, entry.Path, dest); err != nil {
			return err
		}
	}
	return nil
}

// UploadDir pushes a local directory to the repository root as a single
// atomic commit.
func (c *Client) UploadDir(ctx context.Context, repo, localDir, message string) error {
	var files []commitFile
	err := filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, commitFile{path: filepath.ToSlash(rel), content: data})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", localDir, err)
	}
	return c.commit(ctx, repo, files, message)
}

type commitFile struct {
	path    string
	content []byte
}

// commit issues one NDJSON commit carrying all files.
func (c *Client) commit(ctx context.Context, repo string, files []commitFile, message string) error {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)

	if err := enc.Encode(map[string]any{
		"key":   "header",
		"value": map[string]any{"summary": message},
	}); err != nil {
		return fmt.Errorf("failed to encode commit header: %w", err)
	}
	for _, f := range files {
		if err := enc.Encode(map[string]any{
			"key": "file",
			"value": map[string]any{
				"path":     f.path,
				"content":  base64.StdEncoding.EncodeToString(f.content),
				"encoding": "base64",
			},
		}); err != nil {
			return fmt.Errorf("failed to encode commit file %s: %w", f.path, err)
		}
	}

	url := fmt.Sprintf("%s/api/datasets/%s/commit/main", c.Endpoint, repo)
	resp, err := c.do(ctx, http.MethodPost, url, &body, "application/x-ndjson")
	if err != nil {
		return fmt.Errorf("failed to commit to %s: %w", repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("commit to %s returned status %d: %s", repo, resp.StatusCode, string(respBody))
	}
	return nil
}

func (c *Client) resolveURL(repo, path string) string {
	return fmt.Sprintf("%s/datasets/%s/resolve/main/%s", c.Endpoint, repo, path)
}

func splitRepo(repo string) (org, name string) {
	if i := strings.Index(repo, "/"); i >= 0 {
		return repo[:i], repo[i+1:]
	}
	return "", repo
}
