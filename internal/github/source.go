package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"

	"github.com/bull/docchat/internal/ingest"
)

// textExtensions lists the file types worth ingesting from a repository.
var textExtensions = []string{".md", ".markdown", ".txt", ".json", ".csv"}

// Source lists and fetches text files under one path of a repository. It
// implements ingest.Source so a whole docs tree can be ingested in one run.
type Source struct {
	client   *Client
	owner    string
	repo     string
	basePath string
}

// NewSource creates a repository source rooted at basePath. An empty
// basePath ingests from the repository root.
func NewSource(client *Client, owner, repo, basePath string) *Source {
	return &Source{
		client:   client,
		owner:    owner,
		repo:     repo,
		basePath: basePath,
	}
}

// List recursively walks the base path and returns the relative paths of
// every text file found.
func (s *Source) List(ctx context.Context) ([]string, error) {
	return s.listRecursive(ctx, s.basePath, "")
}

func (s *Source) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var found []string

	_, dirContents, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if isTextFile(*item.Name) {
				found = append(found, itemRelPath)
			}
		case "dir":
			sub, err := s.listRecursive(ctx, path.Join(fullPath, *item.Name), itemRelPath)
			if err != nil {
				return nil, err
			}
			found = append(found, sub...)
		}
	}

	return found, nil
}

// Fetch retrieves one file's raw content by its relative path.
func (s *Source) Fetch(ctx context.Context, relativePath string) (*ingest.SourceDocument, error) {
	fullPath := path.Join(s.basePath, relativePath)

	fileContent, _, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	raw, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", fullPath, err)
	}

	return &ingest.SourceDocument{
		Name: relativePath,
		Raw:  raw,
	}, nil
}

// LatestCommitSHA returns the SHA of the most recent commit touching the
// base path, useful for recording what a bulk ingestion captured.
func (s *Source) LatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := s.client.Repositories.ListCommits(ctx, s.owner, s.repo, &github.CommitsListOptions{
		Path:        s.basePath,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].SHA == nil {
		return "", fmt.Errorf("no commits found for path %s", s.basePath)
	}
	return *commits[0].SHA, nil
}

func isTextFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range textExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
