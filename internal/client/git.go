package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/sirupsen/logrus"

	"cairn/internal/config"
	"cairn/internal/core"
	"cairn/internal/flock"
	"cairn/internal/index"
)

// GitClient serves a registry kept in a git repository whose work tree uses
// the local registry layout. The cache key is the commit hash the checkout
// is at: each request refreshes the checkout (which is network access, so
// the before-network callback always fires) and a supplied key equal to the
// fresh HEAD validates as InCache.
type GitClient struct {
	NoPublish

	repoURL     string
	token       string
	cfg         *config.Config
	checkoutDir string
	log         *logrus.Entry

	mu   sync.Mutex // Protects repo operations
	repo *git.Repository
}

// Ensure GitClient implements RegistryClient
var _ RegistryClient = (*GitClient)(nil)

// NewGitClient creates a client for the registry repository at repoURL.
func NewGitClient(repoURL, token string, cfg *config.Config) (*GitClient, error) {
	repoURL = strings.TrimRight(repoURL, "/")

	return &GitClient{
		repoURL:     repoURL,
		token:       token,
		cfg:         cfg,
		checkoutDir: filepath.Join(cfg.CacheDir, "git", checkoutName(repoURL)),
		log:         logrus.WithField("registry", repoURL),
	}, nil
}

// checkoutName derives a readable, collision-free directory name for a
// repository URL.
func checkoutName(repoURL string) string {
	parts := strings.Split(strings.TrimSuffix(repoURL, ".git"), "/")
	repoName := parts[len(parts)-1]
	return fmt.Sprintf("%s-%s", repoName, core.SourceIdent(repoURL))
}

func (c *GitClient) GetRecords(ctx context.Context, pkg core.PackageName, cacheKey string, beforeNetwork BeforeNetworkCallback) (RegistryResource[index.IndexRecords], error) {
	var zero RegistryResource[index.IndexRecords]

	head, err := c.refresh(ctx, beforeNetwork)
	if err != nil {
		return zero, err
	}

	if cacheKey != "" && cacheKey == head {
		c.log.WithField("package", pkg).Debug("registry checkout unchanged")
		return InCacheResource[index.IndexRecords](), nil
	}

	data, err := os.ReadFile(filepath.Join(c.checkoutDir, "index", pkg.Slug()+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return NotFoundResource[index.IndexRecords](), nil
	}
	if err != nil {
		return zero, fmt.Errorf("failed to read index records: %w", err)
	}

	records, err := index.DecodeRecords(data)
	if err != nil {
		return zero, NewRegistryError(ErrInvalidRecords, err.Error())
	}

	return DownloadResource(records, head), nil
}

func (c *GitClient) Download(ctx context.Context, id core.PackageId, cacheKey string, beforeNetwork BeforeNetworkCallback, createScratchFile CreateScratchFileCallback) (RegistryResource[*flock.FileLockGuard], error) {
	var zero RegistryResource[*flock.FileLockGuard]

	head, err := c.refresh(ctx, beforeNetwork)
	if err != nil {
		return zero, err
	}

	if cacheKey != "" && cacheKey == head {
		c.log.WithField("package", id.String()).Debug("registry checkout unchanged")
		return InCacheResource[*flock.FileLockGuard](), nil
	}

	archive, err := os.Open(filepath.Join(c.checkoutDir, id.Tarball()))
	if errors.Is(err, os.ErrNotExist) {
		return NotFoundResource[*flock.FileLockGuard](), nil
	}
	if err != nil {
		return zero, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	guard, err := createScratchFile(c.cfg)
	if err != nil {
		return zero, err
	}

	if err := guard.Truncate(); err != nil {
		guard.Discard()
		return zero, fmt.Errorf("failed to reset scratch file: %w", err)
	}

	if _, err := io.Copy(guard.File(), archive); err != nil {
		guard.Discard()
		return zero, fmt.Errorf("failed to copy archive to %s: %w", guard.Path(), err)
	}

	if _, err := guard.File().Seek(0, 0); err != nil {
		guard.Discard()
		return zero, err
	}

	return DownloadResource(guard, head), nil
}

// refresh brings the checkout up to date with the remote and returns the
// resulting HEAD commit hash. beforeNetwork fires before the clone or pull.
func (c *GitClient) refresh(ctx context.Context, beforeNetwork BeforeNetworkCallback) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := beforeNetwork(); err != nil {
		return "", err
	}

	if c.repo == nil {
		if _, err := os.Stat(filepath.Join(c.checkoutDir, ".git")); err == nil {
			repo, err := git.PlainOpen(c.checkoutDir)
			if err != nil {
				return "", fmt.Errorf("failed to open repository: %w", err)
			}
			c.repo = repo
		} else if err := c.clone(ctx); err != nil {
			return "", err
		}
	}

	if err := c.pull(ctx); err != nil {
		return "", err
	}

	head, err := c.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

func (c *GitClient) clone(ctx context.Context) error {
	if err := os.MkdirAll(c.checkoutDir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkout directory: %w", err)
	}

	c.log.Debug("cloning registry repository")
	repo, err := git.PlainCloneContext(ctx, c.checkoutDir, false, &git.CloneOptions{
		URL:  c.repoURL,
		Auth: c.auth(),
	})
	if err != nil {
		if errors.Is(err, transport.ErrAuthenticationRequired) {
			return NewRegistryError(ErrUnauthorized,
				"authentication required - provide a git token for private registries")
		}
		return NewRegistryError(ErrNetworkError, fmt.Sprintf("failed to clone repository: %v", err))
	}

	c.repo = repo
	return nil
}

func (c *GitClient) pull(ctx context.Context) error {
	w, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	err = w.PullContext(ctx, &git.PullOptions{
		RemoteName: "origin",
		Auth:       c.auth(),
	})
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return nil
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return NewRegistryError(ErrUnauthorized,
			"authentication required - provide a git token for private registries")
	case err != nil:
		return fmt.Errorf("failed to pull latest changes: %w", err)
	}
	return nil
}

func (c *GitClient) auth() transport.AuthMethod {
	if c.token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "git", Password: c.token}
}
