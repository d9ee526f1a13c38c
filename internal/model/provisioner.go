// Package model provisions sentence-embedding model artifacts into a local cache.
package model

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/hikaku/internal/config"
	"go.uber.org/zap"
)

const (
	// MarkerFile signals a fully downloaded cache entry. It is written last
	// during a download so an interrupted fetch is never considered complete.
	MarkerFile = "config.json"
	// VocabFile is the WordPiece vocabulary used by the tokenizer.
	VocabFile = "vocab.txt"
	// ModelFile is the ONNX export of the embedding model.
	ModelFile = "model.onnx"
)

// artifact maps a path under the registry's resolve/main tree to its local file name.
type artifact struct {
	remote string
	local  string
}

// The marker file comes last; see MarkerFile.
var artifacts = []artifact{
	{remote: "vocab.txt", local: VocabFile},
	{remote: "onnx/model.onnx", local: ModelFile},
	{remote: "config.json", local: MarkerFile},
}

// Provisioner ensures a named model's artifacts are available on local storage,
// fetching them from the remote registry when no complete local copy exists.
type Provisioner struct {
	cfg    *config.ModelConfig
	client *http.Client
	logger *zap.Logger
}

// NewProvisioner creates a provisioner for the configured model. A nil logger
// is replaced with a no-op logger.
func NewProvisioner(cfg *config.ModelConfig, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Minute},
		logger: logger,
	}
}

// LocalPath returns the model's cache directory.
func (p *Provisioner) LocalPath() string {
	return p.cfg.LocalPath()
}

// IsComplete reports whether the cache entry exists and carries the marker file.
func (p *Provisioner) IsComplete() bool {
	if info, err := os.Stat(p.LocalPath()); err != nil || !info.IsDir() {
		return false
	}
	_, err := os.Stat(filepath.Join(p.LocalPath(), MarkerFile))
	return err == nil
}

// EnsureAvailable returns the local model path, downloading the model from the
// remote registry first if no complete local copy exists. Errors propagate to
// the caller; a failed provisioning is not recoverable at request time.
func (p *Provisioner) EnsureAvailable(ctx context.Context) (string, error) {
	if p.IsComplete() {
		p.logger.Info("model found in local cache",
			zap.String("model", p.cfg.Name),
			zap.String("path", p.LocalPath()))
		return p.LocalPath(), nil
	}
	p.logger.Info("model not found locally, fetching from registry",
		zap.String("model", p.cfg.RegistryID()),
		zap.String("registry", p.cfg.Registry))
	if err := p.Download(ctx); err != nil {
		return "", err
	}
	return p.LocalPath(), nil
}

// Download fetches all model artifacts from the registry into the cache entry,
// overwriting any existing files. The model artifact is checksum-verified when
// a checksum is configured.
func (p *Provisioner) Download(ctx context.Context) error {
	dir := p.LocalPath()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	for _, a := range artifacts {
		wantSum := ""
		if a.local == ModelFile {
			wantSum = p.cfg.Checksum
		}
		url := p.artifactURL(a.remote)
		p.logger.Info("downloading model artifact", zap.String("url", url))
		if err := p.fetch(ctx, url, filepath.Join(dir, a.local), wantSum); err != nil {
			return fmt.Errorf("failed to fetch %s: %w", a.remote, err)
		}
	}
	p.logger.Info("model downloaded", zap.String("path", dir))
	return nil
}

// artifactURL builds the registry URL for an artifact path.
func (p *Provisioner) artifactURL(remote string) string {
	base := strings.TrimRight(p.cfg.Registry, "/")
	return fmt.Sprintf("%s/%s/resolve/main/%s", base, p.cfg.RegistryID(), remote)
}

// fetch downloads url into dest via a temp file so a partial download never
// lands under the final name. When wantSum is non-empty the payload's sha256
// must match it.
func (p *Provisioner) fetch(ctx context.Context, url, dest, wantSum string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry returned %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".partial-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if wantSum != "" {
		gotSum := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(gotSum, wantSum) {
			return fmt.Errorf("checksum mismatch: got %s, want %s", gotSum, wantSum)
		}
	}
	return os.Rename(tmp.Name(), dest)
}

// ConfirmRedownload asks the operator whether to re-download an existing model,
// reading a y/n answer from r. Only the CLI calls this; the serve path never
// prompts.
func ConfirmRedownload(r io.Reader, w io.Writer, path string) bool {
	fmt.Fprintf(w, "Model already exists at: %s\n", path)
	fmt.Fprint(w, "Do you want to re-download? (y/n): ")
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}
