package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// FileProvider reads secrets from individual files.
//
// In strict mode only 0600 and 0400 permissions are accepted. Otherwise
// permissive files are read and a warning is logged.
type FileProvider struct {
	Strict bool
}

// NewFileProvider creates a file-based secret provider.
func NewFileProvider(strict bool) *FileProvider {
	return &FileProvider{Strict: strict}
}

// GetSecret reads the file at path and strips one trailing newline.
func (p *FileProvider) GetSecret(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("secret path is a directory: %s", path)
	}

	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		if p.Strict {
			return "", fmt.Errorf("insecure permissions on %s: %o (expected 0600 or 0400)", path, mode)
		}
		slog.Warn("secret file is readable by group or others",
			"path", path,
			"mode", fmt.Sprintf("%o", mode),
		)
	}

	// #nosec G304 - path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}

	return trimNewline(string(data)), nil
}

// Provider returns the provider name.
func (p *FileProvider) Provider() string {
	return "file"
}

func trimNewline(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "\n")
}
