package utils

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cometbot/comet/pkg/logger"
)

type DownloadOptions struct {
	LoggerPrefix string
	LocalDir     string
	Timeout      time.Duration
}

// DownloadFile fetches url into opts.LocalDir and returns the local path,
// or "" on any failure. Failures are logged, not returned; callers degrade
// to a text placeholder.
func DownloadFile(url, filename string, opts DownloadOptions) string {
	prefix := opts.LoggerPrefix
	if prefix == "" {
		prefix = "download"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if err := os.MkdirAll(opts.LocalDir, 0700); err != nil {
		logger.WarnCF(prefix, "Failed to create download directory", map[string]interface{}{
			"dir":   opts.LocalDir,
			"error": err.Error(),
		})
		return ""
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		logger.WarnCF(prefix, "Download failed", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.WarnCF(prefix, "Download returned bad status", map[string]interface{}{
			"url":    url,
			"status": resp.StatusCode,
		})
		return ""
	}

	name := SanitizeFilename(filename)
	if name == "" {
		name = "file"
	}
	target := filepath.Join(opts.LocalDir, uniqueName(name))

	out, err := os.Create(target)
	if err != nil {
		logger.WarnCF(prefix, "Failed to create download target", map[string]interface{}{
			"path":  target,
			"error": err.Error(),
		})
		return ""
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		logger.WarnCF(prefix, "Failed to write download", map[string]interface{}{
			"path":  target,
			"error": err.Error(),
		})
		os.Remove(target)
		return ""
	}

	return target
}

func uniqueName(base string) string {
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return name + "_" + strconv.FormatInt(time.Now().UnixNano(), 10) + ext
}

// SanitizeFilename strips path separators and control characters so a
// platform-supplied name cannot escape the media directory.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	name = filepath.Base(name)
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20, r == '/', r == '\\', r == ':', r == '*', r == '?', r == '"', r == '<', r == '>', r == '|':
			sb.WriteRune('_')
		default:
			sb.WriteRune(r)
		}
	}
	out := sb.String()
	if out == "." || out == ".." {
		return ""
	}
	return out
}
