package fsutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/specialistvlad/codebox/internal/ctxlog"
)

// ErrBadReference is returned for file references that cannot be staged.
var ErrBadReference = errors.New("fsutil: bad file reference")

var windowsPath = regexp.MustCompile(`^[A-Za-z]:\\`)

// Stager copies or downloads input files into a working directory.
type Stager struct {
	client   *http.Client
	maxBytes int64
}

// NewStager creates a Stager whose downloads are bounded by timeout and
// maxBytes. A non-positive maxBytes disables the size limit.
func NewStager(timeout time.Duration, maxBytes int64) *Stager {
	return &Stager{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxBytes: maxBytes,
	}
}

// Close releases idle HTTP connections.
func (s *Stager) Close() {
	s.client.CloseIdleConnections()
}

// Stage places every reference in refs into dir and returns the staged paths.
// Local paths and file:// URLs are copied, http(s) URLs are downloaded. An
// existing file with the same name is replaced.
func (s *Stager) Stage(ctx context.Context, dir string, refs []string) ([]string, error) {
	logger := ctxlog.FromContext(ctx)
	staged := make([]string, 0, len(refs))
	for _, ref := range refs {
		name := BaseName(ref)
		if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
			return staged, fmt.Errorf("%w: %q has no file name", ErrBadReference, ref)
		}
		dst := filepath.Join(dir, name)
		_ = os.Remove(dst)

		start := time.Now()
		var err error
		if IsHTTPURL(ref) {
			err = s.download(ctx, ref, dst)
		} else {
			err = copyFile(localPath(ref), dst)
		}
		if err != nil {
			return staged, fmt.Errorf("staging %s: %w", ref, err)
		}
		logger.Debug("Staged input file.", "ref", ref, "path", dst, "duration", time.Since(start))
		staged = append(staged, dst)
	}
	return staged, nil
}

func (s *Stager) download(ctx context.Context, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("can not download this file: unexpected status %s", resp.Status)
	}

	var body io.Reader = resp.Body
	if s.maxBytes > 0 {
		body = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	n, err := writeFile(dst, body)
	if err != nil {
		return err
	}
	if s.maxBytes > 0 && n > s.maxBytes {
		os.Remove(dst)
		return fmt.Errorf("file exceeds %d bytes", s.maxBytes)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = writeFile(dst, in)
	return err
}

func writeFile(dst string, r io.Reader) (int64, error) {
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// IsHTTPURL reports whether ref is an http or https URL.
func IsHTTPURL(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

// BaseName derives the staged file name from a path or URL: the last path
// segment with query and escapes removed, falling back to the last non-empty
// segment of the raw reference (so "https://example.com/" yields
// "example.com").
func BaseName(ref string) string {
	if windowsPath.MatchString(ref) {
		ref = strings.ReplaceAll(ref, `\`, "/")
	}
	p := ref
	if u, err := url.Parse(ref); err == nil {
		p = u.EscapedPath()
	}
	base := path.Base(p)
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	base = strings.TrimSpace(base)
	if base == "." || base == "/" {
		base = ""
	}
	if base == "" {
		for _, seg := range strings.Split(ref, "/") {
			if seg = strings.TrimSpace(seg); seg != "" {
				base = seg
			}
		}
	}
	return base
}

func localPath(ref string) string {
	if strings.HasPrefix(ref, "file://") {
		if u, err := url.Parse(ref); err == nil {
			return u.Path
		}
	}
	return ref
}
