package transcribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
)

const hfBase = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// KnownModels maps ggml model file names to their download URLs.
var KnownModels = map[string]string{
	"ggml-tiny.en.bin":             hfBase + "ggml-tiny.en.bin",
	"ggml-base.en.bin":             hfBase + "ggml-base.en.bin",
	"ggml-base.bin":                hfBase + "ggml-base.bin",
	"ggml-small.en.bin":            hfBase + "ggml-small.en.bin",
	"ggml-small-q5_1.bin":          hfBase + "ggml-small-q5_1.bin",
	"ggml-medium-q5_1.bin":         hfBase + "ggml-medium-q5_1.bin",
	"ggml-large-v3-q5_0.bin":       hfBase + "ggml-large-v3-q5_0.bin",
	"ggml-large-v3-turbo-q8_0.bin": hfBase + "ggml-large-v3-turbo-q8_0.bin",
	"ggml-large-v3-turbo.bin":      hfBase + "ggml-large-v3-turbo.bin",
}

// ModelNames returns the registry names sorted.
func ModelNames() []string {
	names := make([]string, 0, len(KnownModels))
	for n := range KnownModels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LocalModels lists model files present in dir.
func LocalModels(dir string) map[string]bool {
	local := map[string]bool{}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".bin" {
			local[e.Name()] = true
		}
	}
	return local
}

// DownloadModel fetches a registry model into dir. The body is written to a
// .part file and renamed once complete.
func DownloadModel(ctx context.Context, client *http.Client, name, dir string, progress io.Writer) (string, error) {
	url, ok := KnownModels[name]
	if !ok {
		return "", fmt.Errorf("unknown model %q; run `murmur models list`", name)
	}
	return downloadTo(ctx, client, url, filepath.Join(dir, name), progress)
}

func downloadTo(ctx context.Context, client *http.Client, url, dest string, progress io.Writer) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: %s", resp.Status)
	}
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	var body io.Reader = resp.Body
	if progress != nil {
		body = io.TeeReader(resp.Body, &counter{w: progress, total: resp.ContentLength})
	}
	if _, err := io.Copy(out, body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// counter prints a percentage line roughly every 5%.
type counter struct {
	w     io.Writer
	total int64
	n     int64
	last  int64
}

func (c *counter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	if c.total > 0 {
		pct := c.n * 100 / c.total
		if pct >= c.last+5 || pct == 100 && c.last != 100 {
			c.last = pct
			_, _ = fmt.Fprintf(c.w, "\r%3d%%", pct)
			if pct == 100 {
				_, _ = fmt.Fprintln(c.w)
			}
		}
	}
	return len(p), nil
}
