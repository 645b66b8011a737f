package rates

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/specwright/takeoff-cli/internal/resilience"
)

// FTPOptions configures price book downloads from supplier FTP sites.
type FTPOptions struct {
	Timeout time.Duration
	User    string
	Pass    string
}

// FetchPriceBook downloads a price book from an ftp:// URL into destDir
// and returns the local path. Transient failures (busy supplier sites,
// dropped connections) are retried with backoff. The file is then loaded
// with LoadXLSX or LoadYAML depending on its extension.
func FetchPriceBook(ctx context.Context, rawURL, destDir string, opts FTPOptions) (string, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	host, remotePath, err := parseFTPURL(rawURL)
	if err != nil {
		return "", err
	}

	return resilience.DoVal(ctx, resilience.RetryConfig{
		OnRetry: resilience.RetryLogger("ftp", "fetch price book"),
	}, func(ctx context.Context) (string, error) {
		return fetchOnce(ctx, host, remotePath, rawURL, destDir, opts)
	})
}

func fetchOnce(ctx context.Context, host, remotePath, rawURL, destDir string, opts FTPOptions) (string, error) {
	conn, err := ftp.Dial(host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(opts.Timeout))
	if err != nil {
		return "", eris.Wrap(err, "rates: ftp dial")
	}
	defer func() {
		if quitErr := conn.Quit(); quitErr != nil {
			zap.L().Warn("rates: ftp quit", zap.Error(quitErr))
		}
	}()

	user, pass := opts.User, opts.Pass
	if user == "" {
		user, pass = "anonymous", "anonymous"
	}
	if err := conn.Login(user, pass); err != nil {
		return "", eris.Wrap(err, "rates: ftp login")
	}

	resp, err := conn.Retr(remotePath)
	if err != nil {
		return "", eris.Wrapf(err, "rates: ftp retr %s", remotePath)
	}
	defer resp.Close()

	local := filepath.Join(destDir, filepath.Base(remotePath))
	out, err := os.Create(local)
	if err != nil {
		return "", eris.Wrap(err, "rates: create local file")
	}
	defer out.Close()

	n, err := io.Copy(out, resp)
	if err != nil {
		return "", eris.Wrap(err, "rates: download price book")
	}
	zap.L().Info("rates: price book downloaded",
		zap.String("url", rawURL),
		zap.String("local", local),
		zap.Int64("bytes", n),
	)
	return local, nil
}

func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "rates: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("rates: expected ftp scheme, got %q", u.Scheme)
	}
	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" {
		return "", "", eris.New("rates: empty path in ftp url")
	}
	return host, u.Path, nil
}
