// Package receipt reads fiscal receipts from the Moldovan tax service (SFS)
// verification portal, starting from the link printed as a QR code.
package receipt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"expense-bot/internal/metrics"
	"expense-bot/internal/model"
)

const (
	verifierBase = "https://mev.sfs.md/receipt-verifier/"
	siftBase     = "https://sift-mev.sfs.md/receipt/"
)

var browserHeaders = map[string]string{
	"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "ro-RO,ro;q=0.9,en-US;q=0.8,en;q=0.7",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "max-age=0",
}

// Portal fetches and parses receipt pages.
type Portal struct {
	http *http.Client
	now  func() time.Time
	// rewrite maps candidate URLs before fetching; nil outside tests.
	rewrite func(string) string
}

func NewPortal() *Portal {
	return &Portal{
		http: &http.Client{Timeout: 30 * time.Second},
		now:  time.Now,
	}
}

// CandidateURLs lists the addresses worth trying for a receipt link, starting
// with the link itself. The portal is served under several hosts and paths.
func CandidateURLs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	candidates := []string{raw}

	if u, err := url.Parse(raw); err == nil {
		var code string
		switch {
		case strings.Contains(u.Path, "/receipt-verifier/"):
			code = afterLast(u.Path, "/receipt-verifier/")
		case strings.Contains(u.Path, "/receipt/"):
			code = afterLast(u.Path, "/receipt/")
		}
		code = strings.Trim(code, "/")
		if code != "" {
			candidates = append(candidates,
				verifierBase+code,
				verifierBase+code+"/",
				siftBase+code,
			)
		}
	}

	seen := make(map[string]bool, len(candidates))
	unique := candidates[:0]
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			unique = append(unique, c)
		}
	}
	return unique
}

func afterLast(s, sep string) string {
	parts := strings.Split(s, sep)
	return parts[len(parts)-1]
}

// Parse fetches the receipt behind link, trying each candidate URL once, and
// returns it as a draft with confidence 1.
func (p *Portal) Parse(ctx context.Context, link string) (model.Draft, error) {
	candidates := CandidateURLs(link)
	if len(candidates) == 0 {
		return model.Draft{}, errors.New("invalid receipt link")
	}

	var lastErr error
	for _, candidate := range candidates {
		body, err := p.fetch(ctx, candidate)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		draft, err := ParseHTML(strings.NewReader(body), p.now())
		if err != nil {
			metrics.PortalFetches.WithLabelValues("error").Inc()
			return model.Draft{}, err
		}
		metrics.PortalFetches.WithLabelValues("ok").Inc()
		return draft, nil
	}

	metrics.PortalFetches.WithLabelValues("error").Inc()
	return model.Draft{}, errors.Wrapf(lastErr, "fetch receipt %s", link)
}

func (p *Portal) fetch(ctx context.Context, target string) (string, error) {
	if p.rewrite != nil {
		target = p.rewrite(target)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("GET %s: status %d", target, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
