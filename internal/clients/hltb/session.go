package hltb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The provider embeds the id its search endpoint expects inside the Next.js
// "_app" bundle. Both shapes it has shipped so far are recognised.
var (
	userIDPattern  = regexp.MustCompile(`users\s*:\s*\{\s*id\s*:\s*"([^"]+)"`)
	concatPattern  = regexp.MustCompile(`"/api/\w+/"((?:\.concat\("[^"]*"\))+)`)
	concatFragment = regexp.MustCompile(`\.concat\("([^"]*)"\)`)
)

// ExtractSearchKey pulls the search key out of a script bundle.
func ExtractSearchKey(script string) (string, bool) {
	if m := userIDPattern.FindStringSubmatch(script); len(m) > 1 && m[1] != "" {
		return m[1], true
	}

	if m := concatPattern.FindStringSubmatch(script); len(m) > 1 {
		var b strings.Builder
		for _, part := range concatFragment.FindAllStringSubmatch(m[1], -1) {
			b.WriteString(part[1])
		}
		if b.Len() > 0 {
			return b.String(), true
		}
	}

	return "", false
}

// scriptSources lists the homepage script bundles, "_app-" bundles first.
func scriptSources(body io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	var app, other []string
	doc.Find("script[src]").Each(func(i int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || src == "" {
			return
		}
		if strings.Contains(src, "_app-") {
			app = append(app, src)
			return
		}
		other = append(other, src)
	})

	return append(app, other...), nil
}

func (c *Client) cachedKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchKey
}

func (c *Client) resetKey() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searchKey = ""
}

// key returns the cached search key, scraping the homepage when there is none.
func (c *Client) key(ctx context.Context) (string, error) {
	if k := c.cachedKey(); k != "" {
		return k, nil
	}

	k, err := c.fetchSearchKey(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.searchKey = k
	c.mu.Unlock()

	return k, nil
}

func (c *Client) fetchSearchKey(ctx context.Context) (string, error) {
	const op = "clients.hltb.fetchSearchKey"

	resp, err := c.get(ctx, c.baseURL+"/")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	sources, err := scriptSources(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: parse homepage: %w", op, err)
	}

	for _, src := range sources {
		script, err := c.fetchScript(ctx, c.absolute(src))
		if err != nil {
			c.log.Debug("skipping script bundle", "operation", op, "src", src, "error", err.Error())
			continue
		}
		if k, ok := ExtractSearchKey(script); ok {
			return k, nil
		}
	}

	return "", fmt.Errorf("%s: %w", op, ErrSearchKey)
}

func (c *Client) fetchScript(ctx context.Context, url string) (string, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.browserHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp, nil
}
