package htmlscan

import (
	"io"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is the structural summary of one HTML document.
type Page struct {
	Title        string
	NumLinks     int
	NumForms     int
	HasLoginForm bool
	// Links holds the absolute http(s) targets of every <a href>, without
	// fragments, in document order and deduplicated.
	Links []string
}

// IsHTML reports whether a Content-Type header denotes an HTML document.
func IsHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// Scan tokenizes up to limit bytes of r. Relative links resolve against base.
// A login form is a <form> containing an <input type="password">.
func Scan(r io.Reader, base *url.URL, limit int64) (Page, error) {
	var (
		page      Page
		seen      = map[string]struct{}{}
		formDepth int
		inTitle   bool
	)
	z := html.NewTokenizer(io.LimitReader(r, limit))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return page, errors.Wrap(err, "tokenize html")
			}
			return page, nil
		case html.TextToken:
			if inTitle && page.Title == "" {
				page.Title = strings.TrimSpace(string(z.Text()))
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Form:
				if formDepth > 0 {
					formDepth--
				}
			case atom.Title:
				inTitle = false
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			attrs := map[string]string{}
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				attrs[string(k)] = string(v)
			}
			switch atom.Lookup(name) {
			case atom.Title:
				inTitle = tt == html.StartTagToken
			case atom.A:
				href, ok := attrs["href"]
				if !ok {
					continue
				}
				page.NumLinks++
				if link, ok := resolve(base, href); ok {
					if _, dup := seen[link]; !dup {
						seen[link] = struct{}{}
						page.Links = append(page.Links, link)
					}
				}
			case atom.Form:
				page.NumForms++
				if tt == html.StartTagToken {
					formDepth++
				}
			case atom.Input:
				if formDepth > 0 && strings.EqualFold(strings.TrimSpace(attrs["type"]), "password") {
					page.HasLoginForm = true
				}
			}
		}
	}
}

func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), true
}
