package network

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

type persistedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ExportCookies serializes the jar's cookies for u into an opaque blob.
// A nil jar or an empty jar yields a nil blob.
func ExportCookies(jar http.CookieJar, u *url.URL) ([]byte, error) {
	if jar == nil {
		return nil, nil
	}

	cookies := jar.Cookies(u)
	if len(cookies) == 0 {
		return nil, nil
	}

	out := make([]persistedCookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, persistedCookie{Name: c.Name, Value: c.Value})
	}

	blob, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cookies: %w", err)
	}
	return blob, nil
}

// ImportCookies restores cookies produced by ExportCookies into jar for u
func ImportCookies(jar http.CookieJar, u *url.URL, blob []byte) (int, error) {
	if jar == nil {
		return 0, fmt.Errorf("client has no cookie jar")
	}
	if len(blob) == 0 {
		return 0, nil
	}

	var in []persistedCookie
	if err := json.Unmarshal(blob, &in); err != nil {
		return 0, fmt.Errorf("failed to decode cookies: %w", err)
	}

	cookies := make([]*http.Cookie, 0, len(in))
	for _, c := range in {
		if c.Name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/"})
	}
	jar.SetCookies(u, cookies)

	return len(cookies), nil
}
