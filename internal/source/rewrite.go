package source

import (
    "net/url"
    "regexp"
    "strings"
)

// arxivAbsPath matches /abs/<id> with optional version, e.g. /abs/2301.07041v2.
var arxivAbsPath = regexp.MustCompile(`^/abs/([A-Za-z\-.]*/?\d{4}\.?\d{3,5}(?:v\d+)?)/?$`)

const arxivPDFBase = "https://arxiv.org/pdf/"

// RewriteAcademic returns the canonical document download URL for a
// recognized paper abstract page, and whether a rewrite happened.
func RewriteAcademic(raw string) (string, bool) {
    u, err := url.Parse(raw)
    if err != nil {
        return raw, false
    }
    host := normalizeHost(u.Hostname())
    if host != "arxiv.org" && host != "export.arxiv.org" {
        return raw, false
    }
    m := arxivAbsPath.FindStringSubmatch(u.Path)
    if m == nil {
        return raw, false
    }
    return arxivPDFBase + m[1], true
}

var shortVideoHosts = map[string]bool{
    "youtu.be":      true,
    "b23.tv":        true,
    "v.douyin.com":  true,
    "vm.tiktok.com": true,
    "vt.tiktok.com": true,
}

var mediaPageDomains = []string{
    "youtube.com",
    "bilibili.com",
    "douyin.com",
    "tiktok.com",
}

// IsShortVideo reports whether host serves short links that redirect to a
// media page.
func IsShortVideo(host string) bool {
    return shortVideoHosts[normalizeHost(host)]
}

// IsMediaPage reports whether host is a stable video page host.
func IsMediaPage(host string) bool {
    h := normalizeHost(host)
    for _, d := range mediaPageDomains {
        if h == d || strings.HasSuffix(h, "."+d) {
            return true
        }
    }
    return false
}

// Host returns the normalized host of a URL, or "" when it does not parse.
func Host(raw string) string {
    u, err := url.Parse(raw)
    if err != nil {
        return ""
    }
    return normalizeHost(u.Hostname())
}

func normalizeHost(h string) string {
    h = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(h), "."))
    return strings.TrimPrefix(h, "www.")
}
