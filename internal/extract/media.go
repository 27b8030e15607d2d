package extract

import (
    "bytes"
    "fmt"
    "strings"

    "github.com/dyatlov/go-opengraph/opengraph"
)

// Media is the OpenGraph description of a video or media page.
type Media struct {
    Title       string
    Description string
    SiteName    string
    URL         string
    VideoURL    string
    ImageURL    string
}

// MediaFromHTML reads OpenGraph tags. ok is false when the page declares
// neither a title nor a description.
func MediaFromHTML(input []byte) (Media, bool) {
    og := opengraph.NewOpenGraph()
    if err := og.ProcessHTML(bytes.NewReader(input)); err != nil {
        return Media{}, false
    }
    m := Media{
        Title:       strings.TrimSpace(og.Title),
        Description: strings.TrimSpace(og.Description),
        SiteName:    strings.TrimSpace(og.SiteName),
        URL:         strings.TrimSpace(og.URL),
    }
    for _, v := range og.Videos {
        if v != nil && v.URL != "" {
            m.VideoURL = v.URL
            break
        }
    }
    for _, img := range og.Images {
        if img != nil && img.URL != "" {
            m.ImageURL = img.URL
            break
        }
    }
    if m.Title == "" && m.Description == "" {
        return Media{}, false
    }
    return m, true
}

// Markdown renders m as a short summary block.
func (m Media) Markdown() string {
    var b strings.Builder
    if m.Title != "" {
        fmt.Fprintf(&b, "## %s\n\n", m.Title)
    }
    if m.SiteName != "" {
        fmt.Fprintf(&b, "- Site: %s\n", m.SiteName)
    }
    if m.URL != "" {
        fmt.Fprintf(&b, "- Page: %s\n", m.URL)
    }
    if m.VideoURL != "" {
        fmt.Fprintf(&b, "- Video: %s\n", m.VideoURL)
    }
    if m.ImageURL != "" {
        fmt.Fprintf(&b, "- Thumbnail: %s\n", m.ImageURL)
    }
    if m.Description != "" {
        if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n\n") {
            b.WriteString("\n")
        }
        b.WriteString(m.Description)
        b.WriteString("\n")
    }
    return strings.TrimRight(b.String(), "\n")
}
