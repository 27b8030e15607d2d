package extract

import (
    "bytes"
    "strings"

    "golang.org/x/net/html"
)

// Document is the main content picked out of a page.
type Document struct {
    Title string
    // HTML is the outer markup of the chosen content root.
    HTML string
    // Text is the normalized readable text of HTML.
    Text string
}

// strippedTags never carry main content.
var strippedTags = map[string]bool{
    "script": true, "style": true, "noscript": true, "nav": true,
    "footer": true, "header": true, "aside": true, "iframe": true,
    "form": true, "template": true,
}

// FromHTML picks the main content of a page. Boilerplate elements are
// removed first, then the root is chosen as <article>, then <main>, then a
// div whose class mentions "content", then the block holding the most
// paragraph text, then <body>, then the whole document. When stripping leaves
// no visible text the unstripped body is used instead.
func FromHTML(input []byte) Document {
    node, err := html.Parse(bytes.NewReader(input))
    if err != nil || node == nil {
        return Document{}
    }
    title := strings.TrimSpace(findTitle(node))

    pristine, _ := html.Parse(bytes.NewReader(input))
    removeBoilerplate(node)

    root := pickRoot(node)
    text := readableText(root)
    if text == "" && pristine != nil {
        // Nothing left after stripping; keep whatever is visible.
        root = findFirst(pristine, "body")
        if root == nil {
            root = pristine
        }
        text = readableText(root)
    }
    if root == nil {
        return Document{Title: title}
    }
    return Document{Title: title, HTML: render(root), Text: text}
}

func pickRoot(doc *html.Node) *html.Node {
    for _, tag := range []string{"article", "main"} {
        if n := findFirst(doc, tag); n != nil && readableText(n) != "" {
            return n
        }
    }
    if n := findFirstMatching(doc, func(n *html.Node) bool {
        return n.Data == "div" && strings.Contains(strings.ToLower(attr(n, "class")), "content")
    }); n != nil && readableText(n) != "" {
        return n
    }
    if n := densestBlock(doc); n != nil {
        return n
    }
    if body := findFirst(doc, "body"); body != nil {
        return body
    }
    return doc
}

// densestBlock returns the div/section/td whose direct paragraph children
// carry the most text.
func densestBlock(doc *html.Node) *html.Node {
    var best *html.Node
    bestScore := 0
    var walk func(*html.Node)
    walk = func(n *html.Node) {
        if n.Type == html.ElementNode {
            switch n.Data {
            case "div", "section", "td":
                if s := paragraphScore(n); s > bestScore {
                    best, bestScore = n, s
                }
            }
        }
        for c := n.FirstChild; c != nil; c = c.NextSibling {
            walk(c)
        }
    }
    walk(doc)
    return best
}

func paragraphScore(n *html.Node) int {
    score := 0
    for c := n.FirstChild; c != nil; c = c.NextSibling {
        switch {
        case c.Type == html.TextNode:
            score += len(strings.TrimSpace(c.Data))
        case c.Type == html.ElementNode && (c.Data == "p" || c.Data == "pre" || c.Data == "blockquote"):
            score += len(readableText(c))
        }
    }
    return score
}

func removeBoilerplate(n *html.Node) {
    for c := n.FirstChild; c != nil; {
        next := c.NextSibling
        if c.Type == html.CommentNode ||
            (c.Type == html.ElementNode && (strippedTags[strings.ToLower(c.Data)] || isBoilerplateContainer(c))) {
            n.RemoveChild(c)
        } else {
            removeBoilerplate(c)
        }
        c = next
    }
}

func findTitle(n *html.Node) string {
    head := findFirst(n, "head")
    if head == nil {
        return ""
    }
    t := findFirst(head, "title")
    if t == nil || t.FirstChild == nil {
        return ""
    }
    return t.FirstChild.Data
}

func findFirst(n *html.Node, tag string) *html.Node {
    return findFirstMatching(n, func(cur *html.Node) bool { return strings.EqualFold(cur.Data, tag) })
}

func findFirstMatching(n *html.Node, match func(*html.Node) bool) *html.Node {
    if n == nil {
        return nil
    }
    if n.Type == html.ElementNode && match(n) {
        return n
    }
    for c := n.FirstChild; c != nil; c = c.NextSibling {
        if res := findFirstMatching(c, match); res != nil {
            return res
        }
    }
    return nil
}

func attr(n *html.Node, key string) string {
    for _, a := range n.Attr {
        if strings.EqualFold(a.Key, key) {
            return a.Val
        }
    }
    return ""
}

func render(n *html.Node) string {
    var b bytes.Buffer
    if err := html.Render(&b, n); err != nil {
        return ""
    }
    return b.String()
}

// readableText returns the normalized visible text under n.
func readableText(n *html.Node) string {
    if n == nil {
        return ""
    }
    var b strings.Builder
    collectText(&b, n, false)
    return normalizeWhitespace(b.String())
}

func collectText(b *strings.Builder, n *html.Node, inPre bool) {
    if n.Type == html.ElementNode {
        name := strings.ToLower(n.Data)
        switch name {
        case "script", "style", "noscript", "template":
            return
        case "pre", "code":
            inPre = true
        case "br", "hr":
            b.WriteString("\n")
        case "p", "h1", "h2", "h3", "h4", "h5", "h6", "li", "ul", "ol":
            b.WriteString("\n")
        }
    }

    if n.Type == html.TextNode {
        data := n.Data
        if !inPre {
            data = strings.ReplaceAll(data, "\t", " ")
            data = strings.ReplaceAll(data, "\r", " ")
        }
        b.WriteString(data)
    }

    for c := n.FirstChild; c != nil; c = c.NextSibling {
        collectText(b, c, inPre)
    }

    if n.Type == html.ElementNode {
        switch strings.ToLower(n.Data) {
        case "p", "h1", "h2", "h3", "h4", "h5", "h6":
            b.WriteString("\n\n")
        case "li", "pre":
            b.WriteString("\n")
        }
    }
}

// isBoilerplateContainer returns true if the element looks like a cookie/consent banner.
func isBoilerplateContainer(n *html.Node) bool {
    if n == nil || n.Type != html.ElementNode {
        return false
    }
    for _, a := range n.Attr {
        key := strings.ToLower(a.Key)
        if key != "id" && key != "class" && !strings.HasPrefix(key, "data-") && key != "aria-label" && key != "role" {
            continue
        }
        if containsAny(strings.ToLower(a.Val), []string{"cookie", "consent", "gdpr"}) {
            return true
        }
    }
    return false
}

func containsAny(s string, needles []string) bool {
    for _, n := range needles {
        if strings.Contains(s, n) {
            return true
        }
    }
    return false
}

func normalizeWhitespace(s string) string {
    lines := strings.Split(s, "\n")
    out := make([]string, 0, len(lines))
    for _, line := range lines {
        trimmed := strings.TrimSpace(line)
        if trimmed == "" {
            // Keep at most one consecutive blank
            if len(out) > 0 && out[len(out)-1] == "" {
                continue
            }
            out = append(out, "")
            continue
        }
        out = append(out, collapseSpaces(trimmed))
    }
    for len(out) > 0 && out[0] == "" {
        out = out[1:]
    }
    for len(out) > 0 && out[len(out)-1] == "" {
        out = out[:len(out)-1]
    }
    return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
    var b strings.Builder
    lastSpace := false
    for _, r := range s {
        if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
            if !lastSpace {
                b.WriteByte(' ')
                lastSpace = true
            }
            continue
        }
        b.WriteRune(r)
        lastSpace = false
    }
    return b.String()
}
