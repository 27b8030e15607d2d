package app

import (
    "bufio"
    "regexp"
    "strings"

    "github.com/jung-kurt/gofpdf"
)

var linkRe = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`) // [text](url)

// WritePDF renders a minimal PDF from Markdown text, preserving paragraphs and
// turning Markdown links [text](url) into clickable PDF links. Code fences are
// set in a monospace font. This does not perform full Markdown layout.
func WritePDF(markdown string, outPath string) error {
    pdf := gofpdf.New("P", "mm", "A4", "")
    pdf.SetFont("Helvetica", "", 11)
    pdf.AddPage()
    // Core fonts are cp1252; map UTF-8 input so accents survive.
    tr := pdf.UnicodeTranslatorFromDescriptor("")

    inCode := false
    scanner := bufio.NewScanner(strings.NewReader(markdown))
    scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
    for scanner.Scan() {
        line := scanner.Text()
        s := strings.TrimSpace(line)
        if strings.HasPrefix(s, "```") {
            inCode = !inCode
            if inCode {
                pdf.SetFont("Courier", "", 9)
            } else {
                pdf.SetFont("Helvetica", "", 11)
            }
            continue
        }
        if inCode {
            pdf.CellFormat(0, 4, tr(line), "", 1, "L", false, 0, "")
            continue
        }
        if s == "" {
            pdf.Ln(5)
            continue
        }
        if s == "---" {
            pdf.Ln(2)
            y := pdf.GetY()
            pdf.Line(10, y, 200, y)
            pdf.Ln(2)
            continue
        }
        if strings.HasPrefix(s, "#") {
            i := 0
            for i < len(s) && s[i] == '#' { i++ }
            text := strings.TrimSpace(s[i:])
            if text == "" { continue }
            size := 16.0
            switch {
            case i == 2:
                size = 14.0
            case i >= 3:
                size = 12.0
            }
            pdf.SetFont("Helvetica", "B", size)
            pdf.MultiCell(0, 8, tr(text), "", "L", false)
            pdf.SetFont("Helvetica", "", 11)
            continue
        }
        parts := linkRe.FindAllStringSubmatchIndex(s, -1)
        if len(parts) == 0 {
            pdf.MultiCell(0, 5, tr(s), "", "L", false)
            continue
        }
        pos := 0
        for _, m := range parts {
            // m: [fullStart, fullEnd, textStart, textEnd, urlStart, urlEnd]
            if m[0] > pos {
                pdf.Write(5, tr(s[pos:m[0]]))
            }
            text := tr(s[m[2]:m[3]])
            url := s[m[4]:m[5]]
            if strings.HasPrefix(url, "#") {
                pdf.Write(5, text)
            } else {
                pdf.WriteLinkString(5, text, url)
            }
            pos = m[1]
        }
        if pos < len(s) {
            pdf.Write(5, tr(s[pos:]))
        }
        pdf.Ln(6)
    }
    if err := scanner.Err(); err != nil {
        return err
    }
    return pdf.OutputFileAndClose(outPath)
}
