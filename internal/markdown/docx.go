package markdown

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	errInvalidUTF8   = errors.New("file is not valid UTF-8")
	errNoDocumentXML = errors.New("word/document.xml not found")
)

// DOCX renders paragraphs, headings, bold/italic runs and tables of a Word
// document. Tables follow the paragraphs.
type DOCX struct{}

type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
		Tables     []docxTable     `xml:"tbl"`
	} `xml:"body"`
}

type docxParagraph struct {
	Props struct {
		Style struct {
			Val string `xml:"val,attr"`
		} `xml:"pStyle"`
	} `xml:"pPr"`
	Runs []docxRun
}

// runWrappers hold runs one level down; their runs stay in reading order.
var runWrappers = map[string]bool{"hyperlink": true, "smartTag": true, "ins": true, "fldSimple": true}

func (p *docxParagraph) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "pPr" && depth == 0:
				if err := d.DecodeElement(&p.Props, &t); err != nil {
					return err
				}
			case t.Name.Local == "r":
				var r docxRun
				if err := d.DecodeElement(&r, &t); err != nil {
					return err
				}
				p.Runs = append(p.Runs, r)
			case runWrappers[t.Name.Local]:
				depth++
			default:
				if err := d.Skip(); err != nil {
					return err
				}
			}
		case xml.EndElement:
			if depth == 0 {
				return nil
			}
			depth--
		}
	}
}

type docxRun struct {
	Props struct {
		Bold   *docxToggle `xml:"b"`
		Italic *docxToggle `xml:"i"`
	} `xml:"rPr"`
	Text []struct {
		Content string `xml:",chardata"`
	} `xml:"t"`
	Tabs []struct{} `xml:"tab"`
}

type docxToggle struct {
	Val string `xml:"val,attr"`
}

func (t *docxToggle) on() bool {
	if t == nil {
		return false
	}
	switch strings.ToLower(t.Val) {
	case "0", "false", "off":
		return false
	}
	return true
}

type docxTable struct {
	Rows []struct {
		Cells []struct {
			Paragraphs []docxParagraph `xml:"p"`
		} `xml:"tc"`
	} `xml:"tr"`
}

func (DOCX) Convert(_ context.Context, in Input) (string, error) {
	data, err := in.Bytes()
	if err != nil {
		return "", err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var body []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		body, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		break
	}
	if body == nil {
		return "", errNoDocumentXML
	}
	var doc docxDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("parse document.xml: %w", err)
	}

	var parts []string
	for _, p := range doc.Body.Paragraphs {
		plain := strings.TrimSpace(p.plainText())
		if plain == "" {
			continue
		}
		if level := headingLevel(p.Props.Style.Val); level > 0 {
			parts = append(parts, strings.Repeat("#", level)+" "+plain)
			continue
		}
		parts = append(parts, strings.TrimSpace(p.formatted()))
	}
	for _, t := range doc.Body.Tables {
		if md := t.markdown(); md != "" {
			parts = append(parts, md)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n")), nil
}

// headingLevel maps style ids like "Heading2" or "heading 2" to 2.
func headingLevel(style string) int {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	rest, ok := strings.CutPrefix(s, "heading")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > 6 {
		return 0
	}
	return n
}

func (p docxParagraph) plainText() string {
	var b strings.Builder
	for _, r := range p.Runs {
		b.WriteString(r.text())
	}
	return b.String()
}

func (p docxParagraph) formatted() string {
	var b strings.Builder
	for _, r := range p.Runs {
		text := r.text()
		if strings.TrimSpace(text) == "" {
			b.WriteString(text)
			continue
		}
		marker := ""
		switch bold, italic := r.Props.Bold.on(), r.Props.Italic.on(); {
		case bold && italic:
			marker = "***"
		case bold:
			marker = "**"
		case italic:
			marker = "*"
		}
		if marker == "" {
			b.WriteString(text)
			continue
		}
		// Markers must hug the text for Markdown emphasis to apply.
		lead := text[:len(text)-len(strings.TrimLeft(text, " "))]
		trail := text[len(strings.TrimRight(text, " ")):]
		b.WriteString(lead + marker + strings.TrimSpace(text) + marker + trail)
	}
	return b.String()
}

func (r docxRun) text() string {
	var b strings.Builder
	for range r.Tabs {
		b.WriteString("\t")
	}
	for _, t := range r.Text {
		b.WriteString(t.Content)
	}
	return b.String()
}

func (t docxTable) markdown() string {
	if len(t.Rows) == 0 {
		return ""
	}
	var lines []string
	for i, row := range t.Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, c := range row.Cells {
			var texts []string
			for _, p := range c.Paragraphs {
				if s := strings.TrimSpace(p.plainText()); s != "" {
					texts = append(texts, s)
				}
			}
			cells = append(cells, strings.ReplaceAll(strings.Join(texts, " "), "|", `\|`))
		}
		lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
		if i == 0 {
			sep := make([]string, len(cells))
			for j := range sep {
				sep[j] = "---"
			}
			lines = append(lines, "| "+strings.Join(sep, " | ")+" |")
		}
	}
	return strings.Join(lines, "\n")
}
