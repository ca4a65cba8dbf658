package ingest

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ExtractText converts raw catalog content (course descriptions, tutorial
// pages, syllabus PDFs) into plain text. The format is sniffed from the
// bytes first, then the filename extension.
func ExtractText(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty content: %s", name)
	}

	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case isPDF(data):
		return extractPDF(data)
	case ext == ".pdf":
		return "", fmt.Errorf("%s claims pdf but lacks the %%PDF header", name)
	case looksLikeHTML(data) || ext == ".html" || ext == ".htm":
		return extractHTML(data)
	default:
		return collapseWhitespace(string(data)), nil
	}
}

func isPDF(b []byte) bool {
	return len(b) >= 5 && string(b[:5]) == "%PDF-"
}

func looksLikeHTML(b []byte) bool {
	head := strings.ToLower(strings.TrimSpace(string(b[:min(len(b), 2048)])))
	return strings.HasPrefix(head, "<!doctype") ||
		strings.HasPrefix(head, "<html") ||
		strings.Contains(head, "<body")
}

func extractPDF(data []byte) (string, error) {
	r, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return collapseWhitespace(string(b)), nil
}

// extractHTML walks the parse tree and collects text nodes, skipping
// script and style subtrees.
func extractHTML(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return collapseWhitespace(b.String()), nil
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}
