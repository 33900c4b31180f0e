package script

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"
)

// ContentType is the detected kind of worker content
type ContentType string

const (
	ContentJavaScript ContentType = "javascript"
	ContentHTML       ContentType = "html"
)

// Content is worker source prepared for the VM
type Content struct {
	Type    ContentType
	MIME    string
	Title   string
	Scripts []string
}

// Inspect detects the content type and extracts runnable scripts
func Inspect(data []byte) (*Content, error) {
	mime := mimetype.Detect(data)
	c := &Content{Type: ContentJavaScript, MIME: mime.String()}

	if !mime.Is("text/html") {
		c.Scripts = []string{string(data)}
		return c, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html content: %w", err)
	}

	c.Type = ContentHTML
	c.Title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script").Each(func(i int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			// External scripts are not fetched
			return
		}
		if kind, ok := s.Attr("type"); ok && kind != "" && !isJavaScriptType(kind) {
			return
		}
		if code := s.Text(); strings.TrimSpace(code) != "" {
			c.Scripts = append(c.Scripts, code)
		}
	})
	return c, nil
}

func isJavaScriptType(t string) bool {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "text/javascript", "application/javascript", "module":
		return true
	}
	return false
}
