package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/PRYePR/moreyudeals-sub000/internal/models"
)

// ContentBlocks parses an HTML fragment into ordered, typed content blocks.
func ContentBlocks(fragment string) ([]models.ContentBlock, error) {
	if strings.TrimSpace(fragment) == "" {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("failed to parse content HTML: %w", err)
	}
	var blocks []models.ContentBlock
	walkBlocks(doc.Find("body").Contents(), &blocks)
	return blocks, nil
}

var inlineNodes = map[string]bool{
	"#text": true, "a": true, "strong": true, "b": true, "em": true, "i": true,
	"span": true, "u": true, "small": true, "sup": true, "sub": true, "mark": true,
}

func walkBlocks(sel *goquery.Selection, blocks *[]models.ContentBlock) {
	var inline strings.Builder
	flush := func() {
		appendText(blocks, models.BlockText, inline.String())
		inline.Reset()
	}

	sel.Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		if inlineNodes[name] {
			inline.WriteString(s.Text())
			return
		}
		flush()

		switch name {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			if text := clean(s.Text()); text != "" {
				*blocks = append(*blocks, models.ContentBlock{Type: models.BlockHeading, Text: text, Level: int(name[1] - '0')})
			}
		case "p":
			appendText(blocks, models.BlockText, s.Text())
			s.Find("img").Each(func(_ int, img *goquery.Selection) { appendImage(blocks, img) })
		case "img":
			appendImage(blocks, s)
		case "ul", "ol":
			var items []string
			s.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
				if text := clean(li.Text()); text != "" {
					items = append(items, text)
				}
			})
			if len(items) > 0 {
				*blocks = append(*blocks, models.ContentBlock{Type: models.BlockList, Items: items})
			}
		case "blockquote":
			appendText(blocks, models.BlockQuote, s.Text())
		case "pre", "code":
			if text := strings.TrimSpace(s.Text()); text != "" {
				*blocks = append(*blocks, models.ContentBlock{Type: models.BlockCode, Text: text})
			}
		case "script", "style", "noscript", "iframe", "br", "hr", "#comment":
		default:
			walkBlocks(s.Contents(), blocks)
		}
	})
	flush()
}

func appendText(blocks *[]models.ContentBlock, t models.BlockType, raw string) {
	if text := clean(raw); text != "" {
		*blocks = append(*blocks, models.ContentBlock{Type: t, Text: text})
	}
}

func appendImage(blocks *[]models.ContentBlock, img *goquery.Selection) {
	src := img.AttrOr("data-src", "")
	if src == "" {
		src = img.AttrOr("src", "")
	}
	if src == "" || strings.HasPrefix(src, "data:") {
		return
	}
	*blocks = append(*blocks, models.ContentBlock{Type: models.BlockImage, URL: src, Alt: img.AttrOr("alt", "")})
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// BlocksText renders the readable text of content blocks, one paragraph per block.
func BlocksText(blocks []models.ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case models.BlockHeading, models.BlockText, models.BlockQuote:
			parts = append(parts, b.Text)
		case models.BlockList:
			for _, item := range b.Items {
				parts = append(parts, "• "+item)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// PlainText strips markup and entities from an HTML fragment such as a rendered title.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return clean(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + fragment + "</body>"))
	if err != nil {
		return clean(fragment)
	}
	return clean(doc.Find("body").Text())
}
