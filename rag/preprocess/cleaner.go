// Package preprocess normalises regulation text before chunking. Sources are
// messy: scanned convention PDFs bring OCR artifacts, and regulatory portals
// wrap the provisions in navigation chrome. The pipeline strips both.
package preprocess

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
)

// ocrFixes repairs ligatures and typography common in scanned regulation text.
var ocrFixes = map[string]string{
	"ﬁ": "fi", "ﬂ": "fl",
	"—": "-", "–": "-",
	"·": ".", "•": "-",
	" ": " ",
}

// CleanBasic removes control characters, repairs OCR artifacts, and collapses
// runs of whitespace.
func CleanBasic(text string) string {
	if text == "" {
		return ""
	}

	b := strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)

	for k, v := range ocrFixes {
		b = strings.ReplaceAll(b, k, v)
	}

	b = reSpaces.ReplaceAllString(b, " ")
	b = reNewlines.ReplaceAllString(b, "\n\n")
	return strings.TrimSpace(b)
}

// HTMLToText extracts readable content from a regulation web page, keeping
// headings, paragraphs, list items, and tables.
func HTMLToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	var out []string
	doc.Find("h1,h2,h3,h4,p,li,pre,table").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "h1":
			out = append(out, "# "+strings.TrimSpace(s.Text()))
		case "h2":
			out = append(out, "## "+strings.TrimSpace(s.Text()))
		case "h3", "h4":
			out = append(out, "### "+strings.TrimSpace(s.Text()))
		case "p":
			out = append(out, strings.TrimSpace(s.Text()))
		case "li":
			out = append(out, "- "+strings.TrimSpace(s.Text()))
		case "pre":
			out = append(out, strings.TrimSpace(s.Text()))
		case "table":
			out = append(out, flattenTable(s))
		}
	})
	return strings.Join(out, "\n\n"), nil
}

func flattenTable(sel *goquery.Selection) string {
	var rows []string
	sel.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cols []string
		tr.Find("th,td").Each(func(_ int, td *goquery.Selection) {
			cols = append(cols, strings.TrimSpace(td.Text()))
		})
		if len(cols) > 0 {
			rows = append(rows, "| "+strings.Join(cols, " | ")+" |")
		}
	})
	return strings.Join(rows, "\n")
}

// webNoise lines are dropped wholesale; they are portal chrome, not
// regulation content.
var webNoise = []string{
	"All rights reserved", "Terms of use", "Terms and Conditions", "Privacy policy",
	"Cookie", "Subscribe", "Related documents", "You may also like", "Sign in",
	"Back to top", "Print this page", "Share this page",
}

// RemoveWebNoise drops lines matching known portal boilerplate.
func RemoveWebNoise(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		skip := false
		for _, p := range webNoise {
			if strings.Contains(l, p) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// RemoveDuplicateParagraphs keeps the first occurrence of each paragraph.
// Consolidated editions repeat amended provisions verbatim.
func RemoveDuplicateParagraphs(text string) string {
	parts := strings.Split(text, "\n\n")
	seen := make(map[string]struct{}, len(parts))
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return strings.Join(out, "\n\n")
}

// Preprocess runs the full cleaning pipeline on raw text.
func Preprocess(raw string) string {
	t := CleanBasic(raw)
	t = RemoveWebNoise(t)
	return RemoveDuplicateParagraphs(t)
}
