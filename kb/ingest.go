package kb

import (
	"fmt"
	stdhtml "html"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/nivkeidan/hmochat/model"
)

var (
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	newlineRun = regexp.MustCompile(`\n+`)

	// Tier markers inside a benefit cell: "זהב: 70% ..." (full-width colon
	// included, some documents use it).
	tierMarker = regexp.MustCompile(`(זהב|כסף|ארד)\s*[:：]\s*`)

	// Israeli phone shapes: 02-1234567, 1-700-50-53-53, *3555 style.
	phonePattern = regexp.MustCompile(`\d{2,3}-\d{6,7}|\d-\d{3}-\d{2}-\d{2}-\d{2}|\*?\d{3,4}`)
	extPattern   = regexp.MustCompile(`שלוחה\s*(\d+)`)
)

// extractor walks one parsed HTML document and accumulates chunks.
// Anchors use per-document monotone counters so a rebuild over the same
// bytes yields the same source URIs on every platform.
type extractor struct {
	path    string
	section string
	chunks  []Chunk
	pN      int // paragraph anchors
	cN      int // contact anchors
	sN      int // service anchors
}

// extractChunks parses htmlStr and returns the atomic chunks found in
// headings, tables, lists and paragraphs, in document order.
func extractChunks(path, htmlStr string) ([]Chunk, error) {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	ex := &extractor{path: path}
	ex.walk(doc)
	return ex.chunks, nil
}

// walk visits nodes in document order. Headings update the section
// tracker; table/ul/p nodes are consumed whole (no descent), so content
// nested inside them is not chunked twice.
func (ex *extractor) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3":
			ex.section = clean(textContent(n))
			return
		case "table":
			ex.table(n)
			return
		case "ul":
			ex.list(n)
			return
		case "p":
			ex.paragraph(n)
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		ex.walk(c)
	}
}

// table emits one benefit chunk per (row service × HMO column × tier).
func (ex *extractor) table(tbl *html.Node) {
	rows := findAll(tbl, "tr")
	if len(rows) == 0 {
		return
	}

	// Header row: identify HMO columns by Hebrew or English fund name.
	hmoCols := map[int]model.HMO{}
	for idx, cell := range findCells(rows[0]) {
		if h, ok := guessHMO(textContent(cell)); ok {
			hmoCols[idx] = h
		}
	}

	for ri, tr := range rows[1:] {
		cells := findCells(tr)
		if len(cells) == 0 {
			continue
		}
		service := clean(textContent(cells[0]))

		for ci := 1; ci < len(cells); ci++ {
			hmo, ok := hmoCols[ci]
			if !ok {
				continue
			}
			cellText := clean(textContent(cells[ci]))
			for _, seg := range splitTiers(cellText) {
				var tags []string
				if seg.tier != "" {
					tags = []string{seg.tier}
				}
				ex.chunks = append(ex.chunks, Chunk{
					Text:      seg.body,
					SourceURI: fmt.Sprintf("file://%s#t%d_%d", ex.path, ri+1, ci),
					HMO:       hmo,
					TierTags:  tags,
					Section:   ex.section,
					Service:   service,
					Kind:      KindBenefit,
				})
			}
		}
	}
}

// list emits contact chunks for bullets carrying phones or URLs, and
// service chunks for plain bullets.
func (ex *extractor) list(ul *html.Node) {
	for li := ul.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		txt := clean(textContent(li))
		if txt == "" {
			continue
		}

		urls := hrefs(li)
		phones := phonePattern.FindAllString(txt, -1)
		hmo, _ := guessHMO(txt)

		if len(phones) > 0 || len(urls) > 0 || strings.Contains(txt, "טלפון") {
			var bits []string
			if len(phones) > 0 {
				bits = append(bits, strings.Join(phones, "; "))
			}
			if m := extPattern.FindStringSubmatch(txt); m != nil {
				bits = append(bits, "שלוחה "+m[1])
			}
			if len(urls) > 0 {
				bits = append(bits, strings.Join(urls, "; "))
			}
			payload := txt
			if len(bits) > 0 {
				payload = strings.Join(bits, " | ")
			}
			ex.cN++
			ex.chunks = append(ex.chunks, Chunk{
				Text:      payload,
				SourceURI: fmt.Sprintf("file://%s#c%d", ex.path, ex.cN),
				HMO:       hmo,
				Section:   ex.section,
				Kind:      KindContact,
			})
			continue
		}

		ex.sN++
		ex.chunks = append(ex.chunks, Chunk{
			Text:      txt,
			SourceURI: fmt.Sprintf("file://%s#s%d", ex.path, ex.sN),
			Section:   ex.section,
			Service:   txt, // a plain bullet names the service itself
			Kind:      KindService,
		})
	}
}

func (ex *extractor) paragraph(p *html.Node) {
	txt := clean(textContent(p))
	if txt == "" {
		return
	}
	ex.pN++
	ex.chunks = append(ex.chunks, Chunk{
		Text:      txt,
		SourceURI: fmt.Sprintf("file://%s#p%d", ex.path, ex.pN),
		Section:   ex.section,
		Kind:      KindBlurb,
	})
}

// tierSegment is one tier-scoped slice of a benefit cell.
type tierSegment struct {
	tier string // זהב | כסף | ארד, or empty when the cell has no markers
	body string
}

// splitTiers cuts a cell into per-tier segments on explicit markers like
// "זהב:". Text before the first marker is dropped; a cell without
// markers yields itself once, untagged.
func splitTiers(cellText string) []tierSegment {
	locs := tierMarker.FindAllStringSubmatchIndex(cellText, -1)
	if len(locs) == 0 {
		return []tierSegment{{body: cellText}}
	}
	segs := make([]tierSegment, 0, len(locs))
	for i, loc := range locs {
		end := len(cellText)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		segs = append(segs, tierSegment{
			tier: cellText[loc[2]:loc[3]],
			body: strings.TrimSpace(cellText[loc[1]:end]),
		})
	}
	return segs
}

// guessHMO matches Hebrew or English fund names as case-insensitive
// substrings. Used for both table headers and contact bullets.
func guessHMO(s string) (model.HMO, bool) {
	low := strings.ToLower(s)
	switch {
	case strings.Contains(low, "מכבי") || strings.Contains(low, "maccabi"):
		return model.HMOMaccabi, true
	case strings.Contains(low, "מאוחדת") || strings.Contains(low, "meuhedet"):
		return model.HMOMeuhedet, true
	case strings.Contains(low, "כללית") || strings.Contains(low, "clalit"):
		return model.HMOClalit, true
	}
	return "", false
}

// clean unescapes entities and collapses whitespace runs so chunk text
// never contains double spaces or newlines.
func clean(s string) string {
	s = stdhtml.UnescapeString(s)
	s = newlineRun.ReplaceAllString(s, " ")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// textContent concatenates the text nodes under n, space-separated.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.TextNode {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

// findAll returns all descendant elements named tag, in document order.
func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == tag {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return out
}

// findCells returns the th/td cells of a table row.
func findCells(tr *html.Node) []*html.Node {
	var out []*html.Node
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.ElementNode && (node.Data == "th" || node.Data == "td") {
			out = append(out, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(tr)
	return out
}

// hrefs collects non-empty href attributes of anchor elements under n.
func hrefs(n *html.Node) []string {
	var out []string
	for _, a := range findAll(n, "a") {
		for _, attr := range a.Attr {
			if attr.Key == "href" && attr.Val != "" {
				out = append(out, attr.Val)
			}
		}
	}
	return out
}
