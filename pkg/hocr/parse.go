package hocr

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"
)

// Parse converts raw hOCR data into a Document. Latin-1 input declared via
// a charset meta tag is transcoded; everything else is taken as UTF-8.
func Parse(data []byte) (*Document, error) {
	doc := &Document{Metadata: make(map[string]string)}

	decoded := data
	if enc := sniffCharset(string(data)); enc != "" && enc != "utf-8" {
		var err error
		decoded, err = charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decoding %s content: %w", enc, err)
		}
	}

	root, err := html.Parse(strings.NewReader(string(decoded)))
	if err != nil {
		return nil, err
	}

	parseHead(doc, root)

	for _, node := range findByClass(root, "ocr_page") {
		doc.Pages = append(doc.Pages, parsePage(node))
	}
	if len(doc.Pages) == 0 {
		return nil, fmt.Errorf("no ocr_page elements in input")
	}
	return doc, nil
}

// sniffCharset pulls the encoding name out of a charset= declaration, if
// any.
func sniffCharset(content string) string {
	i := strings.Index(content, "charset=")
	if i < 0 {
		return ""
	}
	rest := content[i+len("charset="):]
	// The attribute value may be quoted: charset="utf-8".
	if len(rest) > 0 && (rest[0] == '"' || rest[0] == '\'') {
		rest = rest[1:]
	}
	end := strings.IndexFunc(rest, func(r rune) bool {
		return r == '"' || r == '\'' || r == ';' || r == '>' || r == ' '
	})
	if end < 0 {
		end = len(rest)
	}
	return strings.ToLower(rest[:end])
}

func parseHead(doc *Document, root *html.Node) {
	if n := findElement(root, "html"); n != nil {
		if lang := attr(n, "lang"); lang != "" {
			doc.Language = lang
		}
	}
	head := findElement(root, "head")
	if head == nil {
		return
	}
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "title":
			if c.FirstChild != nil {
				doc.Title = c.FirstChild.Data
			}
		case "meta":
			name, content := attr(c, "name"), attr(c, "content")
			switch {
			case name == "" || content == "":
			case name == "ocr-system":
				doc.System = content
			case name == "dc.language":
				doc.Language = content
			default:
				doc.Metadata[name] = content
			}
		}
	}
}

func parsePage(n *html.Node) Page {
	page := Page{ID: attr(n, "id")}
	props := parseTitle(attr(n, "title"))
	if box := bboxOf(props); box != nil {
		page.BBox = *box
	}
	if v, ok := props["image"]; ok && len(v) > 0 {
		page.Image = strings.Trim(v[0], `"`)
	}
	if v, ok := props["ppageno"]; ok && len(v) > 0 {
		page.Number, _ = strconv.Atoi(v[0])
	}

	for _, node := range childrenByClass(n, "ocr_carea", "ocr_line") {
		switch elementClass(node) {
		case "ocr_carea":
			page.Regions = append(page.Regions, parseRegion(node))
		case "ocr_line":
			page.Lines = append(page.Lines, parseLine(node))
		}
	}
	return page
}

func parseRegion(n *html.Node) Region {
	region := Region{ID: attr(n, "id")}
	props := parseTitle(attr(n, "title"))
	if box := bboxOf(props); box != nil {
		region.BBox = *box
	}
	if v, ok := props["scriptor:type"]; ok && len(v) > 0 {
		region.Type = v[0]
	}
	for _, node := range childrenByClass(n, "ocr_line") {
		region.Lines = append(region.Lines, parseLine(node))
	}
	return region
}

func parseLine(n *html.Node) Line {
	line := Line{ID: attr(n, "id")}
	props := parseTitle(attr(n, "title"))
	if box := bboxOf(props); box != nil {
		line.BBox = *box
	}
	if v, ok := props["baseline"]; ok && len(v) >= 2 {
		line.Baseline.Slope, _ = strconv.ParseFloat(v[0], 64)
		line.Baseline.Offset, _ = strconv.ParseFloat(v[1], 64)
	}
	for _, node := range childrenByClass(n, "ocrx_word") {
		line.Words = append(line.Words, parseWord(node))
	}
	return line
}

func parseWord(n *html.Node) Word {
	word := Word{ID: attr(n, "id"), Text: textContent(n)}
	props := parseTitle(attr(n, "title"))
	if box := bboxOf(props); box != nil {
		word.BBox = *box
	}
	if v, ok := props["x_wconf"]; ok && len(v) > 0 {
		word.Confidence, _ = strconv.ParseFloat(v[0], 64)
	}
	return word
}

// parseTitle splits an hOCR title attribute into its semicolon-separated
// properties. Example input: "bbox 100 200 300 400; x_wconf 95".
func parseTitle(title string) map[string][]string {
	props := make(map[string][]string)
	for _, part := range strings.Split(title, ";") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) > 0 {
			props[fields[0]] = fields[1:]
		}
	}
	return props
}

func bboxOf(props map[string][]string) *BBox {
	v, ok := props["bbox"]
	if !ok || len(v) < 4 {
		return nil
	}
	var coords [4]int
	for i := 0; i < 4; i++ {
		n, err := strconv.Atoi(v[i])
		if err != nil {
			return nil
		}
		coords[i] = n
	}
	return &BBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}
}

// findByClass returns, in document order, the outermost elements whose
// class contains the given hOCR class; their subtrees are not descended
// into again.
func findByClass(root *html.Node, class string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.Contains(attr(n, "class"), class) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// childrenByClass returns the outermost descendants carrying any of the
// given hOCR classes, in document order.
func childrenByClass(n *html.Node, classes ...string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			if cls := elementClass(node, classes...); cls != "" {
				out = append(out, node)
				return
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	return out
}

// elementClass returns the first of the given hOCR classes present in the
// node's class attribute, or the node's sole hOCR class when called with
// none.
func elementClass(n *html.Node, classes ...string) string {
	have := attr(n, "class")
	if len(classes) == 0 {
		classes = []string{"ocr_page", "ocr_carea", "ocr_line", "ocrx_word"}
	}
	for _, cls := range classes {
		if strings.Contains(have, cls) {
			return cls
		}
	}
	return ""
}

func findElement(root *html.Node, name string) *html.Node {
	if root.Type == html.ElementNode && root.Data == name {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	var text string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text += textContent(c)
	}
	return strings.TrimSpace(text)
}
