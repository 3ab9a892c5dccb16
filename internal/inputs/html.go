package inputs

import (
	"bytes"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

var (
	scriptRe         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	excessiveLinesRe = regexp.MustCompile(`\n{4,}`)
)

// Converter renders HTML source documents as markdown.
type Converter struct {
	converter *md.Converter
}

var defaultConverter = NewConverter()

func NewConverter() *Converter {
	c := md.NewConverter("", true, nil)
	c.Use(plugin.GitHubFlavored())
	return &Converter{converter: c}
}

// Convert returns the document as markdown. When the page has a <title> and
// the markdown does not open with a heading, the title becomes one.
func (c *Converter) Convert(data []byte) (string, error) {
	title := htmlTitle(data)
	cleaned := scriptRe.ReplaceAllString(string(data), "")
	cleaned = styleRe.ReplaceAllString(cleaned, "")
	out, err := c.converter.ConvertString(cleaned)
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(excessiveLinesRe.ReplaceAllString(out, "\n\n\n"))
	if title != "" && !strings.HasPrefix(out, "#") {
		out = "# " + title + "\n\n" + out
	}
	return out + "\n", nil
}

func htmlTitle(data []byte) string {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(doc)
	return title
}
