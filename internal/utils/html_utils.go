package utils

import (
	"html/template"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	mentionPattern = regexp.MustCompile(`(^|[^\w/@.])@([a-z][a-z0-9.-]{2,15})\b`)
	youtubeID      = regexp.MustCompile(`^[A-Za-z0-9_-]{6,20}$`)
)

// EnhanceHTMLContent hardens images, links @account mentions to profiles and
// turns bare video links into embedded players.
func EnhanceHTMLContent(htmlStr string) template.HTML {
	if htmlStr == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return template.HTML(htmlStr)
	}

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		s.SetAttr("referrerpolicy", "no-referrer")
		s.SetAttr("loading", "lazy")
	})

	doc.Find("p").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if !strings.HasPrefix(text, "http") || strings.Contains(text, " ") {
			return
		}
		if id := youtubeVideoID(text); id != "" {
			s.ReplaceWithHtml(`<div class="video-container"><iframe src="https://www.youtube.com/embed/` + id + `" frameborder="0" allowfullscreen allow="accelerometer; clipboard-write; encrypted-media; gyroscope; picture-in-picture"></iframe></div>`)
		}
	})

	// mentions live in text nodes only; links and code keep their text
	doc.Find("p, li, blockquote, td").Each(func(i int, s *goquery.Selection) {
		s.Contents().Each(func(j int, node *goquery.Selection) {
			if goquery.NodeName(node) != "#text" {
				return
			}
			text := node.Text()
			if !strings.Contains(text, "@") {
				return
			}
			escaped := template.HTMLEscapeString(text)
			linked := mentionPattern.ReplaceAllString(escaped, `$1<a class="mention" href="/?profile=$2">@$2</a>`)
			if linked != escaped {
				node.ReplaceWithHtml(linked)
			}
		})
	})

	html, _ := doc.Find("body").Html()
	if html == "" {
		html, _ = doc.Html()
	}

	return template.HTML(html)
}

func youtubeVideoID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	var id string
	switch strings.TrimPrefix(u.Host, "www.") {
	case "youtube.com", "m.youtube.com":
		if u.Path == "/watch" {
			id = u.Query().Get("v")
		}
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	}
	if !youtubeID.MatchString(id) {
		return ""
	}
	return id
}

// PlainText strips markup for topic excerpts, cutting at max runes
func PlainText(htmlStr string, max int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	runes := []rune(text)
	if max > 0 && len(runes) > max {
		return strings.TrimSpace(string(runes[:max])) + "…"
	}
	return text
}
