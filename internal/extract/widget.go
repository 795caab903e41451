package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"tgwatch/internal/model"
)

// FileMarker maps a selector to the file type it indicates.
type FileMarker struct {
	Type     model.FileType
	Selector string
}

// Markers are the CSS selectors describing the channel preview markup.
type Markers struct {
	Container string
	Text      string
	Time      string
	Permalink string
	Views     string
	Files     []FileMarker
	// PostAttr holds "channel/id" on the container when present.
	PostAttr string
}

// DefaultMarkers returns the selectors of the t.me/s preview pages.
func DefaultMarkers() Markers {
	return Markers{
		Container: "div.tgme_widget_message",
		Text:      ".tgme_widget_message_text:not(.js-message_reply_text)",
		Time:      "time.time",
		Permalink: "a.tgme_widget_message_date",
		Views:     ".tgme_widget_message_views",
		PostAttr:  "data-post",
		Files: []FileMarker{
			{Type: model.FilePhoto, Selector: "a.tgme_widget_message_photo, a.tgme_widget_message_photo_wrap"},
			{Type: model.FileVideo, Selector: ".tgme_widget_message_video, .tgme_widget_message_video_player"},
			{Type: model.FileDocument, Selector: ".tgme_widget_message_document"},
			{Type: model.FileAudio, Selector: ".tgme_widget_message_audio"},
			{Type: model.FileVoice, Selector: ".tgme_widget_message_voice"},
			{Type: model.FileSticker, Selector: ".tgme_widget_message_sticker"},
		},
	}
}

var permalinkID = regexp.MustCompile(`/(\d+)(?:\?|$)`)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05Z07",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05Z07",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// WidgetFormat parses HTML preview pages into messages.
type WidgetFormat struct {
	markers Markers
}

// NewWidgetFormat creates a WidgetFormat for the given markup contract.
func NewWidgetFormat(m Markers) *WidgetFormat {
	return &WidgetFormat{markers: m}
}

func (w *WidgetFormat) Name() string { return "widget" }

// Match accepts any markup; the widget format is the fallback.
func (w *WidgetFormat) Match(raw string) bool {
	return strings.Contains(raw, "<")
}

func (w *WidgetFormat) Parse(raw string, channel model.ChannelID, skip func(error)) ([]model.Message, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var msgs []model.Message
	doc.Find(w.markers.Container).Each(func(i int, s *goquery.Selection) {
		msg, err := parseItem(func() (model.Message, error) {
			return w.parseContainer(s, channel)
		})
		if err != nil {
			skip(fmt.Errorf("container %d: %w", i, err))
			return
		}
		if msg.Empty() {
			skip(fmt.Errorf("container %d: no text or files", i))
			return
		}
		msgs = append(msgs, msg)
	})
	return msgs, nil
}

func (w *WidgetFormat) parseContainer(s *goquery.Selection, channel model.ChannelID) (model.Message, error) {
	msg := model.Message{ChannelID: channel}

	if text := s.Find(w.markers.Text).First(); text.Length() > 0 {
		msg.Text = flattenText(text)
	}

	for _, fm := range w.markers.Files {
		if s.Find(fm.Selector).Length() > 0 {
			msg.FileTypes = append(msg.FileTypes, fm.Type)
		}
	}
	msg.HasFile = len(msg.FileTypes) > 0

	if tm, ok := s.Find(w.markers.Time).First().Attr("datetime"); ok {
		msg.Timestamp = parseTimestamp(tm)
	}

	if href, ok := s.Find(w.markers.Permalink).First().Attr("href"); ok {
		if id, ok := idFromPermalink(href); ok {
			msg.ExternalID = &id
			msg.URL = href
		}
	}
	if msg.ExternalID == nil && w.markers.PostAttr != "" {
		if post, ok := s.Attr(w.markers.PostAttr); ok {
			if id, ok := idFromPost(post); ok {
				msg.ExternalID = &id
				msg.URL = fmt.Sprintf("https://t.me/%s/%d", channel, id)
			}
		}
	}

	if views := s.Find(w.markers.Views).First(); views.Length() > 0 {
		if n, ok := parseViews(views.Text()); ok {
			msg.Views = &n
		}
	}

	return msg, nil
}

// ChannelInfo describes a channel preview page header.
type ChannelInfo struct {
	Title        string
	Description  string
	MessageCount int
}

// ParseChannelInfo reads the header of a preview page.
func ParseChannelInfo(raw string) (ChannelInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ChannelInfo{}, fmt.Errorf("parse html: %w", err)
	}

	info := ChannelInfo{
		Title:        strings.Join(strings.Fields(doc.Find(".tgme_channel_info_header_title").First().Text()), " "),
		Description:  flattenText(doc.Find(".tgme_channel_info_description").First()),
		MessageCount: doc.Find(DefaultMarkers().Container).Length(),
	}
	if info.Title == "" {
		if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
			info.Title = strings.TrimSpace(og)
		}
	}
	return info, nil
}

func idFromPermalink(href string) (int64, bool) {
	m := permalinkID.FindStringSubmatch(href)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	return id, err == nil
}

func idFromPost(post string) (int64, bool) {
	i := strings.LastIndex(post, "/")
	if i < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(post[i+1:], 10, 64)
	return id, err == nil
}

// parseTimestamp converts a datetime attribute to UTC. Values without an
// offset, or with a malformed one, are taken as UTC. Unparseable values
// yield nil.
func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}

	const prefix = len("2006-01-02T15:04:05")
	if len(s) < prefix {
		return nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s[:prefix]); err == nil {
			return &t
		}
	}
	return nil
}

// parseViews reads counters such as "845", "1.2K" or "3M".
func parseViews(s string) (int64, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return 0, false
	}

	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1e3, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1e6, strings.TrimSuffix(s, "M")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return int64(v*mult + 0.5), true
}

var blockElements = map[string]bool{
	"br": true, "p": true, "div": true, "blockquote": true, "li": true,
	"ul": true, "ol": true, "pre": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "tr": true,
}

// flattenText returns the visible text of s with block structure turned into
// newlines, each line trimmed and empty lines dropped.
func flattenText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		writeText(&b, n)
	}

	var lines []string
	for _, line := range strings.Split(b.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.Data == "script" || n.Data == "style" {
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
	if block {
		b.WriteByte('\n')
	}
}
