package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"tgwatch/internal/model"
)

// FeedFormat parses RSS/Atom renditions of a channel, as served by
// channel-to-feed bridges.
type FeedFormat struct {
	parser *gofeed.Parser
}

// NewFeedFormat creates a FeedFormat.
func NewFeedFormat() *FeedFormat {
	return &FeedFormat{parser: gofeed.NewParser()}
}

func (f *FeedFormat) Name() string { return "feed" }

// Match reports whether raw looks like an XML feed rather than an HTML page.
func (f *FeedFormat) Match(raw string) bool {
	head := raw
	if len(head) > 512 {
		head = head[:512]
	}
	head = strings.ToLower(strings.TrimSpace(head))
	if strings.Contains(head, "<html") || strings.HasPrefix(head, "<!doctype html") {
		return false
	}
	return strings.Contains(head, "<rss") || strings.Contains(head, "<feed") || strings.Contains(head, "<rdf:rdf")
}

func (f *FeedFormat) Parse(raw string, channel model.ChannelID, skip func(error)) ([]model.Message, error) {
	feed, err := f.parser.ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	msgs := make([]model.Message, 0, len(feed.Items))
	for i, item := range feed.Items {
		msg, err := parseItem(func() (model.Message, error) {
			return feedMessage(item, channel)
		})
		if err != nil {
			skip(fmt.Errorf("item %d: %w", i, err))
			continue
		}
		if msg.Empty() {
			skip(fmt.Errorf("item %d: no text or files", i))
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func feedMessage(item *gofeed.Item, channel model.ChannelID) (model.Message, error) {
	if item == nil {
		return model.Message{}, fmt.Errorf("nil item")
	}
	msg := model.Message{ChannelID: channel}

	body := item.Content
	if body == "" {
		body = item.Description
	}
	text, err := htmlText(body)
	if err != nil {
		return model.Message{}, err
	}
	title := strings.TrimSpace(item.Title)
	switch {
	case title == "":
	case text == "":
		text = title
	case !strings.HasPrefix(text, strings.TrimRight(title, ".…")):
		text = title + "\n" + text
	}
	msg.Text = text

	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		msg.Timestamp = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		msg.Timestamp = &t
	}

	if id, ok := idFromPermalink(item.Link); ok {
		msg.ExternalID = &id
		msg.URL = item.Link
	} else if id, err := strconv.ParseInt(strings.TrimSpace(item.GUID), 10, 64); err == nil {
		msg.ExternalID = &id
		msg.URL = fmt.Sprintf("https://t.me/%s/%d", channel, id)
	} else if id, ok := idFromPermalink(item.GUID); ok {
		msg.ExternalID = &id
		msg.URL = item.Link
	}

	seen := map[model.FileType]bool{}
	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		ft := fileTypeForMIME(enc.Type)
		if !seen[ft] {
			seen[ft] = true
			msg.FileTypes = append(msg.FileTypes, ft)
		}
	}
	if item.Image != nil && item.Image.URL != "" && !seen[model.FilePhoto] {
		msg.FileTypes = append(msg.FileTypes, model.FilePhoto)
	}
	msg.HasFile = len(msg.FileTypes) > 0

	return msg, nil
}

func fileTypeForMIME(mime string) model.FileType {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case mime == "image/webp" || mime == "application/x-tgsticker":
		return model.FileSticker
	case strings.HasPrefix(mime, "image/"):
		return model.FilePhoto
	case strings.HasPrefix(mime, "video/"):
		return model.FileVideo
	case mime == "audio/ogg" || mime == "audio/opus":
		return model.FileVoice
	case strings.HasPrefix(mime, "audio/"):
		return model.FileAudio
	default:
		return model.FileDocument
	}
}

func htmlText(fragment string) (string, error) {
	if strings.TrimSpace(fragment) == "" {
		return "", nil
	}
	if !strings.Contains(fragment, "<") {
		return strings.TrimSpace(fragment), nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse item html: %w", err)
	}
	return flattenText(doc.Find("body")), nil
}
