package dou

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

const (
	// paramsSelector locates the JSON payload embedded in the page.
	paramsSelector = "script#params"
	pubDateLayout  = "02/01/2006"
)

type pageParams struct {
	JSONArray []rawItem `json:"jsonArray"`
}

type rawItem struct {
	PubName    flexString `json:"pubName"`
	URLTitle   flexString `json:"urlTitle"`
	NumberPage flexString `json:"numberPage"`
	Title      flexString `json:"title"`
	Content    flexString `json:"content"`
	PubDate    flexString `json:"pubDate"`
	ArtType    flexString `json:"artType"`
}

// flexString accepts JSON strings, numbers, booleans and null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*f = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode string: %w", err)
		}
		*f = flexString(s)
	case data[0] == '{' || data[0] == '[':
		return fmt.Errorf("unexpected JSON value %s", data)
	default:
		*f = flexString(data)
	}
	return nil
}

// ParsePage extracts the entries embedded in a leitura do jornal page. A page
// without the params script (no edition that day) yields no entries.
func ParsePage(body []byte, section gazette.Section, day time.Time, webURL string) ([]gazette.Entry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	script := doc.Find(paramsSelector).First()
	if script.Length() == 0 {
		return nil, nil
	}
	payload := strings.TrimSpace(script.Text())
	if payload == "" {
		return nil, nil
	}

	var params pageParams
	if err := json.Unmarshal([]byte(payload), &params); err != nil {
		return nil, fmt.Errorf("decode params json: %w", err)
	}

	entries := make([]gazette.Entry, 0, len(params.JSONArray))
	for _, item := range params.JSONArray {
		entries = append(entries, gazette.Entry{
			Section:     itemSection(string(item.PubName), section),
			Page:        strings.TrimSpace(string(item.NumberPage)),
			URL:         articleURL(webURL, string(item.URLTitle)),
			Title:       string(item.Title),
			Content:     string(item.Content),
			PublishedOn: itemDate(string(item.PubDate), day),
		})
	}
	return entries, nil
}

// itemSection prefers the section the item declares; extra editions are
// listed on the regular section page.
func itemSection(pubName string, requested gazette.Section) gazette.Section {
	if strings.TrimSpace(pubName) == "" {
		return requested
	}
	if s, err := gazette.ParseSection(pubName); err == nil {
		return s
	}
	return requested
}

func itemDate(pubDate string, day time.Time) time.Time {
	pubDate = strings.TrimSpace(pubDate)
	if pubDate == "" {
		return day
	}
	t, err := time.ParseInLocation(pubDateLayout, pubDate, day.Location())
	if err != nil {
		return day
	}
	return t
}

func articleURL(webURL, urlTitle string) string {
	urlTitle = strings.TrimSpace(urlTitle)
	if urlTitle == "" {
		return ""
	}
	if strings.HasPrefix(urlTitle, "http://") || strings.HasPrefix(urlTitle, "https://") {
		return urlTitle
	}
	return strings.TrimRight(webURL, "/") + "/web/dou/-/" + strings.TrimLeft(urlTitle, "/")
}
