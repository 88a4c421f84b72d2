// Package parse extracts structured article fields from a fetched
// document. The selector set follows the habr.com article layout; the
// pipeline treats this package as an opaque collaborator that maps a
// body to a record.
package parse

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/habr-tools/habr-ingest/pkg/record"
)

const timeLayout = "2006-01-02 15:04:05"

// Article parses a document body into a record. The record carries
// status "not_found" when the article content anchor is missing, and
// "ok" with the extracted fields otherwise. A body that cannot be
// parsed as a document at all is reported as not found.
func Article(body string) record.Record {
	rec := record.Record{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		rec["status"] = record.StatusNotFound
		return rec
	}

	if doc.Find("div#post-content-body").Length() == 0 {
		rec["status"] = record.StatusNotFound
		return rec
	}

	rec["status"] = record.StatusOK
	rec["title"] = textOrNil(doc.Find("title").First())
	rec["text"] = textOrNil(doc.Find("div.article-formatted-body").First())

	rec["keywords"] = nil
	if content, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok && content != "" {
		rec["keywords"] = strings.Split(content, ", ")
	}

	rec["username"] = textOrNil(doc.Find("a.tm-user-info__username").First())

	hubs := []string{}
	doc.Find("a.tm-hubs-list__link").Each(func(_ int, sel *goquery.Selection) {
		hubs = append(hubs, strings.TrimSpace(sel.Text()))
	})
	rec["hubs"] = hubs

	rec["time"] = nil
	if dt, ok := doc.Find("time").First().Attr("datetime"); ok {
		if ts, err := time.Parse(time.RFC3339, dt); err == nil {
			rec["time"] = ts.Format(timeLayout)
		}
	}

	rec["reading_time"] = nil
	if label := strings.TrimSpace(doc.Find("span.tm-article-reading-time__label").First().Text()); label != "" {
		// The label reads like "7 мин"; keep only the number of minutes.
		rec["reading_time"] = strings.TrimSpace(strings.TrimSuffix(label, "мин"))
	}

	return rec
}

// textOrNil returns the trimmed text of a selection, or nil when the
// selection is empty or blank.
func textOrNil(sel *goquery.Selection) any {
	if sel.Length() == 0 {
		return nil
	}
	text := strings.TrimSpace(sel.Text())
	if text == "" {
		return nil
	}
	return text
}
