package pergamum

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"bibrenew/internal/components/chrono"
	"bibrenew/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// the mobile renewal page lays the loans out as /html/body/div[1]/div[2]/ul/li
const listingItemSelector = "body > div:nth-of-type(1) > div:nth-of-type(2) > ul > li"

var (
	itemIdRegex = regexp.MustCompile(`cod_acervo=(\d+)`)
	copyIdRegex = regexp.MustCompile(`cod_exemplar=(\d+)`)
)

// ParseListing reads every loan out of the catalog's renewal page. Section
// dividers and empty items are skipped, any other item that cannot be read
// rejects the whole listing with a *ParseError.
func ParseListing(doc []byte) (Listing, error) {
	parsed, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("pergamum: parse listing: %w", err)
	}
	return listingFromDocument(parsed)
}

func listingFromDocument(doc *goquery.Document) (Listing, error) {
	listing := Listing{}
	var parseErr error
	doc.Find(listingItemSelector).EachWithBreak(func(i int, li *goquery.Selection) bool {
		if li.AttrOr("data-role", "") == "list-divider" {
			return true
		}
		if htmlutil.ElementChildren(li.Nodes[0]) == 0 {
			return true
		}
		loan, err := parseEntry(i, li)
		if err != nil {
			parseErr = err
			return false
		}
		listing = append(listing, loan)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return listing, nil
}

func parseEntry(index int, li *goquery.Selection) (Loan, error) {
	fail := func(field string, err error) (Loan, error) {
		return Loan{}, &ParseError{Entry: index, Field: field, Err: err}
	}

	anchor := li.Find("a").First()
	if anchor.Length() == 0 {
		return fail("link", errors.New("missing anchor"))
	}
	href, ok := anchor.Attr("href")
	if !ok {
		return fail("link", errors.New("anchor has no href"))
	}

	title := htmlutil.SelectionText(anchor.ChildrenFiltered("h2"))
	if title == "" {
		return fail("title", errors.New("missing or empty h2"))
	}

	paragraphs := anchor.ChildrenFiltered("p")

	dueText, err := labelValue(htmlutil.SelectionText(paragraphs.Eq(0)))
	if err != nil {
		return fail("return date", err)
	}
	dueDate, err := chrono.ParseDMY(dueText)
	if err != nil {
		return fail("return date", err)
	}

	countText, err := labelValue(htmlutil.SelectionText(paragraphs.Eq(1)))
	if err != nil {
		return fail("renewal count", err)
	}
	renewalCount, err := strconv.Atoi(countText)
	if err != nil {
		return fail("renewal count", err)
	}
	if renewalCount < 0 {
		return fail("renewal count", fmt.Errorf("negative count %d", renewalCount))
	}

	itemId, err := hrefId(href, itemIdRegex)
	if err != nil {
		return fail("cod_acervo", err)
	}
	copyId, err := hrefId(href, copyIdRegex)
	if err != nil {
		return fail("cod_exemplar", err)
	}

	return Loan{
		Title:        title,
		DueDate:      dueDate,
		RenewalCount: renewalCount,
		ItemId:       itemId,
		CopyId:       copyId,
	}, nil
}

// labelValue returns what comes after the first colon of a "Label: value" text.
func labelValue(text string) (string, error) {
	_, value, found := strings.Cut(text, ":")
	if !found {
		return "", fmt.Errorf("expected a label:value pair, got %q", text)
	}
	return strings.TrimSpace(value), nil
}

func hrefId(href string, pattern *regexp.Regexp) (int, error) {
	groups := pattern.FindStringSubmatch(href)
	if len(groups) < 2 {
		return 0, fmt.Errorf("not found in %q", href)
	}
	id, err := strconv.Atoi(groups[1])
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("expected a positive id, got %d", id)
	}
	return id, nil
}
