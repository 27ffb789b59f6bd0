// Package detail maps a directory detail page to a crawler.Record.
//
// Detail pages are a two-column table: a label cell ("Telefon", "Fax", ...)
// followed by the value cell. Fields whose label is absent stay empty.
package detail

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/htmldoc"
)

// Field labels as printed on the detail page.
const (
	labelName     = "Firmenname"
	labelStreet   = "Adresse"
	labelZipCity  = "PLZ / Ort"
	labelPhone    = "Telefon"
	labelFax      = "Fax"
	labelMobile   = "Mobil"
	labelEmail    = "E-Mail"
	labelWebsite  = "Homepage"
	labelContact  = "Kontakt"
	labelProducts = "Produkte / Infos"
	labelIndustry = "Branchen"
)

var zipCityRe = regexp.MustCompile(`^(\d{5})\s+(.*)$`)

// Parser implements crawler.RecordParser.
type Parser struct {
	sectionSelector string
}

// NewParser returns a parser that looks for fields inside sectionSelector.
func NewParser(sectionSelector string) *Parser {
	if sectionSelector == "" {
		sectionSelector = "tbody"
	}
	return &Parser{sectionSelector: sectionSelector}
}

// ParseRecord extracts a record. It fails with crawler.ErrParseMissing when
// the page has no detail section at all.
func (p *Parser) ParseRecord(body []byte, id crawler.RecordID, region crawler.Region) (crawler.Record, error) {
	doc, err := htmldoc.Parse(body)
	if err != nil {
		return crawler.Record{}, fmt.Errorf("record %s: %w", id, err)
	}
	section := doc.Find(p.sectionSelector).First()
	if section.Length() == 0 {
		return crawler.Record{}, fmt.Errorf("record %s: detail section %q: %w", id, p.sectionSelector, crawler.ErrParseMissing)
	}

	rec := crawler.Record{ID: id, Region: region.Name()}
	fields := labelledValues(section)

	if v := fields[labelName]; v != nil {
		rec.Name = preferChild(v, "h2")
	}
	if v := fields[labelStreet]; v != nil {
		rec.Street = preferChild(v, "a")
	}
	if v := fields[labelZipCity]; v != nil {
		rec.Zipcode, rec.City = zipCity(v)
	}
	if v := fields[labelPhone]; v != nil {
		rec.Phone = htmldoc.Text(v)
	}
	if v := fields[labelFax]; v != nil {
		rec.Fax = htmldoc.Text(v)
	}
	if v := fields[labelMobile]; v != nil {
		rec.Mobile = htmldoc.Text(v)
	}
	if v := fields[labelEmail]; v != nil {
		rec.Email = preferChild(v, "a")
	}
	if v := fields[labelWebsite]; v != nil {
		rec.Website = preferChild(v, "a")
	}
	if v := fields[labelContact]; v != nil {
		rec.ContactPerson = htmldoc.Text(v)
	}
	if v := fields[labelProducts]; v != nil {
		rec.ProductsInfo = htmldoc.Text(v)
	}
	if v := fields[labelIndustry]; v != nil {
		if h2 := v.Find("h2").First(); h2.Length() > 0 {
			rec.Industry = strings.Join(htmldoc.Lines(h2), "\n")
		} else {
			rec.Industry = htmldoc.Text(v)
		}
	}
	return rec, nil
}

var labels = []string{
	labelName, labelStreet, labelZipCity, labelPhone, labelFax, labelMobile,
	labelEmail, labelWebsite, labelContact, labelProducts, labelIndustry,
}

// labelledValues maps each label to the cell following the first innermost
// cell whose text contains it.
func labelledValues(section *goquery.Selection) map[string]*goquery.Selection {
	out := make(map[string]*goquery.Selection, len(labels))
	section.Find("td").Each(func(_ int, cell *goquery.Selection) {
		if cell.Find("td").Length() > 0 {
			return
		}
		value := cell.Next()
		if value.Length() == 0 || goquery.NodeName(value) != "td" {
			return
		}
		text := htmldoc.Text(cell)
		for _, label := range labels {
			if _, done := out[label]; done {
				continue
			}
			if strings.Contains(text, label) {
				out[label] = value
			}
		}
	})
	return out
}

func preferChild(cell *goquery.Selection, tag string) string {
	if child := cell.Find(tag).First(); child.Length() > 0 {
		return htmldoc.Text(child)
	}
	return htmldoc.Text(cell)
}

// zipCity reads the two links of the "PLZ / Ort" cell, falling back to
// splitting the plain text.
func zipCity(cell *goquery.Selection) (zip, city string) {
	links := cell.Find("a")
	if links.Length() > 0 {
		zip = htmldoc.Text(links.Eq(0))
	}
	if links.Length() > 1 {
		city = htmldoc.Text(links.Eq(1))
	}
	if zip == "" || city == "" {
		if m := zipCityRe.FindStringSubmatch(htmldoc.Text(cell)); m != nil {
			zip, city = m[1], m[2]
		}
	}
	return zip, city
}
