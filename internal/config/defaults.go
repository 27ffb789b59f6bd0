package config

import "github.com/JakeFAU/directory-crawler/internal/crawler"

// DefaultRegions returns the sixteen German federal states in crawl order.
// Identifiers are Latin-1 query-escaped as the directory expects.
func DefaultRegions() []crawler.Region {
	return []crawler.Region{
		{ID: "Baden-W%FCrttemberg", DisplayName: "baden-württemberg", Token: "Ojo6Ojo6Ojo6Ojo6Ojo6OkJhZGVuLVf8cnR0ZW1iZXJnOjo6Ojo6Ojo%3D"},
		{ID: "Bayern", DisplayName: "bayern", Token: "Ojo6Ojo6Ojo6Ojo6Ojo6OkJheWVybjo6Ojo6Ojo6"},
		{ID: "Berlin", DisplayName: "berlin", Token: "Ojo6Ojo6Ojo6Ojo6Ojo6OkJlcmxpbjo6Ojo6Ojo6"},
		{ID: "Brandenburg", DisplayName: "brandenburg"},
		{ID: "Bremen", DisplayName: "bremen"},
		{ID: "Hamburg", DisplayName: "hamburg"},
		{ID: "Hessen", DisplayName: "hessen"},
		{ID: "Mecklenburg-Vorpommern", DisplayName: "mecklenburg-vorpommern"},
		{ID: "Niedersachsen", DisplayName: "niedersachsen"},
		{ID: "Nordrhein-Westfalen", DisplayName: "nordrhein-westfalen"},
		{ID: "Rheinland-Pfalz", DisplayName: "rheinland-pfalz"},
		{ID: "Saarland", DisplayName: "saarland"},
		{ID: "Sachsen", DisplayName: "sachsen"},
		{ID: "Sachsen-Anhalt", DisplayName: "sachsen-anhalt"},
		{ID: "Schleswig-Holstein", DisplayName: "schleswig-holstein"},
		{ID: "Th%FCringen", DisplayName: "thüringen"},
	}
}

// DefaultUserAgents is the desktop browser pool rotated per request attempt.
func DefaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/92.0.4515.107 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:90.0) Gecko/20100101 Firefox/90.0",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 11.5; rv:90.0) Gecko/20100101 Firefox/90.0",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/111.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	}
}
