package geoartifacts

import (
	"bufio"
	"bytes"
	_ "embed"
	"regexp"
	"strings"
	"sync"
)

// CountryInfo is one row of the bundled country code table.
type CountryInfo struct {
	ISO     string // ISO 3166-1 alpha-2, empty for GADM-only areas
	ISO3    string // ISO 3166-1 alpha-3 or GADM area code
	Country string
}

//go:embed data/countries.tsv
var countriesTSV []byte

// iso3Pattern matches the shape of the codes GADM names its files by.
var iso3Pattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{2}$`)

var (
	countryOnce    sync.Once
	countryList    []CountryInfo
	countryByISO3  map[string]CountryInfo
	countryCatalog *Catalog[CountryInfo]
)

// loadCountries parses the bundled table.
// Format: ISO<tab>ISO3<tab>Country, '#' starts a comment line.
func loadCountries() {
	countryOnce.Do(func() {
		countryByISO3 = make(map[string]CountryInfo)

		scanner := bufio.NewScanner(bytes.NewReader(countriesTSV))
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" || line[0] == '#' {
				continue
			}
			fields := strings.Split(line, "\t")
			if len(fields) != 3 || fields[1] == "" {
				continue
			}
			ci := CountryInfo{ISO: fields[0], ISO3: fields[1], Country: fields[2]}
			countryList = append(countryList, ci)
			countryByISO3[ci.ISO3] = ci
		}
		countryCatalog = NewCatalog("country", countryList, func(c CountryInfo) string { return c.Country })
	})
}

// CountryCodes returns the bundled country table in file order.
func CountryCodes() []CountryInfo {
	loadCountries()
	return append([]CountryInfo(nil), countryList...)
}

// lookupCountry validates an alpha-3 code. A malformed code is an
// InvalidArgumentError; a well-formed but unknown one is a NotFoundError
// suggesting nearby codes.
func lookupCountry(code string) (CountryInfo, error) {
	loadCountries()
	if !iso3Pattern.MatchString(code) {
		return CountryInfo{}, &InvalidArgumentError{
			Selector: SelCountry,
			Value:    code,
			Message:  "must be an upper-case ISO 3166-1 alpha-3 code",
		}
	}
	if ci, ok := countryByISO3[code]; ok {
		return ci, nil
	}
	return CountryInfo{}, &NotFoundError{
		Resource:    "country",
		Query:       code,
		Suggestions: suggest(code, countryCodeKeys()),
	}
}

// countryCodeKeys lists the alpha-3 codes for suggestions.
func countryCodeKeys() []string {
	keys := make([]string, len(countryList))
	for i, c := range countryList {
		keys[i] = c.ISO3
	}
	return keys
}

// CountryByName finds a country by its English name, suggesting close names
// when nothing matches exactly.
func CountryByName(name string) (CountryInfo, error) {
	loadCountries()
	want := foldName(name)
	return countryCatalog.First(
		Query{Desc: name, Term: name},
		func(c CountryInfo) bool { return foldName(c.Country) == want },
	)
}
