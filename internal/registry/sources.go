// Package registry catalogs the authoritative tariff data sources cited by
// classification rationales. The catalog is static reference data exposed
// read-only over the API.
package registry

// Source is one authoritative reference consulted during classification.
type Source struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Authority     string `json:"authority"`
	Purpose       string `json:"purpose"`
	UpdateCadence string `json:"update_cadence"`
}

// Disclaimer accompanies every source listing.
const Disclaimer = "Source links are references only; legal determinations require qualified human review."

var sources = []Source{
	{
		ID:            "htsus_usitc",
		Name:          "Harmonized Tariff Schedule (USITC)",
		URL:           "https://hts.usitc.gov/",
		Authority:     "United States International Trade Commission",
		Purpose:       "Primary tariff schedule for U.S. import classification and duty rates.",
		UpdateCadence: "Published revisions",
	},
	{
		ID:            "cbp_cross",
		Name:          "CBP CROSS Rulings",
		URL:           "https://rulings.cbp.gov/home",
		Authority:     "U.S. Customs and Border Protection",
		Purpose:       "Fact-specific customs ruling precedents for classification and valuation interpretation.",
		UpdateCadence: "Continuous",
	},
	{
		ID:            "federal_register",
		Name:          "Federal Register",
		URL:           "https://www.federalregister.gov/",
		Authority:     "Office of the Federal Register",
		Purpose:       "Official publication for federal rules, notices, and policy changes affecting trade.",
		UpdateCadence: "Daily",
	},
}

// Sources returns the catalog. Callers get a copy; the catalog is immutable.
func Sources() []Source {
	out := make([]Source, len(sources))
	copy(out, sources)
	return out
}
