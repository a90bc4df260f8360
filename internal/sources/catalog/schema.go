package catalog

// File is the top-level structure of the catalog YAML file.
//
//	brands:
//	  - code: BRAND
//	    name: Brand Inc
//	    query: brand official
//	    domains: [shop.brand.com, brand]
type File struct {
	Brands []BrandEntry `yaml:"brands"`
}

type BrandEntry struct {
	Code     string   `yaml:"code"`
	Name     string   `yaml:"name"`
	Query    string   `yaml:"query,omitempty"`
	Disabled bool     `yaml:"disabled,omitempty"`
	Domains  []string `yaml:"domains"`
}
