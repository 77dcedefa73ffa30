// Package catalog holds the ordered list of top-level regions a run walks.
package catalog

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/schoolscrape/internal/model"
)

// defaultRegions are the states, union territories and central school
// bodies the portal lists in its state dropdown, in processing order.
var defaultRegions = []string{
	"ANDAMAN & NICOBAR ISLANDS",
	"ANDHRA PRADESH",
	"ARUNACHAL PRADESH",
	"ASSAM",
	"BIHAR",
	"CHANDIGARH",
	"CHHATTISGARH",
	"DADRA & NAGAR HAVELI AND DAMAN & DIU",
	"DELHI",
	"GOA",
	"GUJARAT",
	"HARYANA",
	"HIMACHAL PRADESH",
	"JAMMU & KASHMIR",
	"JHARKHAND",
	"KARNATAKA",
	"KENDRIYA VIDYALAYA SANGHATHAN",
	"KERALA",
	"LADAKH",
	"LAKSHADWEEP",
	"MADHYA PRADESH",
	"MAHARASHTRA",
	"MANIPUR",
	"MEGHALAYA",
	"MIZORAM",
	"NAGALAND",
	"NAVODAYA VIDYALAYA SAMITI",
	"ODISHA",
	"PUDUCHERRY",
	"PUNJAB",
	"RAJASTHAN",
	"SIKKIM",
	"TAMILNADU",
	"TELANGANA",
	"TRIPURA",
	"UTTARAKHAND",
	"UTTAR PRADESH",
	"WEST BENGAL",
}

// Catalog is an immutable, ordered set of regions. Order is the
// processing order of a run.
type Catalog struct {
	regions []model.Region
	index   map[string]int // normalized name -> position
}

// New builds a catalog from regions in the given order. Names must be
// non-empty and unique (case-insensitive).
func New(regions []model.Region) (*Catalog, error) {
	if len(regions) == 0 {
		return nil, eris.New("catalog: no regions")
	}
	c := &Catalog{
		regions: make([]model.Region, 0, len(regions)),
		index:   make(map[string]int, len(regions)),
	}
	for _, r := range regions {
		r.Name = strings.TrimSpace(r.Name)
		r.ID = strings.TrimSpace(r.ID)
		if r.Name == "" {
			return nil, eris.Errorf("catalog: region %d has no name", len(c.regions)+1)
		}
		key := normalize(r.Name)
		if _, dup := c.index[key]; dup {
			return nil, eris.Errorf("catalog: duplicate region %q", r.Name)
		}
		c.index[key] = len(c.regions)
		c.regions = append(c.regions, r)
	}
	return c, nil
}

// Default returns the built-in catalog. IDs are left empty; the portal
// resolves regions by name.
func Default() *Catalog {
	regions := make([]model.Region, len(defaultRegions))
	for i, name := range defaultRegions {
		regions[i] = model.Region{Name: name}
	}
	c, err := New(regions)
	if err != nil {
		panic(err) // the built-in list is static
	}
	return c
}

type fileFormat struct {
	Regions []model.Region `yaml:"regions"`
}

// Load reads a catalog override file:
//
//	regions:
//	  - name: GOA
//	    id: "130"
//	  - name: KERALA
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}
	c, err := New(f.Regions)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: %s", path)
	}
	return c, nil
}

// LoadOrDefault loads path when set, otherwise returns Default.
func LoadOrDefault(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return Load(path)
}

// Regions returns all regions in catalog order.
func (c *Catalog) Regions() []model.Region {
	out := make([]model.Region, len(c.regions))
	copy(out, c.regions)
	return out
}

// Len returns the number of regions.
func (c *Catalog) Len() int { return len(c.regions) }

// Get returns the region with the given name (case-insensitive).
func (c *Catalog) Get(name string) (model.Region, error) {
	i, ok := c.index[normalize(name)]
	if !ok {
		return model.Region{}, eris.Errorf("catalog: unknown region %q", name)
	}
	return c.regions[i], nil
}

// Select returns the named regions in catalog order, regardless of the
// order the names were given in. An empty names list selects everything.
// Unknown names are an error.
func (c *Catalog) Select(names []string) ([]model.Region, error) {
	if len(names) == 0 {
		return c.Regions(), nil
	}
	want := make([]bool, len(c.regions))
	for _, n := range names {
		i, ok := c.index[normalize(n)]
		if !ok {
			return nil, eris.Errorf("catalog: unknown region %q", n)
		}
		want[i] = true
	}
	var out []model.Region
	for i, r := range c.regions {
		if want[i] {
			out = append(out, r)
		}
	}
	return out, nil
}

func normalize(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}
