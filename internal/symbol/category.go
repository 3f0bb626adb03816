package symbol

import "fmt"

// Category is the kind of symbol a shard indexes. The numeric order is the
// ranking priority: lower values rank first.
type Category int

const (
	CategoryClass Category = iota
	CategoryNamespace
	CategoryFile
	CategoryFunction
	CategoryVariable
	CategoryTypedef
	CategoryEnum
	CategoryEnumValue
	CategoryDefine
	CategoryRelated
	CategoryGroup
	CategoryPage
	CategoryAll
)

type categoryInfo struct {
	name   string
	prefix string
}

var categories = [...]categoryInfo{
	CategoryClass:     {"class", "classes"},
	CategoryNamespace: {"namespace", "namespaces"},
	CategoryFile:      {"file", "files"},
	CategoryFunction:  {"function", "functions"},
	CategoryVariable:  {"variable", "variables"},
	CategoryTypedef:   {"typedef", "typedefs"},
	CategoryEnum:      {"enum", "enums"},
	CategoryEnumValue: {"enumvalue", "enumvalues"},
	CategoryDefine:    {"define", "defines"},
	CategoryRelated:   {"related", "related"},
	CategoryGroup:     {"group", "groups"},
	CategoryPage:      {"page", "pages"},
	CategoryAll:       {"all", "all"},
}

// Categories returns every known category in priority order.
func Categories() []Category {
	out := make([]Category, 0, len(categories))
	for c := range categories {
		out = append(out, Category(c))
	}
	return out
}

// ParseCategory maps a shard file prefix ("variables") or a category name
// ("variable") to its Category.
func ParseCategory(s string) (Category, error) {
	for c, info := range categories {
		if s == info.prefix || s == info.name {
			return Category(c), nil
		}
	}
	return 0, fmt.Errorf("unknown symbol category %q", s)
}

func (c Category) valid() bool {
	return c >= 0 && int(c) < len(categories)
}

// Prefix is the shard file-name prefix for the category.
func (c Category) Prefix() string {
	if !c.valid() {
		return ""
	}
	return categories[c].prefix
}

// Priority is the category's rank in result ordering; lower ranks first.
func (c Category) Priority() int {
	return int(c)
}

func (c Category) String() string {
	if !c.valid() {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categories[c].name
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
