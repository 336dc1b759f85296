package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// NotApplicable is stored in every applicability field of a non-direct record
const NotApplicable = "n/a"

// NotFound is the sentinel DOI when the document carries no identifier
const NotFound = "Not found"

// Category is the research category assigned by content analysis
type Category string

const (
	CategoryDirect     Category = "direct"
	CategorySupportive Category = "supportive"
	CategoryUnknown    Category = "unknown"
)

// ParseCategory maps an oracle answer onto a Category
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct":
		return CategoryDirect
	case "supportive":
		return CategorySupportive
	default:
		return CategoryUnknown
	}
}

// Applicability holds the four audience-specific notes of a direct record
type Applicability struct {
	OneOnOne      string `json:"one_on_one_applicability"`
	SmallGroup    string `json:"small_group_applicability"`
	LargeGroup    string `json:"large_group_applicability"`
	SelfEducation string `json:"self_education_applicability"`
}

// Complete reports whether every field carries real content
func (a Applicability) Complete() bool {
	for _, v := range a.fields() {
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, NotApplicable) {
			return false
		}
	}
	return true
}

func (a Applicability) fields() []string {
	return []string{a.OneOnOne, a.SmallGroup, a.LargeGroup, a.SelfEducation}
}

func notApplicable() Applicability {
	return Applicability{
		OneOnOne:      NotApplicable,
		SmallGroup:    NotApplicable,
		LargeGroup:    NotApplicable,
		SelfEducation: NotApplicable,
	}
}

// Classification is a closed variant over Direct{applicability}, Supportive and Unknown.
// The zero value is Unknown.
type Classification struct {
	direct *Applicability
	cat    Category
}

// Direct builds a direct classification carrying the four applicability notes
func Direct(a Applicability) Classification {
	return Classification{cat: CategoryDirect, direct: &a}
}

// Supportive builds a supportive classification
func Supportive() Classification {
	return Classification{cat: CategorySupportive}
}

// Unclassified is used when content analysis failed
func Unclassified() Classification {
	return Classification{}
}

// Category returns the category of the variant
func (c Classification) Category() Category {
	if c.cat == "" {
		return CategoryUnknown
	}
	return c.cat
}

// Applicability returns the notes for a direct record and the sentinel otherwise
func (c Classification) Applicability() Applicability {
	if c.cat == CategoryDirect && c.direct != nil {
		return *c.direct
	}
	return notApplicable()
}

// Year is a publication year that may be unknown
type Year struct {
	Value int
	Known bool
}

// KnownYear returns a known year
func KnownYear(y int) Year {
	return Year{Value: y, Known: true}
}

func (y Year) String() string {
	if !y.Known {
		return "Unknown"
	}
	return strconv.Itoa(y.Value)
}

// MarshalJSON writes the year as an integer or "unknown"
func (y Year) MarshalJSON() ([]byte, error) {
	if !y.Known {
		return []byte(`"unknown"`), nil
	}
	return []byte(strconv.Itoa(y.Value)), nil
}

// UnmarshalJSON accepts integers, numeric strings and anything else as unknown
func (y *Year) UnmarshalJSON(data []byte) error {
	*y = ParseYear(data)
	return nil
}

// ParseYear interprets a raw JSON value as a publication year
func ParseYear(raw json.RawMessage) Year {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := strconv.Atoi(n.String()); err == nil && v > 0 {
			return KnownYear(v)
		}
		if f, err := n.Float64(); err == nil && f > 0 && f == float64(int(f)) {
			return KnownYear(int(f))
		}
		return Year{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && v > 0 {
			return KnownYear(v)
		}
	}
	return Year{}
}

type recordAlias DocumentRecord

type recordJSON struct {
	*recordAlias
	Category Category `json:"research_category"`
	Applicability
}

// MarshalJSON flattens the classification into research_category and the four applicability fields
func (r DocumentRecord) MarshalJSON() ([]byte, error) {
	alias := recordAlias(r)
	if alias.Tags == nil {
		alias.Tags = []string{}
	}
	if alias.Authors == nil {
		alias.Authors = []string{}
	}
	return json.Marshal(recordJSON{
		recordAlias:   &alias,
		Category:      r.Classification.Category(),
		Applicability: r.Classification.Applicability(),
	})
}

// UnmarshalJSON rebuilds the classification variant from the flat fields
func (r *DocumentRecord) UnmarshalJSON(data []byte) error {
	aux := recordJSON{recordAlias: (*recordAlias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch ParseCategory(string(aux.Category)) {
	case CategoryDirect:
		if aux.Applicability.Complete() {
			r.Classification = Direct(aux.Applicability)
		} else {
			r.Classification = Unclassified()
		}
	case CategorySupportive:
		r.Classification = Supportive()
	default:
		r.Classification = Unclassified()
	}
	return nil
}
