// Package speedlimit parses OSM maxspeed values and infers limits from road
// classification when no usable tag exists.
package speedlimit

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Jurisdiction holds the default limits of one country, in km/h.
type Jurisdiction struct {
	Code     string         `yaml:"code"`
	OpenRoad int            `yaml:"open_road"` // maxspeed=none / signals
	Urban    int            `yaml:"urban"`
	Rural    int            `yaml:"rural"`
	Motorway int            `yaml:"motorway"`
	Living   int            `yaml:"living_street"`
	Highway  map[string]int `yaml:"highway"` // exact highway=* defaults
}

var builtin = map[string]Jurisdiction{
	"ZA": {
		Code: "ZA", OpenRoad: 120, Urban: 60, Rural: 100, Motorway: 120, Living: 20,
		Highway: map[string]int{
			"motorway": 120, "motorway_link": 80,
			"trunk": 120, "trunk_link": 80,
			"primary": 100, "primary_link": 60,
			"secondary": 80, "secondary_link": 60,
			"tertiary": 80, "tertiary_link": 60,
			"unclassified": 60, "residential": 60,
			"living_street": 20, "service": 40,
		},
	},
	"GB": {
		Code: "GB", OpenRoad: 113, Urban: 48, Rural: 97, Motorway: 113, Living: 16,
		Highway: map[string]int{
			"motorway": 113, "motorway_link": 113,
			"trunk": 113, "trunk_link": 97,
			"primary": 97, "primary_link": 97,
			"secondary": 97, "tertiary": 97,
			"unclassified": 97, "residential": 48,
			"living_street": 16, "service": 32,
		},
	},
	"DE": {
		Code: "DE", OpenRoad: 130, Urban: 50, Rural: 100, Motorway: 130, Living: 7,
		Highway: map[string]int{
			"motorway": 130, "motorway_link": 80,
			"trunk": 100, "trunk_link": 80,
			"primary": 100, "secondary": 100, "tertiary": 100,
			"unclassified": 100, "residential": 50,
			"living_street": 7, "service": 30,
		},
	},
	"NL": {
		Code: "NL", OpenRoad: 130, Urban: 50, Rural: 80, Motorway: 130, Living: 15,
		Highway: map[string]int{
			"motorway": 130, "motorway_link": 80,
			"trunk": 100, "primary": 80, "secondary": 80, "tertiary": 80,
			"unclassified": 60, "residential": 30,
			"living_street": 15, "service": 30,
		},
	},
	"US": {
		Code: "US", OpenRoad: 105, Urban: 40, Rural: 89, Motorway: 105, Living: 24,
		Highway: map[string]int{
			"motorway": 105, "motorway_link": 56,
			"trunk": 89, "primary": 72, "secondary": 64, "tertiary": 56,
			"unclassified": 56, "residential": 40,
			"living_street": 24, "service": 24,
		},
	},
}

// Lookup returns the built-in jurisdiction for a two-letter country code.
func Lookup(code string) (Jurisdiction, error) {
	j, ok := builtin[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Jurisdiction{}, eris.Errorf("speedlimit: unknown jurisdiction %q", code)
	}
	return j.clone(), nil
}

// Codes lists the built-in jurisdiction codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(builtin))
	for c := range builtin {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

func (j Jurisdiction) clone() Jurisdiction {
	hw := make(map[string]int, len(j.Highway))
	for k, v := range j.Highway {
		hw[k] = v
	}
	j.Highway = hw
	return j
}

// tableFile is the YAML layout of a speed table override file.
type tableFile struct {
	Jurisdictions []Jurisdiction `yaml:"jurisdictions"`
}

// LoadTable resolves code, applying overrides from a YAML file when path is
// set. Non-zero scalar fields and highway entries in the file replace the
// built-in values; a code absent from the built-ins must be fully specified.
func LoadTable(path, code string) (Jurisdiction, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	base, baseErr := Lookup(code)
	if path == "" {
		return base, baseErr
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Jurisdiction{}, eris.Wrapf(err, "speedlimit: read table %s", path)
	}
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return Jurisdiction{}, eris.Wrapf(err, "speedlimit: parse table %s", path)
	}

	for _, o := range tf.Jurisdictions {
		if !strings.EqualFold(o.Code, code) {
			continue
		}
		if baseErr != nil {
			base = Jurisdiction{Code: code, Highway: map[string]int{}}
		}
		merged := merge(base, o)
		if merged.OpenRoad == 0 {
			return Jurisdiction{}, eris.Errorf("speedlimit: table %s: %s has no open_road limit", path, code)
		}
		return merged, nil
	}
	return base, baseErr
}

func merge(base, o Jurisdiction) Jurisdiction {
	if o.OpenRoad > 0 {
		base.OpenRoad = o.OpenRoad
	}
	if o.Urban > 0 {
		base.Urban = o.Urban
	}
	if o.Rural > 0 {
		base.Rural = o.Rural
	}
	if o.Motorway > 0 {
		base.Motorway = o.Motorway
	}
	if o.Living > 0 {
		base.Living = o.Living
	}
	for k, v := range o.Highway {
		base.Highway[k] = v
	}
	return base
}
