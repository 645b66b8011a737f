package rates

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/specwright/takeoff-cli/internal/model"
)

type yamlRateFile struct {
	Rates []model.RateEntry `yaml:"rates"`
}

// LoadYAML reads a rate file of the form:
//
//	rates:
//	  - kind: panel
//	    signature: "rating=1000a"
//	    unit: each
//	    material_rate: 4200
//	    labor_rate: 1100
func LoadYAML(path string) ([]model.RateEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "rates: read yaml")
	}
	var f yamlRateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "rates: parse yaml")
	}
	for i, e := range f.Rates {
		if e.Kind == "" {
			return nil, eris.Errorf("rates: entry %d missing kind", i)
		}
	}
	return f.Rates, nil
}
