// Package dataset describes the feature layers the pipeline ingests and
// normalizes their features into storable records.
package dataset

import (
	"regexp"

	"github.com/rotisserie/eris"

	"github.com/ncov-ph/ncov-cli/internal/arcgis"
)

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Dataset is one row of the dataset table: where a layer lives, where its
// records go, and which fields need resolving.
type Dataset struct {
	Name       string   `yaml:"name" json:"name"`
	Collection string   `yaml:"collection" json:"collection"`
	Service    string   `yaml:"service" json:"service"`
	LayerURL   string   `yaml:"layer_url,omitempty" json:"layer_url"`
	OrderBy    string   `yaml:"order_by,omitempty" json:"order_by,omitempty"`
	DateFields []string `yaml:"date_fields,omitempty" json:"date_fields,omitempty"`
	Location   bool     `yaml:"location" json:"location"`
	LatField   string   `yaml:"latitude_field,omitempty" json:"latitude_field,omitempty"`
	LonField   string   `yaml:"longitude_field,omitempty" json:"longitude_field,omitempty"`
}

func (d *Dataset) validate() error {
	if !identRe.MatchString(d.Name) {
		return eris.Errorf("dataset: invalid name %q", d.Name)
	}
	if !identRe.MatchString(d.Collection) {
		return eris.Errorf("dataset: %s: invalid collection %q", d.Name, d.Collection)
	}
	if d.Service == "" && d.LayerURL == "" {
		return eris.Errorf("dataset: %s: service or layer_url is required", d.Name)
	}
	return nil
}

// resolveLayer fills LayerURL from the base URL when the table names only
// the feature service.
func (d *Dataset) resolveLayer(baseURL string) error {
	if d.LayerURL != "" {
		return nil
	}
	if baseURL == "" {
		return eris.Errorf("dataset: %s: base_url is required to locate service %q", d.Name, d.Service)
	}
	d.LayerURL = arcgis.LayerURL(baseURL, d.Service)
	return nil
}
