package dataset

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed feeds.yaml
var defaultFeeds []byte

// Feeds is the on-disk form of the dataset table.
type Feeds struct {
	BaseURL  string    `yaml:"base_url"`
	Datasets []Dataset `yaml:"datasets"`
}

// Registry holds the datasets in processing order.
type Registry struct {
	datasets map[string]*Dataset
	order    []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		datasets: make(map[string]*Dataset),
	}
}

// Register adds a dataset. Names and collections must be unique.
func (r *Registry) Register(d Dataset) error {
	if err := d.validate(); err != nil {
		return err
	}
	if _, dup := r.datasets[d.Name]; dup {
		return eris.Errorf("dataset: duplicate name %q", d.Name)
	}
	for _, other := range r.datasets {
		if other.Collection == d.Collection {
			return eris.Errorf("dataset: %s and %s share collection %q", other.Name, d.Name, d.Collection)
		}
	}
	r.datasets[d.Name] = &d
	r.order = append(r.order, d.Name)
	return nil
}

// Get returns a dataset by name.
func (r *Registry) Get(name string) (*Dataset, error) {
	d, ok := r.datasets[name]
	if !ok {
		return nil, eris.Errorf("dataset: unknown dataset %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return d, nil
}

// All returns all datasets in registration order.
func (r *Registry) All() []*Dataset {
	out := make([]*Dataset, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.datasets[name])
	}
	return out
}

// Select returns the named datasets in registration order, or all of them
// when names is empty.
func (r *Registry) Select(names []string) ([]*Dataset, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, name := range names {
		if _, err := r.Get(name); err != nil {
			return nil, err
		}
		want[name] = true
	}
	var out []*Dataset
	for _, d := range r.All() {
		if want[d.Name] {
			out = append(out, d)
		}
	}
	return out, nil
}

// Names returns the dataset names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Collections returns the collection of every dataset in registration order.
func (r *Registry) Collections() []string {
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.datasets[name].Collection)
	}
	return out
}

// Parse builds a registry from a YAML dataset table.
func Parse(data []byte) (*Registry, error) {
	var feeds Feeds
	if err := yaml.Unmarshal(data, &feeds); err != nil {
		return nil, eris.Wrap(err, "dataset: parse feeds")
	}
	if len(feeds.Datasets) == 0 {
		return nil, eris.New("dataset: feeds table has no datasets")
	}
	reg := NewRegistry()
	for _, d := range feeds.Datasets {
		if err := d.resolveLayer(feeds.BaseURL); err != nil {
			return nil, err
		}
		if err := reg.Register(d); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Default returns the built-in dataset table.
func Default() *Registry {
	reg, err := Parse(defaultFeeds)
	if err != nil {
		panic(err)
	}
	return reg
}

// Load reads the dataset table from path, or the built-in table when path
// is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	return Parse(data)
}
