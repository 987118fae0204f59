package source

import (
	"fmt"
	"strings"

	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/webclient"
)

const (
	KindStatic = "static"
	KindJSONLD = "jsonld"
)

// Spec is the configured form of an adapter.
type Spec struct {
	Kind         string       `yaml:"kind" json:"kind"`
	Source       model.Source `yaml:"source" json:"source"`
	File         string       `yaml:"file" json:"file,omitempty"`
	InventoryURL string       `yaml:"inventory_url" json:"inventory_url,omitempty"`
	FirstPage    int          `yaml:"first_page" json:"first_page,omitempty"`
	MaxPages     int          `yaml:"max_pages" json:"max_pages,omitempty"`
	RPS          float64      `yaml:"rps" json:"rps,omitempty"`
	WaitSelector string       `yaml:"wait_selector" json:"wait_selector,omitempty"`
}

// New builds the adapter a Spec describes. The client is only used by
// fetching adapters.
func New(spec Spec, client webclient.WebClient, logger logging.Logger) (Adapter, error) {
	src := spec.Source
	if src == "" {
		src = model.SourceDealerSite
	}
	switch strings.ToLower(spec.Kind) {
	case KindStatic:
		if spec.File == "" {
			return nil, fmt.Errorf("static source needs a file")
		}
		return LoadStaticFile(spec.File, src)
	case KindJSONLD, "":
		return NewJSONLD(client, JSONLDConfig{
			InventoryURL: spec.InventoryURL,
			FirstPage:    spec.FirstPage,
			MaxPages:     spec.MaxPages,
			RPS:          spec.RPS,
			WaitSelector: spec.WaitSelector,
			Source:       src,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
}
