package process

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/output"
)

func newRainfarm(rt Runtime) *diagnostic {
	inputs := modelExperimentEnsemble(
		[]string{"ACCESS1-0"},
		[]string{"historical"},
		nil,
		Range{Min: 1850, Max: 2005},
		[2]int{1997, 1997},
	)
	inputs = append(inputs,
		Input{
			Name:     "subset",
			Title:    "Geographical subset",
			Abstract: "Choose a geographical subset with a Bounding Box: 4,13,44,53",
			Type:     TypeString,
			Default:  "4,13,44,53",
		},
		Input{
			Name:     "regridding",
			Title:    "Regridding",
			Abstract: "Flag for regridding.",
			Type:     TypeBoolean,
			Default:  "0",
		},
		Input{
			Name:     "slope",
			Title:    "Slope",
			Abstract: "Spatial spectral slope. 0 estimates it from the data.",
			Type:     TypeFloat,
			Default:  "0",
		},
		Input{
			Name:     "num_ens_members",
			Title:    "Number of ensemble members",
			Abstract: "Choose a number of ensemble members.",
			Type:     TypeInteger,
			Default:  "2",
			Range:    &Range{Min: 1, Max: 100},
		},
		Input{
			Name:     "num_subdivs",
			Title:    "Number of subdivisions",
			Abstract: "Choose a number of subdivisions.",
			Type:     TypeInteger,
			Default:  "8",
			Range:    &Range{Min: 1, Max: 64},
		},
	)

	return &diagnostic{
		desc: Description{
			ID:    "rainfarm",
			Title: "RainFARM stochastic downscaling",
			Abstract: "Tool to perform stochastic precipitation downscaling, generating an ensemble of fine-scale " +
				"precipitation fields from information simulated by climate models at regional scale.",
			Version: Version,
			Metadata: []Metadata{
				{Title: "ESMValTool", Href: "http://www.esmvaltool.org/"},
				{
					Title: "Documentation",
					Href:  "https://copernicus-wps-demo.readthedocs.io/en/latest/processes.html#rainfarm",
					Role:  RoleDocumentation,
				},
			},
			Inputs: inputs,
			Outputs: append(defaultOutputs(),
				Output{Name: "output", Title: "Output plot", Abstract: "Generated output plot.", MimeType: "image/png"},
			),
			Check: func(v Values) error {
				if err := yearRange(v); err != nil {
					return err
				}
				_, err := parseSubset(v.String("subset"))
				return err
			},
		},
		diag:   "rainfarm",
		format: "png",
		constraints: func(v Values) domain.Constraints {
			return selection(v).
				Set(domain.DimEnsemble, "r1i1p1").
				Set(domain.DimTimeFrequency, "day")
		},
		options: func(v Values) map[string]any {
			return map[string]any{
				"subset":          v.String("subset"),
				"regridding":      v.Bool("regridding"),
				"slope":           v.Float("slope"),
				"num_ens_members": v.Int("num_ens_members"),
				"num_subdivs":     v.Int("num_subdivs"),
			}
		},
		plots: []output.Descriptor{
			{
				Version: output.DescriptorVersion,
				Name:    "output",
				Pattern: "rainfarm/rainfarm",
				Ext:     "png",
			},
		},
		rt: rt,
	}
}

// parseSubset разбирает bbox "lon_min,lon_max,lat_min,lat_max".
func parseSubset(s string) ([4]float64, error) {
	var bbox [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return bbox, fmt.Errorf("subset %q: expected 4 comma-separated numbers", s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return bbox, fmt.Errorf("subset %q: %q is not a number", s, p)
		}
		bbox[i] = f
	}
	if bbox[0] >= bbox[1] || bbox[2] >= bbox[3] {
		return bbox, fmt.Errorf("subset %q: min must be less than max", s)
	}
	if bbox[2] < -90 || bbox[3] > 90 {
		return bbox, fmt.Errorf("subset %q: latitude out of range", s)
	}
	return bbox, nil
}
