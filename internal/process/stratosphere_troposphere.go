package process

import (
	"github.com/shaiso/Copernicus/internal/output"
)

func newStratosphereTroposphere(rt Runtime) *diagnostic {
	plot := func(name, suffix string) output.Descriptor {
		return output.Descriptor{
			Version:     output.DescriptorVersion,
			Name:        name,
			Pattern:     "zmnam/main",
			NamePattern: "CMIP5*25000Pa_" + suffix,
			Ext:         "png",
		}
	}

	return &diagnostic{
		desc: Description{
			ID:       "stratosphere-troposphere",
			Title:    "Stratosphere-troposphere coupling and annular modes indices (ZMNAM)",
			Abstract: "Stratosphere-troposphere coupling and annular modes indices (ZMNAM)",
			Version:  Version,
			Metadata: []Metadata{
				{Title: "ESMValTool", Href: "http://www.esmvaltool.org/"},
				{
					Title: "Documentation",
					Href:  "https://copernicus-wps-demo.readthedocs.io/en/latest/processes.html#pydemo",
					Role:  RoleDocumentation,
				},
			},
			Inputs: modelExperimentEnsemble(
				[]string{"EC-EARTH"},
				[]string{"historical"},
				[]string{"r2i1p1"},
				Range{Min: 1850, Max: 2005},
				[2]int{1980, 1989},
			),
			Outputs: append(defaultOutputs(),
				Output{Name: "success", Title: "Success", Abstract: "True if the toolchain run succeeded.", MimeType: "text/plain", Literal: true},
				Output{Name: "plot_pdf", Title: "Output plot PDF", MimeType: "image/png"},
				Output{Name: "plot_reg", Title: "Output plot REG", MimeType: "image/png"},
				Output{Name: "plot_ts", Title: "Output plot TS", MimeType: "image/png"},
				Output{Name: "archive", Title: "Archive", Abstract: "The complete toolchain output as a zip archive.", MimeType: "application/zip"},
			),
			Check: yearRange,
		},
		diag:        "zmnam",
		format:      "png",
		constraints: selection,
		plots: []output.Descriptor{
			plot("plot_pdf", "da_pdf"),
			plot("plot_reg", "mo_reg"),
			plot("plot_ts", "mo_ts"),
		},
		success: true,
		archive: true,
		rt:      rt,
	}
}
