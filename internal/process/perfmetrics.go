package process

import (
	"github.com/shaiso/Copernicus/internal/domain"
	"github.com/shaiso/Copernicus/internal/output"
)

func newPerfmetrics(rt Runtime) *diagnostic {
	return &diagnostic{
		desc: Description{
			ID:       "perfmetrics",
			Title:    "Model comparison report",
			Abstract: "Creates a performance metrics report comparing models.",
			Version:  Version,
			Metadata: []Metadata{
				{Title: "ESMValTool", Href: "http://www.esmvaltool.org/"},
			},
			Inputs: modelExperimentEnsemble(
				[]string{"MPI-ESM-LR", "MPI-ESM-MR"},
				[]string{"historical", "rcp26", "rcp45", "rcp85"},
				[]string{"r1i1p1", "r2i1p1", "r3i1p1"},
				Range{Min: 1850, Max: 2100},
				[2]int{2000, 2001},
			),
			Outputs: append(defaultOutputs(),
				Output{Name: "output", Title: "Output plot", Abstract: "Generated output plot.", MimeType: "application/pdf"},
			),
			Check: yearRange,
		},
		diag:   "perfmetrics",
		format: "pdf",
		constraints: func(v Values) domain.Constraints {
			return selection(v).
				Set(domain.DimTimeFrequency, "mon").
				Set(domain.DimTable, "Amon")
		},
		plots: []output.Descriptor{
			{
				Version:     output.DescriptorVersion,
				Name:        "output",
				Pattern:     "ta850/cycle",
				NamePattern: "ta_cycle_monthlyclim__Glob",
				Ext:         "pdf",
			},
		},
		rt: rt,
	}
}
