package excel

// Sheet names written by Exporter and understood by EnsembleReader
const (
	SheetSummary   = "Summary"
	SheetEnsemble  = "Ensemble"
	SheetHistogram = "Histogram"
)

// column headers that frame the parameter columns on the Ensemble sheet
const (
	rowHeader     = "row"
	valueHeader   = "value"
	failureHeader = "failure"
)
