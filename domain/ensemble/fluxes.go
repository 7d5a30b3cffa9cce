package ensemble

// Fluxes is the flux decomposition of one parameter vector: the model's total
// integrated flux plus one entry per image function. Total is authoritative;
// Components is the evaluator's decomposition and is not re-derived here.
type Fluxes struct {
	Total      float64   `json:"total"`
	Components []float64 `json:"components"`
	Names      []string  `json:"names,omitempty"`
}
