package run

import (
	"fmt"
	"strings"

	"imfitboot/domain/core"
	"imfitboot/domain/ensemble"
)

// Manifest captures what a run's distribution is a pure function of: the
// ensemble contents, the quantity and the histogram edges. Two runs with the
// same manifest fingerprint must produce identical distributions.
type Manifest struct {
	EnsembleHash core.Hash `json:"ensemble_hash"`
	Quantity     string    `json:"quantity"`
	BinEdges     []float64 `json:"bin_edges,omitempty"`
	Workers      int       `json:"workers"`
	FailFast     bool      `json:"fail_fast"`
	Fingerprint  core.Hash `json:"fingerprint"`
}

// NewManifest fingerprints the inputs of a derived-quantity evaluation.
// Workers is recorded for audit only; it does not affect the fingerprint.
func NewManifest(ens *ensemble.Ensemble, quantity string, edges []float64, workers int, failFast bool) Manifest {
	m := Manifest{
		EnsembleHash: ens.Fingerprint(),
		Quantity:     quantity,
		BinEdges:     append([]float64(nil), edges...),
		Workers:      workers,
		FailFast:     failFast,
	}
	m.Fingerprint = computeFingerprint(m)
	return m
}

func computeFingerprint(m Manifest) core.Hash {
	var b strings.Builder
	fmt.Fprintf(&b, "ensemble:%s|quantity:%s|fail_fast:%t|edges:", m.EnsembleHash, m.Quantity, m.FailFast)
	b.WriteString(string(core.HashFloats(m.BinEdges)))
	return core.NewHash([]byte(b.String()))
}
