package domain

import (
	"fmt"

	bomdomain "orderops/internal/bom/domain"
)

// ReasonKind cause connue d'un écart entre cellules source et lignes dérivées
type ReasonKind string

const (
	ReasonMergedDuplicates ReasonKind = "MERGED_DUPLICATES"
	ReasonEmptyKit         ReasonKind = "EMPTY_KIT_SKIPPED"
	ReasonOutOfBound       ReasonKind = "OUT_OF_BOUND_IGNORED"
)

// Counts entrées du contrôle de cohérence
type Counts struct {
	Source            int `json:"source"`
	Derived           int `json:"derived"`
	Merged            int `json:"merged"`
	EmptyKitSkipped   int `json:"empty_kit_skipped"`
	OutOfBoundIgnored int `json:"out_of_bound_ignored"`
}

// CountsFromImport construit les entrées à partir des statistiques d'import
// et du nombre de lignes effectivement dérivées (mesuré dans le store)
func CountsFromImport(stats bomdomain.ImportStats, derived int) Counts {
	return Counts{
		Source:            stats.SourceCells,
		Derived:           derived,
		Merged:            stats.MergedDuplicates,
		EmptyKitSkipped:   stats.EmptyKitCells,
		OutOfBoundIgnored: stats.OutOfBoundCells,
	}
}

// Reason part expliquée de l'écart
type Reason struct {
	Kind  ReasonKind `json:"kind"`
	Count int        `json:"count"`
}

// Report résultat du contrôle. L'écart non expliqué est toujours rapporté
// séparément de l'écart expliqué.
type Report struct {
	Counts           Counts   `json:"counts"`
	Match            bool     `json:"match"`
	Delta            int      `json:"delta"`
	ExplainedDelta   int      `json:"explained_delta"`
	UnexplainedDelta int      `json:"unexplained_delta"`
	Reasons          []Reason `json:"reasons"`
}

// Reconcile vérifie que source - derived est entièrement expliqué
func Reconcile(c Counts) Report {
	r := Report{Counts: c, Delta: c.Source - c.Derived}
	for _, reason := range []Reason{
		{Kind: ReasonMergedDuplicates, Count: c.Merged},
		{Kind: ReasonEmptyKit, Count: c.EmptyKitSkipped},
		{Kind: ReasonOutOfBound, Count: c.OutOfBoundIgnored},
	} {
		if reason.Count == 0 {
			continue
		}
		r.Reasons = append(r.Reasons, reason)
		r.ExplainedDelta += reason.Count
	}
	r.UnexplainedDelta = r.Delta - r.ExplainedDelta
	r.Match = r.UnexplainedDelta == 0
	return r
}

// ReconcileCounts forme courte: seul le nombre de fusions explique l'écart
func ReconcileCounts(source, derived, dedup int) Report {
	return Reconcile(Counts{Source: source, Derived: derived, Merged: dedup})
}

func (r Report) String() string {
	status := "MATCH"
	if !r.Match {
		status = "MISMATCH"
	}
	return fmt.Sprintf("%s source=%d derived=%d delta=%d explained=%d unexplained=%d",
		status, r.Counts.Source, r.Counts.Derived, r.Delta, r.ExplainedDelta, r.UnexplainedDelta)
}
