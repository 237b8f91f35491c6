// Package dedup classifies a freshly-extracted proposed transaction
// against the existing entries in an account journal.
package dedup

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/yonran/refreshmint/internal/journal"
)

// Outcome is the tag of a classification result.
type Outcome string

const (
	OutcomeSameEvidence       Outcome = "same_evidence"
	OutcomeBankIDMatch        Outcome = "bank_id_match"
	OutcomeFuzzyMatch         Outcome = "fuzzy_match"
	OutcomePendingToFinalized Outcome = "pending_to_finalized"
	OutcomeAmbiguous          Outcome = "ambiguous"
	OutcomeNew                Outcome = "new"
)

// Result is the outcome of classifying one proposed entry.
type Result struct {
	Outcome Outcome
	// Index is the index of the matched entry within the journal passed
	// to Classify, valid for every outcome except Ambiguous and New.
	Index int
	// Indices holds every candidate index when Outcome is Ambiguous.
	Indices []int
	// Updated is true when a SameEvidence match's description, status,
	// or primary amount differs from the existing entry.
	Updated bool
}

const (
	amountEpsilon        = 0.005
	fuzzyDateTolerance   = 1
	pendingDateTolerance = 7
	pendingAbsTolerance  = 5.0
	pendingRelTolerance  = 0.20
	jaccardThreshold     = 0.5
)

// Classify runs the five-step classification chain for a proposed entry
// P against existing entries E, skipping any index in consumed.
func Classify(p *journal.Entry, existing []*journal.Entry, consumed map[int]bool) Result {
	if consumed == nil {
		consumed = map[int]bool{}
	}

	if idx, ok := sameEvidenceMatch(p, existing); ok {
		return Result{
			Outcome: OutcomeSameEvidence,
			Index:   idx,
			Updated: differs(p, existing[idx]),
		}
	}

	if idx, ok := bankIDMatch(p, existing, consumed); ok {
		return Result{Outcome: OutcomeBankIDMatch, Index: idx}
	}

	fuzzy := fuzzyCandidates(p, existing, consumed)
	if len(fuzzy) == 1 {
		return Result{Outcome: OutcomeFuzzyMatch, Index: fuzzy[0]}
	}
	if len(fuzzy) >= 2 {
		// Two or more candidates never fall through to the
		// pending-to-finalized step; the user resolves them.
		return Result{Outcome: OutcomeAmbiguous, Indices: fuzzy}
	}

	if p.Status == journal.StatusCleared {
		if idx, ok := pendingToFinalizedMatch(p, existing, consumed); ok {
			return Result{Outcome: OutcomePendingToFinalized, Index: idx}
		}
	}

	return Result{Outcome: OutcomeNew}
}

func sameEvidenceMatch(p *journal.Entry, existing []*journal.Entry) (int, bool) {
	for i, e := range existing {
		if sharesEvidence(p, e) {
			return i, true
		}
	}
	return 0, false
}

func sharesEvidence(a, b *journal.Entry) bool {
	for _, ea := range a.Evidence {
		for _, eb := range b.Evidence {
			if ea == eb {
				return true
			}
		}
	}
	return false
}

func differs(p, e *journal.Entry) bool {
	if p.Description != e.Description || p.Status != e.Status {
		return true
	}
	pa, pok := p.PrimaryAmount()
	ea, eok := e.PrimaryAmount()
	if pok != eok {
		return true
	}
	if pok && eok {
		pf, errP := pa.Float64()
		ef, errE := ea.Float64()
		if errP != nil || errE != nil || math.Abs(pf-ef) >= amountEpsilon {
			return true
		}
	}
	return false
}

func bankID(e *journal.Entry) (string, bool) {
	v, ok := e.Tag("bankId")
	return v, ok
}

func sourceDocument(ref string) string {
	if idx := strings.IndexByte(ref, ':'); idx >= 0 {
		return ref[:idx]
	}
	if idx := strings.IndexByte(ref, '#'); idx >= 0 {
		return ref[:idx]
	}
	return ref
}

func entrySourceDocuments(e *journal.Entry) map[string]bool {
	docs := make(map[string]bool, len(e.Evidence))
	for _, ev := range e.Evidence {
		docs[sourceDocument(ev)] = true
	}
	return docs
}

func bankIDMatch(p *journal.Entry, existing []*journal.Entry, consumed map[int]bool) (int, bool) {
	pBankID, ok := bankID(p)
	if !ok {
		return 0, false
	}
	pDocs := entrySourceDocuments(p)

	var matches []int
	for i, e := range existing {
		if consumed[i] {
			continue
		}
		eBankID, ok := bankID(e)
		if !ok || eBankID != pBankID {
			continue
		}
		referencesP := false
		for _, ev := range e.Evidence {
			if pDocs[sourceDocument(ev)] {
				referencesP = true
				break
			}
		}
		if !referencesP {
			matches = append(matches, i)
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	return 0, false
}

func fuzzyCandidates(p *journal.Entry, existing []*journal.Entry, consumed map[int]bool) []int {
	pAmount, ok := p.PrimaryAmount()
	if !ok {
		return nil
	}
	pf, err := pAmount.Float64()
	if err != nil {
		return nil
	}
	normP := normalizeDescription(p.Description)
	pDocs := entrySourceDocuments(p)

	var candidates []int
	for i, e := range existing {
		if consumed[i] {
			continue
		}
		// Across documents only: two rows of the same statement are
		// distinct transactions even when date/amount/description agree.
		sameDoc := false
		for _, ev := range e.Evidence {
			if pDocs[sourceDocument(ev)] {
				sameDoc = true
				break
			}
		}
		if sameDoc {
			continue
		}
		if dateDiffDays(p.Date, e.Date) > fuzzyDateTolerance {
			continue
		}
		eAmount, ok := e.PrimaryAmount()
		if !ok {
			continue
		}
		ef, err := eAmount.Float64()
		if err != nil || math.Abs(pf-ef) >= amountEpsilon {
			continue
		}
		if !descriptionsSimilar(normP, normalizeDescription(e.Description)) {
			continue
		}
		candidates = append(candidates, i)
	}
	return candidates
}

func pendingToFinalizedMatch(p *journal.Entry, existing []*journal.Entry, consumed map[int]bool) (int, bool) {
	pAmount, ok := p.PrimaryAmount()
	if !ok {
		return 0, false
	}
	pf, err := pAmount.Float64()
	if err != nil {
		return 0, false
	}

	var matches []int
	for i, e := range existing {
		if consumed[i] || e.Status != journal.StatusPending {
			continue
		}
		if dateDiffDays(p.Date, e.Date) > pendingDateTolerance {
			continue
		}
		eAmount, ok := e.PrimaryAmount()
		if !ok {
			continue
		}
		ef, err := eAmount.Float64()
		if err != nil {
			continue
		}
		diff := math.Abs(pf - ef)
		relTolerance := pendingRelTolerance * math.Abs(ef)
		if diff < pendingAbsTolerance || diff < relTolerance {
			matches = append(matches, i)
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	return 0, false
}

func dateDiffDays(a, b journal.Date) int {
	d := a.DaysSince(b)
	if d < 0 {
		d = -d
	}
	return d
}

var nonAlphaNumSpace = regexp.MustCompile(`[^A-Z0-9 ]`)
var multiSpaceRe = regexp.MustCompile(`\s+`)

func normalizeDescription(s string) string {
	s = strings.ToUpper(s)
	s = nonAlphaNumSpace.ReplaceAllString(s, " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func descriptionsSimilar(a, b string) bool {
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return jaccardWordOverlap(a, b) >= jaccardThreshold
}

func jaccardWordOverlap(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	intersection := 0
	union := map[string]bool{}
	for w := range wa {
		union[w] = true
	}
	for w := range wb {
		union[w] = true
		if wa[w] {
			intersection++
		}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Apply mutates existing (the account journal's entries) and/or appends a
// new entry, according to result. It returns the updated slice, the
// entry that was created or mutated (nil for Ambiguous), and whether a
// new entry was created (for emitting an EntryCreated operation).
func Apply(p *journal.Entry, existing []*journal.Entry, result Result, extractedBy string) (updated []*journal.Entry, affected *journal.Entry, created bool) {
	addAllEvidence := func(e *journal.Entry) {
		for _, ev := range p.Evidence {
			e.AddEvidence(ev)
		}
	}

	switch result.Outcome {
	case OutcomeSameEvidence:
		e := existing[result.Index]
		e.Description = p.Description
		e.Status = e.Status.Promote(p.Status)
		if pa, ok := p.PrimaryAmount(); ok {
			setPrimaryAmount(e, pa)
		}
		addAllEvidence(e)
		return existing, e, false

	case OutcomeBankIDMatch, OutcomeFuzzyMatch:
		e := existing[result.Index]
		addAllEvidence(e)
		if e.Status != p.Status {
			e.Status = e.Status.Promote(p.Status)
		}
		if pa, ok := p.PrimaryAmount(); ok {
			if ea, eok := e.PrimaryAmount(); !eok || !amountsEqual(pa, ea) {
				setPrimaryAmount(e, pa)
			}
		}
		return existing, e, false

	case OutcomePendingToFinalized:
		e := existing[result.Index]
		e.Status = journal.StatusCleared
		if pa, ok := p.PrimaryAmount(); ok {
			setPrimaryAmount(e, pa)
		}
		addAllEvidence(e)
		return existing, e, false

	case OutcomeNew:
		np := *p
		np.ID = uuid.NewString()
		np.ExtractedBy = extractedBy
		existing = append(existing, &np)
		return existing, &np, true

	default: // Ambiguous
		return existing, nil, false
	}
}

func amountsEqual(a, b journal.Amount) bool {
	af, errA := a.Float64()
	bf, errB := b.Float64()
	return errA == nil && errB == nil && math.Abs(af-bf) < amountEpsilon
}

func setPrimaryAmount(e *journal.Entry, amount journal.Amount) {
	for i := range e.Postings {
		if e.Postings[i].Amount != nil {
			amt := amount
			e.Postings[i].Amount = &amt
			return
		}
	}
}

// SortIndicesAscending is a small helper used by callers reporting
// Ambiguous results to the user in a stable order.
func SortIndicesAscending(indices []int) []int {
	out := append([]int(nil), indices...)
	sort.Ints(out)
	return out
}
