// Package categorize implements the Categorization Engine: a from-scratch
// Multinomial Naive Bayes classifier over posting history, a rule-based
// transfer matcher, and an amount/status drift detector for posted
// entries. It trains on GL transactions the Reconciliation
// Engine generated (see internal/reconcile.GeneratedByStamp) paired with
// the account entry each one sourced.
package categorize

import (
	"math"
	"sort"
	"strings"

	"github.com/yonran/refreshmint/internal/gl"
	"github.com/yonran/refreshmint/internal/journal"
)

// ConfidenceThreshold is the minimum normalized class mass required
// before Suggest returns a suggestion rather than abstaining.
const ConfidenceThreshold = 0.5

// AccountWarmupSize is the number of per-account training examples at
// which the per-account model's weight reaches 1.0.
const AccountWarmupSize = 20.0

// Example is one (tokens, counterpart account) training pair.
type Example struct {
	Tokens      []string
	Counterpart string
}

// TokenizeText splits free text into uppercase alphabetic words of
// length >= 2, discarding digits and punctuation.
func TokenizeText(text string) []string {
	var tokens []string
	var word strings.Builder
	flush := func() {
		if word.Len() >= 2 {
			tokens = append(tokens, strings.ToUpper(word.String()))
		}
		word.Reset()
	}
	for _, r := range text {
		if isAlpha(r) {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// TokenizeEntry tokenizes an account entry's description and appends one
// "key:value" (or bare "key" for an empty value) token per tag.
func TokenizeEntry(e *journal.Entry) []string {
	tokens := TokenizeText(e.Description)
	for _, t := range e.Tags {
		if t.Value == "" {
			tokens = append(tokens, t.Key)
		} else {
			tokens = append(tokens, t.Key+":"+t.Value)
		}
	}
	return tokens
}

// SeedExamples is the compile-time seed vocabulary of merchant-keyword
// and bank-category-tag associations every fresh ledger starts with, so
// the classifier is useful before any posting history exists.
func SeedExamples() []Example {
	raw := []struct{ token, account string }{
		{"category:Groceries", "Expenses:Groceries"},
		{"category:Dining", "Expenses:Dining"},
		{"category:Gas", "Expenses:Gas"},
		{"category:Shopping", "Expenses:Shopping"},
		{"category:Entertainment", "Expenses:Entertainment"},
		{"category:Travel", "Expenses:Travel"},
		{"category:Healthcare", "Expenses:Healthcare"},
		{"category:Utilities", "Expenses:Utilities"},
		{"category:Rent", "Expenses:Rent"},
		{"category:Insurance", "Expenses:Insurance"},
		{"SAFEWAY", "Expenses:Groceries"},
		{"KROGER", "Expenses:Groceries"},
		{"WHOLE", "Expenses:Groceries"},
		{"TRADER", "Expenses:Groceries"},
		{"STARBUCKS", "Expenses:Dining"},
		{"CHIPOTLE", "Expenses:Dining"},
		{"MCDONALDS", "Expenses:Dining"},
		{"DOORDASH", "Expenses:Dining"},
		{"GRUBHUB", "Expenses:Dining"},
		{"SHELL", "Expenses:Gas"},
		{"CHEVRON", "Expenses:Gas"},
		{"EXXON", "Expenses:Gas"},
		{"ARCO", "Expenses:Gas"},
		{"AMAZON", "Expenses:Shopping"},
		{"WALMART", "Expenses:Shopping"},
		{"TARGET", "Expenses:Shopping"},
		{"COSTCO", "Expenses:Shopping"},
		{"NETFLIX", "Expenses:Entertainment"},
		{"SPOTIFY", "Expenses:Entertainment"},
		{"HULU", "Expenses:Entertainment"},
		{"PAYROLL", "Income:Salary"},
		{"DEPOSIT", "Income:Salary"},
	}
	out := make([]Example, len(raw))
	for i, r := range raw {
		out[i] = Example{Tokens: []string{r.token}, Counterpart: r.account}
	}
	return out
}

// EntryLookup resolves the account entry a GL source tag points at.
type EntryLookup func(locator, entryID string) (*journal.Entry, bool)

// BuildTrainingExamples scans every GL transaction generated by
// generatedByStamp with exactly one source tag, resolves that entry via
// lookup, and pairs its tokens with the transaction's counterpart
// account (its last posting). It returns the seed-prefixed global set and
// the subset restricted to sourceLocator (a
// "logins/<login>/accounts/<label>/account.journal" locator).
func BuildTrainingExamples(txns []*gl.Transaction, lookup EntryLookup, sourceLocator, generatedByStamp string) (global, account []Example) {
	global = append(global, SeedExamples()...)

	for _, txn := range txns {
		if txn.GeneratedBy != generatedByStamp {
			continue
		}
		if len(txn.Sources) != 1 {
			continue
		}
		if len(txn.Postings) == 0 {
			continue
		}
		src := txn.Sources[0]
		entry, ok := lookup(src.Locator, src.EntryID)
		if !ok {
			continue
		}
		counterpart := txn.Postings[len(txn.Postings)-1].Account
		if counterpart == "" {
			continue
		}
		ex := Example{Tokens: TokenizeEntry(entry), Counterpart: counterpart}
		global = append(global, ex)
		if src.Locator == sourceLocator {
			account = append(account, ex)
		}
	}
	return global, account
}

// Model is a fitted Multinomial Naive Bayes classifier over a
// deterministic, insertion-ordered vocabulary.
type Model struct {
	classes        []string
	logPriors      []float64
	logLikelihoods [][]float64 // [class][vocabIndex]
	vocab          map[string]int
}

// Fit trains a Model from examples with Laplace smoothing alpha. It
// returns (nil, false) if examples span fewer than two distinct classes:
// with a single class there is nothing to discriminate.
func Fit(examples []Example, alpha float64) (*Model, bool) {
	vocab := make(map[string]int)
	for _, ex := range examples {
		for _, tok := range ex.Tokens {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}
	vocabSize := len(vocab)

	var classOrder []string
	classIndex := make(map[string]int)
	var classExamples [][]Example
	for _, ex := range examples {
		idx, ok := classIndex[ex.Counterpart]
		if !ok {
			idx = len(classOrder)
			classIndex[ex.Counterpart] = idx
			classOrder = append(classOrder, ex.Counterpart)
			classExamples = append(classExamples, nil)
		}
		classExamples[idx] = append(classExamples[idx], ex)
	}
	if len(classOrder) < 2 {
		return nil, false
	}

	total := float64(len(examples))
	logPriors := make([]float64, len(classOrder))
	logLikelihoods := make([][]float64, len(classOrder))

	for i, exs := range classExamples {
		logPriors[i] = math.Log(float64(len(exs)) / total)

		counts := make([]float64, vocabSize)
		for _, ex := range exs {
			for _, tok := range ex.Tokens {
				if idx, ok := vocab[tok]; ok {
					counts[idx]++
				}
			}
		}
		denom := sumFloat(counts) + alpha*float64(vocabSize)
		probs := make([]float64, vocabSize)
		for j, c := range counts {
			probs[j] = math.Log((c + alpha) / denom)
		}
		logLikelihoods[i] = probs
	}

	return &Model{classes: classOrder, logPriors: logPriors, logLikelihoods: logLikelihoods, vocab: vocab}, true
}

func sumFloat(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

// PredictProba returns a class-probability distribution over tokens via
// stable softmax of the model's log-scores.
func (m *Model) PredictProba(tokens []string) map[string]float64 {
	counts := make([]int, len(m.vocab))
	for _, tok := range tokens {
		if idx, ok := m.vocab[tok]; ok {
			counts[idx]++
		}
	}

	logScores := make([]float64, len(m.classes))
	for i := range m.classes {
		score := m.logPriors[i]
		for j, c := range counts {
			if c > 0 {
				score += float64(c) * m.logLikelihoods[i][j]
			}
		}
		logScores[i] = score
	}

	maxScore := logScores[0]
	for _, s := range logScores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	expScores := make([]float64, len(logScores))
	var sum float64
	for i, s := range logScores {
		expScores[i] = math.Exp(s - maxScore)
		sum += expScores[i]
	}

	out := make(map[string]float64, len(m.classes))
	for i, class := range m.classes {
		out[class] = expScores[i] / sum
	}
	return out
}

// Suggest combines a global and an optional per-account model's
// predictions, weighting the per-account distribution by
// min(accountSampleCount/AccountWarmupSize, 1), and returns the argmax
// class if its renormalized mass is >= ConfidenceThreshold. It abstains
// (returns "", false) otherwise, or if global is nil.
func Suggest(global, account *Model, accountSampleCount int, tokens []string) (string, bool) {
	if global == nil {
		return "", false
	}
	combined := global.PredictProba(tokens)

	if account != nil {
		w := float64(accountSampleCount) / AccountWarmupSize
		if w > 1 {
			w = 1
		}
		if w > 0 {
			for class, p := range account.PredictProba(tokens) {
				combined[class] += w * p
			}
		}
	}

	var total float64
	for _, p := range combined {
		total += p
	}
	if total == 0 {
		return "", false
	}

	var bestClass string
	var bestProb float64
	first := true
	for class, p := range combined {
		if first || p > bestProb || (p == bestProb && class < bestClass) {
			bestClass, bestProb, first = class, p, false
		}
	}
	if bestProb/total >= ConfidenceThreshold {
		return bestClass, true
	}
	return "", false
}

// TransferPatterns is the curated, case-insensitive substring list used
// to flag a description as a probable transfer before falling back to
// the explicit isTransfer tag.
var TransferPatterns = []string{
	"TRANSFER", "XFER", "ONLINE TRANSFER", "TO SAVINGS", "TO CHECKING",
	"FROM SAVINGS", "FROM CHECKING", "ACH TRANSFER", "BANK TRANSFER",
}

// IsProbableTransfer reports whether description matches a curated
// transfer pattern, or the entry carries an isTransfer=true tag.
func IsProbableTransfer(e *journal.Entry) bool {
	upper := strings.ToUpper(e.Description)
	for _, pat := range TransferPatterns {
		if strings.Contains(upper, pat) {
			return true
		}
	}
	if v, ok := e.Tag("isTransfer"); ok && v == "true" {
		return true
	}
	return false
}

// TransferCandidate is an unposted entry from another login account,
// pre-loaded for transfer matching.
type TransferCandidate struct {
	Locator   string
	EntryID   string
	Date      journal.Date
	Amount    float64
	Commodity string
}

// TransferMatch is a uniquely matched counterpart entry.
type TransferMatch struct {
	AccountLocator string
	EntryID        string
	MatchedAmount  float64
	Commodity      string
}

const transferDateWindow = 3

// FindTransferMatch returns the unique candidate with the same
// commodity, an opposite-sign amount within 0.005 of entry's primary
// amount, and a date within +/-3 days. Zero or 2+ matches abstain.
func FindTransferMatch(entry *journal.Entry, candidates []TransferCandidate) (TransferMatch, bool) {
	primary, ok := entry.PrimaryAmount()
	if !ok {
		return TransferMatch{}, false
	}
	entryAmount, err := primary.Float64()
	if err != nil {
		return TransferMatch{}, false
	}

	var matches []TransferCandidate
	for _, c := range candidates {
		if c.Commodity != primary.Commodity {
			continue
		}
		if math.Abs(entryAmount+c.Amount) >= 0.005 {
			continue
		}
		days := entry.Date.DaysSince(c.Date)
		if days < 0 {
			days = -days
		}
		if days > transferDateWindow {
			continue
		}
		matches = append(matches, c)
	}
	if len(matches) != 1 {
		return TransferMatch{}, false
	}
	m := matches[0]
	return TransferMatch{AccountLocator: m.Locator, EntryID: m.EntryID, MatchedAmount: m.Amount, Commodity: m.Commodity}, true
}

// ScoreTransferCandidate is the general-purpose ranking function for
// disambiguating transfer candidates (lower is better): a non-transfer-looking
// description adds 1000, each day of date distance adds 10, an
// opposite-sign amount subtracts 50, and description similarity
// subtracts 20.
func ScoreTransferCandidate(entry, candidate *journal.Entry, candidateIsOppositeSign, descriptionsSimilar bool) float64 {
	score := 0.0
	if !IsProbableTransfer(candidate) {
		score += 1000
	}
	days := entry.Date.DaysSince(candidate.Date)
	if days < 0 {
		days = -days
	}
	score += float64(days) * 10
	if candidateIsOppositeSign {
		score -= 50
	}
	if descriptionsSimilar {
		score -= 20
	}
	return score
}

// DriftResult reports whether a posted entry's current state has
// drifted from the GL transaction it was posted to.
type DriftResult struct {
	AmountChanged bool
	StatusChanged bool
}

// DetectDrift compares entry's first posting and status against the
// matching posting (by account name) of the GL transaction it is posted
// to.
func DetectDrift(entry *journal.Entry, txn *gl.Transaction) DriftResult {
	if len(entry.Postings) == 0 {
		return DriftResult{}
	}
	realAccount := entry.Postings[0].Account
	entryAmount := entry.Postings[0].Amount

	var result DriftResult
	for _, p := range txn.Postings {
		if p.Account != realAccount {
			continue
		}
		if entryAmount != nil && p.Amount != nil {
			entryF, errE := entryAmount.Float64()
			glF, errG := p.Amount.Float64()
			if entryAmount.Commodity != p.Amount.Commodity ||
				(errE == nil && errG == nil && math.Abs(entryF-glF) >= 1e-6) {
				result.AmountChanged = true
			}
		}
		break
	}
	result.StatusChanged = entry.Status != txn.Status
	return result
}

// SortedClasses returns the keys of a class distribution sorted by
// name, useful for callers printing a full distribution.
func SortedClasses(dist map[string]float64) []string {
	classes := make([]string, 0, len(dist))
	for c := range dist {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes
}
