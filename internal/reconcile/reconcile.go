// Package reconcile implements the Reconciliation Engine: Post, Unpost,
// Transfer, Sync, and Merge, each atomic across the account journal(s),
// general.journal, and the GL operations log.
package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/yonran/refreshmint/internal/gl"
	"github.com/yonran/refreshmint/internal/journal"
	"github.com/yonran/refreshmint/internal/metrics"
	"github.com/yonran/refreshmint/internal/operations"
	"github.com/yonran/refreshmint/internal/rmerrors"
	"github.com/yonran/refreshmint/internal/vcs"
	"github.com/yonran/refreshmint/pkg/logger"
)

// GeneratedByStamp identifies this engine as the author of GL
// transactions it creates, matching the categorization engine's training
// filter.
const GeneratedByStamp = "reconcile/post@0.1.0"

// Engine binds the reconciliation operations to one ledger's root
// directory, its general journal, its GL operations log, and its
// version-control repository.
type Engine struct {
	Root    string
	Repo    *vcs.Repo
	Ops     *operations.Log
	Metrics *metrics.Metrics
	Log     *logger.Logger
}

// New creates an Engine rooted at a ledger directory.
func New(root string, repo *vcs.Repo, m *metrics.Metrics) *Engine {
	return &Engine{
		Root:    root,
		Repo:    repo,
		Ops:     operations.Open(filepath.Join(root, "operations.jsonl")),
		Metrics: m,
	}
}

// SetLogger attaches a logger for the rollback path: a commit failure
// that triggers a snapshot restore is recovered from cleanly, but it is
// still worth a warning log naming which operation rolled back.
func (e *Engine) SetLogger(log *logger.Logger) { e.Log = log }

func (e *Engine) abs(locator string) string {
	return filepath.Join(e.Root, locator)
}

func (e *Engine) generalJournalPath() string {
	return filepath.Join(e.Root, "general.journal")
}

// snapshot captures a journal file's raw bytes (or absence) so a failed
// operation can restore it verbatim.
type snapshot struct {
	path    string
	existed bool
	data    []byte
}

func takeSnapshot(path string) (snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return snapshot{path: path, existed: false}, nil
		}
		return snapshot{}, rmerrors.IOFault("snapshot "+path, err)
	}
	return snapshot{path: path, existed: true, data: data}, nil
}

func (s snapshot) restore() {
	if !s.existed {
		os.Remove(s.path)
		return
	}
	os.WriteFile(s.path, s.data, 0o644)
}

// lockLogins acquires the advisory .lock of every login owning one of
// the given locators for the duration of a write-path operation,
// failing immediately with a Conflict naming the login when another
// process holds it. Locators outside the logins/ tree need no lock.
func (e *Engine) lockLogins(locators ...string) (release func(), err error) {
	seen := map[string]bool{}
	var held []*flock.Flock
	release = func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Unlock()
		}
	}
	for _, loc := range locators {
		login, ok := loginOf(loc)
		if !ok || seen[login] {
			continue
		}
		seen[login] = true
		lk := flock.New(filepath.Join(e.Root, "logins", login, ".lock"))
		locked, lockErr := lk.TryLock()
		if lockErr != nil {
			release()
			return nil, rmerrors.IOFault("acquire login lock", lockErr)
		}
		if !locked {
			release()
			return nil, rmerrors.Conflict("login " + login + " is locked by another process")
		}
		held = append(held, lk)
	}
	return release, nil
}

func loginOf(locator string) (string, bool) {
	parts := strings.Split(filepath.ToSlash(locator), "/")
	if len(parts) >= 2 && parts[0] == "logins" && parts[1] != "" {
		return parts[1], true
	}
	return "", false
}

func findEntry(entries []*journal.Entry, id string) (*journal.Entry, int) {
	for i, e := range entries {
		if e.ID == id {
			return e, i
		}
	}
	return nil, -1
}

// Post binds entry (or, if postingIndex is non-nil, a single posting of
// it) to a new GL transaction pairing it with counterpartAccount.
func (e *Engine) Post(locator, entryID, counterpartAccount string, postingIndex *int) (txnID string, err error) {
	unlock, err := e.lockLogins(locator)
	if err != nil {
		return "", err
	}
	defer unlock()

	accountPath := e.abs(locator)
	accountSnap, err := takeSnapshot(accountPath)
	if err != nil {
		return "", err
	}
	glSnap, err := takeSnapshot(e.generalJournalPath())
	if err != nil {
		return "", err
	}

	entries, err := journal.Read(accountPath)
	if err != nil {
		return "", err
	}
	entry, _ := findEntry(entries, entryID)
	if entry == nil {
		return "", rmerrors.NotFound("entry", entryID)
	}

	var entryPosting journal.Posting
	newID := uuid.NewString()
	reference := "general.journal:" + newID

	if postingIndex != nil {
		pi := *postingIndex
		if pi < 0 || pi >= len(entry.Postings) {
			return "", rmerrors.InvalidInput("posting_index", "out of range")
		}
		for _, pp := range entry.PostedPostings {
			if pp.Index == pi {
				return "", rmerrors.Conflict(fmt.Sprintf("posting %d of entry %s is already posted", pi, entryID))
			}
		}
		entryPosting = entry.Postings[pi]
	} else {
		if entry.Posted != "" {
			return "", rmerrors.Conflict("entry " + entryID + " is already posted")
		}
		if len(entry.PostedPostings) > 0 {
			return "", rmerrors.Conflict("entry " + entryID + " has posted postings and cannot be whole-entry posted")
		}
		pa, ok := primaryPosting(entry)
		if !ok {
			return "", rmerrors.InvalidInput("entry", "has no amount-bearing posting")
		}
		entryPosting = pa
	}

	txn := &gl.Transaction{
		ID:          newID,
		Date:        entry.Date,
		Status:      entry.Status,
		Description: entry.Description,
		GeneratedBy: GeneratedByStamp,
		Sources:     []gl.Source{{Locator: locator, EntryID: entryID}},
		Evidence:    entry.Evidence,
		Postings: []journal.Posting{
			entryPosting,
			{Account: counterpartAccount},
		},
	}
	if err := txn.Validate(); err != nil {
		return "", rmerrors.Wrap(rmerrors.KindInvalidInput, "build GL transaction", err)
	}

	if postingIndex != nil {
		entry.PostedPostings = append(entry.PostedPostings, journal.PostedPosting{Index: *postingIndex, Reference: reference})
	} else {
		entry.Posted = reference
	}
	if err := journal.WriteAtomic(accountPath, entries); err != nil {
		accountSnap.restore()
		return "", err
	}

	if err := gl.AppendTransaction(e.generalJournalPath(), txn); err != nil {
		accountSnap.restore()
		return "", err
	}

	if err := e.Ops.Append(operations.KindPost, newID, map[string]any{"account_entry": entryID, "locator": locator}); err != nil {
		glSnap.restore()
		accountSnap.restore()
		return "", err
	}

	if err := e.Repo.CommitFiles("post: "+newID, []string{locator, "general.journal", "operations.jsonl"}); err != nil {
		e.recordOutcome("post", "rolled_back")
		return "", err
	}
	e.recordOutcome("post", "committed")
	return newID, nil
}

// Unpost removes the GL transaction with the given id, clearing the
// posted/posted_postings reference on every account entry it sources.
// Every affected journal is prepared (read and the in-memory mutation
// applied) before anything is written, so the operation either fully
// commits or leaves every file untouched.
func (e *Engine) Unpost(txnID string) error {
	glPath := e.generalJournalPath()
	glSnap, err := takeSnapshot(glPath)
	if err != nil {
		return err
	}

	txns, err := gl.Read(glPath)
	if err != nil {
		return err
	}
	txn, found := gl.FindByID(txns, txnID)
	if !found {
		return rmerrors.NotFound("transaction", txnID)
	}

	sourceLocators := make([]string, len(txn.Sources))
	for i, src := range txn.Sources {
		sourceLocators[i] = src.Locator
	}
	unlock, err := e.lockLogins(sourceLocators...)
	if err != nil {
		return err
	}
	defer unlock()

	type prepared struct {
		locator string
		path    string
		snap    snapshot
		entries []*journal.Entry
	}
	preparedByLocator := map[string]*prepared{}
	order := []string{}

	for _, src := range txn.Sources {
		p, ok := preparedByLocator[src.Locator]
		if !ok {
			path := e.abs(src.Locator)
			snap, err := takeSnapshot(path)
			if err != nil {
				return err
			}
			entries, err := journal.Read(path)
			if err != nil {
				return err
			}
			p = &prepared{locator: src.Locator, path: path, snap: snap, entries: entries}
			preparedByLocator[src.Locator] = p
			order = append(order, src.Locator)
		}
		entry, _ := findEntry(p.entries, src.EntryID)
		if entry == nil {
			return rmerrors.NotFound("entry", src.EntryID)
		}
		ref := "general.journal:" + txnID
		if entry.Posted == ref {
			entry.Posted = ""
		}
		filtered := entry.PostedPostings[:0]
		for _, pp := range entry.PostedPostings {
			if pp.Reference != ref {
				filtered = append(filtered, pp)
			}
		}
		entry.PostedPostings = filtered
	}

	restoreAll := func() {
		for _, locator := range order {
			preparedByLocator[locator].snap.restore()
		}
		glSnap.restore()
	}

	for _, locator := range order {
		p := preparedByLocator[locator]
		if err := journal.WriteAtomic(p.path, p.entries); err != nil {
			restoreAll()
			return err
		}
	}

	remaining, _ := gl.RemoveByID(txns, txnID)
	if err := gl.WriteAtomic(glPath, remaining); err != nil {
		restoreAll()
		return err
	}

	detail := map[string]any{"sources": len(txn.Sources)}
	if err := e.Ops.Append(operations.KindUndoPost, txnID, detail); err != nil {
		restoreAll()
		return err
	}

	paths := append([]string{"general.journal", "operations.jsonl"}, order...)
	if err := e.Repo.CommitFiles("unpost: "+txnID, paths); err != nil {
		e.recordOutcome("unpost", "rolled_back")
		return err
	}
	e.recordOutcome("unpost", "committed")
	return nil
}

// Transfer reconciles two entries in different accounts as a single
// two-posting GL transaction.
func (e *Engine) Transfer(locator1, entryID1, locator2, entryID2 string) (txnID string, err error) {
	unlock, err := e.lockLogins(locator1, locator2)
	if err != nil {
		return "", err
	}
	defer unlock()

	path1, path2 := e.abs(locator1), e.abs(locator2)
	snap1, err := takeSnapshot(path1)
	if err != nil {
		return "", err
	}
	snap2, err := takeSnapshot(path2)
	if err != nil {
		return "", err
	}
	glSnap, err := takeSnapshot(e.generalJournalPath())
	if err != nil {
		return "", err
	}

	entries1, err := journal.Read(path1)
	if err != nil {
		return "", err
	}
	entries2, err := journal.Read(path2)
	if err != nil {
		return "", err
	}
	entry1, _ := findEntry(entries1, entryID1)
	entry2, _ := findEntry(entries2, entryID2)
	if entry1 == nil {
		return "", rmerrors.NotFound("entry", entryID1)
	}
	if entry2 == nil {
		return "", rmerrors.NotFound("entry", entryID2)
	}
	if entry1.Posted != "" {
		return "", rmerrors.Conflict("entry " + entryID1 + " is already posted")
	}
	if entry2.Posted != "" {
		return "", rmerrors.Conflict("entry " + entryID2 + " is already posted")
	}

	posting1, ok1 := primaryPosting(entry1)
	posting2, ok2 := primaryPosting(entry2)
	if !ok1 || !ok2 {
		return "", rmerrors.InvalidInput("entry", "transfer requires an amount-bearing posting on both sides")
	}

	status := transferStatus(entry1.Status, entry2.Status)
	newID := uuid.NewString()
	ref := "general.journal:" + newID

	txn := &gl.Transaction{
		ID:          newID,
		Date:        entry1.Date,
		Status:      status,
		Description: entry1.Description,
		GeneratedBy: GeneratedByStamp,
		Sources: []gl.Source{
			{Locator: locator1, EntryID: entryID1},
			{Locator: locator2, EntryID: entryID2},
		},
		Postings: []journal.Posting{posting1, posting2},
	}
	if err := txn.Validate(); err != nil {
		return "", rmerrors.Wrap(rmerrors.KindInvalidInput, "build transfer transaction", err)
	}

	entry1.Posted = ref
	entry2.Posted = ref

	if err := journal.WriteAtomic(path1, entries1); err != nil {
		snap1.restore()
		return "", err
	}
	if err := journal.WriteAtomic(path2, entries2); err != nil {
		snap1.restore()
		snap2.restore()
		return "", err
	}
	if err := gl.AppendTransaction(e.generalJournalPath(), txn); err != nil {
		snap1.restore()
		snap2.restore()
		return "", err
	}
	if err := e.Ops.Append(operations.KindTransferMatch, newID, map[string]any{
		"entry1": entryID1, "entry2": entryID2,
	}); err != nil {
		glSnap.restore()
		snap1.restore()
		snap2.restore()
		return "", err
	}

	if err := e.Repo.CommitFiles("post: "+newID, []string{locator1, locator2, "general.journal", "operations.jsonl"}); err != nil {
		e.recordOutcome("transfer", "rolled_back")
		return "", err
	}
	e.recordOutcome("transfer", "committed")
	return newID, nil
}

func primaryPosting(e *journal.Entry) (journal.Posting, bool) {
	for _, p := range e.Postings {
		if p.Amount != nil {
			return p, true
		}
	}
	return journal.Posting{}, false
}

func transferStatus(a, b journal.Status) journal.Status {
	if a == journal.StatusCleared && b == journal.StatusCleared {
		return journal.StatusCleared
	}
	if a == journal.StatusPending || b == journal.StatusPending {
		return journal.StatusPending
	}
	return journal.StatusUnmarked
}

// Sync rebuilds the in-place GL block for entry's current posted
// reference so it reflects the entry's present state, preserving id,
// source, and generated-by tags. A single-source block gets the entry's
// primary posting and keeps its counterpart account. A two-source block
// keeps its postings as they are; only its date, status, description,
// and evidence are taken from this entry.
func (e *Engine) Sync(locator, entryID string) error {
	glPath := e.generalJournalPath()
	glSnap, err := takeSnapshot(glPath)
	if err != nil {
		return err
	}

	entries, err := journal.Read(e.abs(locator))
	if err != nil {
		return err
	}
	entry, _ := findEntry(entries, entryID)
	if entry == nil {
		return rmerrors.NotFound("entry", entryID)
	}
	if entry.Posted == "" {
		return rmerrors.InvalidInput("entry", "has no posted GL transaction to sync")
	}

	txnID := trimGeneralJournalPrefix(entry.Posted)
	txns, err := gl.Read(glPath)
	if err != nil {
		return err
	}
	txn, found := gl.FindByID(txns, txnID)
	if !found {
		return rmerrors.NotFound("transaction", txnID)
	}

	replacement := *txn
	replacement.Date = entry.Date
	replacement.Status = entry.Status
	replacement.Description = entry.Description
	replacement.Evidence = entry.Evidence

	if len(txn.Sources) == 1 {
		pa, ok := primaryPosting(entry)
		if !ok {
			return rmerrors.InvalidInput("entry", "has no amount-bearing posting")
		}
		counterpart := counterpartAccountOf(txn, locator, entryID)
		replacement.Postings = []journal.Posting{pa, {Account: counterpart}}
	} else {
		replacement.Postings = txn.Postings
	}

	updated, ok := gl.ReplaceByID(txns, txnID, &replacement)
	if !ok {
		return rmerrors.NotFound("transaction", txnID)
	}
	if err := gl.WriteAtomic(glPath, updated); err != nil {
		glSnap.restore()
		return err
	}

	_ = e.Ops.Append(operations.KindSyncTransaction, txnID, map[string]any{"entry": entryID})
	if err := e.Repo.CommitFiles("sync: "+txnID, []string{"general.journal", "operations.jsonl"}); err != nil {
		e.recordOutcome("sync", "rolled_back")
		return err
	}
	e.recordOutcome("sync", "committed")
	return nil
}

func counterpartAccountOf(txn *gl.Transaction, locator, entryID string) string {
	for _, p := range txn.Postings {
		if p.Amount == nil {
			return p.Account
		}
	}
	if len(txn.Postings) > 1 {
		return txn.Postings[len(txn.Postings)-1].Account
	}
	return ""
}

func trimGeneralJournalPrefix(ref string) string {
	const prefix = "general.journal:"
	if len(ref) > len(prefix) && ref[:len(prefix)] == prefix {
		return ref[len(prefix):]
	}
	return ref
}

// Merge combines two single-source GL transactions into one two-source
// transfer transaction.
func (e *Engine) Merge(txnID1, txnID2 string) (newTxnID string, err error) {
	glPath := e.generalJournalPath()
	glSnap, err := takeSnapshot(glPath)
	if err != nil {
		return "", err
	}

	txns, err := gl.Read(glPath)
	if err != nil {
		return "", err
	}
	txn1, found1 := gl.FindByID(txns, txnID1)
	txn2, found2 := gl.FindByID(txns, txnID2)
	if !found1 {
		return "", rmerrors.NotFound("transaction", txnID1)
	}
	if !found2 {
		return "", rmerrors.NotFound("transaction", txnID2)
	}
	if len(txn1.Sources) != 1 || len(txn2.Sources) != 1 {
		return "", rmerrors.InvalidInput("transaction", "merge requires two single-source transactions")
	}
	src1, src2 := txn1.Sources[0], txn2.Sources[0]

	unlock, err := e.lockLogins(src1.Locator, src2.Locator)
	if err != nil {
		return "", err
	}
	defer unlock()

	path1 := e.abs(src1.Locator)
	snap1, err := takeSnapshot(path1)
	if err != nil {
		return "", err
	}
	sameAccount := src1.Locator == src2.Locator
	var snap2 snapshot
	var path2 string
	if !sameAccount {
		path2 = e.abs(src2.Locator)
		snap2, err = takeSnapshot(path2)
		if err != nil {
			return "", err
		}
	}

	entries1, err := journal.Read(path1)
	if err != nil {
		return "", err
	}
	entry1, _ := findEntry(entries1, src1.EntryID)
	if entry1 == nil {
		return "", rmerrors.NotFound("entry", src1.EntryID)
	}

	var entries2 []*journal.Entry
	var entry2 *journal.Entry
	if sameAccount {
		entries2 = entries1
		entry2, _ = findEntry(entries1, src2.EntryID)
	} else {
		entries2, err = journal.Read(path2)
		if err != nil {
			return "", err
		}
		entry2, _ = findEntry(entries2, src2.EntryID)
	}
	if entry2 == nil {
		return "", rmerrors.NotFound("entry", src2.EntryID)
	}

	newID := uuid.NewString()
	ref := "general.journal:" + newID

	p1, _ := primaryPostingFromTxn(txn1, src1.EntryID)
	p2, _ := primaryPostingFromTxn(txn2, src2.EntryID)

	merged := &gl.Transaction{
		ID:          newID,
		Date:        entry1.Date,
		Status:      transferStatus(entry1.Status, entry2.Status),
		Description: entry1.Description,
		GeneratedBy: GeneratedByStamp,
		Sources: []gl.Source{
			{Locator: src1.Locator, EntryID: src1.EntryID},
			{Locator: src2.Locator, EntryID: src2.EntryID},
		},
		Postings: []journal.Posting{p1, p2},
	}
	if err := merged.Validate(); err != nil {
		return "", rmerrors.Wrap(rmerrors.KindInvalidInput, "build merged transaction", err)
	}

	remaining, _ := gl.RemoveByID(txns, txnID1)
	remaining, _ = gl.RemoveByID(remaining, txnID2)
	remaining = append(remaining, merged)

	entry1.Posted = ref
	entry2.Posted = ref

	restoreAll := func() {
		snap1.restore()
		if !sameAccount {
			snap2.restore()
		}
		glSnap.restore()
	}

	if err := journal.WriteAtomic(path1, entries1); err != nil {
		restoreAll()
		return "", err
	}
	if !sameAccount {
		if err := journal.WriteAtomic(path2, entries2); err != nil {
			restoreAll()
			return "", err
		}
	}
	if err := gl.WriteAtomic(glPath, remaining); err != nil {
		restoreAll()
		return "", err
	}

	_ = e.Ops.Append(operations.KindMerge, newID, map[string]any{"from": []string{txnID1, txnID2}})

	paths := []string{"general.journal", "operations.jsonl", src1.Locator}
	if !sameAccount {
		paths = append(paths, src2.Locator)
	}
	if err := e.Repo.CommitFiles("merge: "+newID, paths); err != nil {
		e.recordOutcome("merge", "rolled_back")
		return "", err
	}
	e.recordOutcome("merge", "committed")
	return newID, nil
}

// Recategorize rewrites the counterpart account of a single-source GL
// transaction in place, leaving the entry-side posting and every tag
// untouched. This is the operation behind accepting a categorization
// suggestion after the fact.
func (e *Engine) Recategorize(txnID, newCounterpart string) error {
	if strings.TrimSpace(newCounterpart) == "" {
		return rmerrors.InvalidInput("counterpart_account", "must be non-empty")
	}

	glPath := e.generalJournalPath()
	glSnap, err := takeSnapshot(glPath)
	if err != nil {
		return err
	}

	txns, err := gl.Read(glPath)
	if err != nil {
		return err
	}
	txn, found := gl.FindByID(txns, txnID)
	if !found {
		return rmerrors.NotFound("transaction", txnID)
	}
	if len(txn.Sources) != 1 {
		return rmerrors.InvalidInput("transaction", "recategorize applies to single-source transactions only")
	}

	replacement := *txn
	replacement.Postings = make([]journal.Posting, len(txn.Postings))
	copy(replacement.Postings, txn.Postings)
	recategorized := false
	for i := range replacement.Postings {
		if replacement.Postings[i].Amount == nil {
			replacement.Postings[i].Account = newCounterpart
			recategorized = true
			break
		}
	}
	if !recategorized {
		// Every posting carries an amount; the counterpart is by
		// convention the last one.
		replacement.Postings[len(replacement.Postings)-1].Account = newCounterpart
	}

	updated, _ := gl.ReplaceByID(txns, txnID, &replacement)
	if err := gl.WriteAtomic(glPath, updated); err != nil {
		glSnap.restore()
		return err
	}

	_ = e.Ops.Append(operations.KindRecategorize, txnID, map[string]any{"counterpart": newCounterpart})
	if err := e.Repo.CommitFiles("recategorize: "+txnID, []string{"general.journal", "operations.jsonl"}); err != nil {
		e.recordOutcome("recategorize", "rolled_back")
		return err
	}
	e.recordOutcome("recategorize", "committed")
	return nil
}

func primaryPostingFromTxn(txn *gl.Transaction, entryID string) (journal.Posting, bool) {
	for _, p := range txn.Postings {
		if p.Amount != nil {
			return p, true
		}
	}
	return journal.Posting{}, false
}

func (e *Engine) recordOutcome(operation, outcome string) {
	if e.Metrics != nil {
		e.Metrics.RecordReconcileOp(operation, outcome)
	}
	if outcome == "rolled_back" && e.Log != nil {
		e.Log.WithField("operation", operation).Warn("reconcile operation rolled back")
	}
}
