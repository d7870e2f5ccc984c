// Package workitem implements the row-processing state machine every
// pipeline stage shares: skip finished rows, honor opt-out flags, validate
// required fields, pick among optional inputs by priority, run the stage's
// action, and commit status back to the sheet. Only the action differs
// between stages; the control logic lives here once.
package workitem

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"postforge/internal/sheet"
)

// Flag values written to status columns.
const (
	FlagDone    = "TRUE"
	FlagSkipped = "SKIPPED"
)

// maxStatusLen bounds the failure text written to a row so a noisy error can
// never blow up a cell.
const maxStatusLen = 200

// Item is one row under processing. Columns are read by name through the
// schema resolved at stage start.
type Item struct {
	Index  int
	row    []string
	schema sheet.Schema
}

// Get reads a cell by column name, empty if the column or cell is absent.
func (it *Item) Get(column string) string {
	idx, ok := it.schema.Col(column)
	if !ok {
		return ""
	}
	return sheet.Cell(it.row, idx)
}

// Select declares one priority-ordered group of optional input columns. The
// first populated candidate wins; if none is populated the row fails like a
// missing required field.
type Select struct {
	Name       string
	Candidates []string
}

// Selection is the outcome of one Select for one row.
type Selection struct {
	Column string
	Value  string
}

// OptIn declares a per-row flag that must equal Enable for the stage to
// process the row. Rows without it are marked skipped and become terminal.
type OptIn struct {
	Column string
	Enable string
}

// Action performs the stage's external operation for one row. The returned
// map is committed to the sheet together with the stage's done flags.
type Action func(ctx context.Context, item *Item, picks map[string]Selection) (map[string]string, error)

// Spec parameterizes the machine for one stage.
type Spec struct {
	Name          string
	Required      []string // fields the action cannot run without
	Selects       []Select // optional inputs with fallback priority
	DoneColumns   []string // this stage's completion flags
	AllDoneColumn string   // global all-complete flag
	StatusColumn  string   // human-readable failure text
	OptIn         *OptIn
	Action        Action
}

// Summary counts what happened across one stage invocation.
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
}

// Run processes every data row of the store in order, strictly sequentially,
// always scanning to the table's end. A referenced column missing from the
// freshly-read header aborts the stage; everything row-level is recorded on
// the row and processing continues. Write failures against the store are
// logged and never abort the loop.
func Run(ctx context.Context, store sheet.Store, spec Spec, logf func(format string, args ...any)) (Summary, error) {
	if logf == nil {
		logf = log.Printf
	}
	var sum Summary

	header, err := store.Header()
	if err != nil {
		return sum, fmt.Errorf("stage %s: %w", spec.Name, err)
	}
	schema := sheet.NewSchema(header)
	if _, err := schema.Require(spec.referencedColumns()...); err != nil {
		return sum, fmt.Errorf("stage %s: %w", spec.Name, err)
	}

	rows, err := store.Rows()
	if err != nil {
		return sum, fmt.Errorf("stage %s: %w", spec.Name, err)
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		item := &Item{Index: i, row: row, schema: schema}

		if spec.isComplete(item) {
			sum.Skipped++
			continue
		}

		if spec.OptIn != nil && !strings.EqualFold(item.Get(spec.OptIn.Column), spec.OptIn.Enable) {
			writes := make(map[string]string, len(spec.DoneColumns))
			for _, col := range spec.DoneColumns {
				writes[col] = FlagSkipped
			}
			spec.commit(store, item, writes, logf)
			sum.Skipped++
			continue
		}

		if missing := spec.missingRequired(item); len(missing) > 0 {
			spec.fail(store, item, "missing required field(s): "+strings.Join(missing, ", "), logf)
			sum.Failed++
			continue
		}

		picks, pickErr := spec.pick(item)
		if pickErr != "" {
			spec.fail(store, item, pickErr, logf)
			sum.Failed++
			continue
		}

		writes, actErr := spec.Action(ctx, item, picks)
		if actErr != nil {
			spec.fail(store, item, actErr.Error(), logf)
			sum.Failed++
			continue
		}

		if writes == nil {
			writes = make(map[string]string, len(spec.DoneColumns))
		}
		for _, col := range spec.DoneColumns {
			writes[col] = FlagDone
		}
		spec.commit(store, item, writes, logf)
		sum.Processed++
	}
	return sum, nil
}

// referencedColumns lists every column the spec touches; all of them must
// resolve against the header before any row is processed.
func (s Spec) referencedColumns() []string {
	var cols []string
	cols = append(cols, s.Required...)
	for _, sel := range s.Selects {
		cols = append(cols, sel.Candidates...)
	}
	cols = append(cols, s.DoneColumns...)
	if s.AllDoneColumn != "" {
		cols = append(cols, s.AllDoneColumn)
	}
	if s.StatusColumn != "" {
		cols = append(cols, s.StatusColumn)
	}
	if s.OptIn != nil {
		cols = append(cols, s.OptIn.Column)
	}
	return cols
}

// isComplete reports whether any of the stage's done flags, or the global
// all-complete flag, is already set. Such rows are skipped with no writes.
func (s Spec) isComplete(item *Item) bool {
	for _, col := range s.DoneColumns {
		if item.Get(col) != "" {
			return true
		}
	}
	return s.AllDoneColumn != "" && item.Get(s.AllDoneColumn) != ""
}

func (s Spec) missingRequired(item *Item) []string {
	var missing []string
	for _, col := range s.Required {
		if item.Get(col) == "" {
			missing = append(missing, col)
		}
	}
	return missing
}

// pick resolves every Select to its first populated candidate. The second
// return value is a row-failure message when a group has no populated
// candidate at all.
func (s Spec) pick(item *Item) (map[string]Selection, string) {
	picks := make(map[string]Selection, len(s.Selects))
	for _, sel := range s.Selects {
		found := false
		for _, col := range sel.Candidates {
			if v := item.Get(col); v != "" {
				picks[sel.Name] = Selection{Column: col, Value: v}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Sprintf("no %s available (checked %s)",
				sel.Name, strings.Join(sel.Candidates, ", "))
		}
	}
	return picks, ""
}

// fail records a bounded failure status plus the all-complete flag so the
// row is not silently retried on the next invocation.
func (s Spec) fail(store sheet.Store, item *Item, msg string, logf func(string, ...any)) {
	writes := map[string]string{}
	if s.StatusColumn != "" {
		writes[s.StatusColumn] = Truncate("FAILED: "+msg, maxStatusLen)
	}
	if s.AllDoneColumn != "" {
		writes[s.AllDoneColumn] = FlagDone
	}
	logf("stage %s: row %d failed: %s", s.Name, item.Index, msg)
	s.commit(store, item, writes, logf)
}

// commit writes back to the store; a failed write is logged and the row loop
// continues, leaving the row eligible for reprocessing next time.
func (s Spec) commit(store sheet.Store, item *Item, writes map[string]string, logf func(string, ...any)) {
	if len(writes) == 0 {
		return
	}
	if err := store.Update(item.Index, writes); err != nil {
		logf("stage %s: cannot update row %d: %v", s.Name, item.Index, err)
	}
}

// Truncate bounds s to at most max bytes without splitting a rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
