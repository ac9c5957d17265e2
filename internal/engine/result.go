package engine

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"db-reconcile/internal/datadiff"
	"db-reconcile/internal/dbconn"
	"db-reconcile/internal/schema"
)

// Status is the overall outcome of a run.
type Status int

const (
	StatusSuccess Status = iota
	StatusWarning
	StatusFailure
)

func (s Status) String() string {
	return [...]string{"success", "warning", "failure"}[s]
}

// TableResult is the outcome of one table pair.
type TableResult struct {
	Reference schema.TableIdentifier
	Target    schema.TableIdentifier
	// Status is the matching result; only StatusOK pairs were compared.
	Status datadiff.Status
	// State is the final state of the data comparison, and of the delete
	// pass when it ran.
	State       datadiff.State
	DeleteState datadiff.State
	Stats       datadiff.Stats
	Message     string
	Err         error
}

// Result is the outcome of a run.
type Result struct {
	Status    Status
	Tables    []*TableResult
	Messages  []string
	Files     []string
	MainFile  string
	Cancelled bool
	// Err is the error that ended the run early, if any.
	Err error
}

func (r *Result) warn(msg string) {
	r.Messages = append(r.Messages, msg)
	if r.Status < StatusWarning {
		r.Status = StatusWarning
	}
}

func (r *Result) fail(msg string) {
	r.Messages = append(r.Messages, msg)
	r.Status = StatusFailure
}

// Failure describes why the run failed; it is nil unless the status is
// StatusFailure.
func (r *Result) Failure() error {
	if r.Status != StatusFailure {
		return nil
	}
	if r.Err != nil {
		return r.Err
	}
	var failed []string
	for _, t := range r.Tables {
		if t.Err != nil {
			failed = append(failed, t.Target.String())
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d tables failed: %s", len(failed), len(r.Tables), strings.Join(failed, ", "))
	}
	if n := len(r.Messages); n > 0 {
		return errors.New(r.Messages[n-1])
	}
	return errors.New("run failed")
}

// Written sums the statements of every table.
func (r *Result) Written() (inserts, updates, deletes int) {
	for _, t := range r.Tables {
		inserts += t.Stats.Inserts
		updates += t.Stats.Updates
		deletes += t.Stats.Deletes
	}
	return inserts, updates, deletes
}

// IsConnectionFatal reports whether err leaves a connection unusable, so no
// further table can be compared.
func IsConnectionFatal(err error) bool {
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, dbconn.ErrBusy)
}
