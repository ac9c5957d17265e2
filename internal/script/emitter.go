package script

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"db-reconcile/internal/datadiff"
	"db-reconcile/internal/dialect"
	"db-reconcile/internal/logger"
	"db-reconcile/internal/schema"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Format is the output format of a run.
type Format int

const (
	FormatSQL Format = iota
	FormatXML
)

func (f Format) String() string {
	if f == FormatXML {
		return "xml"
	}
	return "sql"
}

func (f Format) ext() string { return "." + f.String() }

// ParseFormat accepts sql or xml. Empty means sql.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sql":
		return FormatSQL, nil
	case "xml":
		return FormatXML, nil
	}
	return FormatSQL, fmt.Errorf("unknown output format %q (want sql or xml)", s)
}

// Options configure an Emitter.
type Options struct {
	// Dir receives every artifact; it is created when missing.
	Dir string
	// BaseName names the driver script or main document, without extension.
	BaseName string
	Format   Format
	// SingleFile writes every statement into the driver script (sql only).
	SingleFile bool
	// CDATA wraps XML text values in CDATA sections.
	CDATA bool
	// IncludeDirective prefixes file names in the driver script.
	IncludeDirective string
	// Reference and Target name the compared connections in headers.
	Reference string
	Target    string
}

// Mapping is one compared table pair, listed in the XML summary.
type Mapping struct {
	Reference schema.TableIdentifier
	Target    schema.TableIdentifier
}

// Emitter renders the statements of one run into script artifacts. Files
// are created on the first statement written to them, so the driver script
// never references a file that does not exist. Close must be called on
// every exit path; it is safe to call more than once.
type Emitter struct {
	opts Options
	d    dialect.Dialect
	log  *zap.Logger

	mappings []Mapping
	sections []*section
	warnings []string
	single   *artifact
	produced []string

	closed bool
	err    error
}

// section is the output of one table for a set of statement kinds, in the
// order the run opened it.
type section struct {
	table schema.TableIdentifier
	kinds []datadiff.Kind
	files map[datadiff.Kind]*artifact
	count int
}

// New validates opts and prepares the output directory. No artifact is
// created yet.
func New(opts Options, d dialect.Dialect, log *zap.Logger) (*Emitter, error) {
	if opts.BaseName == "" {
		return nil, errors.New("output base name is required")
	}
	if strings.ContainsAny(opts.BaseName, `/\`) {
		return nil, fmt.Errorf("output base name %q must not contain a path", opts.BaseName)
	}
	if opts.SingleFile && opts.Format != FormatSQL {
		return nil, errors.New("single-file output requires the sql format")
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.IncludeDirective == "" {
		opts.IncludeDirective = "@@"
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("bad output directory: %w", err)
	}
	return &Emitter{opts: opts, d: d, log: logger.OrNop(log).Named("script")}, nil
}

// MainFile is the path of the driver script or main XML document.
func (e *Emitter) MainFile() string {
	return filepath.Join(e.opts.Dir, e.opts.BaseName+e.opts.Format.ext())
}

// Files lists the artifacts produced so far, main file last once closed.
func (e *Emitter) Files() []string { return e.produced }

// AddMapping records a compared pair for the summary.
func (e *Emitter) AddMapping(ref, tgt schema.TableIdentifier) {
	e.mappings = append(e.mappings, Mapping{Reference: ref, Target: tgt})
}

// Warn records a diagnostic written as a comment into the driver script.
func (e *Emitter) Warn(msg string) {
	e.warnings = append(e.warnings, msg)
}

// Written reports whether any statement was written.
func (e *Emitter) Written() bool {
	for _, s := range e.sections {
		if s.count > 0 {
			return true
		}
	}
	return false
}

// Writer opens a section for table accepting the given statement kinds.
// Sections appear in the driver script in the order they are opened.
func (e *Emitter) Writer(table schema.TableIdentifier, kinds ...datadiff.Kind) datadiff.StatementWriter {
	s := &section{table: table, kinds: kinds, files: make(map[datadiff.Kind]*artifact)}
	e.sections = append(e.sections, s)
	return &sectionWriter{e: e, s: s}
}

type sectionWriter struct {
	e *Emitter
	s *section
}

func (w *sectionWriter) Write(stmt *datadiff.Statement) error {
	if w.e.closed {
		return errors.New("emitter is closed")
	}
	if !w.s.accepts(stmt.Kind) {
		return fmt.Errorf("%s statement not expected in section %s", stmt.Kind, w.s.table.Name)
	}
	a, err := w.e.artifactFor(w.s, stmt.Kind)
	if err != nil {
		return err
	}
	if w.e.opts.Format == FormatXML {
		err = writeXMLStatement(a.w, stmt, w.e.opts.CDATA)
	} else {
		_, err = a.w.WriteString(stmt.SQL(w.e.d) + "\n")
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", a.name, err)
	}
	a.count++
	w.s.count++
	return nil
}

func (s *section) accepts(k datadiff.Kind) bool {
	for _, x := range s.kinds {
		if x == k {
			return true
		}
	}
	return false
}

// FileName is the artifact name of a table and statement kind.
func FileName(table schema.TableIdentifier, kind datadiff.Kind, f Format) string {
	name := dialect.StripQuotes(table.Name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	return name + "_$" + kind.String() + f.ext()
}

func (e *Emitter) artifactFor(s *section, kind datadiff.Kind) (*artifact, error) {
	if e.opts.SingleFile {
		if e.single == nil {
			a, err := createArtifact(e.MainFile())
			if err != nil {
				return nil, err
			}
			e.single = a
			e.writeHeader(a.w)
		}
		if s.count == 0 {
			fmt.Fprintf(e.single.w, "\n-- ---- %s (%s) ----\n", s.table.Name, kindList(s.kinds))
		}
		s.files[kind] = e.single
		return e.single, nil
	}

	if a := s.files[kind]; a != nil {
		return a, nil
	}
	a, err := createArtifact(filepath.Join(e.opts.Dir, FileName(s.table, kind, e.opts.Format)))
	if err != nil {
		return nil, err
	}
	if e.opts.Format == FormatXML {
		openXMLRows(a.w, s.table, kind)
	}
	s.files[kind] = a
	e.produced = append(e.produced, a.path)
	e.log.Debug("artifact created", zap.String("file", a.path))
	return a, nil
}

func kindList(kinds []datadiff.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}

// Close finishes every artifact and writes the driver script or main
// document. Errors of all files are combined.
func (e *Emitter) Close() error {
	if e.closed {
		return e.err
	}
	e.closed = true

	var err error
	for _, s := range e.sections {
		for _, k := range s.kinds {
			a := s.files[k]
			if a == nil {
				err = multierr.Append(err, e.removeStale(s.table, k))
				continue
			}
			if a == e.single {
				continue
			}
			if e.opts.Format == FormatXML {
				closeXMLRows(a.w)
			}
			err = multierr.Append(err, a.close())
		}
	}

	if e.opts.Format == FormatXML {
		err = multierr.Append(err, e.writeMainXML())
	} else {
		err = multierr.Append(err, e.writeDriver())
	}
	e.err = err
	return err
}

// removeStale deletes an artifact left by an earlier run for a section that
// produced nothing this time.
func (e *Emitter) removeStale(table schema.TableIdentifier, kind datadiff.Kind) error {
	if e.opts.SingleFile {
		return nil
	}
	path := filepath.Join(e.opts.Dir, FileName(table, kind, e.opts.Format))
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove stale %s: %w", path, err)
	}
	return nil
}

func (e *Emitter) writeHeader(w *bufio.Writer) {
	fmt.Fprintf(w, "-- data diff: reference %s, target %s\n", e.opts.Reference, e.opts.Target)
}

func (e *Emitter) writeDriver() error {
	a := e.single
	if a == nil {
		var err error
		if a, err = createArtifact(e.MainFile()); err != nil {
			return err
		}
		e.writeHeader(a.w)
	}

	if e.opts.SingleFile {
		// sections that wrote nothing still get a marker
		for _, s := range e.sections {
			if s.count == 0 {
				fmt.Fprintf(a.w, "-- %s (%s): no changes needed\n", s.table.Name, kindList(s.kinds))
			}
		}
	} else {
		for _, s := range e.sections {
			if s.count == 0 {
				fmt.Fprintf(a.w, "-- %s (%s): no changes needed\n", s.table.Name, kindList(s.kinds))
				continue
			}
			for _, k := range s.kinds {
				if f := s.files[k]; f != nil {
					fmt.Fprintf(a.w, "%s%s\n", e.opts.IncludeDirective, f.name)
				}
			}
		}
	}

	for _, msg := range e.warnings {
		fmt.Fprintf(a.w, "-- WARNING: %s\n", oneLine(msg))
	}
	if e.Written() {
		a.w.WriteString("COMMIT;\n")
	}
	if err := a.close(); err != nil {
		return err
	}
	e.produced = append(e.produced, a.path)
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type artifact struct {
	path  string
	name  string
	f     *os.File
	w     *bufio.Writer
	count int
}

func createArtifact(path string) (*artifact, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return &artifact{path: path, name: filepath.Base(path), f: f, w: bufio.NewWriter(f)}, nil
}

func (a *artifact) close() error {
	return multierr.Combine(a.w.Flush(), a.f.Close())
}
