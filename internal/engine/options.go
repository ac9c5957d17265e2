package engine

import (
	"errors"
	"fmt"

	"db-reconcile/internal/datadiff"
	"db-reconcile/internal/schema"
	"db-reconcile/internal/script"
)

// ErrConfig marks configuration errors. They are reported before any
// database is read.
var ErrConfig = errors.New("configuration error")

// Options are the data diff settings of one run.
type Options struct {
	// Tables selects reference tables; entries may be shell globs. Empty
	// selects every reference table.
	Tables []string `mapstructure:"tables"`
	// TableMap pairs tables whose names differ, as "reference=target".
	TableMap []string `mapstructure:"table_map"`

	IncludeDelete          bool     `mapstructure:"include_delete" default:"false"`
	IgnoreColumns          []string `mapstructure:"ignore_columns"`
	ExcludeRealPK          bool     `mapstructure:"exclude_real_pk" default:"false"`
	ExcludeIgnoredFromKeys bool     `mapstructure:"exclude_ignored_from_keys" default:"false"`
	// AlternateKeys are "table=col1,col2" entries used instead of the
	// target primary key.
	AlternateKeys []string `mapstructure:"alternate_keys"`

	Format       string `mapstructure:"format" default:"sql"`
	BlobMode     string `mapstructure:"blob_mode" default:"binary"`
	BlobEncoding string `mapstructure:"blob_encoding" default:"utf-8"`
	SingleFile   bool   `mapstructure:"single_file" default:"false"`
	CDATA        bool   `mapstructure:"cdata" default:"false"`

	// CheckDependencies orders tables by foreign key and warns about
	// referencing tables left out of a delete run.
	CheckDependencies bool `mapstructure:"check_dependencies" default:"true"`
	// IncludeAllDependencies adds every table referencing a selected table.
	IncludeAllDependencies bool `mapstructure:"include_all_dependencies" default:"false"`

	OutputDir        string `mapstructure:"output_dir" default:"."`
	BaseName         string `mapstructure:"base_name" default:"data-diff"`
	IncludeDirective string `mapstructure:"include_directive" default:"@@"`
}

// settings are Options parsed into their typed form.
type settings struct {
	format   script.Format
	blob     datadiff.BlobMode
	altKeys  map[string][]string
	tableMap map[string]string
}

func (o *Options) parse() (*settings, error) {
	var s settings
	var err error
	if s.format, err = script.ParseFormat(o.Format); err != nil {
		return nil, configError(err)
	}
	if s.blob, err = datadiff.ParseBlobMode(o.BlobMode); err != nil {
		return nil, configError(err)
	}
	if s.altKeys, err = datadiff.ParseAlternateKeys(o.AlternateKeys); err != nil {
		return nil, configError(err)
	}
	if s.tableMap, err = schema.ParseTableMap(o.TableMap); err != nil {
		return nil, configError(err)
	}
	if o.SingleFile && s.format != script.FormatSQL {
		return nil, configError(errors.New("single_file requires the sql format"))
	}
	return &s, nil
}

func (o *Options) diffOptions() datadiff.Options {
	return datadiff.Options{IgnoreColumns: o.IgnoreColumns, ExcludeRealPK: o.ExcludeRealPK}
}

func configError(err error) error {
	return fmt.Errorf("%w: %v", ErrConfig, err)
}
