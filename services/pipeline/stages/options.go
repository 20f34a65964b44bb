// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AleutianAI/retrochadsql/pkg/logging"
	"github.com/AleutianAI/retrochadsql/services/pipeline"
)

// Defaults applied by NewRegistry.
const (
	DefaultURLTemplate  = "https://www.retrosheet.org/events/{year}eve.zip"
	DefaultHTTPTimeout  = 2 * time.Minute
	DefaultSQLClient    = "mysql"
	DefaultDatabaseName = "RetroChadSql"
)

// Table names accepted in Options.Tables, in schema order.
var KnownTables = []string{"events", "subs", "games"}

// HTTPClient is the subset of *http.Client used by the download stage.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options carries everything the stage actions need. The pipeline core
// never looks inside it.
type Options struct {
	// Paths maps each path key to its resolved, absolute location.
	Paths map[pipeline.PathKey]string

	// Tables selects which Chadwick tables to build: events, subs, games.
	Tables []string

	// URLTemplate is the download URL with a {year} placeholder.
	URLTemplate string

	// HTTPClient performs downloads. Default: an otelhttp-traced
	// http.Client with HTTPTimeout.
	HTTPClient HTTPClient

	// HTTPTimeout bounds each download when HTTPClient is unset.
	// Default: DefaultHTTPTimeout.
	HTTPTimeout time.Duration

	// Runner executes Chadwick and the SQL client. Default: ExecRunner.
	Runner CommandRunner

	// Database describes the target database and client.
	Database Database

	// LineSeparator is the line ending Chadwick writes, used in LOAD DATA.
	// Default: "\n".
	LineSeparator string

	// Logger receives stage detail. Default: discard.
	Logger *logging.Logger
}

// Database holds the SQL client connection settings.
type Database struct {
	// Name of the database to create and load.
	Name string

	// Client is the SQL client executable.
	Client string

	User string
	Host string
	Port int

	// Password is sealed in memory and only opened to start the client.
	// Nil means no password.
	Password *memguard.Enclave

	// DefaultsFile is passed as --defaults-extra-file.
	DefaultsFile string

	// ConnectArgs, when set, replace User, Host, Port and Password.
	ConnectArgs []string
}

// SealPassword moves password into an enclave and wipes the input.
// An empty password returns nil.
func SealPassword(password []byte) *memguard.Enclave {
	if len(password) == 0 {
		return nil
	}
	return memguard.NewEnclave(password)
}

// clientCommand builds the SQL client invocation. The password, if any,
// travels in the MYSQL_PWD environment variable so that it never shows in
// the argument list.
func (d Database) clientCommand(extra ...string) (CommandSpec, error) {
	spec := CommandSpec{Name: d.Client}
	if d.DefaultsFile != "" {
		spec.Args = append(spec.Args, "--defaults-extra-file="+d.DefaultsFile)
	}
	if len(d.ConnectArgs) > 0 {
		spec.Args = append(spec.Args, d.ConnectArgs...)
	} else {
		if d.User != "" {
			spec.Args = append(spec.Args, "--user="+d.User)
		}
		if d.Host != "" {
			spec.Args = append(spec.Args, "--host="+d.Host)
		}
		if d.Port > 0 {
			spec.Args = append(spec.Args, "--port="+strconv.Itoa(d.Port))
		}
		if d.Password != nil {
			buf, err := d.Password.Open()
			if err != nil {
				return CommandSpec{}, fmt.Errorf("open password enclave: %w", err)
			}
			spec.Env = append(spec.Env, "MYSQL_PWD="+buf.String())
			buf.Destroy()
		}
	}
	spec.Args = append(spec.Args, extra...)
	return spec, nil
}

// withDefaults fills unset options.
func (o Options) withDefaults() Options {
	if o.URLTemplate == "" {
		o.URLTemplate = DefaultURLTemplate
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = DefaultHTTPTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{
			Timeout:   o.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if o.Runner == nil {
		o.Runner = NewExecRunner()
	}
	if o.Database.Client == "" {
		o.Database.Client = DefaultSQLClient
	}
	if o.Database.Name == "" {
		o.Database.Name = DefaultDatabaseName
	}
	if o.LineSeparator == "" {
		o.LineSeparator = "\n"
	}
	if len(o.Tables) == 0 {
		o.Tables = append([]string(nil), KnownTables...)
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Paths == nil {
		o.Paths = map[pipeline.PathKey]string{}
	}
	return o
}
