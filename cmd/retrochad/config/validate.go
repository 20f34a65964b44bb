// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/retrochadsql/pkg/logging"
	"github.com/AleutianAI/retrochadsql/services/pipeline"
	"github.com/AleutianAI/retrochadsql/services/pipeline/stages"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// configValidate is the validator instance for configuration types.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their YAML names.
	configValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = configValidate.RegisterValidation("stage", validateStage)
}

// validateStage accepts the five stage names.
func validateStage(fl validator.FieldLevel) bool {
	return slices.Contains(stages.Order, fl.Field().String())
}

// Validate checks struct tags, then the rules that span fields.
//
// # Description
//
// The cross-field rules follow the stage range: only the paths the
// selected stages need must be configured, Home is required only when one
// of them is a standard path, and database settings are only checked when
// Define or Load is selected.
//
// # Outputs
//
//   - error: Nil, or ErrInvalidConfig wrapping every problem found
func (c *RetroChadConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, describeValidation(err))
	}

	var errs []error
	if _, err := ParseYears(c.Years); err != nil {
		errs = append(errs, fmt.Errorf("years: %w", err))
	}
	if _, err := logging.ParseVerbosity(c.Log.Verbosity); err != nil {
		errs = append(errs, fmt.Errorf("log.verbosity: %w", err))
	}

	selection, err := c.selectStages()
	if err != nil {
		errs = append(errs, err)
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}

	needHome := false
	for _, key := range pipeline.RequiredPaths(selection) {
		pc, ok := c.Paths[string(key)]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("paths.%s: not configured", key))
		case pc.Path == "" && pc.Dir == "":
			errs = append(errs, fmt.Errorf("paths.%s: needs dir or path", key))
		case pc.Path == "":
			needHome = true
		}
	}
	if needHome && strings.TrimSpace(c.Home) == "" {
		errs = append(errs, errors.New("home: no RetroChadSql folder for standard paths"))
	}

	names := make([]string, len(selection))
	for i, st := range selection {
		names[i] = st.Name
	}
	if slices.Contains(names, stages.StageDefine) && c.Database.Name == "" {
		errs = append(errs, errors.New("database.name: required when Define is selected"))
	}
	if slices.Contains(names, stages.StageLoad) && c.Database.Client == "" {
		errs = append(errs, errors.New("database.client: no SQL client selected"))
	}
	if slices.Contains(names, stages.StageDownload) {
		if err := checkURLTemplate(c.Download.URLTemplate); err != nil {
			errs = append(errs, fmt.Errorf("download.url_template: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// selectStages resolves First..Last against the standard registry.
func (c *RetroChadConfig) selectStages() ([]pipeline.StageDescriptor, error) {
	registry, err := stages.NewRegistry(stages.Options{})
	if err != nil {
		return nil, err
	}
	selection, err := registry.SelectRange(c.First, c.Last)
	if err != nil {
		return nil, fmt.Errorf("first/last: %w", err)
	}
	return selection, nil
}

// checkURLTemplate requires an http(s) URL with a {year} placeholder.
func checkURLTemplate(template string) error {
	if !strings.Contains(template, "{year}") {
		return errors.New("missing {year} placeholder")
	}
	u, err := url.Parse(strings.ReplaceAll(template, "{year}", "1931"))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// describeValidation turns validator output into one line per field.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "RetroChadConfig.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Errorf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Errorf("%s: failed %s (got %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return errors.Join(msgs...)
}
