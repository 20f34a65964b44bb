// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/AleutianAI/retrochadsql/services/pipeline"
)

// SQL column types.
const (
	sqlCount    = "MEDIUMINT UNSIGNED"
	sqlDate     = "DATE"
	sqlDateTime = "DATETIME"
	sqlFlag     = "TINYINT UNSIGNED"
	sqlText     = "VARCHAR(200)"
)

// countColumns are numeric code columns whose names do not end in _CT or
// _FLD_CD.
var countColumns = map[string]bool{
	"EVENT_CD": true, "H_CD": true, "EVENT_ID": true, "START_FLD_SCORE": true,
	"BAT_LINEUP_ID": true, "BAT_DEST_ID": true, "BAT_FATE_ID": true,
	"RUN1_DEST_ID": true, "RUN2_DEST_ID": true, "RUN3_DEST_ID": true,
	"RUN1_FATE_ID": true, "RUN2_FATE_ID": true, "RUN3_FATE_ID": true,
	"RUN1_FLD_CODE": true, "RUN2_FLD_CODE": true, "RUN3_FLD_CODE": true,
	"RUN1_LINEUP_CD": true, "RUN2_LINEUP_CD": true, "RUN3_LINEUP_CD": true,
	"RUN1_ORIGIN_EVENT_ID": true, "RUN2_ORIGIN_EVENT_ID": true, "RUN3_ORIGIN_EVENT_ID": true,
	"START_BASES_CD": true, "END_BASES_CD": true, "START_GAME_TM": true,
	"METHOD_RECORD_CD": true, "PTICHES_RECORD_CD": true, "WIND_DIRECTION_PARK_CD": true,
	"FIELD_PARK_CD": true, "PRECIP_PARK_CD": true, "SKY_PARK_CD": true,
	"SUB_LINEUP_ID": true, "SUB_FLD_CD": true, "REMOVED_FLD_CD": true,
}

// flagColumns are 0/1 columns whose names do not end in _FL.
var flagColumns = map[string]bool{"BAT_HOME_ID": true, "BAT_LAST_ID": true}

// columnType returns the SQL type for a Chadwick header name.
func columnType(field string) string {
	switch {
	case field == "GAME_DT":
		return sqlDate
	case strings.HasSuffix(field, "_RECORD_TS"):
		return sqlDateTime
	case strings.HasSuffix(field, "_FL") || flagColumns[field]:
		return sqlFlag
	case strings.HasSuffix(field, "_CT") || strings.HasSuffix(field, "_FLD_CD") || countColumns[field]:
		return sqlCount
	default:
		return sqlText
	}
}

// fieldTweak returns the SET formula for a column loaded through a user
// variable, with {temp} standing for the variable, or "" when the column
// loads as is.
func fieldTweak(field string) string {
	switch {
	case strings.HasSuffix(field, "_FL"):
		return `CASE {temp} WHEN "T" THEN TRUE WHEN "F" THEN FALSE END`
	case strings.HasSuffix(field, "_RECORD_TS"):
		return `IF({temp}, STR_TO_DATE({temp}, "%Y/%m/%d %h:%i%p"), NULL)`
	case field == "AWAY_TEAM_GAME_CT" || field == "HOME_TEAM_GAME_CT":
		return `NULLIF({temp}, "")`
	case field == "WIND_SPEED_PARK_CT":
		return `NULLIF({temp}, -1)`
	case field == "START_GAME_TM":
		return "CASE WHEN {temp} = 0 THEN NULL\n" +
			`      WHEN DAYNIGHT_PARK_CD = "D" AND {temp} > 800 THEN {temp} * 100` + "\n" +
			"      ELSE ({temp} + 1200) * 100 END"
	default:
		return ""
	}
}

// yearFormula derives the season from the game id, e.g. BAL199804060.
const yearFormula = "SUBSTRING(GAME_ID FROM 4 FOR 4)"

// quoteIdent quotes a MySQL identifier.
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// quoteString quotes a MySQL string literal with double quotes.
func quoteString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// escapeLineSeparator renders a line ending as a MySQL string escape.
func escapeLineSeparator(sep string) string {
	return strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(sep)
}

// createTable renders the CREATE TABLE statement for t.
func createTable(t *table) string {
	specs := []string{`id INT UNSIGNED AUTO_INCREMENT PRIMARY KEY COMMENT "auto-increment primary key"`}
	for i, field := range t.fields {
		comment := ""
		if i < len(t.comments) {
			comment = t.comments[i]
		}
		specs = append(specs, fmt.Sprintf("%s %s COMMENT %s",
			strings.ToLower(field), columnType(field), quoteString(comment)))
	}
	specs = append(specs, fmt.Sprintf("year_ct %s COMMENT %s", sqlCount, quoteString("year")))
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s);\n", t.name, strings.Join(specs, ",\n  "))
}

// loadStatement renders the LOAD DATA statement for one table and year.
func loadStatement(t *table, year pipeline.Year, assembleDir, lineSep string) string {
	csvPath := filepath.ToSlash(filepath.Join(assembleDir, csvName(year, t)))

	columns := make([]string, len(t.fields))
	var assignments []string
	for i, field := range t.fields {
		col := strings.ToLower(field)
		formula := fieldTweak(field)
		if formula == "" {
			columns[i] = col
			continue
		}
		columns[i] = "@temp_" + col
		assignments = append(assignments,
			fmt.Sprintf("%s = %s", col, strings.ReplaceAll(formula, "{temp}", "@temp_"+col)))
	}
	sort.Strings(assignments)
	assignments = append(assignments, "year_ct = "+yearFormula)

	var b strings.Builder
	fmt.Fprintf(&b, "LOAD DATA LOCAL INFILE %s\n", quoteString(csvPath))
	fmt.Fprintf(&b, "  INTO TABLE %s\n", t.name)
	b.WriteString("  FIELDS TERMINATED BY \",\"\n")
	b.WriteString("    ENCLOSED BY '\"'\n")
	fmt.Fprintf(&b, "  LINES TERMINATED BY \"%s\"\n", escapeLineSeparator(lineSep))
	b.WriteString("  IGNORE 1 LINES\n")
	fmt.Fprintf(&b, "  (%s)\n", strings.Join(columns, ", "))
	b.WriteString("  SET\n    ")
	b.WriteString(strings.Join(assignments, ",\n    "))
	b.WriteString(";")
	return b.String()
}

// renderSchema renders schema.sql: the database, every table and, as a
// comment, the load form each table will use.
func renderSchema(dbName string, tables []*table, sampleYear pipeline.Year, assembleDir, lineSep string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE DATABASE IF NOT EXISTS %s;\n", quoteIdent(dbName))
	fmt.Fprintf(&b, "USE %s;\n\n", quoteIdent(dbName))
	for _, t := range tables {
		b.WriteString(createTable(t))
		b.WriteString("/*\nThe following form will be used to load data.\n")
		b.WriteString(loadStatement(t, sampleYear, assembleDir, lineSep))
		b.WriteString("\n*/\n\n\n")
	}
	return b.String()
}

// renderYearLoad renders <year>.sql.
func renderYearLoad(dbName string, tables []*table, year pipeline.Year, assembleDir, lineSep string) string {
	statements := []string{fmt.Sprintf("USE %s;", quoteIdent(dbName))}
	for _, t := range tables {
		statements = append(statements, loadStatement(t, year, assembleDir, lineSep))
	}
	return strings.Join(statements, "\n\n") + "\n"
}
