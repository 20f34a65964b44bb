// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the retrochad CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Ballpark palette
var (
	ColorGrass  = lipgloss.Color("#3FA34D") // Outfield grass - success
	ColorClay   = lipgloss.Color("#C4703A") // Infield clay - accents, borders
	ColorChalk  = lipgloss.Color("#F2F2EE") // Foul line chalk - headers
	ColorDugout = lipgloss.Color("#5B6770") // Dugout slate - muted text

	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style

	TableHeader lipgloss.Style
	TableCell   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorClay),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorDugout),
	Success: lipgloss.NewStyle().Foreground(ColorGrass),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorGrass).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),

	TableHeader: lipgloss.NewStyle().Bold(true).Foreground(ColorChalk).Padding(0, 1),
	TableCell:   lipgloss.NewStyle().Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes CLI output in one Mode.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter returns a Printer for w with the mode DetectMode picks.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, mode: DetectMode(w)}
}

// NewPrinterMode returns a Printer for w in an explicit mode.
func NewPrinterMode(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's output mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message
func (p *Printer) Error(text string) {
	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Line prints text unchanged.
func (p *Printer) Line(text string) {
	fmt.Fprintln(p.w, text)
}

// Box prints a titled success box.
func (p *Printer) Box(title, content string) {
	if p.mode == ModePlain {
		p.plainBlock(title, content)
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
}

// ErrorBox prints a titled error box.
func (p *Printer) ErrorBox(title, content string) {
	if p.mode == ModePlain {
		p.plainBlock(title, content)
		return
	}
	fmt.Fprintln(p.w, Styles.ErrorBox.Width(60).Render(Styles.Error.Bold(true).Render(title)+"\n"+content))
}

func (p *Printer) plainBlock(title, content string) {
	if content == "" {
		fmt.Fprintln(p.w, title)
		return
	}
	fmt.Fprintf(p.w, "%s\n%s\n", title, content)
}

// Table prints rows under headers: a bordered table in rich mode,
// tab-separated lines in plain mode.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.mode == ModePlain {
		fmt.Fprintln(p.w, strings.Join(headers, "\t"))
		for _, r := range rows {
			fmt.Fprintln(p.w, strings.Join(r, "\t"))
		}
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorClay)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.TableHeader
			}
			return Styles.TableCell
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(p.w, t.Render())
}
