// Copyright (C) 2025 The Spendo Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders command-line output: colored status lines on a
// terminal, plain prefixed lines when piped.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Spendo palette
var (
	ColorBrand   = lipgloss.Color("#2E9E6B") // Ledger green - titles
	ColorSuccess = lipgloss.Color("#3FBF7F")
	ColorWarning = lipgloss.Color("#F4D03F") // Gold/amber for warnings
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#6B7B83")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorBrand),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
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
		return Styles.Muted.Render(string(i))
	}
}

// Mode selects between styled and plain output.
type Mode int

const (
	// ModeStyled uses colors and icons.
	ModeStyled Mode = iota

	// ModePlain writes "OK:", "WARN:" and "ERROR:" prefixes for scripts.
	ModePlain
)

// Printer writes status lines to one destination.
//
// # Thread Safety
//
// Not safe for concurrent use; each command owns its Printer.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter picks ModeStyled when w is a terminal and ModePlain
// otherwise. NO_COLOR forces ModePlain.
func NewPrinter(w io.Writer) *Printer {
	mode := ModePlain
	if f, ok := w.(*os.File); ok && os.Getenv("NO_COLOR") == "" &&
		(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		mode = ModeStyled
	}
	return &Printer{w: w, mode: mode}
}

// NewPrinterWithMode forces a mode. Used by tests.
func NewPrinterWithMode(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Title prints a styled title. Plain mode skips it.
func (p *Printer) Title(text string) {
	if p.mode == ModePlain {
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message
func (p *Printer) Error(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Item prints an indented bullet line.
func (p *Printer) Item(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "  %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "  %s %s\n", IconBullet.Render(), text)
}

// Count is one labelled number in a Summary line.
type Count struct {
	Label string
	N     int
}

// Summary prints counts on one line, e.g. "3 users  12 accounts".
func (p *Printer) Summary(counts ...Count) {
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		if p.mode == ModePlain {
			parts = append(parts, fmt.Sprintf("%s=%d", strings.ReplaceAll(c.Label, " ", "_"), c.N))
			continue
		}
		parts = append(parts, Styles.Bold.Render(fmt.Sprint(c.N))+" "+Styles.Muted.Render(c.Label))
	}
	if p.mode == ModePlain {
		fmt.Fprintf(p.w, "SUMMARY: %s\n", strings.Join(parts, " "))
		return
	}
	fmt.Fprintln(p.w, strings.Join(parts, "  "))
}
