// Stowaway - Backup Orchestration Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stowaway

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

// maxExpandPasses bounds both property resolution and string expansion so
// that self-referencing properties terminate.
const maxExpandPasses = 10

// Built-in variable names.
const (
	VarCurrentDateTime = "CURRENT_DATETIME"
	VarCurrentDate     = "CURRENT_DATE"
	VarCurrentTime     = "CURRENT_TIME"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ErrUnresolved is matched by every UnresolvedError.
var ErrUnresolved = errors.New("unresolved placeholder")

// UnresolvedError lists the placeholders left in a value after expansion.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved placeholder(s): %s", strings.Join(e.Names, ", "))
}

// Is reports ErrUnresolved as a match.
func (e *UnresolvedError) Is(target error) bool {
	return target == ErrUnresolved
}

// Vars is the variable table used for placeholder expansion. It is built once
// per run and is read-only afterwards.
type Vars struct {
	values    map[string]string
	lookupEnv func(string) (string, bool)
}

// NewVars seeds the built-in time variables from now and resolves props
// against each other. Properties may override built-ins. A property that
// cannot be fully resolved keeps its placeholder and only fails the items
// that use it.
func NewVars(now time.Time, props map[string]string) *Vars {
	return newVars(now, props, os.LookupEnv)
}

func newVars(now time.Time, props map[string]string, lookupEnv func(string) (string, bool)) *Vars {
	v := &Vars{
		values: map[string]string{
			VarCurrentDateTime: now.Format("20060102_150405"),
			VarCurrentDate:     now.Format("20060102"),
			VarCurrentTime:     now.Format("150405"),
		},
		lookupEnv: lookupEnv,
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for pass := 0; pass < maxExpandPasses; pass++ {
		changed := false
		for _, k := range keys {
			resolved := v.substitute(props[k])
			if old, ok := v.values[k]; !ok || old != resolved {
				v.values[k] = resolved
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return v
}

// Get returns a resolved variable.
func (v *Vars) Get(name string) (string, bool) {
	s, ok := v.values[name]
	return s, ok
}

// Expand replaces every placeholder in s. It returns *UnresolvedError when
// any placeholder survives.
func (v *Vars) Expand(s string) (string, error) {
	out := v.substitute(s)
	if names := unresolvedNames(out); len(names) > 0 {
		return out, &UnresolvedError{Names: names}
	}
	return out, nil
}

// substitute expands repeatedly until the text is stable.
func (v *Vars) substitute(text string) string {
	result := text
	for pass := 0; pass < maxExpandPasses; pass++ {
		next := placeholderPattern.ReplaceAllStringFunc(result, v.replace)
		if next == result {
			break
		}
		result = next
	}
	return result
}

// replace resolves a single ${...} match, returning it unchanged when the
// name is unknown.
func (v *Vars) replace(match string) string {
	expr := match[2 : len(match)-1]

	if rest, ok := strings.CutPrefix(expr, "ENV:"); ok {
		name, def, hasDefault := strings.Cut(rest, ":")
		if val, found := v.lookupEnv(name); found {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	}

	if val, ok := v.values[expr]; ok {
		return val
	}
	return match
}

func unresolvedNames(s string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// expander accumulates unresolved names across the fields of one item.
type expander struct {
	vars    *Vars
	missing []string
}

func (e *expander) str(s string) string {
	out, err := e.vars.Expand(s)
	var ue *UnresolvedError
	if errors.As(err, &ue) {
		e.missing = append(e.missing, ue.Names...)
	}
	return out
}

func (e *expander) err() error {
	if len(e.missing) == 0 {
		return nil
	}
	return &UnresolvedError{Names: dedupe(e.missing)}
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// ExpandTask returns t with placeholders expanded in its path and option
// fields. Type and name are taken literally.
func (v *Vars) ExpandTask(t TaskConfig) (TaskConfig, error) {
	e := &expander{vars: v}
	t.OutputDir = e.str(t.OutputDir)
	t.TarRunDir = e.str(t.TarRunDir)
	if t.BackupList != nil {
		list := make([]string, len(t.BackupList))
		for i, p := range t.BackupList {
			list[i] = e.str(p)
		}
		t.BackupList = list
	}
	t.DumpOption = e.str(t.DumpOption)
	t.SourceFile = e.str(t.SourceFile)
	if err := e.err(); err != nil {
		return t, fmt.Errorf("task %s: %w", t.Name, err)
	}
	return t, nil
}

// ExpandUploader returns u with placeholders expanded in its connection and
// credential fields.
func (v *Vars) ExpandUploader(u UploaderConfig) (UploaderConfig, error) {
	e := &expander{vars: v}
	u.AccessID = e.str(u.AccessID)
	u.AccessKey = e.str(u.AccessKey)
	u.Endpoint = e.str(u.Endpoint)
	u.Bucket = e.str(u.Bucket)
	u.Region = e.str(u.Region)
	u.Host = e.str(u.Host)
	u.Username = e.str(u.Username)
	u.Password = e.str(u.Password)
	if err := e.err(); err != nil {
		return u, fmt.Errorf("uploader %s: %w", u.Name, err)
	}
	return u, nil
}

// ExpandBinding returns b with its remote directory expanded.
func (v *Vars) ExpandBinding(b BindingConfig) (BindingConfig, error) {
	e := &expander{vars: v}
	b.RemoteDir = e.str(b.RemoteDir)
	if err := e.err(); err != nil {
		return b, fmt.Errorf("binding %s -> %s: %w", b.TaskName, b.UploaderName, err)
	}
	return b, nil
}
