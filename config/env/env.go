// Package env loads configuration from environment variables, leaving the
// caller's defaults in place when a variable is absent.
package env

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/hl8/datalayer/config/secret"
)

// Var records one environment variable a Loader was asked for, with the
// default that applied at the time.
type Var struct {
	env     string
	envType string
	def     interface{}
}

func (v Var) String() string {
	return fmt.Sprintf("%-40s %-12s (%v)", v.env, v.envType, v.def)
}

func (v Var) Name() string {
	return v.env
}

// Loader reads environment variables into config fields. Parse failures are
// collected rather than returned per call, check Err once after all the
// fields are loaded.
type Loader struct {
	vars map[string]Var
	err  error
}

func NewLoader() *Loader {
	return &Loader{
		vars: make(map[string]Var),
	}
}

// Err returns every error the loader accumulated, or nil.
func (l *Loader) Err() error {
	return l.err
}

// String sets fld from the named variable if it is present.
func (l *Loader) String(fld *string, env string) {
	l.addVar(*fld, env, "string")
	if val, ok := os.LookupEnv(env); ok {
		*fld = val
	}
}

// SecretFromFile sets fld to the content of the file the named variable
// points at. Note the default is secret content, not a file path. An unset
// or empty variable leaves the default alone; an unreadable file is recorded
// as a load error.
func (l *Loader) SecretFromFile(fld *secret.String, env string) {
	l.addVar(*fld, env, "file")
	fn, ok := os.LookupEnv(env)
	if !ok || fn == "" {
		return
	}
	content, err := os.ReadFile(fn) // #nosec G304 - the operator chose this path
	if err != nil {
		l.err = multierror.Append(l.err, fmt.Errorf("failed to read secret file: %w", err))
		return
	}
	*fld = secret.String(content)
}

// Int sets fld from the named variable, parsed as per strconv.Atoi. A parse
// failure leaves fld alone and is recorded as a load error.
func (l *Loader) Int(fld *int, env string) {
	l.addVar(*fld, env, "int")
	val, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		l.err = multierror.Append(l.err, fmt.Errorf("env var: %q caused an error: %w", env, err))
		return
	}
	*fld = i
}

// Bool sets fld from the named variable, parsed as per strconv.ParseBool.
// A parse failure leaves fld alone and is recorded as a load error.
func (l *Loader) Bool(fld *bool, env string) {
	l.addVar(*fld, env, "bool")
	val, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		l.err = multierror.Append(l.err, fmt.Errorf("env var: %q caused an error: %w", env, err))
		return
	}
	*fld = b
}

// Duration sets fld from the named variable, parsed as per
// time.ParseDuration. A parse failure leaves fld alone and is recorded as a
// load error.
func (l *Loader) Duration(fld *time.Duration, env string) {
	l.addVar(*fld, env, "Duration")
	val, ok := os.LookupEnv(env)
	if !ok {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		l.err = multierror.Append(l.err, fmt.Errorf("env var: %q caused an error: %w", env, err))
		return
	}
	*fld = d
}

type Vars []Var

// Sort orders v in place by variable name.
func (v Vars) Sort() {
	sort.Slice(v, func(i, j int) bool {
		return v[i].env < v[j].env
	})
}

// SortUnique removes duplicate names from v and sorts what remains, in
// place. The receiver may shrink.
func (v *Vars) SortUnique() {
	m := map[string]Var{}
	for _, e := range *v {
		m[e.Name()] = e
	}
	// the deduplicated set is never larger, so reuse the backing array
	*v = (*v)[:len(m)]
	i := 0
	for _, vv := range m {
		(*v)[i] = vv
		i++
	}
	v.Sort()
}

// VarsUsed returns every variable the loader has been asked for, sorted by
// name, with long string defaults flattened and truncated for display.
func (l *Loader) VarsUsed() Vars {
	const maxDefaultLen = 80
	vars := make(Vars, 0, len(l.vars))
	for _, v := range l.vars {
		if def, ok := v.def.(string); ok {
			def = strings.ReplaceAll(def, "\n", "\\n")
			if len(def) > maxDefaultLen {
				def = def[:maxDefaultLen] + " ..."
			}
			v.def = def
		}
		vars = append(vars, v)
	}
	vars.Sort()
	return vars
}

// ChangeDefault rewrites the recorded default for an already loaded
// variable, for use when a default is computed after loading.
func (l *Loader) ChangeDefault(env, def string) {
	prev, ok := l.vars[env]
	if !ok {
		return
	}
	prev.def = def
	l.vars[env] = prev
}

func (l *Loader) addVar(def interface{}, env, envType string) {
	if _, ok := l.vars[env]; ok {
		panic("duplicate environment variable " + env)
	}
	l.vars[env] = Var{
		env:     env,
		envType: envType,
		def:     def,
	}
}
