// Package config loads the engine's configuration surface from CUE.
//
// An embedded schema supplies constraints and defaults; an optional user
// file is unified with it. Status vocabulary entries from the user file
// extend (and may override) DefaultStatusVocabulary.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/epar/internal/record"
)

//go:embed schema.cue
var schemaCUE string

// Config is the decoded configuration.
type Config struct {
	MatchThreshold   float64                  `json:"match_threshold"`
	Delimiters       []string                 `json:"delimiters"`
	StatusVocabulary map[string]record.Status `json:"status_vocabulary"`
	ATCPattern       string                   `json:"atc_pattern"`
	RegistryRole     string                   `json:"registry_role"`
	Workers          int                      `json:"workers"`
}

// DefaultStatusVocabulary maps the source's status phrases (lowercase) to
// the status enumeration.
var DefaultStatusVocabulary = map[string]record.Status{
	"authorised":                                 record.StatusApproved,
	"authorized":                                 record.StatusApproved,
	"approved":                                   record.StatusApproved,
	"marketing authorisation":                    record.StatusApproved,
	"suspension lifted":                          record.StatusApproved,
	"conditional approval":                       record.StatusConditionalApproval,
	"conditional marketing authorisation":        record.StatusConditionalApproval,
	"authorised under conditional approval":      record.StatusConditionalApproval,
	"exceptional circumstances":                  record.StatusExceptionalCircumstances,
	"authorised under exceptional circumstances": record.StatusExceptionalCircumstances,
	"refused":                                    record.StatusRejected,
	"rejected":                                   record.StatusRejected,
	"authorisation refused":                      record.StatusRejected,
	"withdrawn":                                  record.StatusWithdrawn,
	"withdrawn by applicant":                     record.StatusWithdrawn,
	"expired":                                    record.StatusWithdrawn,
	"not renewed":                                record.StatusWithdrawn,
	"suspended":                                  record.StatusSuspended,
	"suspension":                                 record.StatusSuspended,
}

// LoadError reports a configuration problem with its CUE position.
type LoadError struct {
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("config: %s", e.Message)
}

// Default returns the schema defaults.
func Default() (Config, error) {
	return decode(nil, "")
}

// Load reads a CUE (or JSON) file and unifies it with the schema.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &LoadError{Path: path, Message: err.Error()}
	}
	return decode(data, path)
}

// Parse unifies in-memory CUE source with the schema.
func Parse(src []byte) (Config, error) {
	return decode(src, "config.cue")
}

func decode(src []byte, filename string) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, &LoadError{Message: "embedded schema: " + err.Error()}
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))

	if src != nil {
		user := ctx.CompileBytes(src, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return Config{}, &LoadError{Path: filename, Message: formatCUEError(err)}
		}
		v = v.Unify(user)
	}

	if err := v.Validate(); err != nil {
		return Config{}, &LoadError{Path: filename, Message: formatCUEError(err)}
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, &LoadError{Path: filename, Message: formatCUEError(err)}
	}

	cfg.StatusVocabulary = mergeVocabulary(cfg.StatusVocabulary)

	if _, err := regexp.Compile(cfg.ATCPattern); err != nil {
		return Config{}, &LoadError{Path: filename, Message: fmt.Sprintf("atc_pattern: %v", err)}
	}

	return cfg, nil
}

func mergeVocabulary(user map[string]record.Status) map[string]record.Status {
	out := make(map[string]record.Status, len(DefaultStatusVocabulary)+len(user))
	for k, v := range DefaultStatusVocabulary {
		out[k] = v
	}
	for k, v := range user {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// formatCUEError flattens a CUE error list into one line per error.
func formatCUEError(err error) string {
	var msgs []string
	for _, e := range errors.Errors(err) {
		msgs = append(msgs, strings.TrimSpace(errors.Details(e, nil)))
	}
	if len(msgs) == 0 {
		return err.Error()
	}
	return strings.Join(msgs, "; ")
}
