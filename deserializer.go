package cleanweb

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getlantern/golog"
	"github.com/hashicorp/go-multierror"
)

const (
	appDir    = "CleanWeb"
	rulesFile = "config.csv"
)

// ConfigDir returns the per-user directory holding the rule file.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", &ConfigError{Kind: InvalidPath, Err: err}
	}
	return filepath.Join(base, appDir), nil
}

// RulesPath returns the location of the rule file.
func RulesPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, rulesFile), nil
}

type deserializer struct {
	log golog.Logger
}

func newDeserializer() *deserializer {
	return &deserializer{
		log: golog.LoggerFor("cleanweb-deserializer"),
	}
}

// LoadRules reads the rule file at path. A missing file yields the default
// rules, as does a file without any rows. Every row that fails to compile is
// reported in the returned error.
func LoadRules(path string, opts ...Option) (*RuleSet, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debugf("No rule file at %v, using defaults", path)
		return NewRuleSet(nil, opts...), nil
	}
	if err != nil {
		return nil, &ConfigError{Kind: IOFailure, Path: path, Err: err}
	}
	defer f.Close()

	rules, err := newDeserializer().readRules(f)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			ce.Path = path
			return nil, ce
		}
		return nil, &ConfigError{Kind: IOFailure, Path: path, Err: err}
	}
	return NewRuleSet(rules, opts...), nil
}

// ReadRules parses rules from r without falling back to defaults.
func ReadRules(r io.Reader) ([]*Rule, error) {
	return newDeserializer().readRules(r)
}

func (d *deserializer) readRules(r io.Reader) ([]*Rule, error) {
	start := time.Now()
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.Comment = '#'

	var rules []*Rule
	var result error
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid rule file: %w", err)
		}
		host, param := strings.TrimSpace(record[0]), strings.TrimSpace(record[1])
		rule, err := NewRule(host, param)
		if err != nil {
			line, _ := reader.FieldPos(0)
			result = multierror.Append(result, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		rules = append(rules, rule)
	}
	if result != nil {
		return nil, &ConfigError{Kind: InvalidPattern, Err: result}
	}
	d.log.Debugf("Loaded %d rules in %v", len(rules), time.Since(start))
	return rules, nil
}

// LoadOrDefault is what the daemon runs at startup. A malformed rule file is
// logged and replaced in memory by the defaults, but left untouched on disk.
// Any other failure is returned. If no rule file exists yet, the rules in
// effect are written out so there's something to edit.
func LoadOrDefault(path string, opts ...Option) (*RuleSet, error) {
	rs, err := LoadRules(path, opts...)
	switch {
	case err == nil:
	case IsConfigError(err, InvalidPattern), isMalformed(err):
		log.Errorf("Ignoring rule file: %v", err)
		rs = NewRuleSet(nil, opts...)
	default:
		return nil, err
	}

	if _, err := EnsurePersisted(path, rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func isMalformed(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}
