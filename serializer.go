package cleanweb

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// EnsurePersisted writes rs to path if no file exists there yet, creating the
// directory as needed. It reports whether it wrote anything. An existing file
// is never overwritten.
func EnsurePersisted(path string, rs *RuleSet) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, &ConfigError{Kind: IOFailure, Path: path, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, &ConfigError{Kind: IOFailure, Path: path, Err: err}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return false, &ConfigError{Kind: IOFailure, Path: path, Err: err}
	}
	if err := WriteRules(f, rs.Rules()); err != nil {
		f.Close()
		return false, &ConfigError{Kind: IOFailure, Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return false, &ConfigError{Kind: IOFailure, Path: path, Err: err}
	}
	log.Debugf("Wrote %d rules to %v", rs.Len(), path)
	return true, nil
}

// WriteRules writes one host,param row per rule.
func WriteRules(w io.Writer, rules []*Rule) error {
	writer := csv.NewWriter(w)
	for _, r := range rules {
		if err := writer.Write([]string{r.Host, r.Param}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
