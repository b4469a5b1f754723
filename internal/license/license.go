// Package license decides whether Pro features are unlocked.
//
// A Pro installation is one where the license file exists and is a
// non-empty regular file. The file is checked on every call so an operator
// can drop it in (or remove it) without restarting the server. There is no
// signature check.
package license

import (
	"os"
)

// Checker answers IsPro by looking at a path on disk.
type Checker struct {
	path string
}

func NewChecker(path string) *Checker {
	return &Checker{path: path}
}

// IsPro reports whether the license file is present.
func (c *Checker) IsPro() bool {
	if c == nil || c.path == "" {
		return false
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Status is the public view of the license, served to admins.
type Status struct {
	Pro  bool   `json:"pro"`
	Path string `json:"path"`
}

func (c *Checker) Status() Status {
	if c == nil {
		return Status{}
	}
	return Status{Pro: c.IsPro(), Path: c.path}
}
