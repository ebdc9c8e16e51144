// Package scanner finds the DBML files of a workspace and watches them for
// changes.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

var logger = commonlog.GetLogger("dbml.scanner")

// Workers bounds the number of files read and handled concurrently.
const Workers = 4

// MatchFunc reports whether a slash-separated path relative to the root is
// selected.
type MatchFunc func(relPath string) bool

// Scan walks the subtree under root. Any file or directory whose name
// begins with "." is skipped entirely. Every remaining file selected by
// match is read and handed to callback with its absolute path; callbacks
// run on up to Workers goroutines. Scan returns once every callback has
// completed, with the first callback error or ctx's error.
func Scan(
	ctx context.Context,
	root string,
	match MatchFunc,
	callback func(path string, document []byte) error,
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers)

	logger.Infof("scanning %s", root)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warningf("walk error: %v", err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if isHidden(path, root) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil || !match(filepath.ToSlash(rel)) {
			return nil
		}

		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				logger.Warningf("read error %s: %v", path, err)
				return nil
			}
			return callback(path, data)
		})
		return nil
	})

	if werr := g.Wait(); werr != nil {
		return werr
	}
	return err
}

func isHidden(path, root string) bool {
	if path == root {
		return false
	}
	name := filepath.Base(path)
	return strings.HasPrefix(name, ".")
}
