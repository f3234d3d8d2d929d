// Package srcwalk enumerates Clojure source files under a directory in
// deterministic order, so whole-project collapsed views are reproducible
// run to run. The walk honors the root .gitignore, skips build output and
// editor directories, and never follows symlinks.
package srcwalk

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// File describes one collected source file.
type File struct {
	RelPath string // root-relative path with forward slashes
	AbsPath string
	Size    int64
}

// sourceExts are the extensions treated as Clojure source.
var sourceExts = map[string]struct{}{
	".clj": {}, ".cljs": {}, ".cljc": {}, ".cljd": {}, ".edn": {},
}

// skipDirs are directory names never descended into.
var skipDirs = map[string]struct{}{
	".git": {}, ".cpcache": {}, ".clj-kondo": {}, ".lsp": {},
	".idea": {}, ".vscode": {}, "node_modules": {}, "target": {}, "out": {},
}

// maxFileBytes caps individual files; anything larger is generated output,
// not something worth a collapsed view.
const maxFileBytes = 2_000_000

// Collect walks root and returns every Clojure source file, sorted by
// relative path.
func Collect(root string) ([]File, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	ignores := loadIgnores(filepath.Join(rootAbs, ".gitignore"))

	var files []File
	err = filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, rerr := filepath.Rel(rootAbs, path)
		if rerr != nil || strings.HasPrefix(rel, "..") {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if _, skip := skipDirs[d.Name()]; skip || ignores.match(rel, true) || d.Type()&fs.ModeSymlink != 0 {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if _, ok := sourceExts[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		if ignores.match(rel, false) {
			return nil
		}
		info, ierr := d.Info()
		if ierr != nil || !info.Mode().IsRegular() || info.Size() > maxFileBytes {
			return nil
		}
		files = append(files, File{RelPath: rel, AbsPath: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// ignoreList is a minimal .gitignore matcher: comments, negation, trailing
// '/' for directories, leading '/' anchoring, '*'/'?'/'**' globs. Last
// matching pattern wins, as git does it.
type ignoreList []ignorePattern

type ignorePattern struct {
	neg     bool
	dirOnly bool
	rx      *regexp.Regexp
}

func loadIgnores(path string) ignoreList {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out ignoreList
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p := ignorePattern{}
		if strings.HasPrefix(line, "!") {
			p.neg = true
			line = strings.TrimSpace(line[1:])
			if line == "" {
				continue
			}
		}
		if strings.HasSuffix(line, "/") {
			p.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		anchored := strings.HasPrefix(line, "/")
		line = strings.TrimPrefix(line, "/")

		expr := regexp.QuoteMeta(line)
		expr = strings.ReplaceAll(expr, `\*\*`, `..STARS..`)
		expr = strings.ReplaceAll(expr, `\*`, `[^/]*`)
		expr = strings.ReplaceAll(expr, `\?`, `[^/]`)
		expr = strings.ReplaceAll(expr, `..STARS..`, `.*`)
		if anchored {
			expr = "^" + expr + "$"
		} else {
			expr = "(^|.*/)" + expr + "$"
		}
		rx, err := regexp.Compile(expr)
		if err != nil {
			continue
		}
		p.rx = rx
		out = append(out, p)
	}
	return out
}

func (l ignoreList) match(rel string, isDir bool) bool {
	ignored := false
	for _, p := range l {
		if p.dirOnly && !isDir {
			continue
		}
		if p.rx.MatchString(rel) {
			ignored = !p.neg
		}
	}
	return ignored
}
