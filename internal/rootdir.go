package internal

import (
	"path"
	"strings"
)

// RootDir can be used to remove the common root prefix of ZIP entry names.
//
// A non-empty RootDir always ends with "/".
type RootDir string

// Strip removes the root prefix from name.
//
// The returned value is empty if name is the root directory itself.
func (r RootDir) Strip(name string) string {
	return strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), string(r))
}

// FindZipRootDir returns the common root directory of the given file names in a ZIP archive.
//
// Given these three names (ZIP file paths must always be relative and using `/` as separator):
//
//	test/a.txt
//	test/path/b.txt
//	test/another/path/c.txt
//
// The common root directory of those files is `test/`. The returned value is empty if the given files have no common
// root directory.
func FindZipRootDir(names []string) (rootDir RootDir) {
	fn := NewZipRootDirFinder()

	var ok bool
	for _, name := range names {
		rootDir, ok = fn(name)
		if !ok {
			break
		}
	}

	return
}

// NewZipRootDirFinder returns a function that can be passed the file names to compute the common root.
//
// NewZipRootDirFinder is a functional variant of FindZipRootDir. It returns the current root dir and a boolean
// indicating whether there is a common root so far. As soon as the returned boolean value is false, the search can stop
// since there is no common root and subsequent calls will keep returning `"", false`.
func NewZipRootDirFinder() func(string) (rootDir RootDir, hasRoot bool) {
	noRoot, root := false, ""

	return func(name string) (RootDir, bool) {
		if noRoot {
			return "", false
		}

		first, _, found := strings.Cut(path.Clean(strings.ReplaceAll(name, "\\", "/")), "/")
		if !found && !strings.HasSuffix(name, "/") && !strings.HasSuffix(name, "\\") {
			// this is a file at top level so there is no root for sure.
			noRoot = true
			return "", false
		}

		switch root {
		case first:
		case "":
			root = first
		default:
			noRoot = true
			return "", false
		}

		return RootDir(root + "/"), true
	}
}
