// Package lineage resolves where excerpts live and what they are called.
//
// Every excerpt of one document, at any depth, lives in a single flat
// folder named after the top-level document. Excerpt file names encode
// their full ancestry as dot-separated start-end-slug segments, so the
// chain can be read back without consulting the store.
package lineage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
)

// MaxDepth bounds the ancestry walk.
const MaxDepth = 20

// SourceReader looks up lineage records. *store.DB and *store.Tx satisfy it.
type SourceReader interface {
	Source(ctx context.Context, libraryID, path string) (models.NoteSource, error)
}

// Ancestors returns the chain of paths from the top-level document down to
// notePath's parent. A note without a lineage record has no ancestors.
func Ancestors(ctx context.Context, src SourceReader, libraryID, notePath string) ([]string, error) {
	var chain []string
	seen := map[string]bool{notePath: true}
	cur := notePath
	for depth := 0; ; depth++ {
		if depth > MaxDepth {
			return nil, fmt.Errorf("lineage: %s: %w", notePath, apperr.ErrLineageTooDeep)
		}
		s, err := src.Source(ctx, libraryID, cur)
		if errors.Is(err, apperr.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("lineage: ancestors of %s: %w", notePath, err)
		}
		if s.ParentPath == "" {
			break
		}
		if seen[s.ParentPath] {
			return nil, fmt.Errorf("lineage: %s revisits %s: %w", notePath, s.ParentPath, apperr.ErrLineageTooDeep)
		}
		seen[s.ParentPath] = true
		chain = append(chain, s.ParentPath)
		cur = s.ParentPath
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// TopLevel returns the top-level document notePath descends from, or
// notePath itself when it has no parent.
func TopLevel(ctx context.Context, src SourceReader, libraryID, notePath string) (string, error) {
	chain, err := Ancestors(ctx, src, libraryID, notePath)
	if err != nil {
		return "", err
	}
	if len(chain) == 0 {
		return notePath, nil
	}
	return chain[0], nil
}

// FindTopLevelFolder returns the flat excerpt folder for notePath's lineage:
// {parentDir}/{baseName} of the top-level document. An excerpt whose name
// agrees with its recorded parent already sits in that folder, so the
// ancestry is only walked when the two disagree.
func FindTopLevelFolder(ctx context.Context, src SourceReader, libraryID, notePath string) (string, error) {
	s, err := src.Source(ctx, libraryID, notePath)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return "", fmt.Errorf("lineage: folder of %s: %w", notePath, err)
	}
	if err == nil && s.ParentPath != "" && nameMatchesParent(notePath, s.ParentPath) {
		return path.Dir(notePath), nil
	}

	top, err := TopLevel(ctx, src, libraryID, notePath)
	if err != nil {
		return "", err
	}
	return FolderFor(top), nil
}

// nameMatchesParent reports whether the chain encoded in notePath's name
// leads back to parent: a single segment inside the top-level document's
// folder, or one segment more than a parent in the same folder.
func nameMatchesParent(notePath, parent string) bool {
	segs, err := ParseChain(notePath)
	if err != nil {
		return false
	}
	dir := path.Dir(notePath)
	if len(segs) == 1 {
		return FolderFor(parent) == dir
	}
	names := make([]string, 0, len(segs)-1)
	for _, seg := range segs[:len(segs)-1] {
		names = append(names, seg.String())
	}
	return path.Join(dir, strings.Join(names, ".")+Ext) == parent
}

// FolderFor is the excerpt folder of a top-level document.
func FolderFor(topLevel string) string {
	return path.Join(path.Dir(topLevel), BaseName(topLevel))
}

// BaseName is the file name of p without directory or extension.
func BaseName(p string) string {
	b := path.Base(p)
	return strings.TrimSuffix(b, path.Ext(b))
}
