package gitrepo

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Notes refs for attribution exports/imports.
const (
	// AttributionNotesRef is the namespace written by export and read
	// first on import.
	AttributionNotesRef = "refs/notes/narrative-attribution"
	// LegacyAttributionNotesRef is read as a fallback on import and is
	// never written.
	LegacyAttributionNotesRef = "refs/notes/ai"
)

// ReadNote returns the note text attached to a commit under refName.
// found is false when the ref or the note entry does not exist; that is
// not an error.
func (r *Repo) ReadNote(refName, sha string) (text string, found bool, err error) {
	ref, err := r.repo.Reference(plumbing.ReferenceName(refName), true)
	if err != nil {
		return "", false, nil
	}

	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return "", false, fmt.Errorf("notes commit for %s: %w", refName, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", false, fmt.Errorf("notes tree for %s: %w", refName, err)
	}

	// Notes trees may shard entries into fanout directories. Try the
	// flat layout first, then one and two levels of fanout. Shas too
	// short to shard simply miss.
	candidates := []string{sha}
	if len(sha) > 2 {
		candidates = append(candidates, sha[:2]+"/"+sha[2:])
	}
	if len(sha) > 4 {
		candidates = append(candidates, sha[:2]+"/"+sha[2:4]+"/"+sha[4:])
	}
	for _, path := range candidates {
		f, err := tree.File(path)
		if err != nil {
			continue
		}
		contents, err := f.Contents()
		if err != nil {
			return "", false, fmt.Errorf("read note %s: %w", path, err)
		}
		return contents, true, nil
	}
	return "", false, nil
}

// WriteNote attaches (or overwrites) a note on a commit under refName,
// preserving the notes for every other commit. Entries are written in
// the flat layout; existing fanout entries from other tools are carried
// over untouched.
func (r *Repo) WriteNote(refName, sha, message, authorName, authorEmail string) error {
	storer := r.repo.Storer

	// Store the note body as a blob.
	blobObj := storer.NewEncodedObject()
	blobObj.SetType(plumbing.BlobObject)
	w, err := blobObj.Writer()
	if err != nil {
		return fmt.Errorf("new note blob: %w", err)
	}
	if _, err := w.Write([]byte(message)); err != nil {
		_ = w.Close()
		return fmt.Errorf("write note blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close note blob: %w", err)
	}
	blobHash, err := storer.SetEncodedObject(blobObj)
	if err != nil {
		return fmt.Errorf("store note blob: %w", err)
	}

	// Carry over entries from the current notes tree, dropping any
	// previous note for this commit.
	var entries []object.TreeEntry
	var parents []plumbing.Hash
	if ref, err := r.repo.Reference(plumbing.ReferenceName(refName), true); err == nil {
		parentCommit, err := r.repo.CommitObject(ref.Hash())
		if err != nil {
			return fmt.Errorf("current notes commit: %w", err)
		}
		parentTree, err := parentCommit.Tree()
		if err != nil {
			return fmt.Errorf("current notes tree: %w", err)
		}
		for _, entry := range parentTree.Entries {
			if entry.Name == sha {
				continue
			}
			entries = append(entries, entry)
		}
		parents = []plumbing.Hash{ref.Hash()}
	}

	entries = append(entries, object.TreeEntry{
		Name: sha,
		Mode: filemode.Regular,
		Hash: blobHash,
	})
	sortTreeEntries(entries)

	tree := &object.Tree{Entries: entries}
	treeObj := storer.NewEncodedObject()
	if err := tree.Encode(treeObj); err != nil {
		return fmt.Errorf("encode notes tree: %w", err)
	}
	treeHash, err := storer.SetEncodedObject(treeObj)
	if err != nil {
		return fmt.Errorf("store notes tree: %w", err)
	}

	sig := object.Signature{Name: authorName, Email: authorEmail, When: time.Now()}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      fmt.Sprintf("Notes added for %s", sha[:7]),
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	commitObj := storer.NewEncodedObject()
	if err := commit.Encode(commitObj); err != nil {
		return fmt.Errorf("encode notes commit: %w", err)
	}
	commitHash, err := storer.SetEncodedObject(commitObj)
	if err != nil {
		return fmt.Errorf("store notes commit: %w", err)
	}

	ref := plumbing.NewHashReference(plumbing.ReferenceName(refName), commitHash)
	if err := storer.SetReference(ref); err != nil {
		return fmt.Errorf("update %s: %w", refName, err)
	}
	return nil
}

// sortTreeEntries sorts entries in canonical git tree order: byte-wise
// by name, with directory names compared as if they end in '/'.
func sortTreeEntries(entries []object.TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return treeEntryKey(entries[i]) < treeEntryKey(entries[j])
	})
}

func treeEntryKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}
