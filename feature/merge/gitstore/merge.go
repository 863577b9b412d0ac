package gitstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"kb-bridge/core/conflict"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"go.uber.org/zap"
)

// entry is one file of a flattened tree.
type entry struct {
	hash plumbing.Hash
	mode filemode.FileMode
}

func flatten(tree *object.Tree) (map[string]entry, error) {
	out := make(map[string]entry)
	err := tree.Files().ForEach(func(f *object.File) error {
		out[f.Name] = entry{hash: f.Hash, mode: f.Mode}
		return nil
	})
	return out, err
}

// ApplyMerge implements conflict.MergeWriter. TargetRef must be a branch.
func (s *Store) ApplyMerge(ctx context.Context, req conflict.MergeApply) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch := plumbing.NewBranchReferenceName(req.TargetRef)
	head, err := s.repo.Reference(branch, true)
	if err != nil {
		return "", fmt.Errorf("target %s is not a branch: %w", req.TargetRef, err)
	}
	oursCommit, err := s.repo.CommitObject(head.Hash())
	if err != nil {
		return "", fmt.Errorf("read %s: %w", req.TargetRef, err)
	}
	theirsCommit, err := s.commit(req.SourceRef)
	if err != nil {
		return "", err
	}
	baseRef := req.MergeBase
	if baseRef == "" {
		if baseRef, err = s.MergeBase(ctx, head.Hash().String(), theirsCommit.Hash.String()); err != nil {
			return "", err
		}
	}

	base, err := s.flattenRef(baseRef)
	if err != nil {
		return "", err
	}
	ours, err := s.flattenCommit(oursCommit)
	if err != nil {
		return "", err
	}
	theirs, err := s.flattenCommit(theirsCommit)
	if err != nil {
		return "", err
	}

	merged := s.mergeTrees(base, ours, theirs)

	oursTree, err := oursCommit.Tree()
	if err != nil {
		return "", err
	}
	theirsTree, err := theirsCommit.Tree()
	if err != nil {
		return "", err
	}
	for _, w := range req.Writes {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := s.applyWrite(merged, oursTree, theirsTree, w); err != nil {
			return "", conflict.NewCollaboratorError("write", w.Table, w.DocumentID, err)
		}
	}

	treeHash, err := s.writeTree(merged)
	if err != nil {
		return "", fmt.Errorf("write merged tree: %w", err)
	}

	msg := req.Message
	if msg == "" {
		msg = fmt.Sprintf("Merge %s into %s", req.SourceRef, req.TargetRef)
	}
	sig := s.signature(req.Author)
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      msg,
		TreeHash:     treeHash,
		ParentHashes: []plumbing.Hash{oursCommit.Hash, theirsCommit.Hash},
	}
	obj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return "", fmt.Errorf("encode merge commit: %w", err)
	}
	commitHash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("store merge commit: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	next := plumbing.NewHashReference(branch, commitHash)
	if err := s.repo.Storer.CheckAndSetReference(next, head); err != nil {
		return "", fmt.Errorf("move %s: %w", req.TargetRef, err)
	}

	if cur, err := s.repo.Head(); err == nil && cur.Name() == branch {
		s.log.Warn("Merged into the checked out branch; the worktree is not updated", zap.String("branch", req.TargetRef))
	}
	s.log.Info("Merge committed",
		zap.String("source", req.SourceRef),
		zap.String("target", req.TargetRef),
		zap.String("commit", commitHash.String()),
		zap.Int("writes", len(req.Writes)),
	)
	return commitHash.String(), nil
}

func (s *Store) flattenRef(ref string) (map[string]entry, error) {
	c, err := s.commit(ref)
	if err != nil {
		return nil, err
	}
	return s.flattenCommit(c)
}

func (s *Store) flattenCommit(c *object.Commit) (map[string]entry, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("read tree of %s: %w", c.Hash, err)
	}
	return flatten(tree)
}

// mergeTrees keeps one-sided changes. Paths changed differently on both sides
// keep the target version; conflicting documents are then overwritten by the
// resolved writes.
func (s *Store) mergeTrees(base, ours, theirs map[string]entry) map[string]entry {
	paths := make(map[string]struct{}, len(ours)+len(theirs))
	for p := range base {
		paths[p] = struct{}{}
	}
	for p := range ours {
		paths[p] = struct{}{}
	}
	for p := range theirs {
		paths[p] = struct{}{}
	}

	out := make(map[string]entry, len(paths))
	for p := range paths {
		b, inBase := base[p]
		o, inOurs := ours[p]
		t, inTheirs := theirs[p]
		oursChanged := inBase != inOurs || o != b
		theirsChanged := inBase != inTheirs || t != b

		switch {
		case !theirsChanged || (inOurs == inTheirs && o == t):
			if inOurs {
				out[p] = o
			}
		case !oursChanged:
			if inTheirs {
				out[p] = t
			}
		default:
			if _, _, isDoc := splitDocPath(p); !isDoc {
				s.log.Warn("Non-document path changed on both sides; keeping target version", zap.String("path", p))
			}
			if inOurs {
				out[p] = o
			}
		}
	}
	return out
}

// applyWrite writes one resolved document. The content key of the existing
// document is reused so a file keeps its layout.
func (s *Store) applyWrite(files map[string]entry, oursTree, theirsTree *object.Tree, w conflict.DocumentWrite) error {
	p, err := docPath(w.Table, w.DocumentID)
	if err != nil {
		return err
	}
	if w.Delete {
		delete(files, p)
		return nil
	}

	doc := make(map[string]any, len(w.Metadata)+2)
	key := s.contentFields[0]
	for _, tree := range []*object.Tree{oursTree, theirsTree} {
		existing, err := readDocument(tree, p)
		if err != nil {
			return err
		}
		if existing == nil {
			continue
		}
		if k := s.contentKey(existing); k != "" {
			key = k
		}
		for _, idField := range conflict.IDFields {
			if v, ok := existing[idField]; ok {
				doc[idField] = v
			}
		}
		break
	}

	for k, v := range w.Metadata {
		doc[k] = v
	}
	if w.Content != nil {
		doc[key] = *w.Content
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", p, err)
	}
	h, err := writeBlob(s.repo.Storer, append(data, '\n'))
	if err != nil {
		return err
	}
	files[p] = entry{hash: h, mode: filemode.Regular}
	return nil
}

func (s *Store) contentKey(doc map[string]any) string {
	for _, k := range s.contentFields {
		if _, ok := doc[k]; ok {
			return k
		}
	}
	return ""
}

func (s *Store) signature(author string) object.Signature {
	name, email := s.authorName, s.authorEmail
	if author != "" {
		if i := strings.Index(author, " <"); i > 0 && strings.HasSuffix(author, ">") {
			name, email = author[:i], author[i+2:len(author)-1]
		} else {
			name = author
		}
	}
	if name == "" {
		name = "kb-bridge"
	}
	return object.Signature{Name: name, Email: email, When: time.Now()}
}

func writeBlob(st storer.EncodedObjectStorer, data []byte) (plumbing.Hash, error) {
	obj := st.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))
	wr, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := wr.Write(data); err != nil {
		wr.Close()
		return plumbing.ZeroHash, err
	}
	if err := wr.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return st.SetEncodedObject(obj)
}

// dirNode is a directory being rebuilt from flattened paths.
type dirNode struct {
	files map[string]entry
	dirs  map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{files: make(map[string]entry), dirs: make(map[string]*dirNode)}
}

func (s *Store) writeTree(files map[string]entry) (plumbing.Hash, error) {
	root := newDirNode()
	for p, e := range files {
		parts := strings.Split(p, "/")
		n := root
		for _, dir := range parts[:len(parts)-1] {
			child, ok := n.dirs[dir]
			if !ok {
				child = newDirNode()
				n.dirs[dir] = child
			}
			n = child
		}
		n.files[parts[len(parts)-1]] = e
	}
	return s.writeDir(root)
}

// writeDir stores a directory bottom-up. Entries are sorted the way git
// sorts them: directories compare as if their name ended with a slash.
func (s *Store) writeDir(n *dirNode) (plumbing.Hash, error) {
	type sortable struct {
		key   string
		entry object.TreeEntry
	}
	var entries []sortable
	for name, e := range n.files {
		entries = append(entries, sortable{key: name, entry: object.TreeEntry{Name: name, Mode: e.mode, Hash: e.hash}})
	}
	for name, child := range n.dirs {
		h, err := s.writeDir(child)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, sortable{key: name + "/", entry: object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: h}})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	tree := &object.Tree{Entries: make([]object.TreeEntry, len(entries))}
	for i, e := range entries {
		tree.Entries[i] = e.entry
	}
	obj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}
