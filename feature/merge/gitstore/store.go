package gitstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"kb-bridge/core/conflict"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"go.uber.org/zap"
)

const docExt = ".json"

// ErrInvalidDocumentID is returned for ids that cannot be used as file names.
var ErrInvalidDocumentID = errors.New("invalid document id")

// Options configures a Store.
type Options struct {
	// Name scopes cached snapshots. Defaults to "git".
	Name          string
	ContentFields []string
	AuthorName    string
	AuthorEmail   string
	Logger        *zap.Logger
}

// Store reads and merges documents kept as JSON files in a git repository.
type Store struct {
	repo          *gogit.Repository
	name          string
	contentFields []string
	authorName    string
	authorEmail   string
	log           *zap.Logger

	// mu serializes merges; reads need no lock.
	mu sync.Mutex
}

// Open opens the repository at path.
func Open(repoPath string, opts Options) (*Store, error) {
	repo, err := gogit.PlainOpenWithOptions(repoPath, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open git repository %s: %w", repoPath, err)
	}
	if opts.Name == "" {
		opts.Name = repoPath
	}
	return New(repo, opts), nil
}

// New wraps an open repository.
func New(repo *gogit.Repository, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.ContentFields) == 0 {
		opts.ContentFields = conflict.DefaultContentFields
	}
	if opts.Name == "" {
		opts.Name = "git"
	}
	return &Store{
		repo:          repo,
		name:          opts.Name,
		contentFields: opts.ContentFields,
		authorName:    opts.AuthorName,
		authorEmail:   opts.AuthorEmail,
		log:           opts.Logger.Named("gitstore"),
	}
}

// Name implements conflict.VersionedStore.
func (s *Store) Name() string {
	return "git:" + s.name
}

func docPath(table, id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidDocumentID, id)
	}
	return table + "/" + id + docExt, nil
}

// splitDocPath returns the table and id of a document path. Files outside a
// table directory, nested deeper or without the JSON extension are not documents.
func splitDocPath(p string) (table, id string, ok bool) {
	dir, file := path.Split(p)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" || strings.Contains(dir, "/") || !strings.HasSuffix(file, docExt) {
		return "", "", false
	}
	return dir, strings.TrimSuffix(file, docExt), true
}

// ResolveRef implements conflict.RefResolver.
func (s *Store) ResolveRef(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h, err := s.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, err)
	}
	return h.String(), nil
}

func (s *Store) commit(ref string) (*object.Commit, error) {
	h, err := s.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	c, err := s.repo.CommitObject(*h)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", ref, err)
	}
	return c, nil
}

func (s *Store) tree(ref string) (*object.Tree, error) {
	c, err := s.commit(ref)
	if err != nil {
		return nil, err
	}
	return c.Tree()
}

// MergeBase implements conflict.VersionedStore. With several best common
// ancestors the smallest hash is returned so the answer is stable.
func (s *Store) MergeBase(ctx context.Context, ours, theirs string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a, err := s.commit(ours)
	if err != nil {
		return "", err
	}
	b, err := s.commit(theirs)
	if err != nil {
		return "", err
	}
	bases, err := a.MergeBase(b)
	if err != nil {
		return "", fmt.Errorf("merge base of %s and %s: %w", ours, theirs, err)
	}
	if len(bases) == 0 {
		return "", fmt.Errorf("%s and %s share no history", ours, theirs)
	}
	hashes := make([]string, len(bases))
	for i, c := range bases {
		hashes[i] = c.Hash.String()
	}
	sort.Strings(hashes)
	return hashes[0], nil
}

func (s *Store) diff(ctx context.Context, from, to string) (object.Changes, error) {
	a, err := s.tree(from)
	if err != nil {
		return nil, err
	}
	b, err := s.tree(to)
	if err != nil {
		return nil, err
	}
	changes, err := a.DiffContext(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", from, to, err)
	}
	return changes, nil
}

func changePath(c *object.Change) string {
	if c.To.Name != "" {
		return c.To.Name
	}
	return c.From.Name
}

// ChangedTables implements conflict.VersionedStore.
func (s *Store) ChangedTables(ctx context.Context, from, to string) ([]string, error) {
	changes, err := s.diff(ctx, from, to)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var tables []string
	for _, c := range changes {
		table, _, ok := splitDocPath(changePath(c))
		if ok && !seen[table] {
			seen[table] = true
			tables = append(tables, table)
		}
	}
	sort.Strings(tables)
	return tables, nil
}

// ChangedDocuments implements conflict.VersionedStore.
func (s *Store) ChangedDocuments(ctx context.Context, table, from, to string) (map[string]conflict.ChangeType, error) {
	changes, err := s.diff(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[string]conflict.ChangeType)
	for _, c := range changes {
		t, id, ok := splitDocPath(changePath(c))
		if !ok || t != table {
			continue
		}
		action, err := c.Action()
		if err != nil {
			return nil, fmt.Errorf("diff %s..%s: %w", from, to, err)
		}
		switch action {
		case merkletrie.Insert:
			out[id] = conflict.ChangeAdded
		case merkletrie.Delete:
			out[id] = conflict.ChangeRemoved
		default:
			out[id] = conflict.ChangeModified
		}
	}
	return out, nil
}

// Snapshot implements conflict.VersionedStore.
func (s *Store) Snapshot(ctx context.Context, table, documentID, ref string) (conflict.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return conflict.Snapshot{}, err
	}
	p, err := docPath(table, documentID)
	if err != nil {
		return conflict.Snapshot{}, err
	}
	tree, err := s.tree(ref)
	if err != nil {
		return conflict.Snapshot{}, err
	}
	fields, err := readDocument(tree, p)
	if err != nil {
		return conflict.Snapshot{}, err
	}
	if fields == nil {
		return conflict.Absent(), nil
	}
	return conflict.RowSnapshot(fields, s.contentFields), nil
}

// readDocument decodes the JSON document at p. A missing file yields nil.
func readDocument(tree *object.Tree, p string) (map[string]any, error) {
	f, err := tree.File(p)
	if errors.Is(err, object.ErrFileNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	raw, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	return fields, nil
}

var (
	_ conflict.VersionedStore = (*Store)(nil)
	_ conflict.RefResolver    = (*Store)(nil)
	_ conflict.MergeWriter    = (*Store)(nil)
)
