package manager

import (
	"fmt"
	"sync"

	"github.com/saskenuba/dbml-language-server/internal/index"
	"github.com/saskenuba/dbml-language-server/internal/parser"
	"github.com/saskenuba/dbml-language-server/internal/sitteradapter"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

var logger = commonlog.GetLogger("dbml.manager")

// Snapshot is a consistent read-only view of a document. The index may be
// one generation behind the tree.
type Snapshot struct {
	URI     string
	Version int32
	Source  []byte
	Tree    *sitter.Tree
	Index   *index.IdentifierIndex
}

// Root returns the root node of the snapshot's tree, or nil.
func (s Snapshot) Root() *sitter.Node {
	if s.Tree == nil {
		return nil
	}
	return s.Tree.RootNode()
}

// Document is the session state of one open document.
//
// Source and tree live behind treeMu, the index behind indexMu. The two
// locks are never held together: an update swaps source and tree, releases
// treeMu, then rebuilds and swaps the index under indexMu.
type Document struct {
	URI string

	svc     *parser.Service
	builder *index.Builder

	treeMu     sync.RWMutex
	source     []byte
	tree       *sitter.Tree
	version    int32
	generation uint64

	indexMu         sync.RWMutex
	index           *index.IdentifierIndex
	indexGeneration uint64
}

// NewDocument creates an empty session for uri.
func NewDocument(uri string, svc *parser.Service, builder *index.Builder) *Document {
	return &Document{
		URI:     uri,
		svc:     svc,
		builder: builder,
		index:   index.New(),
	}
}

// Open loads the initial text of the document.
func (d *Document) Open(version int32, text string) {
	d.Replace(version, text)
}

// Replace swaps in a whole new text.
func (d *Document) Replace(version int32, text string) {
	source := []byte(text)

	d.treeMu.Lock()
	tree := d.svc.Parse(source, nil)
	gen := d.swap(version, source, tree)
	d.treeMu.Unlock()

	d.rebuildIndex(gen, source, tree)
}

// ApplyChanges applies LSP content changes in order. Each change is either a
// protocol.TextDocumentContentChangeEvent or a
// protocol.TextDocumentContentChangeEventWhole. Incremental edits are
// applied to a copy of the current tree so that published snapshots are
// never modified.
func (d *Document) ApplyChanges(version int32, changes []any) error {
	d.treeMu.Lock()

	source := d.source
	var edited *sitter.Tree
	if d.tree != nil {
		edited = d.tree.Copy()
	}

	for i, change := range changes {
		switch change := change.(type) {
		case protocol.TextDocumentContentChangeEvent:
			if change.Range == nil {
				source, edited = []byte(change.Text), nil
				continue
			}
			if edited != nil {
				edited.Edit(sitteradapter.EditInput(source, change))
			}
			source = sitteradapter.ApplyChange(source, change)
		case protocol.TextDocumentContentChangeEventWhole:
			source, edited = []byte(change.Text), nil
		default:
			d.treeMu.Unlock()
			return fmt.Errorf("unsupported content change %d for %s: %T", i, d.URI, change)
		}
	}

	tree := d.svc.Parse(source, edited)
	gen := d.swap(version, source, tree)
	d.treeMu.Unlock()

	d.rebuildIndex(gen, source, tree)
	return nil
}

// swap must be called with treeMu held.
func (d *Document) swap(version int32, source []byte, tree *sitter.Tree) uint64 {
	d.source = source
	d.tree = tree
	d.version = version
	d.generation++
	return d.generation
}

func (d *Document) rebuildIndex(gen uint64, source []byte, tree *sitter.Tree) {
	var root *sitter.Node
	if tree != nil {
		root = tree.RootNode()
	}
	idx := d.builder.Build(source, root)

	d.indexMu.Lock()
	defer d.indexMu.Unlock()
	// A slower rebuild of an older tree must not replace a newer index.
	if gen <= d.indexGeneration {
		logger.Debugf("dropping stale index of %s (generation %d)", d.URI, gen)
		return
	}
	d.index = idx
	d.indexGeneration = gen
}

// Snapshot returns the current source, tree and index.
func (d *Document) Snapshot() Snapshot {
	d.treeMu.RLock()
	snap := Snapshot{
		URI:     d.URI,
		Version: d.version,
		Source:  d.source,
		Tree:    d.tree,
	}
	d.treeMu.RUnlock()

	d.indexMu.RLock()
	snap.Index = d.index
	d.indexMu.RUnlock()
	return snap
}

// Index returns the current identifier index.
func (d *Document) Index() *index.IdentifierIndex {
	d.indexMu.RLock()
	defer d.indexMu.RUnlock()
	return d.index
}

// DocumentManager holds the session of every open document by URI.
type DocumentManager struct {
	svc     *parser.Service
	builder *index.Builder

	mu   sync.Mutex
	docs map[string]*Document
}

// NewDocumentManager creates an initialized DocumentManager.
func NewDocumentManager(svc *parser.Service, builder *index.Builder) *DocumentManager {
	return &DocumentManager{
		svc:     svc,
		builder: builder,
		docs:    make(map[string]*Document),
	}
}

// Open creates or resets the session of uri with text.
func (dm *DocumentManager) Open(uri string, version int32, text string) *Document {
	dm.mu.Lock()
	doc, ok := dm.docs[uri]
	if !ok {
		doc = NewDocument(uri, dm.svc, dm.builder)
		dm.docs[uri] = doc
	}
	dm.mu.Unlock()

	doc.Open(version, text)
	logger.Infof("opened %s (version %d)", uri, version)
	return doc
}

// Get returns the session of uri.
func (dm *DocumentManager) Get(uri string) (*Document, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	doc, ok := dm.docs[uri]
	if !ok {
		return nil, fmt.Errorf("document not loaded for %s", uri)
	}
	return doc, nil
}

// IsOpen reports whether uri has a session.
func (dm *DocumentManager) IsOpen(uri string) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	_, ok := dm.docs[uri]
	return ok
}

// URIs lists the open documents.
func (dm *DocumentManager) URIs() []string {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	uris := make([]string, 0, len(dm.docs))
	for uri := range dm.docs {
		uris = append(uris, uri)
	}
	return uris
}

// Close discards the session of uri.
func (dm *DocumentManager) Close(uri string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	delete(dm.docs, uri)
}

// CloseAll discards every session.
func (dm *DocumentManager) CloseAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.docs = make(map[string]*Document)
}
