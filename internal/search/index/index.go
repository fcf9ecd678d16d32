// Package index turns catalog documents into a searchable structure with
// per-field tokenized postings. Indexes are immutable once built: Build and
// Patch construct fresh instances and callers swap a live reference, so
// concurrent readers never observe a half-built index.
package index

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tigraodegente/ecomm-gdg-sub002/internal/catalog"
	"github.com/tigraodegente/ecomm-gdg-sub002/internal/search/tokenizer"
	"github.com/tigraodegente/ecomm-gdg-sub002/pkg/errors"
)

// Field names the indexed document fields.
type Field string

const (
	FieldName        Field = "name"
	FieldSearchable  Field = "searchableText"
	FieldDescription Field = "description"
	FieldCategory    Field = "category"
	FieldVendor      Field = "vendor"
)

// Fields lists every indexed field in a fixed order so iteration is
// deterministic.
var Fields = []Field{FieldName, FieldSearchable, FieldDescription, FieldCategory, FieldVendor}

// postings maps tokens to the sorted document ids that contain them. The
// token slice is kept sorted so prefix lookups are a binary-search range
// scan.
type postings struct {
	tokens []string
	docs   map[string][]string
}

// Index is an immutable snapshot of the catalog: per-field postings plus the
// document store used for result enrichment. Every id present in postings
// has a corresponding stored document.
type Index struct {
	fields      map[Field]*postings
	store       map[string]catalog.Document
	foldedNames map[string]string
	ids         []string
	builtAt     time.Time
}

// Build tokenizes every document and returns a new Index. A nil or empty
// document set fails with ErrIndexUnavailable so callers retain the previous
// live index instead of replacing it with an empty one.
func Build(docs []catalog.Document) (*Index, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: document source returned no documents", errors.ErrIndexUnavailable)
	}
	return build(docs), nil
}

// Patch returns a new Index with the given documents upserted by id. It does
// not remove entries absent from the batch; callers needing removal must
// rebuild.
func Patch(old *Index, docs []catalog.Document) *Index {
	merged := make(map[string]catalog.Document, len(old.store)+len(docs))
	for id, d := range old.store {
		merged[id] = d
	}
	for _, d := range docs {
		d.Normalize()
		merged[d.ID] = d
	}
	all := make([]catalog.Document, 0, len(merged))
	for _, d := range merged {
		all = append(all, d)
	}
	return build(all)
}

func build(docs []catalog.Document) *Index {
	ix := &Index{
		fields:      make(map[Field]*postings, len(Fields)),
		store:       make(map[string]catalog.Document, len(docs)),
		foldedNames: make(map[string]string, len(docs)),
		builtAt:     time.Now(),
	}
	for _, f := range Fields {
		ix.fields[f] = &postings{docs: make(map[string][]string)}
	}
	for _, doc := range docs {
		doc.Normalize()
		ix.store[doc.ID] = doc
		ix.foldedNames[doc.ID] = tokenizer.Fold(doc.Name)
		ix.addField(FieldName, doc.ID, doc.Name)
		ix.addField(FieldSearchable, doc.ID, doc.SearchableText)
		ix.addField(FieldDescription, doc.ID, doc.Description)
		ix.addField(FieldCategory, doc.ID, doc.Category)
		ix.addField(FieldVendor, doc.ID, doc.Vendor)
	}
	ix.ids = make([]string, 0, len(ix.store))
	for id := range ix.store {
		ix.ids = append(ix.ids, id)
	}
	sort.Strings(ix.ids)
	for _, p := range ix.fields {
		p.tokens = make([]string, 0, len(p.docs))
		for tok, ids := range p.docs {
			sort.Strings(ids)
			p.docs[tok] = dedupe(ids)
			p.tokens = append(p.tokens, tok)
		}
		sort.Strings(p.tokens)
	}
	return ix
}

func (ix *Index) addField(f Field, docID, text string) {
	if text == "" {
		return
	}
	p := ix.fields[f]
	for _, tok := range tokenizer.Tokenize(text) {
		p.docs[tok] = append(p.docs[tok], docID)
	}
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// LookupPrefix returns the sorted ids of documents whose field contains a
// token starting with prefix. The prefix must already be folded.
func (ix *Index) LookupPrefix(f Field, prefix string) []string {
	p, ok := ix.fields[f]
	if !ok || prefix == "" {
		return nil
	}
	start := sort.SearchStrings(p.tokens, prefix)
	seen := make(map[string]struct{})
	var out []string
	for i := start; i < len(p.tokens) && strings.HasPrefix(p.tokens[i], prefix); i++ {
		for _, id := range p.docs[p.tokens[i]] {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}

// LookupContains returns the sorted ids of documents whose field contains a
// token with sub as a substring. Used by the fuzzy half of scoring; callers
// bypass it for single-rune terms to bound cost.
func (ix *Index) LookupContains(f Field, sub string) []string {
	p, ok := ix.fields[f]
	if !ok || sub == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, tok := range p.tokens {
		if !strings.Contains(tok, sub) {
			continue
		}
		for _, id := range p.docs[tok] {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Doc returns the stored document for id.
func (ix *Index) Doc(id string) (catalog.Document, bool) {
	d, ok := ix.store[id]
	return d, ok
}

// FoldedName returns the precomputed folded name for id, used by the scorer
// for exact and prefix name bonuses.
func (ix *Index) FoldedName(id string) string {
	return ix.foldedNames[id]
}

// IDs returns all document ids in ascending order.
func (ix *Index) IDs() []string {
	return ix.ids
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	return len(ix.store)
}

// BuiltAt returns when this index instance was constructed.
func (ix *Index) BuiltAt() time.Time {
	return ix.builtAt
}

// Categories returns the distinct raw category values present in the index,
// sorted. The lifecycle manager uses them for coarse cache invalidation.
func (ix *Index) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range ix.ids {
		c := ix.store[id].Category
		if c == "" {
			continue
		}
		if _, dup := seen[c]; !dup {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot serialises the document store for persistence. Rebuilding from a
// snapshot reproduces an equivalent index.
func (ix *Index) Snapshot() ([]byte, error) {
	docs := make([]catalog.Document, 0, len(ix.ids))
	for _, id := range ix.ids {
		docs = append(docs, ix.store[id])
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("marshaling index snapshot: %w", err)
	}
	return data, nil
}

// FromSnapshot rebuilds an Index from a Snapshot payload.
func FromSnapshot(data []byte) (*Index, error) {
	var docs []catalog.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("unmarshaling index snapshot: %w", err)
	}
	return Build(docs)
}
