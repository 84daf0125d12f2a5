// Package lockfile reads and writes nest-lock.json.
package lockfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"go.trai.ch/nest/internal/core/domain"
	"go.trai.ch/zerr"
)

// Version is the lockfile format version.
const Version = 0

// MissingTarget marks an edge without a target.
const MissingTarget = "MISSING"

// overrideMarker follows the edge type of edges whose specifier came from an override.
const overrideMarker = "!"

const (
	flagDev = 1 << iota
	flagOptional
)

// document is the on-disk layout. Maps are encoded with sorted keys.
type document struct {
	LockfileVersion int               `json:"lockfileVersion"`
	Options         options           `json:"options"`
	Importers       []string          `json:"importers"`
	Nodes           map[string][]any  `json:"nodes"`
	Edges           map[string]string `json:"edges"`
}

type options struct {
	Registries map[string]string `json:"registries,omitempty"`
}

// Encode serializes g. Importers are listed by id only; their manifests are
// read from disk on load.
func Encode(g *domain.Graph) ([]byte, error) {
	doc := document{
		LockfileVersion: Version,
		Options:         options{Registries: g.Registries},
		Importers:       []string{},
		Nodes:           make(map[string][]any),
		Edges:           make(map[string]string),
	}

	for n := range g.Nodes() {
		if n.Importer {
			doc.Importers = append(doc.Importers, string(n.ID))
			continue
		}
		doc.Nodes[string(n.ID)] = nodeTuple(n)
	}

	for e := range g.Edges() {
		if strings.ContainsAny(e.Name, " \n") {
			return nil, zerr.With(zerr.Wrap(domain.ErrLockfileCorrupt, "dependency name contains whitespace"), "name", e.Name)
		}
		to := MissingTarget
		if !e.Missing() {
			to = string(e.To)
		}
		typ := string(e.Type)
		if e.Overridden {
			typ += overrideMarker
		}
		doc.Edges[string(e.From)+" "+e.Name] = fmt.Sprintf("%s %s %s", typ, e.Spec.Bare, to)
	}
	slices.Sort(doc.Importers)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, zerr.Wrap(err, "failed to encode lockfile")
	}
	return buf.Bytes(), nil
}

func nodeTuple(n *domain.Node) []any {
	flags := 0
	if n.Dev {
		flags |= flagDev
	}
	if n.Optional {
		flags |= flagOptional
	}

	location := n.Location
	if n.ID.IsStoreBacked() && location == domain.StoreLocation(n.ID, n.Name.String()) {
		location = ""
	}

	tuple := []any{flags, n.Name.String(), n.Integrity, n.Resolved, location}
	for len(tuple) > 2 && tuple[len(tuple)-1] == "" {
		tuple = tuple[:len(tuple)-1]
	}
	return tuple
}

// Decode parses a lockfile into a graph rooted at root. Importer nodes are
// recreated without manifests; the project root is always one of them.
func Decode(data []byte, root string) (*domain.Graph, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, corrupt("invalid JSON: " + err.Error())
	}
	if doc.LockfileVersion != Version {
		return nil, zerr.With(corrupt("unsupported lockfile version"), "version", doc.LockfileVersion)
	}

	g := domain.NewGraph(root)
	for alias, u := range doc.Options.Registries {
		g.Registries[alias] = u
	}

	g.AddImporter(importerNode(domain.NewFileID(".")))
	for _, key := range doc.Importers {
		id := domain.DepID(key)
		if _, err := domain.ParseDepID(key); err != nil {
			return nil, zerr.Wrap(domain.ErrLockfileCorrupt, err.Error())
		}
		if !isImporterKind(id) {
			return nil, zerr.With(corrupt("importer must be a file or workspace id"), "id", key)
		}
		g.AddImporter(importerNode(id))
	}

	for _, key := range slices.Sorted(maps.Keys(doc.Nodes)) {
		n, err := decodeNode(key, doc.Nodes[key])
		if err != nil {
			return nil, err
		}
		g.AddNode(n)
	}

	edges := make([]*domain.Edge, 0, len(doc.Edges))
	for _, key := range slices.Sorted(maps.Keys(doc.Edges)) {
		e, err := decodeEdge(key, doc.Edges[key], g.Registries)
		if err != nil {
			return nil, err
		}
		for _, id := range []domain.DepID{e.From, e.To} {
			if id == "" {
				continue
			}
			if _, ok := g.Node(id); !ok {
				return nil, zerr.With(corrupt("edge refers to an unknown node"), "id", string(id))
			}
		}
		edges = append(edges, e)
	}

	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			return nil, zerr.Wrap(domain.ErrLockfileCorrupt, err.Error())
		}
	}
	return g, nil
}

func decodeNode(key string, tuple []any) (*domain.Node, error) {
	fields, err := domain.ParseDepID(key)
	if err != nil {
		return nil, zerr.Wrap(domain.ErrLockfileCorrupt, err.Error())
	}
	if len(tuple) < 2 || len(tuple) > 5 {
		return nil, zerr.With(corrupt("node tuple must have 2 to 5 members"), "id", key)
	}

	num, ok := tuple[0].(json.Number)
	if !ok {
		return nil, zerr.With(corrupt("node flags must be a number"), "id", key)
	}
	flags, err := num.Int64()
	if err != nil || flags < 0 || flags > flagDev|flagOptional {
		return nil, zerr.With(corrupt("invalid node flags"), "id", key)
	}

	str := make([]string, 4)
	for i := 1; i < len(tuple); i++ {
		s, ok := tuple[i].(string)
		if !ok {
			return nil, zerr.With(corrupt("node tuple members must be strings"), "id", key)
		}
		str[i-1] = s
	}
	name, integrity, resolved, location := str[0], str[1], str[2], str[3]
	if name == "" {
		return nil, zerr.With(corrupt("node has no name"), "id", key)
	}

	id := domain.DepID(key)
	n := domain.NewNode(id, name, fields.Version, nil)
	n.Integrity = integrity
	n.Resolved = resolved
	n.Dev = flags&flagDev != 0
	n.Optional = flags&flagOptional != 0
	if location != "" {
		n.Location = location
	}
	if n.Location == "" {
		n.Location = fields.Path
	}
	return n, nil
}

func decodeEdge(key, value string, registries map[string]string) (*domain.Edge, error) {
	from, name, ok := strings.Cut(key, " ")
	if !ok || from == "" || name == "" {
		return nil, zerr.With(corrupt("malformed edge key"), "key", key)
	}
	if _, err := domain.ParseDepID(from); err != nil {
		return nil, zerr.Wrap(domain.ErrLockfileCorrupt, err.Error())
	}

	typeStr, rest, ok := strings.Cut(value, " ")
	if !ok {
		return nil, zerr.With(corrupt("malformed edge value"), "key", key)
	}
	last := strings.LastIndex(rest, " ")
	if last < 0 {
		return nil, zerr.With(corrupt("malformed edge value"), "key", key)
	}
	bare, to := rest[:last], rest[last+1:]

	typeStr, overridden := strings.CutSuffix(typeStr, overrideMarker)
	typ, ok := domain.ParseDependencyType(typeStr)
	if !ok {
		return nil, zerr.With(corrupt("unknown edge type"), "type", typeStr)
	}

	e := &domain.Edge{From: domain.DepID(from), Name: name, Type: typ, Overridden: overridden}
	if to != MissingTarget {
		if _, err := domain.ParseDepID(to); err != nil {
			return nil, zerr.Wrap(domain.ErrLockfileCorrupt, err.Error())
		}
		e.To = domain.DepID(to)
	}

	spec, err := domain.ParseSpec(name, bare, registries)
	if err != nil {
		// Keep the text so the edge still round-trips.
		spec = domain.Spec{Name: name, Bare: bare}
	}
	e.Spec = spec
	return e, nil
}

func importerNode(id domain.DepID) *domain.Node {
	fields, _ := id.Fields()
	n := domain.NewNode(id, "", "", nil)
	n.Location = fields.Path
	return n
}

func isImporterKind(id domain.DepID) bool {
	k := id.Kind()
	return k == domain.KindFile || k == domain.KindWorkspace
}

func corrupt(reason string) error {
	return zerr.Wrap(domain.ErrLockfileCorrupt, reason)
}
