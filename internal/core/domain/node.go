package domain

// Node is one resolved package instance.
// Its identity (ID) never changes once the node is created.
type Node struct {
	ID       DepID
	Name     InternedString
	Version  string
	Manifest *Manifest

	// Location is the slash path, relative to the project root, where the package files live.
	Location  string
	Integrity string
	Resolved  string

	Dev      bool
	Optional bool
	Importer bool
}

// NewNode creates a node. Store-backed kinds are placed at their store location;
// file and workspace nodes keep the location they were read from.
func NewNode(id DepID, name, version string, manifest *Manifest) *Node {
	n := &Node{
		ID:       id,
		Name:     NewInternedString(name),
		Version:  version,
		Manifest: manifest,
	}
	if id.IsStoreBacked() {
		n.Location = StoreLocation(id, name)
	}
	return n
}

// InStore reports whether the node's files live in the managed content-addressed store.
// Only such nodes are ever deleted by the reifier.
func (n *Node) InStore() bool {
	return IsStoreLocation(n.Location)
}

// DependencyDir returns the slash path of the directory holding this node's dependency links.
func (n *Node) DependencyDir() string {
	return DependencyDir(n.Location)
}

// IsStoreBacked reports whether packages of this id's kind are extracted into the store.
func (id DepID) IsStoreBacked() bool {
	switch id.Kind() {
	case KindRegistry, KindGit, KindRemote:
		return true
	default:
		return false
	}
}

// String returns a short human readable label for logs.
func (n *Node) String() string {
	if n.Version == "" {
		return n.Name.String()
	}
	return n.Name.String() + "@" + n.Version
}
