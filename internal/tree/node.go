package tree

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"vidrepo/internal/services"
)

// Kind names the variant held by a node.
type Kind string

const (
	KindFolder Kind = "folder"
	KindFile   Kind = "file"
)

// Body is the variant payload of a Node. It is implemented only by Folder and
// File, so a node can never carry both children and content.
type Body interface {
	kind() Kind
}

// Folder holds an ordered child sequence.
type Folder struct {
	Children []Node
}

func (Folder) kind() Kind { return KindFolder }

// File holds a text payload.
type File struct {
	Content string
}

func (File) kind() Kind { return KindFile }

// Node is an element of a repository tree. Node values are treated as
// immutable: the Tree operations never write through a Node or its child
// slice once it has been published.
type Node struct {
	ID     string
	Name   string
	Locked bool
	Open   bool
	Body   Body
}

// NewFolder builds an unlocked folder with a fresh id.
func NewFolder(name string, children ...Node) Node {
	return Node{ID: uuid.NewString(), Name: normalizeName(name), Body: Folder{Children: slices.Clone(children)}}
}

// NewFile builds an unlocked file with a fresh id.
func NewFile(name, content string) Node {
	return Node{ID: uuid.NewString(), Name: normalizeName(name), Body: File{Content: content}}
}

// New builds an empty node of the given kind.
func New(name string, kind Kind) (Node, error) {
	clean, err := ValidateName(name)
	if err != nil {
		return Node{}, err
	}
	switch kind {
	case KindFolder:
		return NewFolder(clean), nil
	case KindFile:
		return NewFile(clean, ""), nil
	default:
		return Node{}, services.Wrap(services.ErrValidation, "tree", "new node", fmt.Sprintf("unknown kind %q", kind), nil)
	}
}

// Kind reports which variant the node holds. A node without a body reports
// file.
func (n Node) Kind() Kind {
	if n.Body == nil {
		return KindFile
	}
	return n.Body.kind()
}

// IsFolder reports whether the node is a folder.
func (n Node) IsFolder() bool {
	_, ok := n.Body.(Folder)
	return ok
}

// Children returns a copy of the folder's children, or nil for files.
func (n Node) Children() []Node {
	if folder, ok := n.Body.(Folder); ok {
		return slices.Clone(folder.Children)
	}
	return nil
}

// Content returns the file payload. ok is false for folders.
func (n Node) Content() (string, bool) {
	switch body := n.Body.(type) {
	case File:
		return body.Content, true
	case nil:
		return "", true
	default:
		return "", false
	}
}

// WithLocked returns a copy of n with the lock flag set.
func (n Node) WithLocked(locked bool) Node {
	n.Locked = locked
	return n
}

// ValidateName trims and NFC-normalizes a node name, rejecting empty names
// and path separators.
func ValidateName(name string) (string, error) {
	clean := normalizeName(name)
	switch {
	case clean == "":
		return "", services.Wrap(services.ErrValidation, "tree", "name", "name must not be empty", nil)
	case clean == "." || clean == "..":
		return "", services.Wrap(services.ErrValidation, "tree", "name", fmt.Sprintf("name %q is reserved", clean), nil)
	case strings.ContainsAny(clean, `/\`):
		return "", services.Wrap(services.ErrValidation, "tree", "name", fmt.Sprintf("name %q must not contain path separators", clean), nil)
	}
	return clean, nil
}

func normalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

type wireNode struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Kind     Kind    `json:"kind"`
	Locked   bool    `json:"locked,omitempty"`
	Open     bool    `json:"open,omitempty"`
	Content  *string `json:"content,omitempty"`
	Children []Node  `json:"children,omitempty"`
}

// MarshalJSON encodes the node with an explicit kind tag.
func (n Node) MarshalJSON() ([]byte, error) {
	wire := wireNode{ID: n.ID, Name: n.Name, Kind: n.Kind(), Locked: n.Locked, Open: n.Open}
	switch body := n.Body.(type) {
	case Folder:
		wire.Children = body.Children
		if wire.Children == nil {
			wire.Children = []Node{}
		}
	case File:
		content := body.Content
		wire.Content = &content
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the tagged wire form. A missing kind is inferred from
// the presence of children.
func (n *Node) UnmarshalJSON(data []byte) error {
	var wire wireNode
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	kind := wire.Kind
	if kind == "" {
		kind = KindFile
		if wire.Children != nil {
			kind = KindFolder
		}
	}
	out := Node{ID: wire.ID, Name: wire.Name, Locked: wire.Locked, Open: wire.Open}
	switch kind {
	case KindFolder:
		if wire.Content != nil {
			return fmt.Errorf("node %q: folder must not carry content", wire.ID)
		}
		out.Body = Folder{Children: wire.Children}
	case KindFile:
		if len(wire.Children) > 0 {
			return fmt.Errorf("node %q: file must not carry children", wire.ID)
		}
		content := ""
		if wire.Content != nil {
			content = *wire.Content
		}
		out.Body = File{Content: content}
	default:
		return fmt.Errorf("node %q: unknown kind %q", wire.ID, wire.Kind)
	}
	if strings.TrimSpace(out.ID) == "" {
		return fmt.Errorf("node %q: missing id", wire.Name)
	}
	*n = out
	return nil
}
