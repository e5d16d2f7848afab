package blob

import (
	fsstore "pokedex/internal/infra/blob/fs"
)

// DefaultRoot is the fs driver root used when none is configured.
const DefaultRoot = "./data"

// NewFilesystem returns a filesystem blob store rooted at root.
func NewFilesystem(root string) (Store, error) {
	if root == "" {
		root = DefaultRoot
	}
	return fsstore.New(root)
}
