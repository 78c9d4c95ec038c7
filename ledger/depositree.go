package ledger

import "fmt"

var zeroHashes = generateZeroHashes(TreeHeight)

// depositTree is the append-only incremental merkle tree of the deposit ledger. Only the left
// branch of the next insertion point is kept, so adding a leaf costs height hashes.
type depositTree struct {
	branch [TreeHeight][KeyLen]byte
	count  uint64
}

func (t *depositTree) addLeaf(leaf [KeyLen]byte) error {
	if t.count >= 1<<TreeHeight-1 {
		return fmt.Errorf("deposit tree is full")
	}
	t.count++
	size := t.count
	node := leaf
	for h := 0; h < TreeHeight; h++ {
		if size&1 == 1 {
			t.branch[h] = node
			return nil
		}
		node = hash(t.branch[h], node)
		size /= 2
	}
	return nil
}

// root returns the tree root mixed in with the deposit count
func (t *depositTree) root() [KeyLen]byte {
	var node [KeyLen]byte
	size := t.count
	for h := 0; h < TreeHeight; h++ {
		if size&1 == 1 {
			node = hash(t.branch[h], node)
		} else {
			node = hash(node, zeroHashes[h])
		}
		size /= 2
	}
	return hash(node, lengthMixin(t.count))
}
