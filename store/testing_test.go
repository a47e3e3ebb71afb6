package store

// testParent is a minimal Parent implementation used across this
// package's tests to stand in for types.AbstractType without importing
// package types (which would create the cycle store/item.go documents).
type testParent struct {
	start  *Item
	m      map[string]*Item
	length int
	owner  *Item
	root   string
}

func newTestParent(root string) *testParent {
	return &testParent{m: make(map[string]*Item), root: root}
}

func (p *testParent) TypeStart() *Item          { return p.start }
func (p *testParent) SetTypeStart(it *Item)     { p.start = it }
func (p *testParent) TypeMap() map[string]*Item { return p.m }
func (p *testParent) AdjustLength(delta int)    { p.length += delta }
func (p *testParent) OwnerItem() *Item          { return p.owner }
func (p *testParent) RootName() string          { return p.root }

// visible walks the sequence from TypeStart via Right, returning the
// concatenated text of every non-deleted StringContent item, in document
// order (spec's "linearize" operation for a text/array root).
func (p *testParent) visible() string {
	out := ""
	for it := p.start; it != nil; it = it.Right {
		if it.Deleted() {
			continue
		}
		if sc, ok := it.Content.(*StringContent); ok {
			out += sc.String()
		}
	}
	return out
}
