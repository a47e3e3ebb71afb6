package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffDecoded_DropsFullyKnownStruct(t *testing.T) {
	u := newUpdate()
	u.clients[1] = []*pendingStruct{gcStruct(1, 0, 5), gcStruct(1, 5, 3)}

	out := DiffDecoded(u, map[uint32]uint32{1: 5})
	assert.Len(t, out.clients[1], 1)
	assert.Equal(t, uint32(5), out.clients[1][0].id().Clock)
}

func TestDiffDecoded_TrimsBoundaryStraddlingStruct(t *testing.T) {
	u := newUpdate()
	u.clients[1] = []*pendingStruct{gcStruct(1, 0, 8)}

	out := DiffDecoded(u, map[uint32]uint32{1: 3})
	assert.Len(t, out.clients[1], 1)
	assert.Equal(t, uint32(3), out.clients[1][0].id().Clock)
	assert.Equal(t, uint32(5), out.clients[1][0].length())
}

func TestDiffDecoded_KeepsEverythingForUnknownClient(t *testing.T) {
	u := newUpdate()
	u.clients[7] = []*pendingStruct{gcStruct(7, 0, 4)}

	out := DiffDecoded(u, nil)
	assert.Len(t, out.clients[7], 1)
	assert.Equal(t, uint32(4), out.clients[7][0].length())
}
