package vectorindex

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// noteIndex maps a note id to the bitmap of record ids that belong to it.
type noteIndex struct {
	byNote map[string]*roaring.Bitmap
}

func newNoteIndex() *noteIndex {
	return &noteIndex{byNote: make(map[string]*roaring.Bitmap)}
}

func (n *noteIndex) add(noteID string, id uint32) {
	rb, ok := n.byNote[noteID]
	if !ok {
		rb = roaring.New()
		n.byNote[noteID] = rb
	}
	rb.Add(id)
}

func (n *noteIndex) remove(noteID string, id uint32) {
	rb, ok := n.byNote[noteID]
	if !ok {
		return
	}
	rb.Remove(id)
	if rb.IsEmpty() {
		delete(n.byNote, noteID)
	}
}

// take removes and returns every record id of noteID.
func (n *noteIndex) take(noteID string) []uint32 {
	rb, ok := n.byNote[noteID]
	if !ok {
		return nil
	}
	delete(n.byNote, noteID)
	return rb.ToArray()
}

func (n *noteIndex) count(noteID string) int {
	if rb, ok := n.byNote[noteID]; ok {
		return int(rb.GetCardinality())
	}
	return 0
}

func (n *noteIndex) notes() int {
	return len(n.byNote)
}
