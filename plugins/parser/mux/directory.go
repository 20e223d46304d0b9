package mux

// Directory remembers which channel class was created on each SSRC. It only
// feeds labels; decoding never depends on it.
type Directory struct {
	classes map[uint32]string
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{classes: make(map[uint32]string)}
}

// Bind records class for ssrc, replacing an earlier binding.
func (d *Directory) Bind(ssrc uint32, class string) {
	d.classes[ssrc] = class
}

// Lookup returns the class bound to ssrc.
func (d *Directory) Lookup(ssrc uint32) (string, bool) {
	c, ok := d.classes[ssrc]
	return c, ok
}

// Len returns the number of bound SSRCs.
func (d *Directory) Len() int { return len(d.classes) }
