package outbox

// TraversalSize recomputes the byte total by walking every record.
func (o *Outbox) TraversalSize() int {
	n := 0
	for _, r := range o.items {
		n += len(r.buf)
	}
	return n
}
