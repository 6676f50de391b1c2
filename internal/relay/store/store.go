package store

// Store is a facade delegating to the four repositories, the same
// aggregation boundary the teacher uses at its service layer — kept as a
// struct holding each repository, all backed by the shared connection pool
// (spec.md §9, "facade that delegates to four repositories").
type Store struct {
	conn *Conn

	PublishedPosts *PublishedPosts
	SourceState    *SourceState
	ActivityLog    *ActivityLog
	EditBuffer     *EditBuffer
}

// New wires the four repositories onto one shared pool.
func New(conn *Conn) *Store {
	return &Store{
		conn:           conn,
		PublishedPosts: newPublishedPosts(conn),
		SourceState:    newSourceState(conn),
		ActivityLog:    newActivityLog(conn),
		EditBuffer:     newEditBuffer(conn),
	}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}
