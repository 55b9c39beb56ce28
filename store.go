package roundtable

import "context"

// History persists finished discussions. Implementations live under
// store/ (SQLite for local use, Postgres for shared deployments).
//
// GetSession returns ErrNotFound when no session has the given ID.
// Recent returns sessions newest first without their transcripts; Search
// matches the query against user queries, message content, and result
// summaries.
type History interface {
	Init(ctx context.Context) error
	SaveSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	Recent(ctx context.Context, limit, offset int) ([]*Session, error)
	Search(ctx context.Context, query string, limit int) ([]*Session, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
