package ldap

import "context"

// Client performs one verification against a directory server: a bind
// with the credentials in params followed by the requested role searches.
//
// A false result with a nil error means the directory rejected the
// credentials. Errors report that the outcome could not be determined,
// typically wrapping autherr.ErrTransientIO.
type Client interface {
	Authenticate(ctx context.Context, params Params, roleSearch []RoleSearchParams) (bool, SearchResultsList, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, params Params, roleSearch []RoleSearchParams) (bool, SearchResultsList, error)

func (f ClientFunc) Authenticate(ctx context.Context, params Params, roleSearch []RoleSearchParams) (bool, SearchResultsList, error) {
	return f(ctx, params, roleSearch)
}
