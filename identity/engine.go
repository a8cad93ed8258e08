/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identity

import "github.com/suparena/identitystore"

// ForEngine returns a Store over e's repositories, honoring e's super
// user.
func ForEngine(e *identitystore.Engine, opts ...Option) *Store {
	return NewStore(
		identitystore.Repository[User](e),
		identitystore.Repository[Role](e),
		identitystore.Repository[UserRole](e),
		append([]Option{WithSuperUser(e.SuperUser())}, opts...)...)
}
