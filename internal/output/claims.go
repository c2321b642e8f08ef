package output

import (
	"fmt"

	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
)

// Claims maps each output path to the one source allowed to write it. Two
// sources that would produce the same path never both get it.
type Claims map[string]string

// Claim records paths as owned by src. If any path already belongs to
// another source nothing is recorded and a classified error naming the
// first conflict is returned.
func (c Claims) Claim(src string, paths []string) error {
	for _, p := range paths {
		if owner, ok := c[p]; ok && owner != src {
			return errors.ValidationError(fmt.Sprintf("output %s is already produced by %s", p, owner)).
				WithContext("source", src).
				WithContext("output", p).
				WithContext("owner", owner).
				Build()
		}
	}
	for _, p := range paths {
		c[p] = src
	}
	return nil
}

// Keep records the paths that are still unowned as owned by src.
func (c Claims) Keep(src string, paths []string) {
	for _, p := range paths {
		if _, ok := c[p]; !ok {
			c[p] = src
		}
	}
}

// OwnedByOther reports whether p belongs to a source other than src.
func (c Claims) OwnedByOther(p, src string) bool {
	owner, ok := c[p]
	return ok && owner != src
}
