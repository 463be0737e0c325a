//go:build !windows

package replica

// hideDir is a no-op outside Windows; the dot-prefixed directory name
// already hides it.
func hideDir(string) error {
	return nil
}
