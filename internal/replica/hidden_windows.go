//go:build windows

package replica

import "golang.org/x/sys/windows"

// hideDir sets the hidden attribute so the outbox does not clutter
// the shared folder in Explorer.
func hideDir(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}
	return windows.SetFileAttributes(p, attrs|windows.FILE_ATTRIBUTE_HIDDEN)
}
