package luaconfig

import (
	"errors"
	"fmt"
)

// ErrUnsupportedVersion is returned by VersionByte for any dotted version
// string other than "5.1" or "5.3".
var ErrUnsupportedVersion = errors.New("luaconfig: unsupported version")

func errUnsupportedVersion(v string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
}
