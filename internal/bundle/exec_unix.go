//go:build !windows

package bundle

import (
	"errors"
	"io/fs"
	"os"

	"github.com/loykin/appconnect/internal/oserr"
)

func checkExecutable(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return oserr.New("bundle", oserr.CodeNoLaunchPermission, err)
		}
		return oserr.New("bundle", oserr.CodeNoExecutable, err)
	}
	if st.IsDir() || st.Mode().Perm()&0o111 == 0 {
		return oserr.New("bundle", oserr.CodeNoExecutable, errors.New(path+" is not executable"))
	}
	return nil
}
