//go:build windows

package bundle

import (
	"errors"
	"os"
	"strings"

	"github.com/loykin/appconnect/internal/oserr"
)

func checkExecutable(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return oserr.New("bundle", oserr.CodeNoExecutable, err)
	}
	if st.IsDir() {
		return oserr.New("bundle", oserr.CodeNoExecutable, errors.New(path+" is a directory"))
	}
	switch strings.ToLower(path[strings.LastIndex(path, ".")+1:]) {
	case "exe", "bat", "cmd", "com":
		return nil
	}
	return oserr.New("bundle", oserr.CodeNoExecutable, errors.New(path+" is not executable"))
}
