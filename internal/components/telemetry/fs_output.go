package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// FilesystemOutput writes documents into files under a single directory, it is used
// to keep raw responses around for diagnosis after a run.
type FilesystemOutput struct {
	directory string
	prefix    string
	tel       API
}

// NewFilesystemOutput creates the directory if it does not exist. Unlike the
// resty dumps of a dev environment, existing files are left alone since dumps
// from previous runs are still useful.
func NewFilesystemOutput(dir, prefix string, tel API) (FilesystemOutput, error) {
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return FilesystemOutput{}, fmt.Errorf("create dump directory: %w", err)
	}
	return FilesystemOutput{directory: dir, prefix: prefix, tel: tel}, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Path returns the file a given id will be written to.
func (o FilesystemOutput) Path(id string) string {
	name := unsafeFilenameChars.ReplaceAllString(id, "_")
	name = strings.Trim(name, "_")
	return filepath.Join(o.directory, fmt.Sprintf("%s%s.html", o.prefix, name))
}

func (o FilesystemOutput) Write(id string, contents string) {
	path := o.Path(id)
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		o.tel.ReportWarning("fs-output.write", err, path)
		return
	}
	o.tel.ReportDebug("wrote dump", path)
}
