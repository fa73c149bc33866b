package fetcher

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// ListZIPMembers returns the file names inside a ZIP archive held in
// memory, skipping directories. Names are flattened to their base name;
// the bulletins ship flat archives, and any nesting is an artifact of
// how they were packed.
func ListZIPMembers(data []byte) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	var names []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name, err := sanitizeMemberName(f.Name)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// ReadZIPMember extracts a single member by (sanitized) name.
func ReadZIPMember(data []byte, name string) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		memberName, err := sanitizeMemberName(f.Name)
		if err != nil {
			return nil, err
		}
		if memberName != name {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, eris.Wrapf(err, "zip: open member %s", name)
		}
		defer rc.Close() //nolint:errcheck

		out, err := io.ReadAll(rc)
		if err != nil {
			return nil, eris.Wrapf(err, "zip: read member %s", name)
		}
		return out, nil
	}

	return nil, eris.Errorf("zip: member %q not found in archive", name)
}

// sanitizeMemberName flattens a member path to its base name and
// rejects traversal attempts.
func sanitizeMemberName(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if strings.HasPrefix(clean, "..") || strings.HasPrefix(clean, "/") {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", name)
	}
	return path.Base(clean), nil
}
