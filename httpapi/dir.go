package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
)

func (a *API) dirList(w http.ResponseWriter, r *http.Request) error {
	p, err := queryParam(r, "path")
	if err != nil {
		return err
	}
	entries, err := a.storage.ListDir(p)
	if err != nil {
		return err
	}
	writeResult(w, entries)
	return nil
}

func (a *API) dirDownload(w http.ResponseWriter, r *http.Request) error {
	p, err := queryParam(r, "path")
	if err != nil {
		return err
	}
	rc, err := a.storage.OpenZipStream(p)
	if err != nil {
		return err
	}
	defer rc.Close()

	filename := zipFilename(p)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Type", "application/zip")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
	return nil
}

// zipFilename derives the "<base>.zip" download name from the
// client-supplied directory path.
func zipFilename(clientPath string) string {
	base := path.Base(path.Clean("/" + clientPath))
	if base == "" || base == "/" || base == "." {
		base = "root"
	}
	return url.QueryEscape(base) + ".zip"
}

func (a *API) dirNew(w http.ResponseWriter, r *http.Request) error {
	p, err := jsonPathKey(r)
	if err != nil {
		return err
	}
	if err := a.storage.NewDir(p); err != nil {
		return err
	}
	writeMessage(w, http.StatusCreated, "OK")
	return nil
}

func (a *API) dirCopy(w http.ResponseWriter, r *http.Request) error {
	src, dest, err := jsonSrcDest(r)
	if err != nil {
		return err
	}
	if err := a.storage.CopyDir(src, dest); err != nil {
		return err
	}
	writeMessage(w, http.StatusOK, "OK")
	return nil
}

func (a *API) dirMove(w http.ResponseWriter, r *http.Request) error {
	src, dest, err := jsonSrcDest(r)
	if err != nil {
		return err
	}
	if err := a.storage.MoveDir(src, dest); err != nil {
		return err
	}
	writeMessage(w, http.StatusOK, "OK")
	return nil
}

func (a *API) dirRemove(w http.ResponseWriter, r *http.Request) error {
	p, err := jsonPathKey(r)
	if err != nil {
		return err
	}
	if err := a.storage.RemoveDir(p); err != nil {
		return err
	}
	writeMessage(w, http.StatusOK, "OK")
	return nil
}
