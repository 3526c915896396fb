package httpapi

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/gabriel-vasile/mimetype"

	"github.com/nodermann/offlinecloud/apierr"
)

// sniffLen is how much of a file's head is sniffed for content type
// before the rest is streamed through untouched.
const sniffLen = 3072

// sniff reads up to sniffLen bytes from rc to detect its MIME type and
// returns a reader that replays those bytes before continuing the
// stream, so sniffing never drops data from the response body.
func sniff(rc io.Reader) (*mimetype.MIME, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, nil, err
	}
	head = head[:n]
	return mimetype.Detect(head), io.MultiReader(bytes.NewReader(head), rc), nil
}

func baseName(clientPath string) string {
	return path.Base(path.Clean("/" + clientPath))
}

func (a *API) fileView(w http.ResponseWriter, r *http.Request) error {
	p, err := queryParam(r, "path")
	if err != nil {
		return err
	}
	rc, err := a.storage.OpenReadStream(p)
	if err != nil {
		return err
	}
	defer rc.Close()

	mtype, body, err := sniff(rc)
	if err != nil {
		return err
	}

	if mtype.String() == "application/octet-stream" {
		filename := url.QueryEscape(baseName(p))
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		w.Header().Set("Content-Type", "application/octet-stream")
	} else {
		w.Header().Set("Content-Disposition", "inline")
		w.Header().Set("Content-Type", mtype.String())
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
	return nil
}

func (a *API) fileDownload(w http.ResponseWriter, r *http.Request) error {
	p, err := queryParam(r, "path")
	if err != nil {
		return err
	}
	rc, err := a.storage.OpenReadStream(p)
	if err != nil {
		return err
	}
	defer rc.Close()

	mtype, body, err := sniff(rc)
	if err != nil {
		return err
	}

	filename := url.QueryEscape(baseName(p))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Content-Type", mtype.String())
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
	return nil
}

func (a *API) fileNew(w http.ResponseWriter, r *http.Request) error {
	p, err := jsonPathKey(r)
	if err != nil {
		return err
	}
	if err := a.storage.NewFile(p); err != nil {
		return err
	}
	writeMessage(w, http.StatusCreated, "OK")
	return nil
}

func (a *API) fileUpload(w http.ResponseWriter, r *http.Request) error {
	mr, err := r.MultipartReader()
	if err != nil {
		return apierr.MissingMultipart("path")
	}

	pathPart, err := nextNamedPart(mr, "path")
	if err != nil {
		return err
	}
	p, err := readTextPart(pathPart, "path")
	if err != nil {
		return err
	}

	dataPart, err := nextNamedPart(mr, "data")
	if err != nil {
		return err
	}

	if err := a.storage.SaveMultipartFile(p, dataPart); err != nil {
		return err
	}
	writeMessage(w, http.StatusCreated, "OK")
	return nil
}

func (a *API) fileCopy(w http.ResponseWriter, r *http.Request) error {
	src, dest, err := jsonSrcDest(r)
	if err != nil {
		return err
	}
	if err := a.storage.CopyFile(src, dest); err != nil {
		return err
	}
	writeMessage(w, http.StatusOK, "OK")
	return nil
}

func (a *API) fileMove(w http.ResponseWriter, r *http.Request) error {
	src, dest, err := jsonSrcDest(r)
	if err != nil {
		return err
	}
	if err := a.storage.MoveFile(src, dest); err != nil {
		return err
	}
	writeMessage(w, http.StatusOK, "OK")
	return nil
}

func (a *API) fileRemove(w http.ResponseWriter, r *http.Request) error {
	p, err := jsonPathKey(r)
	if err != nil {
		return err
	}
	if err := a.storage.RemoveFile(p); err != nil {
		return err
	}
	writeMessage(w, http.StatusOK, "OK")
	return nil
}
