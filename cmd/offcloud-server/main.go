// Command offcloud-server runs the remote filesystem HTTP service.
package main

import (
	"net/http"
	"os"

	"github.com/nodermann/offlinecloud/httpapi"
	"github.com/nodermann/offlinecloud/internal/config"
	"github.com/nodermann/offlinecloud/obslog/logrus"
	"github.com/nodermann/offlinecloud/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal(err)
	}

	log := logrus.Default()

	s, err := storage.New(cfg.DataRoot, log)
	if err != nil {
		fatal(err)
	}

	api := httpapi.New(s, log)

	log.Logger.WithField("addr", cfg.ListenAddr).WithField("root", s.Root()).Info("listening")
	if err := http.ListenAndServe(cfg.ListenAddr, api.Router()); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	os.Stderr.WriteString(err.Error() + "\n")
	os.Exit(1)
}
