// Package logrus adapts obslog.Log onto github.com/sirupsen/logrus.
package logrus

import (
	logrus "github.com/sirupsen/logrus"

	"github.com/nodermann/offlinecloud/obslog"
)

// Logrus is an obslog.Log backed by a *logrus.Logger.
type Logrus struct {
	Logger *logrus.Logger
	Enable obslog.Topics
}

func (l *Logrus) Enabled(topics obslog.Topics) bool {
	return (l.Enable & topics) != 0
}

func (l *Logrus) Log(topics obslog.Topics, msg string, fields obslog.M) {
	if !l.Enabled(topics) {
		return
	}
	l.Logger.WithFields(logrus.Fields(fields)).Info(msg)
}

var _ obslog.Log = (*Logrus)(nil)

// Default returns a Logrus adapter with every topic enabled, logging to
// logrus's default text formatter.
func Default() *Logrus {
	return &Logrus{
		Logger: logrus.New(),
		Enable: obslog.AllTopics,
	}
}
