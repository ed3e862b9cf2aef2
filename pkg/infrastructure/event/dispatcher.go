package event

import (
	log "github.com/sirupsen/logrus"
	"shoppinglist/pkg/domain/service"
)

// LogDispatcher records domain events in the process log. It stands where a
// message broker would in a larger deployment.
type LogDispatcher struct{}

func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

func (d *LogDispatcher) Dispatch(e service.Event) error {
	log.WithFields(log.Fields{
		"event":   e.Type(),
		"payload": e,
	}).Info("domain event")
	return nil
}
